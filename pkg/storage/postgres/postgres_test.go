package postgres_test

import (
	"context"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/vivek100/spool/pkg/record"
	"github.com/vivek100/spool/pkg/storage"
	"github.com/vivek100/spool/pkg/storage/postgres"
)

// connStr returns the PostgreSQL connection string from environment or skips the test.
func connStr() string {
	dsn := os.Getenv("SPOOL_TEST_POSTGRES_DSN")
	if dsn == "" {
		Skip("SPOOL_TEST_POSTGRES_DSN not set, skipping PostgreSQL tests")
	}
	return dsn
}

var _ = Describe("Driver", func() {
	var (
		ctx    context.Context
		driver *postgres.Driver
	)

	newSession := func(id string, completed time.Time) *storage.Session {
		return &storage.Session{
			ID:          id,
			Provider:    record.ProviderOpenAI,
			Content:     "assembled text",
			RecordCount: 3,
			Usage:       record.Usage{PromptTokens: 4, CompletionTokens: 6, TotalTokens: 10},
			StartedAt:   completed.Add(-time.Second).UTC(),
			CompletedAt: completed.UTC(),
		}
	}

	BeforeEach(func() {
		ctx = context.Background()
		dsn := connStr()

		var err error
		driver, err = postgres.NewDriver(ctx, dsn)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if driver != nil {
			driver.Close()
		}
	})

	It("round-trips a session", func() {
		session := newSession("pg-s1", time.Now())
		Expect(driver.Save(ctx, session)).To(Succeed())

		got, err := driver.Get(ctx, "pg-s1")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Content).To(Equal("assembled text"))
		Expect(got.Usage.TotalTokens).To(Equal(10))
	})

	It("returns NotFoundError for a missing session", func() {
		_, err := driver.Get(ctx, "pg-missing")
		Expect(err).To(MatchError(storage.NotFoundError{ID: "pg-missing"}))
	})
})
