package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/vivek100/spool/pkg/eventstream"
	spoollogger "github.com/vivek100/spool/pkg/logger"
	"github.com/vivek100/spool/pkg/record"
	"github.com/vivek100/spool/pkg/storage"
	"github.com/vivek100/spool/pkg/storage/inmemory"
)

// capturingPublisher records every published event for assertions.
type capturingPublisher struct {
	mu     sync.Mutex
	events []*eventstream.SessionRecordedEvent
	err    error
}

func (p *capturingPublisher) PublishSession(_ context.Context, event *eventstream.SessionRecordedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *capturingPublisher) Close() error { return nil }

func (p *capturingPublisher) published() []*eventstream.SessionRecordedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*eventstream.SessionRecordedEvent(nil), p.events...)
}

// blockingDriver wraps the in-memory driver and holds every Save until the
// gate channel closes, so tests can fill the queue deterministically.
type blockingDriver struct {
	*inmemory.Driver
	gate chan struct{}
}

func (d *blockingDriver) Save(ctx context.Context, session *storage.Session) error {
	<-d.gate
	return d.Driver.Save(ctx, session)
}

// newTestPool creates a worker pool backed by an in-memory driver.
// Callers should "wp.Close()" to drain enqueued jobs before asserting storage state.
func newTestPool(publisher eventstream.Publisher) (*Pool, *inmemory.Driver) {
	driver := inmemory.NewDriver()

	wp, err := NewPool(&Config{
		Driver:    driver,
		Publisher: publisher,
		Logger:    spoollogger.Nop(),
	})
	Expect(err).NotTo(HaveOccurred())

	return wp, driver
}

func testSession(id string) *storage.Session {
	now := time.Now()
	return &storage.Session{
		ID:          id,
		Provider:    "openai",
		Model:       "gpt-4",
		Content:     "Hello world!",
		RecordCount: 3,
		Usage:       record.Usage{PromptTokens: 10, CompletionTokens: 3, TotalTokens: 13},
		StartedAt:   now.Add(-time.Second),
		CompletedAt: now,
	}
}

var _ = Describe("Worker Pool", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	Describe("Enqueue", func() {
		It("returns true when the queue has capacity", func() {
			wp, _ := newTestPool(nil)
			ok := wp.Enqueue(Job{Session: testSession("s-1")})
			Expect(ok).To(BeTrue())
			wp.Close()
		})

		It("returns false and drops the job when the queue is full", func() {
			driver := &blockingDriver{Driver: inmemory.NewDriver(), gate: make(chan struct{})}
			wp, err := NewPool(&Config{
				Driver:     driver,
				NumWorkers: 1,
				QueueSize:  1,
				Logger:     spoollogger.Nop(),
			})
			Expect(err).NotTo(HaveOccurred())

			// The first job parks the single worker inside Save; keep
			// enqueueing until the queue slot is occupied too.
			wp.Enqueue(Job{Session: testSession("s-1")})
			Eventually(func() bool {
				return !wp.Enqueue(Job{Session: testSession("s-2")})
			}).Should(BeTrue())

			close(driver.gate)
			wp.Close()
		})
	})

	Describe("session persistence", func() {
		It("stores enqueued sessions before Close returns", func() {
			wp, driver := newTestPool(nil)

			wp.Enqueue(Job{Session: testSession("s-1")})
			wp.Enqueue(Job{Session: testSession("s-2")})
			wp.Close()

			sessions, err := driver.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(sessions).To(HaveLen(2))
		})

		It("rejects jobs with a nil session", func() {
			wp, driver := newTestPool(nil)

			Expect(wp.Enqueue(Job{})).To(BeFalse())
			wp.Close()

			sessions, err := driver.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(sessions).To(BeEmpty())
		})
	})

	Describe("event publishing", func() {
		It("publishes one event per stored session", func() {
			publisher := &capturingPublisher{}
			wp, _ := newTestPool(publisher)

			wp.Enqueue(Job{Session: testSession("s-1")})
			wp.Close()

			events := publisher.published()
			Expect(events).To(HaveLen(1))
			Expect(events[0].Session.SessionID).To(Equal("s-1"))
			Expect(events[0].Source.Provider).To(Equal("openai"))
			Expect(events[0].Session.RecordCount).To(Equal(3))
			Expect(events[0].EventID).NotTo(BeEmpty())
		})

		It("still stores the session when publishing fails", func() {
			publisher := &capturingPublisher{err: errors.New("broker down")}
			wp, driver := newTestPool(publisher)

			wp.Enqueue(Job{Session: testSession("s-1")})
			wp.Close()

			sessions, err := driver.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(sessions).To(HaveLen(1))
		})

		It("skips publishing when no publisher is configured", func() {
			wp, driver := newTestPool(nil)

			wp.Enqueue(Job{Session: testSession("s-1")})
			wp.Close()

			sessions, err := driver.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(sessions).To(HaveLen(1))
		})
	})
})
