package kafka_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/vivek100/spool/pkg/eventstream"
	"github.com/vivek100/spool/pkg/eventstream/kafka"
)

var _ = Describe("Publisher", func() {
	Describe("NewPublisher", func() {
		It("requires at least one broker", func() {
			_, err := kafka.NewPublisher(kafka.Config{Topic: "spool.sessions"})
			Expect(err).To(HaveOccurred())
		})

		It("requires a topic", func() {
			_, err := kafka.NewPublisher(kafka.Config{Brokers: []string{"localhost:9092"}})
			Expect(err).To(HaveOccurred())
		})

		It("creates a publisher with brokers and topic", func() {
			p, err := kafka.NewPublisher(kafka.Config{
				Brokers: []string{"localhost:9092"},
				Topic:   "spool.sessions",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(p).NotTo(BeNil())
			Expect(p.Close()).To(Succeed())
		})
	})

	Describe("PublishSession", func() {
		It("rejects nil events before touching the wire", func() {
			p, err := kafka.NewPublisher(kafka.Config{
				Brokers: []string{"localhost:9092"},
				Topic:   "spool.sessions",
			})
			Expect(err).NotTo(HaveOccurred())
			defer p.Close()

			Expect(p.PublishSession(context.Background(), nil)).
				To(MatchError(eventstream.ErrNilSessionEvent))
		})
	})
})
