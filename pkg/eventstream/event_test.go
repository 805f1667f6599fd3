package eventstream_test

import (
	"encoding/json"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/vivek100/spool/pkg/eventstream"
	"github.com/vivek100/spool/pkg/record"
	"github.com/vivek100/spool/pkg/storage"
)

var _ = Describe("Event", func() {
	newSession := func() *storage.Session {
		now := time.Unix(1735689600, 0).UTC()
		return &storage.Session{
			ID:          "sess_123",
			Provider:    record.ProviderOpenAI,
			AgentName:   "codex",
			Model:       "gpt-4.1",
			Content:     "hello there",
			RecordCount: 4,
			Usage:       record.Usage{PromptTokens: 5, CompletionTokens: 6, TotalTokens: 11},
			StartedAt:   now.Add(-2 * time.Second),
			CompletedAt: now,
		}
	}

	Describe("NewSessionRecordedEvent", func() {
		It("stamps schema, type, event ID and emission time", func() {
			event := eventstream.NewSessionRecordedEvent(newSession())

			Expect(event.SchemaVersion).To(Equal(eventstream.SchemaVersionV1))
			Expect(event.EventType).To(Equal(eventstream.EventTypeSessionRecorded))
			Expect(event.EventID).NotTo(BeEmpty())
			Expect(event.EmittedAt).To(BeTemporally("~", time.Now(), time.Minute))
		})

		It("carries session metadata and usage", func() {
			event := eventstream.NewSessionRecordedEvent(newSession())

			Expect(event.Session.SessionID).To(Equal("sess_123"))
			Expect(event.Session.RecordCount).To(Equal(4))
			Expect(event.Session.DurationMs).To(Equal(int64(2000)))
			Expect(event.Source.Provider).To(Equal(record.ProviderOpenAI))
			Expect(event.Source.AgentName).To(Equal("codex"))
			Expect(event.Usage.TotalTokens).To(Equal(11))
			Expect(event.ContentPreview).To(Equal("hello there"))
		})

		It("truncates long content previews", func() {
			session := newSession()
			session.Content = strings.Repeat("x", 4096)

			event := eventstream.NewSessionRecordedEvent(session)
			Expect(event.ContentPreview).To(HaveLen(256 + len("...")))
			Expect(event.ContentPreview).To(HaveSuffix("..."))
		})

		It("assigns a distinct event ID per event", func() {
			a := eventstream.NewSessionRecordedEvent(newSession())
			b := eventstream.NewSessionRecordedEvent(newSession())
			Expect(a.EventID).NotTo(Equal(b.EventID))
		})
	})

	It("marshals with expected top-level keys", func() {
		event := eventstream.NewSessionRecordedEvent(newSession())

		payload, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())

		var parsed map[string]any
		Expect(json.Unmarshal(payload, &parsed)).To(Succeed())
		Expect(parsed).To(HaveKey("schema_version"))
		Expect(parsed).To(HaveKey("event_type"))
		Expect(parsed).To(HaveKey("event_id"))
		Expect(parsed).To(HaveKey("emitted_at"))
		Expect(parsed).To(HaveKey("source"))
		Expect(parsed).To(HaveKey("session"))
		Expect(parsed).To(HaveKey("usage"))
		Expect(parsed["event_type"]).To(Equal("spool.session.recorded"))
	})
})
