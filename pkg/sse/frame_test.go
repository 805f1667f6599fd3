package sse

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ScanFrames", func() {
	It("yields a complete frame and consumes its delimiter", func() {
		advance, token, err := ScanFrames([]byte("data: hello\n\nrest"), false)
		Expect(err).NotTo(HaveOccurred())
		Expect(advance).To(Equal(len("data: hello\n\n")))
		Expect(string(token)).To(Equal("data: hello"))
	})

	It("requests more data when no delimiter is present", func() {
		advance, token, err := ScanFrames([]byte("data: par"), false)
		Expect(err).NotTo(HaveOccurred())
		Expect(advance).To(BeZero())
		Expect(token).To(BeNil())
	})

	It("discards an unterminated trailing fragment at EOF", func() {
		advance, token, err := ScanFrames([]byte("data: dangling"), true)
		Expect(err).NotTo(HaveOccurred())
		Expect(advance).To(Equal(len("data: dangling")))
		Expect(token).To(BeNil())
	})

	It("yields an empty frame for consecutive delimiters", func() {
		advance, token, err := ScanFrames([]byte("\n\n"), false)
		Expect(err).NotTo(HaveOccurred())
		Expect(advance).To(Equal(2))
		Expect(token).NotTo(BeNil())
		Expect(token).To(BeEmpty())
	})
})

var _ = Describe("PayloadText", func() {
	It("extracts the text after the data prefix", func() {
		payload, ok := PayloadText(`data: {"a":1}`)
		Expect(ok).To(BeTrue())
		Expect(payload).To(Equal(`{"a":1}`))
	})

	It("takes only the first data line of a frame", func() {
		payload, ok := PayloadText("data: first\ndata: second")
		Expect(ok).To(BeTrue())
		Expect(payload).To(Equal("first"))
	})

	It("skips control lines before the data line", func() {
		payload, ok := PayloadText("event: message\nid: 7\ndata: hello")
		Expect(ok).To(BeTrue())
		Expect(payload).To(Equal("hello"))
	})

	It("reports no payload for control-only frames", func() {
		_, ok := PayloadText("event: ping\nid: 3\nretry: 3000")
		Expect(ok).To(BeFalse())
	})

	It("reports no payload for empty frames", func() {
		_, ok := PayloadText("")
		Expect(ok).To(BeFalse())
	})

	It("requires the space after the colon", func() {
		_, ok := PayloadText("data:nospace")
		Expect(ok).To(BeFalse())
	})

	It("preserves an empty payload after the prefix", func() {
		payload, ok := PayloadText("data: ")
		Expect(ok).To(BeTrue())
		Expect(payload).To(BeEmpty())
	})
})
