package sse

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// chunkReader replays a fixed sequence of chunks, one per Read call,
// simulating arbitrary network fragmentation. A zero-length chunk models an
// empty read from the transport.
type chunkReader struct {
	chunks [][]byte
}

func newChunkReader(chunks ...string) *chunkReader {
	r := &chunkReader{}
	for _, c := range chunks {
		r.chunks = append(r.chunks, []byte(c))
	}
	return r
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	if n == len(r.chunks[0]) {
		r.chunks = r.chunks[1:]
	} else {
		r.chunks[0] = r.chunks[0][n:]
	}
	return n, nil
}

// closeTracker counts Close calls on a wrapped reader.
type closeTracker struct {
	io.Reader
	closes int
}

func (c *closeTracker) Close() error {
	c.closes++
	return nil
}

// failingReader yields its prefix bytes, then a read error.
type failingReader struct {
	prefix []byte
	err    error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if len(r.prefix) > 0 {
		n := copy(p, r.prefix)
		r.prefix = r.prefix[n:]
		return n, nil
	}
	return 0, r.err
}

var _ = Describe("Decoder", func() {
	var (
		decoder     *Decoder
		diagnostics []Diagnostic
		records     []Record
		collect     Handler
	)

	BeforeEach(func() {
		diagnostics = nil
		records = nil
		decoder = NewDecoder(WithDiagnostics(func(d Diagnostic) {
			diagnostics = append(diagnostics, d)
		}))
		collect = func(_ context.Context, rec Record) error {
			records = append(records, rec)
			return nil
		}
	})

	run := func(src io.Reader, handle Handler) error {
		return decoder.Run(context.Background(), io.NopCloser(src), handle)
	}

	diagnosticsOfKind := func(kind DiagnosticKind) []Diagnostic {
		var out []Diagnostic
		for _, d := range diagnostics {
			if d.Kind == kind {
				out = append(out, d)
			}
		}
		return out
	}

	Describe("Run", func() {
		It("decodes a single record", func() {
			err := run(strings.NewReader("data: {\"a\":1}\n\n"), collect)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(1))
			Expect(records[0].Raw).To(Equal(`{"a":1}`))
			Expect(records[0].Value).To(HaveKeyWithValue("a", BeNumerically("==", 1)))
		})

		It("preserves record order across arbitrary chunk boundaries", func() {
			// Frames split mid-payload, mid-prefix, and mid-delimiter.
			src := newChunkReader(
				"data: {\"n\":", "1}\n", "\nda", "ta: {\"n\":2}", "\n\n",
				"", // empty read from the transport
				"data: {\"n\":3}\n\n",
			)

			err := run(src, collect)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(3))
			for i, rec := range records {
				Expect(rec.Value).To(HaveKeyWithValue("n", BeNumerically("==", i+1)))
			}
		})

		It("reassembles a multi-byte character split at a chunk boundary", func() {
			payload := `{"text":"héllo"}`
			raw := "data: " + payload + "\n\n"
			// Split inside the two-byte UTF-8 encoding of é.
			cut := strings.Index(raw, "é") + 1

			err := run(newChunkReader(raw[:cut], raw[cut:]), collect)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(1))
			Expect(records[0].Value).To(HaveKeyWithValue("text", "héllo"))
			Expect(diagnostics).To(BeEmpty())
		})

		It("invokes the handler strictly sequentially", func() {
			inFlight := 0
			err := run(strings.NewReader("data: {\"n\":1}\n\ndata: {\"n\":2}\n\n"),
				func(_ context.Context, rec Record) error {
					inFlight++
					Expect(inFlight).To(Equal(1))
					records = append(records, rec)
					inFlight--
					return nil
				})
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(2))
		})

		Context("sentinel handling", func() {
			It("stops at the sentinel without examining later frames", func() {
				input := "data: {\"a\":1}\n\ndata: [DONE]\n\ndata: {not json\n\n"
				err := run(strings.NewReader(input), collect)
				Expect(err).NotTo(HaveOccurred())
				Expect(records).To(HaveLen(1))
				// The invalid frame behind the sentinel was never parsed.
				Expect(diagnosticsOfKind(DiagnosticBadPayload)).To(BeEmpty())
				Expect(diagnosticsOfKind(DiagnosticSentinel)).To(HaveLen(1))
			})

			It("handles a sentinel arriving in its own chunk", func() {
				src := newChunkReader("data: {\"a\":1}\n\n", "data: [DONE]\n\n")
				err := run(src, collect)
				Expect(err).NotTo(HaveOccurred())
				Expect(records).To(HaveLen(1))
			})

			It("does not treat the sentinel as a record", func() {
				err := run(strings.NewReader("data: [DONE]\n\n"), collect)
				Expect(err).NotTo(HaveOccurred())
				Expect(records).To(BeEmpty())
			})
		})

		Context("frame-level error isolation", func() {
			It("skips malformed payloads and continues", func() {
				input := "data: {\"a\":1}\n\ndata: {bad}\n\ndata: {\"a\":2}\n\n"
				err := run(strings.NewReader(input), collect)
				Expect(err).NotTo(HaveOccurred())
				Expect(records).To(HaveLen(2))
				Expect(records[0].Raw).To(Equal(`{"a":1}`))
				Expect(records[1].Raw).To(Equal(`{"a":2}`))

				bad := diagnosticsOfKind(DiagnosticBadPayload)
				Expect(bad).To(HaveLen(1))
				Expect(bad[0].Err).To(HaveOccurred())
				Expect(bad[0].Payload).To(Equal("{bad}"))
			})

			It("survives handler failures and continues", func() {
				handlerErr := errors.New("downstream exploded")
				calls := 0
				err := run(strings.NewReader("data: {\"n\":1}\n\ndata: {\"n\":2}\n\n"),
					func(_ context.Context, rec Record) error {
						calls++
						if calls == 1 {
							return handlerErr
						}
						records = append(records, rec)
						return nil
					})
				Expect(err).NotTo(HaveOccurred())
				Expect(calls).To(Equal(2))
				Expect(records).To(HaveLen(1))
				Expect(records[0].Value).To(HaveKeyWithValue("n", BeNumerically("==", 2)))

				failed := diagnosticsOfKind(DiagnosticHandlerFailed)
				Expect(failed).To(HaveLen(1))
				Expect(failed[0].Err).To(MatchError(handlerErr))
				Expect(failed[0].Payload).To(Equal(`{"n":1}`))
			})
		})

		Context("control frames", func() {
			It("ignores frames without a data line", func() {
				input := "event: ping\nid: 3\n\nretry: 3000\n\ndata: {\"a\":1}\n\n"
				err := run(strings.NewReader(input), collect)
				Expect(err).NotTo(HaveOccurred())
				Expect(records).To(HaveLen(1))
				Expect(diagnostics).To(BeEmpty())
			})

			It("ignores frames of only blank lines", func() {
				err := run(strings.NewReader("\n\n\n\n"), collect)
				Expect(err).NotTo(HaveOccurred())
				Expect(records).To(BeEmpty())
				Expect(diagnostics).To(BeEmpty())
			})
		})

		Context("stream termination", func() {
			It("completes cleanly on an empty source", func() {
				err := run(strings.NewReader(""), collect)
				Expect(err).NotTo(HaveOccurred())
				Expect(records).To(BeEmpty())
				Expect(diagnostics).To(BeEmpty())
			})

			It("discards an unterminated trailing fragment", func() {
				input := "data: {\"a\":1}\n\ndata: {\"a\":2}"
				err := run(strings.NewReader(input), collect)
				Expect(err).NotTo(HaveOccurred())
				Expect(records).To(HaveLen(1))
				Expect(diagnostics).To(BeEmpty())
			})
		})

		Context("transport failures", func() {
			It("propagates a read error before any frame completes", func() {
				readErr := errors.New("connection reset")
				err := run(&failingReader{err: readErr}, collect)
				Expect(err).To(MatchError(readErr))
				Expect(records).To(BeEmpty())
			})

			It("propagates a read error after delivered frames", func() {
				readErr := errors.New("upstream gone")
				src := &failingReader{
					prefix: []byte("data: {\"a\":1}\n\n"),
					err:    readErr,
				}
				err := run(src, collect)
				Expect(err).To(MatchError(readErr))
				Expect(records).To(HaveLen(1))
			})
		})

		Context("resource release", func() {
			runTracked := func(src io.Reader, handle Handler) (*closeTracker, error) {
				tracker := &closeTracker{Reader: src}
				return tracker, decoder.Run(context.Background(), tracker, handle)
			}

			It("closes the source once on success", func() {
				tracker, err := runTracked(strings.NewReader("data: {\"a\":1}\n\n"), collect)
				Expect(err).NotTo(HaveOccurred())
				Expect(tracker.closes).To(Equal(1))
			})

			It("closes the source once on sentinel early return", func() {
				tracker, err := runTracked(strings.NewReader("data: [DONE]\n\n"), collect)
				Expect(err).NotTo(HaveOccurred())
				Expect(tracker.closes).To(Equal(1))
			})

			It("closes the source once on transport failure", func() {
				tracker, err := runTracked(&failingReader{err: errors.New("boom")}, collect)
				Expect(err).To(HaveOccurred())
				Expect(tracker.closes).To(Equal(1))
			})

			It("closes the source once when frames fail", func() {
				tracker, err := runTracked(strings.NewReader("data: {bad}\n\n"),
					func(context.Context, Record) error {
						return fmt.Errorf("never reached")
					})
				Expect(err).NotTo(HaveOccurred())
				Expect(tracker.closes).To(Equal(1))
			})
		})

		Context("frame size cap", func() {
			It("surfaces an oversized frame as a transport error", func() {
				capped := NewDecoder(
					WithMaxFrameSize(64),
					WithDiagnostics(func(Diagnostic) {}),
				)
				huge := "data: {\"pad\":\"" + strings.Repeat("x", 256) + "\"}\n\n"
				err := capped.Run(context.Background(), io.NopCloser(strings.NewReader(huge)), collect)
				Expect(errors.Is(err, bufio.ErrTooLong)).To(BeTrue())
				Expect(records).To(BeEmpty())
			})
		})
	})
})
