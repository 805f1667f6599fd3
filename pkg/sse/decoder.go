package sse

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
)

// Record is one decoded data payload from a stream.
type Record struct {
	// Value is the JSON-decoded payload. Shape validation is the
	// consumer's concern; the decoder treats it as opaque.
	Value any

	// Raw is the payload text exactly as it appeared on the wire,
	// after the "data: " prefix.
	Raw string
}

// Handler consumes one record. It is invoked sequentially: the call for
// record N returns before record N+1 is parsed. A non-nil error is reported
// as a diagnostic and never terminates the stream.
type Handler func(ctx context.Context, rec Record) error

// DiagnosticKind classifies a diagnostic emitted during decoding.
type DiagnosticKind string

const (
	// DiagnosticBadPayload reports a payload that failed JSON parsing.
	DiagnosticBadPayload DiagnosticKind = "bad_payload"

	// DiagnosticHandlerFailed reports a handler that returned an error.
	DiagnosticHandlerFailed DiagnosticKind = "handler_failed"

	// DiagnosticSentinel reports normal termination by the [DONE] sentinel.
	DiagnosticSentinel DiagnosticKind = "sentinel"
)

// Diagnostic carries a recoverable, frame-local event. Diagnostics never
// surface through Run's return value; only transport failures do.
type Diagnostic struct {
	Kind DiagnosticKind

	// Err is the parse or handler error. Nil for DiagnosticSentinel.
	Err error

	// Payload is the raw payload text the diagnostic refers to.
	Payload string
}

// Decoder incrementally decodes an SSE byte stream into records. A Decoder
// holds no per-session state and may be shared across concurrent Run calls;
// each call owns its own buffer.
type Decoder struct {
	logger       *slog.Logger
	diagnostics  func(Diagnostic)
	bufferSize   int
	maxFrameSize int
}

// NewDecoder creates a Decoder configured by opts.
func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{
		logger:       slog.Default(),
		bufferSize:   64 * 1024,
		maxFrameSize: 1024 * 1024,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run decodes src until the stream ends, the [DONE] sentinel arrives, or the
// source fails. src is closed exactly once, on every exit path.
//
// handle is awaited per record, in frame order, with no overlap. Malformed
// payloads and handler errors are reported as diagnostics and skipped; they
// never abort the session. A read error from src aborts the session and is
// returned, as does a frame exceeding the configured cap (bufio.ErrTooLong;
// see WithMaxFrameSize) since the decoder cannot resynchronize past it. An
// empty source yields zero handler calls and a nil return.
//
// Frames already buffered behind a sentinel are never examined, and a
// trailing unterminated fragment at end-of-stream is never treated as a
// record.
func (d *Decoder) Run(ctx context.Context, src io.ReadCloser, handle Handler) error {
	defer src.Close()

	scanner := bufio.NewScanner(src)
	// The scanner ignores a max smaller than the initial buffer capacity,
	// so the starting buffer must not exceed the frame cap.
	scanner.Buffer(make([]byte, min(d.bufferSize, d.maxFrameSize)), d.maxFrameSize)
	scanner.Split(ScanFrames)

	for scanner.Scan() {
		payload, ok := PayloadText(scanner.Text())
		if !ok {
			// Control-only frame (event:, id:, retry:, comments). Skip.
			continue
		}

		if payload == Sentinel {
			d.report(Diagnostic{Kind: DiagnosticSentinel, Payload: payload})
			return nil
		}

		var value any
		if err := json.Unmarshal([]byte(payload), &value); err != nil {
			d.report(Diagnostic{Kind: DiagnosticBadPayload, Err: err, Payload: payload})
			continue
		}

		if err := handle(ctx, Record{Value: value, Raw: payload}); err != nil {
			d.report(Diagnostic{Kind: DiagnosticHandlerFailed, Err: err, Payload: payload})
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading stream: %w", err)
	}

	return nil
}

// report delivers a diagnostic to the configured sink, falling back to the
// decoder's logger.
func (d *Decoder) report(diag Diagnostic) {
	if d.diagnostics != nil {
		d.diagnostics(diag)
		return
	}

	switch diag.Kind {
	case DiagnosticSentinel:
		d.logger.Debug("stream terminated by sentinel")
	case DiagnosticBadPayload:
		d.logger.Warn("skipping malformed payload",
			"error", diag.Err,
			"payload", diag.Payload,
		)
	case DiagnosticHandlerFailed:
		d.logger.Warn("record handler failed",
			"error", diag.Err,
			"payload", diag.Payload,
		)
	}
}
