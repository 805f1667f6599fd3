package sse

import "log/slog"

// Option configures a Decoder created with NewDecoder.
type Option func(*Decoder)

// WithLogger sets the logger used for default diagnostic reporting.
// Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(d *Decoder) {
		d.logger = logger
	}
}

// WithDiagnostics installs a diagnostic sink, replacing the default
// logger-based reporting. The sink is called synchronously from the decode
// loop, so it must not block on the stream it is observing.
func WithDiagnostics(sink func(Diagnostic)) Option {
	return func(d *Decoder) {
		d.diagnostics = sink
	}
}

// WithMaxFrameSize caps the size of a single buffered frame. Defaults to
// 1 MiB. A frame exceeding the cap surfaces as a transport error from Run.
func WithMaxFrameSize(n int) Option {
	return func(d *Decoder) {
		d.maxFrameSize = n
	}
}
