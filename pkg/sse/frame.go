// Package sse provides an incremental decoder for Server-Sent-Events byte
// streams produced by LLM/agent backends. Bytes go in as arbitrarily sized
// chunks; discrete JSON records come out one at a time, in order, through a
// caller-supplied handler.
//
// ┌────────────────────┐
// │ source io.ReadCloser│
// └────────────────────┘
// │
// ▼
// ┌────────────────────┐   ┌────────────────────┐
// │   Decoder.Run()    │──▶│  Handler(Record)   │
// └────────────────────┘   └────────────────────┘
// │
// ▼
// ┌────────────────────┐
// │   Diagnostics      │  (malformed payloads, handler failures, sentinel)
// └────────────────────┘
//
// This package intentionally does NOT provide SSE writer or server
// capabilities, nor does it interpret record contents.
//
// See the SSE specification:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

import (
	"bytes"
	"strings"
)

const (
	// dataPrefix marks a payload-bearing line inside a frame. The trailing
	// space is part of the prefix: exactly "data: ", six bytes.
	dataPrefix = "data: "

	// Sentinel is the payload literal that signals normal stream
	// termination ("data: [DONE]" on the wire).
	Sentinel = "[DONE]"
)

// frameDelim separates frames in the raw byte stream.
var frameDelim = []byte("\n\n")

// ScanFrames is a bufio.SplitFunc that tokenizes an SSE byte stream into
// frames delimited by "\n\n". The scanner's internal buffer carries partial
// frames (and partially read multi-byte characters) across reads, so a frame
// or UTF-8 sequence split over any number of chunk boundaries is reassembled
// before it is yielded.
//
// A trailing fragment with no terminating delimiter at end-of-stream is not
// a frame and is discarded.
func ScanFrames(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if i := bytes.Index(data, frameDelim); i >= 0 {
		return i + len(frameDelim), data[:i], nil
	}
	if atEOF {
		// Unterminated trailing bytes. Consume them without yielding.
		return len(data), nil, nil
	}
	// Need more data to complete the frame.
	return 0, nil, nil
}

// PayloadText extracts the payload of the first "data: " line in frame.
// Frames without a data line (control lines such as "event:", "id:",
// "retry:", comments, or empty frames) report ok == false.
//
// Known limitation: only the first data line is read. Producers targeted by
// this decoder emit at most one data line per frame; multi-line data
// concatenation per the general SSE spec is not performed.
func PayloadText(frame string) (payload string, ok bool) {
	for line := range strings.SplitSeq(frame, "\n") {
		if rest, found := strings.CutPrefix(line, dataPrefix); found {
			return rest, true
		}
	}
	return "", false
}
