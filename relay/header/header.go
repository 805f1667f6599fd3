// Package header implements the relay's header policy for the two legs of a
// captured request:
//
//	Client <--> Relay <--> Upstream LLM Provider
//
// Each leg negotiates its own connection, compression and framing, so
// hop-by-hop headers never cross the relay. End-to-end headers are copied
// through, and SSE responses additionally get streaming headers so no
// intermediary buffers the frames the client is waiting on.
package header

import (
	"mime"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// AgentNameHeader is the optional request header used to tag which agent
// produced the stream. It is consumed by the relay, never forwarded.
const AgentNameHeader = "X-Spool-Agent-Name"

// eventStreamType is the media type that routes a response into capture.
const eventStreamType = "text/event-stream"

// hopByHop is the set of connection-scoped headers (RFC 9110) that never
// cross the relay in either direction.
var hopByHop = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Connection":    {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

// skipRequest is the set of end-to-end request headers (client --> relay -->
// upstream) the relay still withholds from the upstream provider.
var skipRequest = map[string]struct{}{
	// Go's http.Transport derives Host from the upstream URL. The client's
	// Host names the relay, not the provider.
	"Host": {},

	// Stripped so http.Transport sends its own "Accept-Encoding: gzip" and
	// transparently decompresses the upstream body before the decoder and
	// the tee see it.
	"Accept-Encoding": {},

	// Consumed by the relay for session tagging.
	AgentNameHeader: {},
}

// skipResponse is the set of end-to-end response headers (client <-- relay
// <-- upstream) the relay withholds from the downstream client.
var skipResponse = map[string]struct{}{
	// http.Transport strips Content-Encoding after auto-decompression;
	// forwarding the stale value would claim an encoding the body no longer
	// has. Fiber's compress middleware sets its own when it re-compresses.
	"Content-Encoding": {},

	// The upstream length describes the (possibly compressed) upstream
	// body. Fiber computes the final length for its own framing.
	"Content-Length": {},
}

// AgentName extracts the trimmed agent tag from the inbound request, or ""
// when the client sent none.
func AgentName(c *fiber.Ctx) string {
	return strings.TrimSpace(c.Get(AgentNameHeader))
}

// IsEventStream reports whether the upstream response carries an SSE body.
// Media-type parameters (e.g. "; charset=utf-8") are ignored.
func IsEventStream(resp *http.Response) bool {
	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mediaType == eventStreamType
}

// CopyUpstreamRequest copies the inbound request headers onto the outgoing
// upstream request, dropping hop-by-hop headers, anything the client's
// Connection header names, and the relay's own skip set.
func CopyUpstreamRequest(c *fiber.Ctx, req *http.Request) {
	perMessage := connectionOptions(c.Get(fiber.HeaderConnection))

	c.Request().Header.VisitAll(func(key, value []byte) {
		k := http.CanonicalHeaderKey(string(key))
		if _, skip := hopByHop[k]; skip {
			return
		}
		if _, skip := perMessage[k]; skip {
			return
		}
		if _, skip := skipRequest[k]; skip {
			return
		}
		req.Header.Add(k, string(value))
	})
}

// CopyClientResponse copies upstream response headers onto the client
// response, applying the same hop-by-hop discipline plus the response skip
// set. Multi-valued headers are forwarded as repeated header lines, not
// joined.
func CopyClientResponse(c *fiber.Ctx, resp *http.Response) {
	perMessage := connectionOptions(resp.Header.Get(fiber.HeaderConnection))

	for k, values := range resp.Header {
		k = http.CanonicalHeaderKey(k)
		if _, skip := hopByHop[k]; skip {
			continue
		}
		if _, skip := perMessage[k]; skip {
			continue
		}
		if _, skip := skipResponse[k]; skip {
			continue
		}
		for _, v := range values {
			c.Response().Header.Add(k, v)
		}
	}
}

// SetStreamingResponseHeaders marks the client response as a live stream:
// no caching, and no buffering by intermediaries (X-Accel-Buffering is
// honored by nginx-style proxies). Upstream-provided values win.
func SetStreamingResponseHeaders(c *fiber.Ctx) {
	if len(c.Response().Header.Peek(fiber.HeaderCacheControl)) == 0 {
		c.Set(fiber.HeaderCacheControl, "no-cache")
	}
	if len(c.Response().Header.Peek("X-Accel-Buffering")) == 0 {
		c.Set("X-Accel-Buffering", "no")
	}
}

// connectionOptions parses a Connection header value into the set of header
// names it declares hop-by-hop for this message.
func connectionOptions(value string) map[string]struct{} {
	if value == "" {
		return nil
	}

	opts := make(map[string]struct{})
	for opt := range strings.SplitSeq(value, ",") {
		opt = strings.TrimSpace(opt)
		if opt == "" || strings.EqualFold(opt, "close") || strings.EqualFold(opt, "keep-alive") {
			continue
		}
		opts[http.CanonicalHeaderKey(opt)] = struct{}{}
	}
	return opts
}
