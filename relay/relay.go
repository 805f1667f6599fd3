// Package relay provides a transparent capture relay for LLM inference
// streams. Requests are forwarded verbatim to the upstream provider; SSE
// responses are teed byte-for-byte back to the client while the incremental
// frame decoder turns them into records for async capture.
package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/google/uuid"

	"github.com/vivek100/spool/pkg/eventstream"
	"github.com/vivek100/spool/pkg/record"
	"github.com/vivek100/spool/pkg/sse"
	"github.com/vivek100/spool/pkg/storage"
	"github.com/vivek100/spool/relay/header"
	"github.com/vivek100/spool/relay/worker"
)

// statsPath serves capture counters as JSON.
const statsPath = "/spool/stats"

// errorResponse is the JSON body returned for relay-level failures.
type errorResponse struct {
	Error string `json:"error"`
}

// Relay is a transparent stream-capture relay. It forwards requests to the
// upstream LLM provider and decodes SSE responses into records, enqueuing
// completed sessions for async persistence via its worker pool.
type Relay struct {
	config     Config
	workerPool *worker.Pool
	decoder    *sse.Decoder
	logger     *slog.Logger
	httpClient *http.Client
	server     *fiber.App
	stats      *Stats
}

// New creates a new Relay. The driver handles async persistence of captured
// sessions; the publisher (optional, may be nil) receives session-recorded
// events. Returns an error if the configured provider is not recognized.
func New(config Config, driver storage.Driver, publisher eventstream.Publisher, logger *slog.Logger) (*Relay, error) {
	switch config.Provider {
	case record.ProviderOpenAI, record.ProviderAnthropic, record.ProviderOllama:
	case "":
		return nil, errors.New("provider is required")
	default:
		return nil, fmt.Errorf("unknown provider %q", config.Provider)
	}

	if config.UpstreamURL == "" {
		return nil, errors.New("upstream URL is required")
	}

	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
		// Enable streaming
		StreamRequestBody: true,
	})

	// Add compression middleware to handle responses
	app.Use(compress.New())

	wp, err := worker.NewPool(&worker.Config{
		Driver:     driver,
		Publisher:  publisher,
		NumWorkers: config.NumWorkers,
		QueueSize:  config.QueueSize,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create worker pool: %w", err)
	}

	stats := &Stats{}

	r := &Relay{
		config:     config,
		workerPool: wp,
		decoder:    sse.NewDecoder(sse.WithLogger(logger)),
		logger:     logger,
		server:     app,
		stats:      stats,
		httpClient: &http.Client{
			// LLM requests can be slow, especially with thinking blocks
			Timeout: 5 * time.Minute,
		},
	}

	// Stats endpoint registers before the catch-all so it wins routing.
	app.Get(statsPath, adaptor.HTTPHandler(stats.handler()))

	// Transparent relay route - forwards any path to upstream
	app.All("/*", r.handleRelay)

	return r, nil
}

// Run starts the relay server on the configured listening address.
func (r *Relay) Run() error {
	r.logger.Info("starting relay server",
		"listen", r.config.ListenAddr,
		"upstream", r.config.UpstreamURL,
	)

	return r.server.Listen(r.config.ListenAddr)
}

// RunWithListener starts the relay server using the provided listener.
func (r *Relay) RunWithListener(listener net.Listener) error {
	r.logger.Info("starting relay server",
		"listen", listener.Addr().String(),
		"upstream", r.config.UpstreamURL,
	)

	return r.server.Listener(listener)
}

// Close gracefully shuts down the relay and waits for the worker pool to drain.
func (r *Relay) Close() error {
	r.workerPool.Close()
	return r.server.Shutdown()
}

// Stats returns the relay's capture counters.
func (r *Relay) Stats() *Stats {
	return r.stats
}

// handleRelay forwards the request to the upstream and dispatches the
// response to either the capture path (SSE) or plain passthrough.
func (r *Relay) handleRelay(c *fiber.Ctx) error {
	startTime := time.Now()
	agentName := header.AgentName(c)

	upstreamURL := r.config.UpstreamURL + c.Path()

	var reqBody io.Reader
	if body := c.Body(); len(body) > 0 {
		reqBody = bytes.NewReader(body)
	}

	// Use context.Background() instead of c.Context() because fasthttp
	// recycles its RequestCtx after the handler returns, but the capture
	// goroutine runs asynchronously and needs the upstream connection to
	// remain open. The client timeout bounds the request either way.
	httpReq, err := http.NewRequestWithContext(context.Background(), c.Method(), upstreamURL, reqBody)
	if err != nil {
		r.logger.Error("failed to create upstream request", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{Error: "internal error"})
	}

	header.CopyUpstreamRequest(c, httpReq)

	r.logger.Debug("forwarding request to upstream",
		"method", c.Method(),
		"url", upstreamURL,
	)

	httpResp, err := r.httpClient.Do(httpReq)
	if err != nil {
		r.logger.Error("upstream request failed", "error", err)
		return c.Status(fiber.StatusBadGateway).JSON(errorResponse{Error: "upstream request failed"})
	}

	if httpResp.StatusCode == http.StatusOK && header.IsEventStream(httpResp) {
		return r.handleStreamCapture(c, httpResp, agentName, startTime)
	}

	return r.handlePassthrough(c, httpResp)
}

// handlePassthrough returns a non-SSE upstream response to the client
// unchanged. Nothing is captured.
func (r *Relay) handlePassthrough(c *fiber.Ctx, httpResp *http.Response) error {
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		r.logger.Error("failed to read upstream response", "error", err)
		return c.Status(fiber.StatusBadGateway).JSON(errorResponse{Error: "failed to read upstream response"})
	}

	header.CopyClientResponse(c, httpResp)
	r.stats.passthroughs.Add(1)

	return c.Status(httpResp.StatusCode).Send(respBody)
}

// handleStreamCapture tees the SSE response verbatim to the client while
// decoding it into records.
func (r *Relay) handleStreamCapture(c *fiber.Ctx, httpResp *http.Response, agentName string, startTime time.Time) error {
	header.CopyClientResponse(c, httpResp)
	header.SetStreamingResponseHeaders(c)

	// Use io.Pipe + SetBodyStream: pw.Write blocks until fasthttp reads
	// from the pipe and flushes to the TCP socket, which gives direct
	// backpressure and true per-chunk streaming to the client.
	pr, pw := io.Pipe()
	go r.captureStream(httpResp, pw, agentName, startTime)

	// Unknown size (-1) triggers chunked transfer encoding in fasthttp.
	c.Context().Response.SetBodyStream(pr, -1)

	return nil
}

// teeCloser feeds the decoder while copying every byte read to the client
// pipe. Close releases the upstream response body; the decoder calls it
// exactly once per session.
type teeCloser struct {
	io.Reader
	body io.Closer
}

func (t *teeCloser) Close() error {
	return t.body.Close()
}

// captureStream runs the frame decoder over the upstream body. All bytes the
// decoder reads are forwarded to the client verbatim; once the decoder stops
// (sentinel, end-of-stream, or transport error) the pipe closes and the
// client sees EOF.
func (r *Relay) captureStream(httpResp *http.Response, pw *io.PipeWriter, agentName string, startTime time.Time) {
	defer pw.Close()

	acc := record.NewAccumulator(r.config.Provider)

	src := &teeCloser{
		Reader: io.TeeReader(httpResp.Body, pw),
		body:   httpResp.Body,
	}

	err := r.decoder.Run(context.Background(), src, func(_ context.Context, rec sse.Record) error {
		acc.Add(rec.Value)
		r.stats.records.Add(1)
		return nil
	})
	if err != nil {
		r.stats.decodeErrors.Add(1)
		r.logger.Error("error reading SSE stream", "error", err)
		return
	}

	if acc.Count() == 0 {
		r.logger.Debug("stream carried no records, skipping capture")
		return
	}

	session := &storage.Session{
		ID:          uuid.NewString(),
		Provider:    r.config.Provider,
		AgentName:   agentName,
		Model:       acc.Model(),
		Content:     acc.Content(),
		RecordCount: acc.Count(),
		Usage:       acc.Usage(),
		StartedAt:   startTime,
		CompletedAt: time.Now(),
	}

	r.logger.Debug("streaming complete",
		"session_id", session.ID,
		"records", session.RecordCount,
		"agent", agentName,
		"duration", time.Since(startTime),
	)

	r.stats.sessions.Add(1)
	r.workerPool.Enqueue(worker.Job{Session: session})
}
