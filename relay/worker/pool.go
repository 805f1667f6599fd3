// Package worker provides an asynchronous worker pool for persisting
// captured stream sessions through a storage.Driver and publishing
// session-recorded events through an eventstream.Publisher.
//
// The pool decouples persistence from the relay's streaming hot path so that
// the client-relay-upstream byte flow stays transparent.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/vivek100/spool/pkg/eventstream"
	"github.com/vivek100/spool/pkg/storage"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
)

// Job is a unit of work for the worker pool to execute against.
type Job struct {
	Session *storage.Session
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Driver is the storage backend for persisting sessions.
	Driver storage.Driver

	// Publisher is the optional event stream for session-recorded events.
	Publisher eventstream.Publisher

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// Logger is the provided slog logger.
	Logger *slog.Logger
}

// Pool processes capture jobs asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	p := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: c.Logger,
	}

	p.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go p.worker(i)
	}

	return p, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the job carries no session or the
// queue is full, resulting in the job being dropped.
func (p *Pool) Enqueue(job Job) bool {
	if job.Session == nil {
		p.logger.Error("job not queued, nil session")
		return false
	}

	select {
	case p.queue <- job:
		p.logger.Debug("job queued",
			"session_id", job.Session.ID,
			"provider", job.Session.Provider,
		)
		return true
	default:
		p.logger.Error("job not queued, queue full, job dropped",
			"session_id", job.Session.ID,
			"provider", job.Session.Provider,
		)
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after the relay HTTP server has stopped.
func (p *Pool) Close() {
	close(p.queue)
	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls jobs off the
// jobs queue.
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", "worker_id", id)

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("capture worker stopped", "worker_id", id)
}

// processJob persists the session and, when a publisher is configured,
// emits the session-recorded event.
func (p *Pool) processJob(job Job) {
	ctx := context.Background()

	if job.Session == nil {
		p.logger.Error("dropping job with nil session")
		return
	}

	if err := p.config.Driver.Save(ctx, job.Session); err != nil {
		p.logger.Error("async session storage failed",
			"session_id", job.Session.ID,
			"error", err,
		)
		return
	}

	p.logger.Info("session stored",
		"session_id", job.Session.ID,
		"provider", job.Session.Provider,
		"records", job.Session.RecordCount,
	)

	if p.config.Publisher == nil {
		return
	}

	event := eventstream.NewSessionRecordedEvent(job.Session)
	if err := p.config.Publisher.PublishSession(ctx, event); err != nil {
		// Publishing is telemetry; a failed publish never unwinds storage.
		p.logger.Warn("failed to publish session event",
			"session_id", job.Session.ID,
			"error", err,
		)
		return
	}

	p.logger.Debug("session event published",
		"session_id", job.Session.ID,
		"event_id", event.EventID,
	)
}
