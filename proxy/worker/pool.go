// Package worker provides an asynchronous worker pool for persisting
// transcripts using the provided storage.Driver and announcing them on the
// provided eventstream.Publisher.
//
// The pool decouples storage operations from the proxy's HTTP hot path so that the
// client-proxy-upstream interaction is fully transparent.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/papercomputeco/chunkstream/pkg/eventstream"
	"github.com/papercomputeco/chunkstream/pkg/eventstream/nop"
	"github.com/papercomputeco/chunkstream/pkg/logger"
	"github.com/papercomputeco/chunkstream/pkg/storage"
	"github.com/papercomputeco/chunkstream/pkg/transcript"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
)

// Job is a unit of work for the worker pool to execute against.
type Job struct {
	Transcript *transcript.Transcript
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Driver is the storage backend for persisting transcripts.
	Driver storage.Driver

	// Publisher announces persisted transcripts. Defaults to a no-op
	// publisher.
	Publisher eventstream.Publisher

	// Source identifies the component in published events.
	Source eventstream.EventSource

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	Logger *slog.Logger
}

// Pool processes storage jobs asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *slog.Logger

	// mu guards closed so Enqueue never sends on a closed queue.
	mu     sync.RWMutex
	closed bool
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Driver == nil {
		return nil, errors.New("worker pool requires a storage driver")
	}

	if c.Publisher == nil {
		c.Publisher = nop.NewPublisher()
	}

	if c.Logger == nil {
		c.Logger = logger.Nop()
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full or the pool is closed,
// resulting in the job being dropped
func (p *Pool) Enqueue(job Job) bool {
	if job.Transcript == nil {
		return false
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.logger.Warn("job not queued, pool closed", "transcript_id", job.Transcript.ID)
		return false
	}

	select {
	case p.queue <- job:
		p.logger.Debug("job queued",
			"transcript_id", job.Transcript.ID,
			"model", job.Transcript.Model,
		)
		return true
	default:
		p.logger.Error("job not queued, queue full, job dropped",
			"transcript_id", job.Transcript.ID,
			"model", job.Transcript.Model,
		)
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after the proxy HTTP server has stopped.
// Closing an already closed pool is a no-op.
func (p *Pool) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", "worker_id", id)

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("storage worker stopped", "worker_id", id)
}

// processJob stores the transcript and, once stored, publishes its event.
// A transcript that could not be stored is not announced.
func (p *Pool) processJob(job Job) {
	ctx := context.Background()
	t := job.Transcript

	if err := p.config.Driver.Put(ctx, t); err != nil {
		p.logger.Error("async transcript storage failed",
			"transcript_id", t.ID,
			"error", err,
		)
		return
	}

	p.logger.Info("transcript stored",
		"transcript_id", t.ID,
		"model", t.Model,
		"chunks", t.ChunkCount,
		"failed", t.Failed(),
	)

	event := eventstream.NewStreamEvent(p.config.Source, t)
	if err := p.config.Publisher.PublishStream(ctx, event); err != nil {
		p.logger.Warn("failed to publish stream event",
			"transcript_id", t.ID,
			"event_type", event.EventType,
			"error", err,
		)
	}
}
