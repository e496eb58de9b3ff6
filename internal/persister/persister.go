// Package persister buffers shipment results and writes them to durable
// storage in batches from a single owning goroutine per job.
package persister

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zoobzio/clockz"

	"rateshop-backend/internal/shared/metrics"
	"rateshop-backend/internal/shared/telemetry"
	"rateshop-backend/internal/shipping"
)

const (
	DefaultBatchSize    = 50
	DefaultBatchTimeout = 30 * time.Second
	DefaultMaxFailures  = 3
	DefaultWriteTimeout = 30 * time.Second
)

// ErrClosed is returned by Flush after Close.
var ErrClosed = errors.New("persister closed")

// Sink appends a batch of results to a job's durable record. Appends must be
// idempotent per (job id, shipment id) since failed batches are retried.
type Sink interface {
	Append(ctx context.Context, jobID string, batch []shipping.ShipmentResult) error
}

// StorageError reports that consecutive batch writes kept failing.
type StorageError struct {
	JobID    string
	Failures int
	Err      error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("persist results for job %s failed %d times: %v", e.JobID, e.Failures, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Options configures a Persister.
type Options struct {
	BatchSize    int
	BatchTimeout time.Duration
	MaxFailures  int
	WriteTimeout time.Duration
	Clock        clockz.Clock
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.BatchTimeout <= 0 {
		o.BatchTimeout = DefaultBatchTimeout
	}
	if o.MaxFailures <= 0 {
		o.MaxFailures = DefaultMaxFailures
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	if o.Clock == nil {
		o.Clock = clockz.RealClock
	}
	return o
}

type flushRequest struct {
	done chan error
}

// Persister batches results for one job. Add is safe for concurrent use and
// never waits on storage; all writes happen on the owner goroutine.
type Persister struct {
	jobID string
	sink  Sink
	opts  Options

	mu      sync.Mutex
	buf     []shipping.ShipmentResult
	firstAt time.Time
	failErr error
	written int

	kick      chan struct{}
	flushReqs chan flushRequest
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// owned by the run goroutine
	retry   []shipping.ShipmentResult
	retryAt time.Time
	streak  int
}

// New starts the owner goroutine for jobID.
func New(jobID string, sink Sink, opts Options) *Persister {
	p := &Persister{
		jobID:     jobID,
		sink:      sink,
		opts:      opts.withDefaults(),
		kick:      make(chan struct{}, 1),
		flushReqs: make(chan flushRequest),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go p.run()
	return p
}

// Add buffers one result.
func (p *Persister) Add(result shipping.ShipmentResult) {
	p.mu.Lock()
	p.buf = append(p.buf, result)
	n := len(p.buf)
	if n == 1 {
		p.firstAt = p.opts.Clock.Now()
	}
	p.mu.Unlock()

	// wake the owner to arm the timer or cut a full batch
	if n == 1 || n >= p.opts.BatchSize {
		select {
		case p.kick <- struct{}{}:
		default:
		}
	}
}

// Flush writes everything buffered or previously failed and waits for the
// write to finish.
func (p *Persister) Flush(ctx context.Context) error {
	req := flushRequest{done: make(chan error, 1)}
	select {
	case p.flushReqs <- req:
	case <-p.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns a *StorageError once MaxFailures consecutive writes failed.
func (p *Persister) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failErr
}

// Written returns the number of results durably written.
func (p *Persister) Written() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written
}

// Close stops the owner goroutine without writing. Call Flush first.
func (p *Persister) Close() {
	p.closeOnce.Do(func() { close(p.stop) })
	<-p.done
}

func (p *Persister) run() {
	defer close(p.done)
	for {
		p.mu.Lock()
		n := len(p.buf)
		first := p.firstAt
		p.mu.Unlock()

		if n >= p.opts.BatchSize {
			_ = p.cycle("size")
			continue
		}

		var timer <-chan time.Time
		if n > 0 || len(p.retry) > 0 {
			oldest := first
			if len(p.retry) > 0 && (n == 0 || p.retryAt.Before(first)) {
				oldest = p.retryAt
			}
			wait := p.opts.BatchTimeout - p.opts.Clock.Since(oldest)
			if wait <= 0 {
				_ = p.cycle("timeout")
				continue
			}
			timer = p.opts.Clock.After(wait)
		}

		select {
		case <-p.kick:
		case <-timer:
			_ = p.cycle("timeout")
		case req := <-p.flushReqs:
			req.done <- p.cycle("manual")
		case <-p.stop:
			return
		}
	}
}

// cycle writes retained and buffered results as one batch.
func (p *Persister) cycle(trigger string) error {
	p.mu.Lock()
	taken := p.buf
	p.buf = nil
	p.firstAt = time.Time{}
	p.mu.Unlock()

	batch := append(p.retry, taken...)
	if len(batch) == 0 {
		return p.Err()
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.opts.WriteTimeout)
	err := p.sink.Append(ctx, p.jobID, batch)
	cancel()

	if err == nil {
		p.retry = nil
		p.streak = 0
		p.mu.Lock()
		p.written += len(batch)
		p.mu.Unlock()
		metrics.PersistFlush(trigger, "ok")
		telemetry.Debug("persist.flush", map[string]any{
			"job_id":  p.jobID,
			"trigger": trigger,
			"count":   len(batch),
		})
		return nil
	}

	p.retry = batch
	p.retryAt = p.opts.Clock.Now()
	p.streak++
	metrics.PersistFlush(trigger, "error")
	telemetry.Warn("persist.flush_failed", map[string]any{
		"job_id":   p.jobID,
		"trigger":  trigger,
		"count":    len(batch),
		"failures": p.streak,
		"error":    err,
	})
	storageErr := &StorageError{JobID: p.jobID, Failures: p.streak, Err: err}
	if p.streak >= p.opts.MaxFailures {
		p.mu.Lock()
		if p.failErr == nil {
			p.failErr = storageErr
		}
		p.mu.Unlock()
	}
	return storageErr
}
