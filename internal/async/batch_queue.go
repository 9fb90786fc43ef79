package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/joseph-ayodele/resume-ingest/internal/entity"
)

// ErrQueueClosed is returned by Enqueue after Shutdown.
var ErrQueueClosed = errors.New("queue is shutting down")

// BatchQueue accumulates sources and submits them as one batch when either
// flushSize sources are pending or flushInterval has passed since the first
// pending source. Batches are submitted one at a time.
type BatchQueue struct {
	submit        SubmitFunc
	logger        *slog.Logger
	flushSize     int
	flushInterval time.Duration
	timeout       time.Duration

	ch      chan entity.Source
	quit    chan struct{}
	senders sync.WaitGroup
	wg      sync.WaitGroup
	once    sync.Once

	mu     sync.Mutex
	closed bool
}

var _ Queue = (*BatchQueue)(nil)

type Option func(*BatchQueue)

func WithFlushSize(n int) Option {
	return func(q *BatchQueue) {
		if n > 0 {
			q.flushSize = n
		}
	}
}

func WithFlushInterval(d time.Duration) Option {
	return func(q *BatchQueue) {
		if d > 0 {
			q.flushInterval = d
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *BatchQueue) {
		if n > 0 {
			q.ch = make(chan entity.Source, n)
		}
	}
}

func WithSubmitTimeout(d time.Duration) Option {
	return func(q *BatchQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewBatchQueue(submit SubmitFunc, logger *slog.Logger, opts ...Option) *BatchQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &BatchQueue{
		submit:        submit,
		logger:        logger,
		flushSize:     20,
		flushInterval: 5 * time.Second,
		timeout:       30 * time.Minute,
		ch:            make(chan entity.Source, 256),
		quit:          make(chan struct{}),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *BatchQueue) start() {
	q.once.Do(func() {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			q.logger.Info("batch queue started", "flush_size", q.flushSize, "flush_interval", q.flushInterval)

			var pending []entity.Source
			seen := map[string]struct{}{}
			timer := time.NewTimer(q.flushInterval)
			timer.Stop()

			flush := func(reason string) {
				if len(pending) == 0 {
					return
				}
				batch := pending
				pending, seen = nil, map[string]struct{}{}
				timer.Stop()

				ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
				err := q.submit(ctx, batch)
				cancel()
				if err != nil {
					q.logger.Error("batch submit failed", "reason", reason, "files", len(batch), "error", err)
					return
				}
				q.logger.Info("batch submitted", "reason", reason, "files", len(batch))
			}

			for {
				select {
				case src, ok := <-q.ch:
					if !ok {
						flush("shutdown")
						q.logger.Info("batch queue stopped")
						return
					}
					if _, dup := seen[src.URI()]; dup {
						continue
					}
					seen[src.URI()] = struct{}{}
					pending = append(pending, src)
					if len(pending) == 1 {
						timer.Reset(q.flushInterval)
					}
					if len(pending) >= q.flushSize {
						flush("size")
					}
				case <-timer.C:
					flush("interval")
				}
			}
		}()
	})
}

// Enqueue blocks while the queue is full, until ctx is done or Shutdown
// starts.
func (q *BatchQueue) Enqueue(ctx context.Context, src entity.Source) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.logger.Warn("cannot enqueue: queue is shutting down", "file", src.Name())
		return ErrQueueClosed
	}
	q.senders.Add(1)
	q.mu.Unlock()
	defer q.senders.Done()

	select {
	case q.ch <- src:
		q.logger.Debug("queued file for ingestion", "file", src.Name())
		return nil
	default:
	}
	q.logger.Warn("queue full, applying backpressure", "file", src.Name())
	select {
	case q.ch <- src:
		return nil
	case <-q.quit:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting sources, submits whatever is pending and waits
// for the worker until ctx is done.
func (q *BatchQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.quit)
	q.mu.Unlock()

	// blocked senders return on quit; ch is closed once none can send
	q.senders.Wait()
	close(q.ch)

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}
