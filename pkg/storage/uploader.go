package storage

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Uploader defaults.
const (
	DefaultQueueSize   = 16
	DefaultSaveTimeout = 30 * time.Second
)

// UploaderStats are cumulative counters.
type UploaderStats struct {
	Submitted uint64 `json:"submitted"`
	Saved     uint64 `json:"saved"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
}

// Uploader saves records on a background worker. Submit never blocks: when
// the queue is full the record is dropped.
type Uploader struct {
	store   Store
	queue   chan *Record
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
	cancel context.CancelFunc

	submitted, saved, failed, dropped atomic.Uint64
}

// UploaderOption configures an Uploader.
type UploaderOption func(*Uploader)

func WithQueueSize(n int) UploaderOption {
	return func(u *Uploader) {
		if n > 0 {
			u.queue = make(chan *Record, n)
		}
	}
}

func WithSaveTimeout(d time.Duration) UploaderOption {
	return func(u *Uploader) {
		if d > 0 {
			u.timeout = d
		}
	}
}

func WithLogger(l *slog.Logger) UploaderOption {
	return func(u *Uploader) { u.logger = l }
}

// NewUploader starts the worker.
func NewUploader(store Store, opts ...UploaderOption) *Uploader {
	u := &Uploader{
		store:   store,
		queue:   make(chan *Record, DefaultQueueSize),
		timeout: DefaultSaveTimeout,
		logger:  slog.Default(),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(u)
	}
	u.logger = u.logger.With("component", "uploader", "store", store.Name())

	ctx, cancel := context.WithCancel(context.Background())
	u.cancel = cancel
	go u.run(ctx)
	return u
}

// Submit queues rec. It returns ErrQueueFull or ErrClosed without blocking.
func (u *Uploader) Submit(rec *Record) error {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if u.closed {
		return ErrClosed
	}

	select {
	case u.queue <- rec:
		u.submitted.Add(1)
		return nil
	default:
		u.dropped.Add(1)
		u.logger.Warn("upload queue full, dropping record", "object", rec.ObjectID, "class", rec.Class)
		return ErrQueueFull
	}
}

func (u *Uploader) run(ctx context.Context) {
	defer close(u.done)
	for rec := range u.queue {
		u.save(ctx, rec)
	}
}

func (u *Uploader) save(ctx context.Context, rec *Record) {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	start := time.Now()
	if err := u.store.Save(ctx, rec); err != nil {
		u.failed.Add(1)
		u.logger.Error("upload failed", "object", rec.ObjectID, "class", rec.Class, "error", err)
		return
	}
	u.saved.Add(1)
	u.logger.Info("uploaded", "object", rec.ObjectID, "class", rec.Class, "took", time.Since(start))
}

// Stats returns the counters.
func (u *Uploader) Stats() UploaderStats {
	return UploaderStats{
		Submitted: u.submitted.Load(),
		Saved:     u.saved.Load(),
		Failed:    u.failed.Load(),
		Dropped:   u.dropped.Load(),
	}
}

// Close stops accepting records and waits for the queue to drain. If ctx
// ends first, in-flight saves are cancelled.
func (u *Uploader) Close(ctx context.Context) error {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		<-u.done
		return nil
	}
	u.closed = true
	close(u.queue)
	u.mu.Unlock()

	select {
	case <-u.done:
		u.cancel()
		return nil
	case <-ctx.Done():
		u.cancel()
		<-u.done
		return ctx.Err()
	}
}
