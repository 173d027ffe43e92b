// Package history keeps the last few decision exchanges that are sent back
// to the oracle as conversational context.
package history

import (
	"log/slog"
	"sync"
)

// DefaultCapacity is the number of exchanges retained when none is given.
const DefaultCapacity = 3

// Log is a fixed-capacity ring buffer. Appending to a full log evicts the
// oldest entry. It is safe for concurrent use.
type Log[T any] struct {
	mu    sync.RWMutex
	buf   []T
	start int
	size  int

	store  Persister[T]
	logger *slog.Logger
}

// Option configures a Log.
type Option[T any] func(*Log[T])

// WithPersister mirrors every appended entry to p.
func WithPersister[T any](p Persister[T]) Option[T] {
	return func(l *Log[T]) { l.store = p }
}

// WithLogger sets the logger used for persistence failures.
func WithLogger[T any](logger *slog.Logger) Option[T] {
	return func(l *Log[T]) { l.logger = logger }
}

// New creates a log holding at most capacity entries.
// Non-positive capacities use DefaultCapacity.
func New[T any](capacity int, opts ...Option[T]) *Log[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	l := &Log[T]{
		buf:    make([]T, capacity),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append adds item, evicting the oldest entry when full. Persistence
// failures are logged and never block or fail the append.
func (l *Log[T]) Append(item T) {
	l.mu.Lock()
	l.push(item)
	l.mu.Unlock()

	if l.store != nil {
		if err := l.store.Persist(item); err != nil {
			l.logger.Warn("history persist failed", "error", err)
		}
	}
}

// Restore loads items, oldest first, without persisting them again.
// Only the newest Cap() items survive.
func (l *Log[T]) Restore(items []T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, item := range items {
		l.push(item)
	}
}

func (l *Log[T]) push(item T) {
	capacity := len(l.buf)
	if l.size < capacity {
		l.buf[(l.start+l.size)%capacity] = item
		l.size++
		return
	}
	l.buf[l.start] = item
	l.start = (l.start + 1) % capacity
}

// Recent returns up to n of the newest entries, oldest first.
func (l *Log[T]) Recent(n int) []T {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 {
		return []T{}
	}
	if n > l.size {
		n = l.size
	}
	out := make([]T, n)
	capacity := len(l.buf)
	first := l.start + l.size - n
	for i := 0; i < n; i++ {
		out[i] = l.buf[(first+i)%capacity]
	}
	return out
}

// Snapshot returns every retained entry, oldest first.
func (l *Log[T]) Snapshot() []T {
	return l.Recent(l.Cap())
}

// Len returns the number of retained entries.
func (l *Log[T]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.size
}

// Cap returns the capacity.
func (l *Log[T]) Cap() int {
	return len(l.buf)
}
