package frame

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

var (
	// ErrNoFrame means no frame has been captured since the last failure.
	ErrNoFrame = errors.New("frame: no frame available")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("frame: source closed")
)

// DefaultRetryDelay is the pause between failed device reads.
const DefaultRetryDelay = 50 * time.Millisecond

// Device is a blocking image producer such as a camera.
// Read is only ever called from the acquisition goroutine.
type Device interface {
	Read() (image.Image, error)
	Close() error
}

// Stats counts acquisition activity.
type Stats struct {
	Captured          uint64    `json:"captured"`
	Overwritten       uint64    `json:"overwritten"`
	ReadErrors        uint64    `json:"read_errors"`
	ConsecutiveErrors uint64    `json:"consecutive_errors"`
	LastError         string    `json:"last_error,omitempty"`
	LastCapture       time.Time `json:"last_capture"`
}

// Source continuously reads a Device on its own goroutine and keeps only the
// most recent frame. Readers never see a frame older than one already
// handed out, and a failed read empties the slot so stale frames are not
// reused after the camera stops producing.
type Source struct {
	device     Device
	clock      clock.Clock
	logger     *slog.Logger
	retryDelay time.Duration

	mu      sync.Mutex
	latest  *Frame
	readSeq uint64
	seq     uint64
	lastErr error
	stats   Stats
	closed  bool

	startOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

// Option configures a Source.
type Option func(*Source)

// WithClock sets the clock used to timestamp frames and pace read retries.
func WithClock(c clock.Clock) Option {
	return func(s *Source) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Source) { s.logger = l }
}

// WithRetryDelay sets the pause after a failed read.
func WithRetryDelay(d time.Duration) Option {
	return func(s *Source) { s.retryDelay = d }
}

// NewSource creates a source for device. Call Start to begin acquisition.
func NewSource(device Device, opts ...Option) *Source {
	s := &Source{
		device:     device,
		clock:      clock.New(),
		logger:     slog.Default(),
		retryDelay: DefaultRetryDelay,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "frame")
	return s
}

// Start launches the acquisition goroutine. It is safe to call more than once.
func (s *Source) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		ctx, s.cancel = context.WithCancel(ctx)
		go s.run(ctx)
	})
}

func (s *Source) run(ctx context.Context) {
	defer close(s.done)

	for {
		if ctx.Err() != nil {
			return
		}

		img, err := s.device.Read()
		if err != nil {
			s.fail(err)
			select {
			case <-ctx.Done():
				return
			case <-s.clock.After(s.retryDelay):
			}
			continue
		}
		s.publish(img)
	}
}

func (s *Source) publish(img image.Image) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.latest != nil && s.latest.Seq > s.readSeq {
		s.stats.Overwritten++
	}
	s.seq++
	s.latest = New(img, s.seq, now)
	s.lastErr = nil
	s.stats.Captured++
	s.stats.ConsecutiveErrors = 0
	s.stats.LastCapture = now
}

func (s *Source) fail(err error) {
	s.mu.Lock()
	s.latest = nil
	s.lastErr = err
	s.stats.ReadErrors++
	s.stats.ConsecutiveErrors++
	s.stats.LastError = err.Error()
	n := s.stats.ConsecutiveErrors
	s.mu.Unlock()

	// Log the first failure of a streak, then every 20th.
	if n == 1 || n%20 == 0 {
		s.logger.Warn("frame read failed", "error", err, "consecutive", n)
	}
}

// Latest returns the most recent frame. When the last read failed it returns
// ErrNoFrame wrapping the device error.
func (s *Source) Latest() (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if s.latest == nil {
		if s.lastErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrNoFrame, s.lastErr)
		}
		return nil, ErrNoFrame
	}
	if s.latest.Seq > s.readSeq {
		s.readSeq = s.latest.Seq
	}
	return s.latest, nil
}

// Stats returns a snapshot of the acquisition counters.
func (s *Source) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Close stops acquisition, waits for the goroutine and closes the device.
func (s *Source) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.latest = nil
	s.mu.Unlock()

	started := false
	s.startOnce.Do(func() {})
	if s.cancel != nil {
		started = true
		s.cancel()
	}
	if started {
		<-s.done
	}
	return s.device.Close()
}
