package drivetrain

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
)

// Command is one velocity command recorded by Mock.
type Command struct {
	Linear  float64
	Angular float64
	Stop    bool
	At      time.Time
}

// Mock records commands for tests. Failed sends are not recorded.
type Mock struct {
	// SetVelocityFunc, when set, decides the outcome of each send.
	SetVelocityFunc func(ctx context.Context, linear, angular r3.Vector) error

	Clock clock.Clock

	mu       sync.Mutex
	commands []Command
	closed   bool
}

// NewMock creates a mock stamped by c.
func NewMock(c clock.Clock) *Mock {
	return &Mock{Clock: c}
}

// SetVelocity records the command.
func (m *Mock) SetVelocity(ctx context.Context, linear, angular r3.Vector) error {
	return m.send(ctx, linear, angular, false)
}

// Stop records a zero command.
func (m *Mock) Stop(ctx context.Context) error {
	return m.send(ctx, r3.Vector{}, r3.Vector{}, true)
}

func (m *Mock) send(ctx context.Context, linear, angular r3.Vector, stop bool) error {
	m.mu.Lock()
	closed := m.closed
	fn := m.SetVelocityFunc
	m.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if fn != nil {
		if err := fn(ctx, linear, angular); err != nil {
			return err
		}
	}

	now := time.Now()
	if m.Clock != nil {
		now = m.Clock.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = append(m.commands, Command{Linear: linear.X, Angular: angular.Z, Stop: stop, At: now})
	return nil
}

// Close marks the mock closed.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Commands returns every successful command in order.
func (m *Mock) Commands() []Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Command(nil), m.commands...)
}

// Last returns the most recent command.
func (m *Mock) Last() (Command, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.commands) == 0 {
		return Command{}, false
	}
	return m.commands[len(m.commands)-1], true
}

// Closed reports whether Close was called.
func (m *Mock) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

var _ Drivetrain = (*Mock)(nil)
