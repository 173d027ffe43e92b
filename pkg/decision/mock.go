package decision

import (
	"context"
	"sync"
	"time"

	"github.com/teslashibe/go-stuffbot/pkg/mode"
)

// Mock implements Oracle for testing.
type Mock struct {
	// DecideFunc is called when Decide is invoked.
	DecideFunc func(ctx context.Context, req *Request) (*MovementCommand, error)

	// CloseFunc is called when Close is invoked.
	CloseFunc func() error

	// NameOverride replaces "mock" in Name.
	NameOverride string

	mu       sync.Mutex
	calls    []MockCall
	requests []*Request
}

// MockCall records a method invocation.
type MockCall struct {
	Method string
	Time   time.Time
}

// NewMock creates a mock that always answers with cmd.
func NewMock(cmd MovementCommand) *Mock {
	return &Mock{
		DecideFunc: func(ctx context.Context, req *Request) (*MovementCommand, error) {
			out := cmd
			return &out, nil
		},
	}
}

// WithError creates a mock whose Decide always fails with err.
func WithError(err error) *Mock {
	return &Mock{
		DecideFunc: func(ctx context.Context, req *Request) (*MovementCommand, error) {
			return nil, err
		},
	}
}

// Hold is a convenience command: stand still and stay in m.
func Hold(m mode.Mode) MovementCommand {
	return MovementCommand{Description: "holding", NextMode: m}
}

// Name implements Oracle.
func (m *Mock) Name() string {
	if m.NameOverride != "" {
		return m.NameOverride
	}
	return "mock"
}

// Decide calls DecideFunc and records the call.
func (m *Mock) Decide(ctx context.Context, req *Request) (*MovementCommand, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Method: "Decide", Time: time.Now()})
	m.requests = append(m.requests, req)
	fn := m.DecideFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return nil, WrapError("mock", ErrOracleUnavailable)
}

// Close calls CloseFunc.
func (m *Mock) Close() error {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Method: "Close", Time: time.Now()})
	fn := m.CloseFunc
	m.mu.Unlock()

	if fn != nil {
		return fn()
	}
	return nil
}

// Calls returns all recorded calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

// CallCount returns the number of times method was called.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Requests returns every request passed to Decide.
func (m *Mock) Requests() []*Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Request(nil), m.requests...)
}

// Verify Mock implements Oracle at compile time.
var _ Oracle = (*Mock)(nil)
