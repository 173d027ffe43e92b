package detection

import (
	"image"
	"sync"
)

// Mock is a scripted Detector for tests.
type Mock struct {
	DetectFunc func(img image.Image) ([]Detection, error)

	mu     sync.Mutex
	calls  int
	closed bool
}

// Detect calls DetectFunc, or returns nothing.
func (m *Mock) Detect(img image.Image) ([]Detection, error) {
	m.mu.Lock()
	m.calls++
	fn := m.DetectFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(img)
	}
	return nil, nil
}

// Close marks the mock closed.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// CallCount returns how many times Detect ran.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Closed reports whether Close was called.
func (m *Mock) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

var _ Detector = (*Mock)(nil)
