package frame

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedDevice replays a fixed list of results, then repeats the last.
type scriptedDevice struct {
	mu     sync.Mutex
	steps  []error
	i      int
	closed bool
}

var errCamera = errors.New("camera unplugged")

func (d *scriptedDevice) Read() (image.Image, error) {
	time.Sleep(time.Millisecond)

	d.mu.Lock()
	defer d.mu.Unlock()
	step := d.steps[len(d.steps)-1]
	if d.i < len(d.steps) {
		step = d.steps[d.i]
		d.i++
	}
	if step != nil {
		return nil, step
	}
	return solid(4, 4, color.Black), nil
}

func (d *scriptedDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func TestSourceDeliversLatestFrame(t *testing.T) {
	dev := &scriptedDevice{steps: []error{nil}}
	src := NewSource(dev, WithRetryDelay(time.Millisecond))
	src.Start(context.Background())

	var first *Frame
	require.Eventually(t, func() bool {
		f, err := src.Latest()
		first = f
		return err == nil
	}, time.Second, time.Millisecond)

	require.Eventually(t, func() bool {
		f, err := src.Latest()
		return err == nil && f.Seq > first.Seq
	}, time.Second, time.Millisecond, "sequence must keep advancing")

	require.NoError(t, src.Close())
	assert.True(t, dev.closed)

	_, err := src.Latest()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSourceSurfacesReadFailures(t *testing.T) {
	// Three failures, then healthy frames forever.
	dev := &scriptedDevice{steps: []error{errCamera, errCamera, errCamera, nil}}
	src := NewSource(dev, WithRetryDelay(10*time.Millisecond))
	src.Start(context.Background())
	defer src.Close()

	require.Eventually(t, func() bool {
		_, err := src.Latest()
		return errors.Is(err, errCamera)
	}, time.Second, time.Millisecond)

	_, err := src.Latest()
	if err != nil {
		assert.ErrorIs(t, err, ErrNoFrame)
	}

	require.Eventually(t, func() bool {
		f, err := src.Latest()
		return err == nil && f != nil
	}, time.Second, time.Millisecond)

	stats := src.Stats()
	assert.Equal(t, uint64(3), stats.ReadErrors)
	assert.Zero(t, stats.ConsecutiveErrors)
	assert.NotZero(t, stats.Captured)
}

func TestSourceCloseWithoutStart(t *testing.T) {
	dev := &scriptedDevice{steps: []error{nil}}
	src := NewSource(dev)

	require.NoError(t, src.Close())
	assert.True(t, dev.closed)
	require.NoError(t, src.Close())
}

// gatedDevice hands out one frame per value sent on feed.
type gatedDevice struct {
	feed chan struct{}
	stop chan struct{}
}

func newGatedDevice() *gatedDevice {
	return &gatedDevice{feed: make(chan struct{}), stop: make(chan struct{})}
}

func (d *gatedDevice) Read() (image.Image, error) {
	select {
	case <-d.feed:
		return solid(2, 2, color.White), nil
	case <-d.stop:
		return nil, errCamera
	}
}

func (d *gatedDevice) Close() error { return nil }

func (d *gatedDevice) produce(n int) {
	for i := 0; i < n; i++ {
		d.feed <- struct{}{}
	}
}

func TestSourceLatestWins(t *testing.T) {
	dev := newGatedDevice()
	src := NewSource(dev, WithRetryDelay(time.Millisecond))
	src.Start(context.Background())
	defer src.Close()
	defer close(dev.stop)

	captured := func(n uint64) func() bool {
		return func() bool { return src.Stats().Captured == n }
	}

	dev.produce(5)
	require.Eventually(t, captured(5), time.Second, time.Millisecond)

	f, err := src.Latest()
	require.NoError(t, err)
	assert.Equal(t, uint64(5), f.Seq, "the slow reader gets the newest frame, not the next one")
	assert.Equal(t, uint64(4), src.Stats().Overwritten)

	again, err := src.Latest()
	require.NoError(t, err)
	assert.Same(t, f, again, "re-reading without a new capture returns the same frame")

	dev.produce(2)
	require.Eventually(t, captured(7), time.Second, time.Millisecond)

	f, err = src.Latest()
	require.NoError(t, err)
	assert.Equal(t, uint64(7), f.Seq)
	assert.Equal(t, uint64(5), src.Stats().Overwritten, "frame 5 was read, only frame 6 was dropped")
}

func TestSourceRetryUsesClock(t *testing.T) {
	mock := clock.NewMock()
	dev := &scriptedDevice{steps: []error{errCamera, nil}}
	src := NewSource(dev, WithClock(mock), WithRetryDelay(time.Hour))
	src.Start(context.Background())
	defer src.Close()

	require.Eventually(t, func() bool { return src.Stats().ReadErrors == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, src.Stats().Captured, "no retry before the delay elapses")

	require.Eventually(t, func() bool {
		mock.Add(time.Hour)
		return src.Stats().Captured > 0
	}, time.Second, 5*time.Millisecond)
}
