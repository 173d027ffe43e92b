package hub

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/teslashibe/go-stuffbot/internal/log"
)

type fakeConn struct {
	mu      sync.Mutex
	written []Message
	closed  chan struct{}
	once    sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{closed: make(chan struct{})}
}

func (c *fakeConn) SetReadLimit(int64)                {}
func (c *fakeConn) SetReadDeadline(time.Time) error   { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetPongHandler(func(string) error) {}
func (c *fakeConn) ReadMessage() (int, []byte, error) {
	<-c.closed
	return 0, nil, errors.New("closed")
}

func (c *fakeConn) WriteMessage(kind int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
		c.written = append(c.written, Message{Kind: kind, Data: data})
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.written...)
}

// waitFor polls cond until it holds or a second has passed.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := New("test", log.Discard())
	go h.Run()
	waitFor(t, "hub running", h.IsRunning)
	t.Cleanup(h.Stop)
	return h
}

func TestBroadcastReachesClients(t *testing.T) {
	h := startHub(t)

	a, b := newFakeConn(), newFakeConn()
	go NewClient(h, a).Run()
	go NewClient(h, b).Run()
	waitFor(t, "two clients", func() bool { return h.ClientCount() == 2 })

	if err := h.BroadcastJSON(map[string]int{"tick": 7}); err != nil {
		t.Fatalf("BroadcastJSON: %v", err)
	}
	h.BroadcastBinary([]byte{0xff, 0xd8})

	for i, c := range []*fakeConn{a, b} {
		waitFor(t, "two messages", func() bool { return len(c.messages()) == 2 })
		msgs := c.messages()
		if msgs[0].Kind != websocket.TextMessage {
			t.Errorf("client %d: first kind = %d, want text", i, msgs[0].Kind)
		}
		if got := string(msgs[0].Data); got != `{"tick":7}` {
			t.Errorf("client %d: json = %s", i, got)
		}
		if msgs[1].Kind != websocket.BinaryMessage {
			t.Errorf("client %d: second kind = %d, want binary", i, msgs[1].Kind)
		}
	}
}

func TestNewClientGetsLastMessage(t *testing.T) {
	h := startHub(t)
	if err := h.BroadcastJSON("hello"); err != nil {
		t.Fatalf("BroadcastJSON: %v", err)
	}

	c := newFakeConn()
	go NewClient(h, c).Run()

	waitFor(t, "replayed message", func() bool { return len(c.messages()) >= 1 })
	if got := string(c.messages()[0].Data); got != `"hello"` {
		t.Errorf("first message = %s, want \"hello\"", got)
	}
}

func TestDisconnectUnregisters(t *testing.T) {
	h := startHub(t)

	c := newFakeConn()
	go NewClient(h, c).Run()
	waitFor(t, "client registered", func() bool { return h.ClientCount() == 1 })

	c.Close()
	waitFor(t, "client unregistered", func() bool { return h.ClientCount() == 0 })
}

func TestSlowClientIsDropped(t *testing.T) {
	h := startHub(t)

	// A client nobody drains.
	stuck := &Client{hub: h, conn: newFakeConn(), send: make(chan Message, 1)}
	h.register <- stuck
	waitFor(t, "client registered", func() bool { return h.ClientCount() == 1 })

	for i := 0; i < 3; i++ {
		h.BroadcastBinary([]byte{byte(i)})
	}
	waitFor(t, "slow client dropped", func() bool { return h.ClientCount() == 0 })
}

func TestStopClosesClients(t *testing.T) {
	h := New("stop", log.Discard())
	go h.Run()
	waitFor(t, "hub running", h.IsRunning)

	c := newFakeConn()
	go NewClient(h, c).Run()
	waitFor(t, "client registered", func() bool { return h.ClientCount() == 1 })

	h.Stop()
	if h.IsRunning() {
		t.Error("hub still running after Stop")
	}
	if n := h.ClientCount(); n != 0 {
		t.Errorf("ClientCount = %d after Stop, want 0", n)
	}

	select {
	case <-c.closed:
	case <-time.After(time.Second):
		t.Fatal("connection not closed after Stop")
	}

	h.Stop()
}
