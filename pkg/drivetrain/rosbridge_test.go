package drivetrain

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-stuffbot/internal/log"
)

type rosServer struct {
	mu   sync.Mutex
	ops  []rosOp
	seen chan struct{}
}

func (s *rosServer) handler(t *testing.T) http.HandlerFunc {
	upgrader := websocket.Upgrader{}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for {
			var op rosOp
			if err := conn.ReadJSON(&op); err != nil {
				return
			}
			s.mu.Lock()
			s.ops = append(s.ops, op)
			s.mu.Unlock()
			s.seen <- struct{}{}
		}
	}
}

func (s *rosServer) waitFor(t *testing.T, n int) []rosOp {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-s.seen:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for op %d", i+1)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]rosOp(nil), s.ops...)
}

func TestRosbridgePublishesTwist(t *testing.T) {
	srv := &rosServer{seen: make(chan struct{}, 16)}
	server := httptest.NewServer(srv.handler(t))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.Transport = TransportRosbridge
	cfg.RosbridgeURL = "ws" + strings.TrimPrefix(server.URL, "http")
	cfg.AngularScale = 1.0

	r, err := DialRosbridge(context.Background(), cfg, log.Discard())
	require.NoError(t, err)

	require.NoError(t, r.SetVelocity(context.Background(), r3.Vector{X: 0.25}, r3.Vector{Z: -0.5}))
	require.NoError(t, r.Close())

	ops := srv.waitFor(t, 4)
	assert.Equal(t, "advertise", ops[0].Op)
	assert.Equal(t, "geometry_msgs/Twist", ops[0].Type)
	assert.Equal(t, "/cmd_vel", ops[0].Topic)

	assert.Equal(t, "publish", ops[1].Op)
	require.NotNil(t, ops[1].Msg)
	assert.Equal(t, 0.25, ops[1].Msg.Linear.X)
	assert.Equal(t, -0.5, ops[1].Msg.Angular.Z)

	assert.Equal(t, "publish", ops[2].Op, "close sends a final stop")
	assert.Zero(t, ops[2].Msg.Linear.X)
	assert.Equal(t, "unadvertise", ops[3].Op)

	assert.ErrorIs(t, r.Stop(context.Background()), ErrClosed)
}

func TestRosbridgeDialFailure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RosbridgeURL = "ws://127.0.0.1:1"
	cfg.ConnectTimeout = 200 * time.Millisecond

	_, err := DialRosbridge(context.Background(), cfg, log.Discard())
	assert.Error(t, err)
}
