package drivetrain

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang/geo/r3"
	"github.com/gorilla/websocket"
)

// Rosbridge publishes geometry_msgs/Twist over a rosbridge websocket.
type Rosbridge struct {
	conn   *websocket.Conn
	cfg    Config
	logger *slog.Logger

	writeMu sync.Mutex
	mu      sync.RWMutex
	closed  bool
	done    chan struct{}
}

type rosVector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type twist struct {
	Linear  rosVector `json:"linear"`
	Angular rosVector `json:"angular"`
}

type rosOp struct {
	Op    string `json:"op"`
	Topic string `json:"topic"`
	Type  string `json:"type,omitempty"`
	Msg   *twist `json:"msg,omitempty"`
}

// DialRosbridge connects and advertises the Twist topic.
func DialRosbridge(ctx context.Context, cfg Config, logger *slog.Logger) (*Rosbridge, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, cfg.RosbridgeURL, nil)
	if err != nil {
		return nil, fmt.Errorf("rosbridge dial %s: %w", cfg.RosbridgeURL, err)
	}

	r := &Rosbridge{
		conn:   conn,
		cfg:    cfg,
		logger: logger.With("component", "drivetrain.rosbridge"),
		done:   make(chan struct{}),
	}

	if err := r.write(rosOp{Op: "advertise", Topic: cfg.RosTopic, Type: "geometry_msgs/Twist"}, cfg.SendTimeout); err != nil {
		conn.Close()
		return nil, fmt.Errorf("rosbridge advertise: %w", err)
	}

	go r.readLoop()

	r.logger.Info("rosbridge connected", "url", cfg.RosbridgeURL, "topic", cfg.RosTopic)
	return r, nil
}

// readLoop drains server messages so control frames are processed.
func (r *Rosbridge) readLoop() {
	defer close(r.done)
	for {
		if _, _, err := r.conn.ReadMessage(); err != nil {
			r.mu.RLock()
			closed := r.closed
			r.mu.RUnlock()
			if !closed {
				r.logger.Warn("rosbridge connection lost", "error", err)
			}
			return
		}
	}
}

// SetVelocity publishes one Twist.
func (r *Rosbridge) SetVelocity(ctx context.Context, linear, angular r3.Vector) error {
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	select {
	case <-r.done:
		return ErrNotConnected
	default:
	}

	msg := &twist{
		Linear:  rosVector{X: linear.X, Y: linear.Y, Z: linear.Z},
		Angular: rosVector{X: angular.X, Y: angular.Y, Z: scaleAngular(angular.Z, r.cfg.AngularScale, r.cfg.MaxAngular)},
	}
	if err := r.write(rosOp{Op: "publish", Topic: r.cfg.RosTopic, Msg: msg}, sendTimeout(ctx, r.cfg.SendTimeout)); err != nil {
		return fmt.Errorf("rosbridge publish: %w", err)
	}
	return nil
}

// Stop publishes a zero Twist.
func (r *Rosbridge) Stop(ctx context.Context) error {
	return r.SetVelocity(ctx, r3.Vector{}, r3.Vector{})
}

func (r *Rosbridge) write(op rosOp, timeout time.Duration) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if err := r.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	return r.conn.WriteJSON(op)
}

// Close sends a final stop, unadvertises and closes the socket.
func (r *Rosbridge) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.SendTimeout)
	defer cancel()
	stopErr := r.Stop(ctx)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	_ = r.write(rosOp{Op: "unadvertise", Topic: r.cfg.RosTopic}, r.cfg.SendTimeout)

	r.writeMu.Lock()
	_ = r.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(r.cfg.SendTimeout))
	r.writeMu.Unlock()

	err := r.conn.Close()
	<-r.done

	if stopErr != nil && stopErr != ErrClosed {
		return fmt.Errorf("final stop: %w", stopErr)
	}
	return err
}

var _ Drivetrain = (*Rosbridge)(nil)
