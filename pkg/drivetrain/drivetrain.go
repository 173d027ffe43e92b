// Package drivetrain sends velocity commands to the robot base.
//
// Velocities use the robot frame: linear.X is forward speed in m/s and
// angular.Z is yaw rate in rad/s, positive turning left. Other components
// are ignored by the differential-drive transports.
package drivetrain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang/geo/r3"

	"github.com/teslashibe/go-stuffbot/internal/config"
)

// Drivetrain is a differential-drive base.
type Drivetrain interface {
	// SetVelocity commands a linear and angular velocity. It must return
	// within a bounded time even if the transport is unreachable.
	SetVelocity(ctx context.Context, linear, angular r3.Vector) error

	// Stop commands zero velocity.
	Stop(ctx context.Context) error

	// Close stops the base and releases the connection.
	Close() error
}

var (
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("drivetrain: closed")

	// ErrSendTimeout is returned when a command is not acknowledged in time.
	ErrSendTimeout = errors.New("drivetrain: send timeout")

	// ErrNotConnected is returned while the transport is down.
	ErrNotConnected = errors.New("drivetrain: not connected")
)

// Transport names for Config.Transport.
const (
	TransportMQTT      = "mqtt"
	TransportRosbridge = "rosbridge"
)

// Config selects and configures a transport.
type Config struct {
	Transport string `yaml:"transport"`

	// MQTT
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`

	// Rosbridge
	RosbridgeURL string `yaml:"rosbridge_url"`
	RosTopic     string `yaml:"ros_topic"`

	// AngularScale multiplies the angular velocity at the wire. Some bases
	// under-rotate and need a small boost.
	AngularScale float64 `yaml:"angular_scale"`

	// MaxAngular bounds the scaled angular velocity actually sent, in rad/s.
	// Zero leaves it unbounded.
	MaxAngular float64 `yaml:"max_angular"`

	SendTimeout    time.Duration `yaml:"send_timeout"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// DefaultConfig returns the MQTT setup used by the reference robot.
func DefaultConfig() Config {
	return Config{
		Transport:      TransportMQTT,
		Broker:         config.DefaultMQTTBroker,
		Topic:          "robot/drive",
		ClientID:       "stuffbot",
		RosbridgeURL:   "ws://localhost:9090",
		RosTopic:       "/cmd_vel",
		AngularScale:   1.15,
		MaxAngular:     DefaultLimits().MaxAngular,
		SendTimeout:    200 * time.Millisecond,
		ConnectTimeout: 5 * time.Second,
	}
}

// Validate checks the config.
func (c *Config) Validate() error {
	var problems []string
	switch c.Transport {
	case TransportMQTT:
		if c.Broker == "" || c.Topic == "" {
			problems = append(problems, "mqtt needs broker and topic")
		}
	case TransportRosbridge:
		if c.RosbridgeURL == "" || c.RosTopic == "" {
			problems = append(problems, "rosbridge needs rosbridge_url and ros_topic")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown transport %q", c.Transport))
	}
	if c.AngularScale <= 0 {
		problems = append(problems, "angular_scale must be positive")
	}
	if c.SendTimeout <= 0 || c.ConnectTimeout <= 0 {
		problems = append(problems, "timeouts must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid drivetrain config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Open connects the configured transport. Failure here is fatal for the robot.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (Drivetrain, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting drivetrain", "transport", cfg.Transport)

	switch cfg.Transport {
	case TransportMQTT:
		return DialMQTT(ctx, cfg, logger)
	case TransportRosbridge:
		return DialRosbridge(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported transport: %s", cfg.Transport)
	}
}

// Payload is the JSON body understood by the MQTT drive node.
type Payload struct {
	LinearVelocity  float64 `json:"linear_velocity"`
	AngularVelocity float64 `json:"angular_velocity"`
}

// NewPayload builds the wire payload, applying the angular scale.
func NewPayload(linear, angular r3.Vector, angularScale, maxAngular float64) Payload {
	return Payload{
		LinearVelocity:  linear.X,
		AngularVelocity: scaleAngular(angular.Z, angularScale, maxAngular),
	}
}

// scaleAngular applies the base's scale and keeps the result within
// ±maxAngular, so a command clamped to the limit stays there on the wire.
func scaleAngular(v, scale, maxAngular float64) float64 {
	v *= scale
	if maxAngular > 0 {
		v = clampFinite(v, maxAngular)
	}
	return v
}

// sendTimeout picks the earlier of the ctx deadline and the configured bound.
func sendTimeout(ctx context.Context, bound time.Duration) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < bound {
			return remaining
		}
	}
	return bound
}
