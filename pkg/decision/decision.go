// Package decision asks a vision-language model what the robot should do
// next. An Oracle receives the current camera image plus a textual summary of
// what the robot perceives and returns a MovementCommand.
package decision

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/teslashibe/go-stuffbot/pkg/frame"
	"github.com/teslashibe/go-stuffbot/pkg/mode"
)

// Oracle maps a perception snapshot to a movement decision. Implementations
// must honour ctx cancellation.
type Oracle interface {
	// Decide returns the next command for req.
	Decide(ctx context.Context, req *Request) (*MovementCommand, error)

	// Name identifies the oracle in logs.
	Name() string

	// Close releases resources.
	Close() error
}

// RobotState is the last velocity pair successfully sent to the drivetrain.
type RobotState struct {
	LinearVelocity  float64 `json:"linear_velocity"`
	AngularVelocity float64 `json:"angular_velocity"`
}

// MovementCommand is the oracle's decision.
type MovementCommand struct {
	LinearVelocity  float64   `json:"linear_velocity"`
	AngularVelocity float64   `json:"angular_velocity"`
	Description     string    `json:"description"`
	NextMode        mode.Mode `json:"next_mode"`
}

// Validate rejects commands the robot cannot act on: non-finite velocities
// or an unknown next mode. Out-of-range values are not an error here; the
// control loop clamps them.
func (c *MovementCommand) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: empty command", ErrInvalidResponse)
	}
	for name, v := range map[string]float64{
		"linear_velocity":  c.LinearVelocity,
		"angular_velocity": c.AngularVelocity,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is not finite", ErrInvalidResponse, name)
		}
	}
	if !c.NextMode.Valid() {
		return fmt.Errorf("%w: %w", ErrInvalidResponse, mode.ErrUnknownMode)
	}
	return nil
}

// Object is one tracked object as presented to the oracle.
type Object struct {
	ID         string            `json:"id"`
	Class      string            `json:"class"`
	Confidence float64           `json:"confidence"`
	Distance   float64           `json:"distance_m"`
	Box        frame.BoundingBox `json:"box"`
}

// Exchange is one completed request/decision pair kept as context.
type Exchange struct {
	Tick    uint64          `json:"tick"`
	At      time.Time       `json:"at"`
	Prompt  string          `json:"prompt"`
	Command MovementCommand `json:"command"`
}

// Request is everything the oracle sees for one tick.
type Request struct {
	Tick      uint64
	Image     []byte // JPEG
	State     RobotState
	Mode      mode.Mode
	ModeSince time.Duration
	Objects   []Object
	History   []Exchange
}

// Sentinel errors for common conditions.
var (
	// ErrNoAPIKey is returned when API key is required but missing.
	ErrNoAPIKey = errors.New("decision: API key required")

	// ErrNoImage is returned when a request carries no image.
	ErrNoImage = errors.New("decision: request has no image")

	// ErrInvalidResponse is returned when the model reply is not a usable command.
	ErrInvalidResponse = errors.New("decision: invalid model response")

	// ErrOracleUnavailable is returned when no oracle is configured.
	ErrOracleUnavailable = errors.New("decision: oracle unavailable")
)
