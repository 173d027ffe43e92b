package control

import (
	"time"

	"github.com/teslashibe/go-stuffbot/pkg/decision"
	"github.com/teslashibe/go-stuffbot/pkg/mode"
	"github.com/teslashibe/go-stuffbot/pkg/tracking"
)

// State is the loop's lifecycle state.
type State int

const (
	Idle State = iota
	Running
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Running:
		return "RUNNING"
	case Stopping:
		return "STOPPING"
	case Stopped:
		return "STOPPED"
	}
	return "UNKNOWN"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Counters are cumulative loop counters.
type Counters struct {
	Ticks            uint64 `json:"ticks"`
	Commands         uint64 `json:"commands"`
	Stops            uint64 `json:"stops"`
	Failsafes        uint64 `json:"failsafes"`
	Clamped          uint64 `json:"clamped"`
	SensorFaults     uint64 `json:"sensor_faults"`
	PerceptionFaults uint64 `json:"perception_faults"`
	DecisionFaults   uint64 `json:"decision_faults"`
	TransportFaults  uint64 `json:"transport_faults"`
	Recorded         uint64 `json:"recorded"`
}

func (c *Counters) fault(cat Category) {
	switch cat {
	case Sensor:
		c.SensorFaults++
	case Perception:
		c.PerceptionFaults++
	case Decision:
		c.DecisionFaults++
	case Transport:
		c.TransportFaults++
	}
}

// Status is a point-in-time view of the loop for the dashboard.
type Status struct {
	State       State                     `json:"state"`
	Tick        uint64                    `json:"tick"`
	Mode        mode.Mode                 `json:"mode"`
	ModeSince   time.Time                 `json:"mode_since"`
	Robot       decision.RobotState       `json:"robot"`
	LastCommand *decision.MovementCommand `json:"last_command,omitempty"`
	LastSuccess time.Time                 `json:"last_success"`
	Objects     []tracking.TrackedObject  `json:"objects"`
	Counters    Counters                  `json:"counters"`
}

// TickReport describes what one tick did. Exactly one of Command, Stop or
// Fault explains the outcome, except that a decision fault also carries
// Stop.
type TickReport struct {
	Tick     uint64                    `json:"tick"`
	At       time.Time                 `json:"at"`
	Duration time.Duration             `json:"duration"`
	Mode     mode.Mode                 `json:"mode"`
	Objects  []tracking.TrackedObject  `json:"objects"`
	Command  *decision.MovementCommand `json:"command,omitempty"`
	Clamped  bool                      `json:"clamped,omitempty"`
	Stop     bool                      `json:"stop,omitempty"`
	Failsafe bool                      `json:"failsafe,omitempty"`
	Fault    *FaultError               `json:"fault,omitempty"`
}
