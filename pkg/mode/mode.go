// Package mode defines the robot's behavioural modes and the state machine
// that tracks which one is active.
package mode

import (
	"errors"
	"fmt"
	"strings"
)

// Mode is a high-level behavioural phase.
type Mode int

const (
	// Unknown is the zero value and never a valid current mode.
	Unknown Mode = iota
	// Searching wanders looking for new objects.
	Searching
	// Approaching drives toward a chosen object.
	Approaching
	// Inspecting holds position in front of the object.
	Inspecting
	// SeekingNewTarget backs away and turns to find the next object.
	SeekingNewTarget
	// RecoveringVision backs off when the camera view is blocked or unusable.
	RecoveringVision
)

// ErrUnknownMode is returned when a label does not name a mode.
var ErrUnknownMode = errors.New("mode: unknown mode")

var names = map[Mode]string{
	Searching:        "SEARCHING",
	Approaching:      "APPROACHING",
	Inspecting:       "INSPECTING",
	SeekingNewTarget: "SEEKING_NEW_TARGET",
	RecoveringVision: "RECOVERING_VISION",
}

// aliases maps labels used by older prompts onto the current modes.
var aliases = map[string]Mode{
	"LOOK_FOR_TABLE":        Searching,
	"APPROACH_TABLE":        Approaching,
	"FIND_STUFF":            Inspecting,
	"TURN_FROM_TABLE":       SeekingNewTarget,
	"BACK_UP_FROM_OBSTACLE": RecoveringVision,
}

// All returns every valid mode in declaration order.
func All() []Mode {
	return []Mode{Searching, Approaching, Inspecting, SeekingNewTarget, RecoveringVision}
}

// String returns the canonical upper-case label.
func (m Mode) String() string {
	if s, ok := names[m]; ok {
		return s
	}
	return "UNKNOWN"
}

// Valid reports whether m is one of the defined modes.
func (m Mode) Valid() bool {
	_, ok := names[m]
	return ok
}

// Parse resolves a label case-insensitively, accepting legacy aliases.
func Parse(s string) (Mode, error) {
	label := strings.ToUpper(strings.TrimSpace(s))
	label = strings.ReplaceAll(label, " ", "_")
	label = strings.ReplaceAll(label, "-", "_")
	for m, name := range names {
		if name == label {
			return m, nil
		}
	}
	if m, ok := aliases[label]; ok {
		return m, nil
	}
	return Unknown, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// MarshalText implements encoding.TextMarshaler. Invalid modes encode as
// "UNKNOWN", which UnmarshalText refuses.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
