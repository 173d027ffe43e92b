package control

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Category classifies a fault absorbed by the loop.
type Category int

const (
	// Sensor faults skip the tick without a command.
	Sensor Category = iota + 1
	// Perception faults continue with an empty object list.
	Perception
	// Decision faults stop the robot and leave mode, state and history alone.
	Decision
	// Transport faults are logged; the failsafe handles persistent failure.
	Transport
)

func (c Category) String() string {
	switch c {
	case Sensor:
		return "sensor"
	case Perception:
		return "perception"
	case Decision:
		return "decision"
	case Transport:
		return "transport"
	}
	return "unknown"
}

func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

var (
	ErrAlreadyStarted = errors.New("control: loop already started")
	ErrOracleBusy     = errors.New("control: previous decision still in flight")
	ErrOracleTimeout  = errors.New("control: decision timed out")
	ErrPanic          = errors.New("control: recovered panic")
)

// protect runs fn and turns a panic into an error wrapping ErrPanic.
func protect(what string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w in %s: %v", ErrPanic, what, r)
		}
	}()
	return fn()
}

// FaultError is a fault absorbed within one tick.
type FaultError struct {
	Tick     uint64   `json:"tick"`
	Category Category `json:"category"`
	Err      error    `json:"-"`
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("tick %d: %s fault: %v", e.Tick, e.Category, e.Err)
}

func (e *FaultError) Unwrap() error { return e.Err }

// MarshalJSON includes the message, which the error value itself would lose.
func (e *FaultError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Tick     uint64   `json:"tick"`
		Category Category `json:"category"`
		Error    string   `json:"error"`
	}{e.Tick, e.Category, errString(e.Err)})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
