package mode

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrIllegalTransition is returned by a strict Machine for edges outside the
// transition table.
var ErrIllegalTransition = errors.New("mode: illegal transition")

// legal lists the expected edges. Self-transitions are always legal and
// RecoveringVision may also return to whatever mode preceded it.
var legal = map[Mode][]Mode{
	Searching:        {Approaching, RecoveringVision},
	Approaching:      {Inspecting, Searching},
	Inspecting:       {SeekingNewTarget, RecoveringVision},
	SeekingNewTarget: {Approaching, Searching},
	RecoveringVision: {Searching},
}

// IsLegal reports whether from -> to is an expected edge. previous is the
// mode that was active before from, used for RecoveringVision.
func IsLegal(from, to, previous Mode) bool {
	if from == to {
		return true
	}
	if from == RecoveringVision && to == previous && previous.Valid() {
		return true
	}
	for _, m := range legal[from] {
		if m == to {
			return true
		}
	}
	return false
}

// Successors lists the modes reachable from m besides itself. For
// RecoveringVision this excludes the previous mode, which is only known at
// runtime.
func Successors(m Mode) []Mode {
	return append([]Mode(nil), legal[m]...)
}

// Transition records one applied proposal.
type Transition struct {
	From  Mode      `json:"from"`
	To    Mode      `json:"to"`
	Legal bool      `json:"legal"`
	At    time.Time `json:"at"`
}

// Stats counts proposals seen by a Machine.
type Stats struct {
	Current     Mode        `json:"current"`
	Previous    Mode        `json:"previous"`
	EnteredAt   time.Time   `json:"entered_at"`
	Changes     uint64      `json:"changes"`
	Illegal     uint64      `json:"illegal"`
	LastIllegal *Transition `json:"last_illegal,omitempty"`
}

// Machine holds the current mode. The decision oracle drives it: by default
// every proposal is applied, and proposals outside the transition table are
// logged and counted rather than refused. A strict machine refuses them.
type Machine struct {
	mu          sync.RWMutex
	current     Mode
	previous    Mode
	enteredAt   time.Time
	changes     uint64
	illegal     uint64
	lastIllegal *Transition

	strict bool
	logger *slog.Logger
}

// Option configures a Machine.
type Option func(*Machine)

// WithStrict makes Apply refuse illegal transitions.
func WithStrict(strict bool) Option {
	return func(m *Machine) { m.strict = strict }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) { m.logger = l }
}

// NewMachine starts in Searching at now.
func NewMachine(now time.Time, opts ...Option) *Machine {
	m := &Machine{
		current:   Searching,
		enteredAt: now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Current returns the active mode.
func (m *Machine) Current() Mode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Previous returns the mode active before the current one, or Unknown.
func (m *Machine) Previous() Mode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.previous
}

// EnteredAt returns when the current mode became active.
func (m *Machine) EnteredAt() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enteredAt
}

// Apply proposes next as the new mode. Unknown modes are always rejected.
// A self-transition leaves EnteredAt unchanged.
func (m *Machine) Apply(next Mode, now time.Time) (Transition, error) {
	if !next.Valid() {
		return Transition{}, fmt.Errorf("%w: %d", ErrUnknownMode, int(next))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	t := Transition{
		From:  m.current,
		To:    next,
		Legal: IsLegal(m.current, next, m.previous),
		At:    now,
	}

	if !t.Legal {
		m.illegal++
		last := t
		m.lastIllegal = &last
		m.logger.Warn("unexpected mode transition",
			"from", t.From.String(),
			"to", t.To.String(),
			"strict", m.strict,
		)
		if m.strict {
			return t, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, t.From, t.To)
		}
	}

	if next != m.current {
		m.previous = m.current
		m.current = next
		m.enteredAt = now
		m.changes++
		m.logger.Info("mode changed", "from", t.From.String(), "to", t.To.String())
	}
	return t, nil
}

// Stats returns a snapshot of the machine's counters.
func (m *Machine) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Stats{
		Current:   m.current,
		Previous:  m.previous,
		EnteredAt: m.enteredAt,
		Changes:   m.changes,
		Illegal:   m.illegal,
	}
	if m.lastIllegal != nil {
		last := *m.lastIllegal
		s.LastIllegal = &last
	}
	return s
}
