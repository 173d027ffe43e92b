// Package control runs the perception-driven control loop: read the latest
// frame, track objects, ask the decision oracle what to do, and drive.
//
// The loop is single-threaded apart from the oracle call, which runs on its
// own goroutine so a slow model can never delay the failsafe STOP. At most
// one decision is in flight at a time.
package control

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"go.uber.org/multierr"

	"github.com/teslashibe/go-stuffbot/pkg/decision"
	"github.com/teslashibe/go-stuffbot/pkg/distance"
	"github.com/teslashibe/go-stuffbot/pkg/drivetrain"
	"github.com/teslashibe/go-stuffbot/pkg/frame"
	"github.com/teslashibe/go-stuffbot/pkg/history"
	"github.com/teslashibe/go-stuffbot/pkg/mode"
	"github.com/teslashibe/go-stuffbot/pkg/storage"
	"github.com/teslashibe/go-stuffbot/pkg/tracking"
)

// FrameSource yields the most recent camera frame.
type FrameSource interface {
	Latest() (*frame.Frame, error)
}

// Perceiver turns a frame into tracked objects.
type Perceiver interface {
	Process(f *frame.Frame) (tracking.Result, error)
}

// Recorder accepts captured objects for storage without blocking.
type Recorder interface {
	Submit(rec *storage.Record) error
}

// Deps are the collaborators the loop drives. Frames, Tracker, Oracle and
// Drivetrain are required.
type Deps struct {
	Frames     FrameSource
	Tracker    Perceiver
	Estimator  *distance.Estimator
	Oracle     decision.Oracle
	Drivetrain drivetrain.Drivetrain
	Modes      *mode.Machine
	History    *history.Log[decision.Exchange]
	Recorder   Recorder

	// Closers are released on shutdown, in order, before the drivetrain.
	Closers []io.Closer

	Clock  clock.Clock
	Logger *slog.Logger
}

// Loop is the control loop.
type Loop struct {
	cfg      Config
	interval time.Duration

	frames    FrameSource
	tracker   Perceiver
	estimator *distance.Estimator
	oracle    decision.Oracle
	drive     drivetrain.Drivetrain
	modes     *mode.Machine
	history   *history.Log[decision.Exchange]
	recorder  Recorder
	closers   []io.Closer

	clock  clock.Clock
	logger *slog.Logger

	inflight atomic.Bool

	// Owned by the loop goroutine.
	lastTick     time.Time
	lastFailsafe time.Time
	starved      bool

	mu       sync.RWMutex
	state    State
	tick     uint64
	robot    decision.RobotState
	last     *decision.MovementCommand
	success  time.Time
	objects  []tracking.TrackedObject
	counters Counters
	hooks    []func(TickReport)
}

// New validates cfg and deps and builds a loop.
func New(cfg Config, deps Deps) (*Loop, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid control config: %v", errs)
	}
	if deps.Frames == nil || deps.Tracker == nil || deps.Oracle == nil || deps.Drivetrain == nil {
		return nil, fmt.Errorf("control: frames, tracker, oracle and drivetrain are required")
	}

	l := &Loop{
		cfg:       cfg,
		interval:  cfg.MinInterval(),
		frames:    deps.Frames,
		tracker:   deps.Tracker,
		estimator: deps.Estimator,
		oracle:    deps.Oracle,
		drive:     deps.Drivetrain,
		modes:     deps.Modes,
		history:   deps.History,
		recorder:  deps.Recorder,
		closers:   deps.Closers,
		clock:     deps.Clock,
		logger:    deps.Logger,
	}
	if l.clock == nil {
		l.clock = clock.New()
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	l.logger = l.logger.With("component", "control")
	if l.estimator == nil {
		l.estimator = distance.NewEstimator(0, 0)
	}
	if l.modes == nil {
		l.modes = mode.NewMachine(l.clock.Now(), mode.WithLogger(l.logger))
	}
	if l.history == nil {
		l.history = history.New[decision.Exchange](cfg.HistoryLength)
	}
	return l, nil
}

// OnTick registers fn to receive a report after every tick and failsafe.
// fn runs on the loop goroutine and must not block.
func (l *Loop) OnTick(fn func(TickReport)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hooks = append(l.hooks, fn)
}

// Status returns a snapshot of the loop.
func (l *Loop) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s := Status{
		State:       l.state,
		Tick:        l.tick,
		Mode:        l.modes.Current(),
		ModeSince:   l.modes.EnteredAt(),
		Robot:       l.robot,
		LastSuccess: l.success,
		Objects:     append([]tracking.TrackedObject(nil), l.objects...),
		Counters:    l.counters,
	}
	if l.last != nil {
		cmd := *l.last
		s.LastCommand = &cmd
	}
	return s
}

// History returns the exchanges currently held as oracle context.
func (l *Loop) History() []decision.Exchange {
	return l.history.Snapshot()
}

// Run drives the loop until ctx is cancelled, then sends a final STOP and
// releases every collaborator. It returns only after that sequence, with
// any release errors combined. A panic escaping a tick still runs the
// sequence and is returned as ErrPanic.
func (l *Loop) Run(ctx context.Context) (err error) {
	if err := l.begin(); err != nil {
		return err
	}
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		l.logger.Error("control loop panic", "panic", r, "stack", string(debug.Stack()))
		err = fmt.Errorf("%w: %v", ErrPanic, r)
		if l.Status().State == Running {
			err = multierr.Append(err, l.shutdown(ctx))
		}
	}()
	l.logger.Info("control loop started",
		"rate_hz", l.cfg.RateHz,
		"timeout", l.cfg.Timeout,
		"oracle", l.oracle.Name(),
		"mode", l.modes.Current().String(),
	)

	for ctx.Err() == nil {
		if !l.iterate(ctx) {
			l.wait(ctx)
		}
	}

	return l.shutdown(ctx)
}

func (l *Loop) begin() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != Idle {
		return ErrAlreadyStarted
	}
	l.state = Running
	l.success = l.clock.Now()
	return nil
}

func (l *Loop) wait(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-l.clock.After(l.cfg.PollInterval):
	}
}

// iterate is one pass of the loop body: the failsafe check first, then a
// tick if the rate limit allows. It reports whether a tick ran.
func (l *Loop) iterate(ctx context.Context) bool {
	now := l.clock.Now()
	l.failsafe(ctx, now)

	if !l.lastTick.IsZero() && now.Sub(l.lastTick) < l.interval {
		return false
	}
	l.step(ctx, now)
	l.lastTick = l.clock.Now()
	return true
}

func (l *Loop) failsafe(ctx context.Context, now time.Time) {
	l.mu.RLock()
	since := now.Sub(l.success)
	l.mu.RUnlock()

	if since < l.cfg.Timeout {
		l.starved = false
		return
	}
	if l.starved && (l.cfg.FailsafeRepeat == 0 || now.Sub(l.lastFailsafe) < l.cfg.FailsafeRepeat) {
		return
	}
	l.starved = true
	l.lastFailsafe = now

	l.logger.Warn("failsafe: no successful command", "since", since)
	err := l.stop(ctx)

	l.mu.Lock()
	l.counters.Failsafes++
	if err == nil {
		l.counters.Stops++
	}
	tick := l.tick
	l.mu.Unlock()

	report := TickReport{Tick: tick, At: now, Mode: l.modes.Current(), Stop: err == nil, Failsafe: true}
	if err != nil {
		report.Fault = l.fault(tick, Transport, err)
	}
	l.emit(report)
}

// step performs one tick: frame, perception, decision, dispatch.
func (l *Loop) step(ctx context.Context, now time.Time) {
	l.mu.Lock()
	l.tick++
	l.counters.Ticks++
	tick := l.tick
	state := l.robot
	l.mu.Unlock()

	report := TickReport{Tick: tick, At: now}
	defer func() {
		report.Duration = l.clock.Since(now)
		report.Mode = l.modes.Current()
		l.emit(report)
	}()

	f, err := l.frames.Latest()
	if err != nil {
		report.Fault = l.fault(tick, Sensor, err)
		return
	}

	var result tracking.Result
	err = protect("tracker", func() (err error) {
		result, err = l.tracker.Process(f)
		return err
	})
	if err != nil {
		report.Fault = l.fault(tick, Perception, err)
		result.Objects = nil
		result.Observations = nil
	}
	report.Objects = result.Objects

	objects := l.describe(tick, result.Objects)
	l.record(result.Observations)

	l.mu.Lock()
	l.objects = result.Objects
	l.mu.Unlock()

	img, err := decision.EncodeImage(f.Image, l.cfg.ImageMaxWidth, l.cfg.ImageQuality)
	if err != nil {
		report.Fault = l.fault(tick, Sensor, fmt.Errorf("encode frame: %w", err))
		return
	}

	current := l.modes.Current()
	req := &decision.Request{
		Tick:      tick,
		Image:     img,
		State:     state,
		Mode:      current,
		ModeSince: now.Sub(l.modes.EnteredAt()),
		Objects:   objects,
		History:   l.history.Recent(l.cfg.HistoryLength),
	}

	cmd, err := l.decide(ctx, req)
	if err != nil {
		report.Fault = l.fault(tick, Decision, err)
		if stopErr := l.stop(ctx); stopErr != nil {
			l.fault(tick, Transport, stopErr)
			return
		}
		report.Stop = true
		l.mu.Lock()
		l.counters.Stops++
		l.mu.Unlock()
		return
	}

	linear, angular, clamped := l.cfg.Limits.Clamp(cmd.LinearVelocity, cmd.AngularVelocity)
	if clamped {
		l.logger.Warn("command clamped",
			"tick", tick,
			"linear", cmd.LinearVelocity,
			"angular", cmd.AngularVelocity,
			"linear_clamped", linear,
			"angular_clamped", angular,
		)
	}
	out := *cmd
	out.LinearVelocity, out.AngularVelocity = linear, angular
	report.Clamped = clamped

	err = protect("drivetrain", func() error {
		return l.drive.SetVelocity(ctx, r3.Vector{X: linear}, r3.Vector{Z: angular})
	})
	if err != nil {
		report.Fault = l.fault(tick, Transport, err)
		return
	}
	report.Command = &out

	at := l.clock.Now()
	if _, err := l.modes.Apply(out.NextMode, at); err != nil {
		l.logger.Warn("mode not applied", "tick", tick, "proposed", out.NextMode.String(), "error", err)
	}
	l.history.Append(decision.Exchange{
		Tick:    tick,
		At:      at,
		Prompt:  decision.UserPrompt(req),
		Command: out,
	})

	l.mu.Lock()
	l.robot = decision.RobotState{LinearVelocity: linear, AngularVelocity: angular}
	l.success = at
	l.last = &out
	l.counters.Commands++
	if clamped {
		l.counters.Clamped++
	}
	l.mu.Unlock()

	l.logger.Debug("command sent",
		"tick", tick,
		"linear", linear,
		"angular", angular,
		"mode", out.NextMode.String(),
		"description", out.Description,
	)
}

// describe attaches distance estimates to tracked objects. An indeterminate
// distance stays zero.
func (l *Loop) describe(tick uint64, objs []tracking.TrackedObject) []decision.Object {
	out := make([]decision.Object, 0, len(objs))
	for _, o := range objs {
		d := l.estimator.FromBox(o.Box)
		if d == 0 {
			l.logger.Debug("distance indeterminate", "tick", tick, "object", o.ID, "width", o.Box.Width())
		}
		out = append(out, decision.Object{
			ID:         o.ID,
			Class:      o.Class,
			Confidence: o.Confidence,
			Distance:   d,
			Box:        o.Box,
		})
	}
	return out
}

func (l *Loop) record(observations []tracking.Observation) {
	if l.recorder == nil {
		return
	}
	current := l.modes.Current()
	for _, obs := range observations {
		rec, err := storage.NewRecord(obs, l.estimator.FromBox(obs.Object.Box), current, 0)
		if err != nil {
			l.logger.Warn("skipping capture", "object", obs.Object.ID, "error", err)
			continue
		}
		if err := l.recorder.Submit(rec); err != nil {
			l.logger.Warn("capture not queued", "object", obs.Object.ID, "error", err)
			continue
		}
		l.mu.Lock()
		l.counters.Recorded++
		l.mu.Unlock()
	}
}

type decisionResult struct {
	cmd *decision.MovementCommand
	err error
}

// decide calls the oracle on its own goroutine and waits at most
// OracleTimeout. A call that outlives its timeout keeps the oracle busy, and
// later ticks fail fast with ErrOracleBusy until it returns.
func (l *Loop) decide(ctx context.Context, req *decision.Request) (*decision.MovementCommand, error) {
	if !l.inflight.CompareAndSwap(false, true) {
		return nil, ErrOracleBusy
	}

	ctx, cancel := l.clock.WithTimeout(ctx, l.cfg.OracleTimeout)
	defer cancel()

	done := make(chan decisionResult, 1)
	go func() {
		defer l.inflight.Store(false)
		var r decisionResult
		r.err = protect("oracle", func() (err error) {
			r.cmd, err = l.oracle.Decide(ctx, req)
			return err
		})
		done <- r
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		if r.cmd == nil {
			return nil, fmt.Errorf("%w: empty command", decision.ErrInvalidResponse)
		}
		if err := r.cmd.Validate(); err != nil {
			return nil, err
		}
		return r.cmd, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w after %s: %w", ErrOracleTimeout, l.cfg.OracleTimeout, ctx.Err())
	}
}

// stop sends STOP with its own deadline, so it still goes out when ctx is
// already cancelled.
func (l *Loop) stop(ctx context.Context) error {
	ctx, cancel := l.clock.WithTimeout(context.WithoutCancel(ctx), l.cfg.StopTimeout)
	defer cancel()
	return protect("drivetrain stop", func() error { return l.drive.Stop(ctx) })
}

func (l *Loop) fault(tick uint64, cat Category, err error) *FaultError {
	fe := &FaultError{Tick: tick, Category: cat, Err: err}
	l.mu.Lock()
	l.counters.fault(cat)
	l.mu.Unlock()
	l.logger.Warn("tick degraded", "tick", tick, "category", cat.String(), "error", err)
	return fe
}

func (l *Loop) emit(r TickReport) {
	l.mu.RLock()
	hooks := l.hooks
	l.mu.RUnlock()
	for _, fn := range hooks {
		fn(r)
	}
}

func (l *Loop) shutdown(ctx context.Context) error {
	l.setState(Stopping)
	l.logger.Info("control loop stopping")

	var err error
	if stopErr := l.stop(ctx); stopErr != nil {
		err = multierr.Append(err, fmt.Errorf("final stop: %w", stopErr))
	} else {
		l.mu.Lock()
		l.counters.Stops++
		l.robot = decision.RobotState{}
		l.mu.Unlock()
	}

	for _, c := range l.closers {
		err = multierr.Append(err, protect("release", c.Close))
	}
	err = multierr.Append(err, protect("oracle close", l.oracle.Close))
	err = multierr.Append(err, protect("drivetrain close", l.drive.Close))

	l.setState(Stopped)
	if err != nil {
		l.logger.Error("control loop stopped with errors", "error", err)
	} else {
		l.logger.Info("control loop stopped")
	}
	return err
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}
