package tracking

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/teslashibe/go-stuffbot/pkg/frame"
	"github.com/teslashibe/go-stuffbot/pkg/tracking/detection"
)

// ErrDetection wraps detector failures returned by Process.
var ErrDetection = errors.New("tracking: detection failed")

// TrackedObject is a detection with an identity that persists across frames.
type TrackedObject struct {
	ID         string            `json:"id"`
	Class      string            `json:"class"`
	Confidence float64           `json:"confidence"`
	Box        frame.BoundingBox `json:"box"`
	FirstSeen  uint64            `json:"first_seen_tick"`
	LastSeen   uint64            `json:"last_seen_tick"`
	Sightings  int               `json:"sightings"`
}

// Result is the output of one Process call.
type Result struct {
	Tick    uint64
	Objects []TrackedObject

	// Observations holds side outputs for objects seen for the first time.
	// Empty unless Config.Annotate is set.
	Observations []Observation
}

// bucketKey discretizes a detection's top-left corner to whole pixels.
// Detections of the same class whose corners floor to the same pixel share
// an identity.
type bucketKey struct {
	class string
	x, y  int
}

func keyFor(d detection.Detection) bucketKey {
	return bucketKey{
		class: d.Class,
		x:     int(math.Floor(d.Box.X1)),
		y:     int(math.Floor(d.Box.Y1)),
	}
}

// Tracker assigns stable ids to detections. Process and Assign must be
// called from one goroutine; Objects may be called from any.
type Tracker struct {
	cfg      Config
	detector detection.Detector
	excluded map[string]bool
	table    *lru.Cache[bucketKey, TrackedObject]
	newID    func() string
	logger   *slog.Logger

	mu      sync.Mutex
	tick    uint64
	evicted uint64
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithIDGenerator replaces the uuid-based id source.
func WithIDGenerator(fn func() string) Option {
	return func(t *Tracker) { t.newID = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// NewID returns the first 8 hex characters of a random UUID.
func NewID() string {
	return uuid.NewString()[:8]
}

// New creates a tracker. detector may be nil when only Assign is used.
func New(cfg Config, detector detection.Detector, opts ...Option) (*Tracker, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid tracking config: %v", errs)
	}

	t := &Tracker{
		cfg:      cfg,
		detector: detector,
		excluded: make(map[string]bool, len(cfg.ExcludedClasses)),
		newID:    NewID,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With("component", "tracker")

	for _, class := range cfg.ExcludedClasses {
		t.excluded[strings.ToLower(strings.TrimSpace(class))] = true
	}

	table, err := lru.NewWithEvict[bucketKey, TrackedObject](cfg.Capacity, func(_ bucketKey, _ TrackedObject) {
		t.evicted++
	})
	if err != nil {
		return nil, fmt.Errorf("create identity table: %w", err)
	}
	t.table = table
	return t, nil
}

// Process runs detection on f and assigns identities. A detector failure
// returns an empty result and an error wrapping ErrDetection; the tick
// counter still advances so idle eviction keeps time.
func (t *Tracker) Process(f *frame.Frame) (Result, error) {
	if f == nil || f.Image == nil {
		return Result{}, fmt.Errorf("%w: no frame", ErrDetection)
	}
	if t.detector == nil {
		return Result{}, fmt.Errorf("%w: no detector configured", ErrDetection)
	}

	dets, err := t.detector.Detect(f.Image)
	if err != nil {
		tick := t.advance()
		return Result{Tick: tick}, fmt.Errorf("%w: %w", ErrDetection, err)
	}

	objects, fresh := t.assign(dets)
	res := Result{Tick: t.Tick(), Objects: objects}

	if t.cfg.Annotate && len(fresh) > 0 {
		res.Observations = Observe(f.Image, fresh, t.cfg.CropPadding, f.CapturedAt)
	}
	return res, nil
}

// Assign filters dets and maps them to tracked objects for one frame.
// At most one object per id is returned; the first detection wins.
func (t *Tracker) Assign(dets []detection.Detection) []TrackedObject {
	objects, _ := t.assign(dets)
	return objects
}

func (t *Tracker) assign(dets []detection.Detection) (objects, fresh []TrackedObject) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.tick++
	tick := t.tick
	seen := make(map[string]bool, len(dets))
	objects = make([]TrackedObject, 0, len(dets))

	for _, d := range dets {
		if !t.accept(d) {
			continue
		}

		key := keyFor(d)
		obj, ok := t.table.Get(key)
		if !ok {
			obj = TrackedObject{
				ID:        t.newID(),
				Class:     d.Class,
				FirstSeen: tick,
			}
		}
		if seen[obj.ID] {
			continue
		}
		seen[obj.ID] = true

		obj.Box = d.Box
		obj.Confidence = d.Confidence
		obj.LastSeen = tick
		obj.Sightings++
		t.table.Add(key, obj)

		objects = append(objects, obj)
		if !ok {
			fresh = append(fresh, obj)
		}
	}

	t.sweepLocked(tick)
	return objects, fresh
}

func (t *Tracker) advance() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tick++
	t.sweepLocked(t.tick)
	return t.tick
}

func (t *Tracker) accept(d detection.Detection) bool {
	if d.Confidence < t.cfg.ConfidenceThreshold {
		return false
	}
	if t.excluded[strings.ToLower(d.Class)] {
		return false
	}
	return d.Box.Valid()
}

// sweepLocked drops identities idle for longer than MaxIdleTicks. Keys are
// walked oldest first and LastSeen grows with recency, so the walk stops at
// the first live entry.
func (t *Tracker) sweepLocked(tick uint64) {
	if t.cfg.MaxIdleTicks == 0 {
		return
	}
	for _, key := range t.table.Keys() {
		obj, ok := t.table.Peek(key)
		if !ok {
			continue
		}
		if tick-obj.LastSeen <= t.cfg.MaxIdleTicks {
			return
		}
		t.table.Remove(key)
	}
}

// Objects returns every remembered object, most recently seen last.
func (t *Tracker) Objects() []TrackedObject {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.table.Values()
}

// Tick returns the number of frames processed.
func (t *Tracker) Tick() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tick
}

// Stats summarizes the identity table.
type Stats struct {
	Tick    uint64 `json:"tick"`
	Size    int    `json:"size"`
	Evicted uint64 `json:"evicted"`
}

// Stats returns table counters.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Stats{Tick: t.tick, Size: t.table.Len(), Evicted: t.evicted}
}

// Close releases the detector.
func (t *Tracker) Close() error {
	if t.detector == nil {
		return nil
	}
	return t.detector.Close()
}

// Observation carries the images stored for a newly seen object.
type Observation struct {
	Object     TrackedObject
	Full       image.Image
	Crop       image.Image
	CapturedAt time.Time
}
