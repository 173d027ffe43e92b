// Package distance estimates range to a detected object from its pixel width
// using the pinhole camera model.
package distance

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/teslashibe/go-stuffbot/pkg/frame"
)

// Defaults for a household object seen by a typical 640px webcam.
const (
	// DefaultKnownWidth is the assumed real object width in meters.
	DefaultKnownWidth = 0.15

	// DefaultFocalLength is the focal length in pixels before calibration.
	DefaultFocalLength = 800.0
)

// ErrCalibration is returned when calibration inputs cannot yield a focal length.
var ErrCalibration = errors.New("distance: invalid calibration input")

// Estimate returns the distance in meters for an object knownWidth meters
// wide that spans pixelWidth pixels:
//
//	d = knownWidth * focalLength / pixelWidth
//
// A pixelWidth of 0 (or any non-positive or non-finite input) returns 0,
// meaning "unknown". For fixed width and focal length the result strictly
// decreases as pixelWidth grows.
func Estimate(pixelWidth, knownWidth, focalLength float64) float64 {
	if !positive(pixelWidth) || !positive(knownWidth) || !positive(focalLength) {
		return 0
	}
	return knownWidth * focalLength / pixelWidth
}

// CalibrateFocalLength solves the pinhole model for the focal length given an
// object of knownWidth meters placed knownDistance meters away that spans
// pixelWidth pixels.
func CalibrateFocalLength(knownDistance, knownWidth, pixelWidth float64) (float64, error) {
	if !positive(knownDistance) || !positive(knownWidth) || !positive(pixelWidth) {
		return 0, fmt.Errorf("%w: distance=%v width=%v pixels=%v", ErrCalibration, knownDistance, knownWidth, pixelWidth)
	}
	return pixelWidth * knownDistance / knownWidth, nil
}

// Round2 rounds to two decimals for display and prompts.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Category returns a human-readable distance bucket.
func Category(meters float64) string {
	switch {
	case meters <= 0:
		return "unknown"
	case meters < 0.5:
		return "very close"
	case meters < 1.0:
		return "close"
	case meters < 2.0:
		return "nearby"
	case meters < 3.0:
		return "moderate"
	default:
		return "far"
	}
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// Estimator holds the calibrated parameters. It is safe for concurrent use.
type Estimator struct {
	mu          sync.RWMutex
	knownWidth  float64
	focalLength float64
}

// NewEstimator creates an estimator. Non-positive arguments fall back to
// DefaultKnownWidth and DefaultFocalLength.
func NewEstimator(knownWidth, focalLength float64) *Estimator {
	if !positive(knownWidth) {
		knownWidth = DefaultKnownWidth
	}
	if !positive(focalLength) {
		focalLength = DefaultFocalLength
	}
	return &Estimator{knownWidth: knownWidth, focalLength: focalLength}
}

// KnownWidth returns the assumed object width in meters.
func (e *Estimator) KnownWidth() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.knownWidth
}

// FocalLength returns the current focal length in pixels.
func (e *Estimator) FocalLength() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.focalLength
}

// Estimate returns the distance for a pixel width using the calibrated values.
func (e *Estimator) Estimate(pixelWidth float64) float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Estimate(pixelWidth, e.knownWidth, e.focalLength)
}

// FromBox estimates the distance to the object inside box.
func (e *Estimator) FromBox(box frame.BoundingBox) float64 {
	return e.Estimate(box.Width())
}

// Calibrate updates the focal length from a reference measurement and
// returns the focal length now in effect. Invalid input keeps the previous
// focal length.
func (e *Estimator) Calibrate(knownDistance, knownWidth, pixelWidth float64) float64 {
	focal, err := CalibrateFocalLength(knownDistance, knownWidth, pixelWidth)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		return e.focalLength
	}
	e.focalLength = focal
	return focal
}
