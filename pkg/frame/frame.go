// Package frame holds camera frames and the latest-frame hand-off between
// the acquisition goroutine and the control loop.
package frame

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"math"
	"time"
)

// DefaultJPEGQuality is used when JPEG is called with a non-positive quality.
const DefaultJPEGQuality = 80

// Frame is one captured image. Frames are shared by pointer between the
// acquisition goroutine and readers and must not be mutated once published.
type Frame struct {
	Image      image.Image
	Seq        uint64
	CapturedAt time.Time
}

// New wraps img as a frame.
func New(img image.Image, seq uint64, at time.Time) *Frame {
	return &Frame{Image: img, Seq: seq, CapturedAt: at}
}

// Bounds returns the image bounds, or the empty rectangle for a nil frame.
func (f *Frame) Bounds() image.Rectangle {
	if f == nil || f.Image == nil {
		return image.Rectangle{}
	}
	return f.Image.Bounds()
}

// Width returns the frame width in pixels.
func (f *Frame) Width() int { return f.Bounds().Dx() }

// Height returns the frame height in pixels.
func (f *Frame) Height() int { return f.Bounds().Dy() }

// JPEG encodes the frame.
func (f *Frame) JPEG(quality int) ([]byte, error) {
	if f == nil || f.Image == nil {
		return nil, ErrNoFrame
	}
	return EncodeJPEG(f.Image, quality)
}

// EncodeJPEG encodes img at the given quality (1-100).
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// ErrInvalidBox is returned for boxes whose corners are not ordered.
var ErrInvalidBox = errors.New("frame: invalid bounding box")

// BoundingBox is an axis-aligned box in pixel coordinates with
// X1 < X2 and Y1 < Y2.
type BoundingBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// NewBoundingBox validates corner order.
func NewBoundingBox(x1, y1, x2, y2 float64) (BoundingBox, error) {
	b := BoundingBox{X1: x1, Y1: y1, X2: x2, Y2: y2}
	if !b.Valid() {
		return BoundingBox{}, fmt.Errorf("%w: (%.1f,%.1f)-(%.1f,%.1f)", ErrInvalidBox, x1, y1, x2, y2)
	}
	return b, nil
}

// Valid reports whether the corners are finite and ordered.
func (b BoundingBox) Valid() bool {
	for _, v := range []float64{b.X1, b.Y1, b.X2, b.Y2} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.X1 < b.X2 && b.Y1 < b.Y2
}

// Width is the horizontal pixel extent.
func (b BoundingBox) Width() float64 { return math.Abs(b.X2 - b.X1) }

// Height is the vertical pixel extent.
func (b BoundingBox) Height() float64 { return math.Abs(b.Y2 - b.Y1) }

// Center returns the box center.
func (b BoundingBox) Center() (x, y float64) {
	return (b.X1 + b.X2) / 2, (b.Y1 + b.Y2) / 2
}

// Pad grows the box by px on every side and clips it to bounds.
func (b BoundingBox) Pad(px int, bounds image.Rectangle) image.Rectangle {
	r := image.Rect(
		int(math.Floor(b.X1))-px,
		int(math.Floor(b.Y1))-px,
		int(math.Ceil(b.X2))+px,
		int(math.Ceil(b.Y2))+px,
	)
	return r.Intersect(bounds)
}
