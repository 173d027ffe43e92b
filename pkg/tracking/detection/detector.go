// Package detection provides object detection using computer vision
package detection

import (
	"image"

	"github.com/teslashibe/go-stuffbot/pkg/frame"
)

// Detection is one detected object in pixel coordinates.
type Detection struct {
	Class      string            `json:"class"`
	ClassID    int               `json:"class_id"`
	Confidence float64           `json:"confidence"`
	Box        frame.BoundingBox `json:"box"`
}

// Area returns the area of the bounding box in square pixels.
func (d Detection) Area() float64 {
	return d.Box.Width() * d.Box.Height()
}

// Detector is the interface for object detection backends
type Detector interface {
	// Detect finds objects in the image
	Detect(img image.Image) ([]Detection, error)

	// Close releases resources
	Close() error
}

// SelectBest picks the most salient detection.
// Priority: confidence * 0.7 + area * 0.3, area normalized to the largest box.
func SelectBest(dets []Detection) *Detection {
	if len(dets) == 0 {
		return nil
	}

	if len(dets) == 1 {
		return &dets[0]
	}

	maxArea := 0.0
	for _, d := range dets {
		if d.Area() > maxArea {
			maxArea = d.Area()
		}
	}
	if maxArea == 0 {
		maxArea = 1
	}

	bestScore := -1.0
	var best *Detection

	for i := range dets {
		score := dets[i].Confidence*0.7 + (dets[i].Area()/maxArea)*0.3
		if score > bestScore {
			bestScore = score
			best = &dets[i]
		}
	}

	return best
}
