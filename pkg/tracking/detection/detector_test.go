package detection

import (
	"testing"

	"github.com/teslashibe/go-stuffbot/pkg/frame"
)

func det(class string, conf, x1, y1, x2, y2 float64) Detection {
	return Detection{Class: class, Confidence: conf, Box: frame.BoundingBox{X1: x1, Y1: y1, X2: x2, Y2: y2}}
}

func TestDetectionArea(t *testing.T) {
	d := det("cup", 0.9, 10, 10, 30, 60)
	if d.Area() != 1000 {
		t.Errorf("Area = %v, want 1000", d.Area())
	}
}

func TestSelectBest(t *testing.T) {
	tests := []struct {
		name       string
		detections []Detection
		expectNil  bool
		expectIdx  int
	}{
		{
			name:       "empty list",
			detections: []Detection{},
			expectNil:  true,
		},
		{
			name:       "single detection",
			detections: []Detection{det("cup", 0.9, 0, 0, 10, 10)},
			expectIdx:  0,
		},
		{
			name: "high confidence beats larger area",
			detections: []Detection{
				det("book", 0.5, 0, 0, 200, 200),
				det("cup", 0.95, 0, 0, 100, 100),
			},
			expectIdx: 1, // 0.95*0.7 + 0.25*0.3 = 0.74 vs 0.5*0.7 + 1.0*0.3 = 0.65
		},
		{
			name: "similar confidence picks larger",
			detections: []Detection{
				det("book", 0.8, 0, 0, 250, 250),
				det("cup", 0.8, 0, 0, 50, 50),
			},
			expectIdx: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			best := SelectBest(tt.detections)
			if tt.expectNil {
				if best != nil {
					t.Errorf("expected nil, got %+v", best)
				}
				return
			}
			if best == nil {
				t.Fatal("expected detection, got nil")
			}
			if best != &tt.detections[tt.expectIdx] {
				t.Errorf("picked %+v, want index %d", *best, tt.expectIdx)
			}
		})
	}
}

func TestClassName(t *testing.T) {
	if got := ClassName(0); got != "person" {
		t.Errorf("ClassName(0) = %q", got)
	}
	if got := ClassName(41); got != "cup" {
		t.Errorf("ClassName(41) = %q", got)
	}
	if got := ClassName(99); got != "class_99" {
		t.Errorf("ClassName(99) = %q", got)
	}
}
