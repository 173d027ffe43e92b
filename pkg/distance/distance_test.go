package distance

import (
	"errors"
	"math"
	"testing"

	"github.com/teslashibe/go-stuffbot/pkg/frame"
)

func floatEquals(a, b, tolerance float64) bool {
	return math.Abs(a-b) < tolerance
}

func TestEstimate(t *testing.T) {
	tests := []struct {
		name       string
		pixelWidth float64
		want       float64
	}{
		{"zero width is unknown", 0, 0},
		{"negative width is unknown", -10, 0},
		{"nan width is unknown", math.NaN(), 0},
		{"100px", 100, 1.2},
		{"200px", 200, 0.6},
		{"400px", 400, 0.3},
		{"focal length equals width", 800, 0.15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Estimate(tt.pixelWidth, DefaultKnownWidth, DefaultFocalLength)
			if !floatEquals(got, tt.want, 1e-9) {
				t.Errorf("Estimate(%v) = %v, want %v", tt.pixelWidth, got, tt.want)
			}
		})
	}
}

func TestEstimateStrictlyDecreasing(t *testing.T) {
	prev := math.Inf(1)
	for pw := 0.5; pw < 5000; pw *= 1.07 {
		d := Estimate(pw, DefaultKnownWidth, DefaultFocalLength)
		if !(d < prev) {
			t.Fatalf("Estimate(%v) = %v, not below previous %v", pw, d, prev)
		}
		prev = d
	}
}

func TestCalibrateRoundTrip(t *testing.T) {
	cases := []struct{ distance, width, pixels float64 }{
		{1.0, 0.15, 120},
		{0.5, 0.3, 640},
		{2.75, 0.07, 33},
		{10, 1.2, 95.5},
	}

	for _, c := range cases {
		focal, err := CalibrateFocalLength(c.distance, c.width, c.pixels)
		if err != nil {
			t.Fatalf("CalibrateFocalLength(%v): %v", c, err)
		}
		got := Estimate(c.pixels, c.width, focal)
		if !floatEquals(got, c.distance, 1e-9) {
			t.Errorf("round trip %v: got %v", c, got)
		}
	}
}

func TestCalibrateRejectsBadInput(t *testing.T) {
	for _, c := range [][3]float64{{0, 0.15, 100}, {1, 0, 100}, {1, 0.15, 0}, {-1, 0.15, 100}} {
		if _, err := CalibrateFocalLength(c[0], c[1], c[2]); !errors.Is(err, ErrCalibration) {
			t.Errorf("CalibrateFocalLength(%v) err = %v, want ErrCalibration", c, err)
		}
	}
}

func TestEstimatorCalibrateKeepsPreviousOnFailure(t *testing.T) {
	e := NewEstimator(0, 0)
	if e.FocalLength() != DefaultFocalLength || e.KnownWidth() != DefaultKnownWidth {
		t.Fatalf("defaults not applied: %v %v", e.FocalLength(), e.KnownWidth())
	}

	if got := e.Calibrate(1.0, 0.15, 0); got != DefaultFocalLength {
		t.Errorf("failed calibration returned %v, want default %v", got, DefaultFocalLength)
	}

	if got := e.Calibrate(1.0, 0.15, 120); !floatEquals(got, 800, 1e-9) {
		t.Errorf("Calibrate = %v, want 800", got)
	}
	if got := e.Calibrate(2.0, 0.15, 120); !floatEquals(got, 1600, 1e-9) {
		t.Errorf("Calibrate = %v, want 1600", got)
	}
	if got := e.Calibrate(-1, 0.15, 120); !floatEquals(got, 1600, 1e-9) {
		t.Errorf("failed calibration returned %v, want previous 1600", got)
	}
}

func TestEstimatorFromBox(t *testing.T) {
	e := NewEstimator(DefaultKnownWidth, DefaultFocalLength)
	box := frame.BoundingBox{X1: 100, Y1: 50, X2: 300, Y2: 150}

	if got := e.FromBox(box); !floatEquals(got, 0.6, 1e-9) {
		t.Errorf("FromBox = %v, want 0.6", got)
	}
}

func TestCategory(t *testing.T) {
	tests := []struct {
		meters float64
		want   string
	}{
		{0, "unknown"},
		{0.3, "very close"},
		{0.7, "close"},
		{1.5, "nearby"},
		{2.5, "moderate"},
		{4, "far"},
	}
	for _, tt := range tests {
		if got := Category(tt.meters); got != tt.want {
			t.Errorf("Category(%v) = %q, want %q", tt.meters, got, tt.want)
		}
	}
}

func TestRound2(t *testing.T) {
	if got := Round2(1.23456); got != 1.23 {
		t.Errorf("Round2 = %v, want 1.23", got)
	}
}
