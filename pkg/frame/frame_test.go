package frame

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
	"time"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestFrameJPEG(t *testing.T) {
	f := New(solid(32, 24, color.White), 1, time.Now())

	data, err := f.JPEG(0)
	if err != nil {
		t.Fatalf("JPEG: %v", err)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.Width != 32 || cfg.Height != 24 {
		t.Errorf("size = %dx%d, want 32x24", cfg.Width, cfg.Height)
	}
	if f.Width() != 32 || f.Height() != 24 {
		t.Errorf("Width/Height = %d/%d", f.Width(), f.Height())
	}

	var nilFrame *Frame
	if _, err := nilFrame.JPEG(80); !errors.Is(err, ErrNoFrame) {
		t.Errorf("nil frame JPEG err = %v, want ErrNoFrame", err)
	}
}

func TestNewBoundingBox(t *testing.T) {
	b, err := NewBoundingBox(10, 20, 110, 70)
	if err != nil {
		t.Fatalf("NewBoundingBox: %v", err)
	}
	if b.Width() != 100 || b.Height() != 50 {
		t.Errorf("Width/Height = %v/%v, want 100/50", b.Width(), b.Height())
	}
	cx, cy := b.Center()
	if cx != 60 || cy != 45 {
		t.Errorf("Center = (%v,%v), want (60,45)", cx, cy)
	}

	for _, bad := range [][4]float64{
		{10, 10, 10, 20},
		{10, 30, 20, 20},
		{50, 0, 40, 10},
	} {
		if _, err := NewBoundingBox(bad[0], bad[1], bad[2], bad[3]); !errors.Is(err, ErrInvalidBox) {
			t.Errorf("NewBoundingBox(%v) err = %v, want ErrInvalidBox", bad, err)
		}
	}
}

func TestBoundingBoxPad(t *testing.T) {
	bounds := image.Rect(0, 0, 640, 480)

	got := BoundingBox{X1: 100, Y1: 100, X2: 200, Y2: 150}.Pad(20, bounds)
	if want := image.Rect(80, 80, 220, 170); got != want {
		t.Errorf("Pad = %v, want %v", got, want)
	}

	got = BoundingBox{X1: 5, Y1: 5, X2: 635, Y2: 470}.Pad(20, bounds)
	if got != bounds {
		t.Errorf("Pad near edges = %v, want clipped to %v", got, bounds)
	}
}
