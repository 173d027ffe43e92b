package decision

import (
	"image"
	"image/color"
	"strings"
	"testing"
	"time"

	"github.com/teslashibe/go-stuffbot/pkg/frame"
	"github.com/teslashibe/go-stuffbot/pkg/mode"
)

func TestSystemPromptListsEveryMode(t *testing.T) {
	p := SystemPrompt(1.0, 1.5)
	for _, m := range mode.All() {
		if !strings.Contains(p, m.String()) {
			t.Errorf("system prompt does not mention %s", m)
		}
	}
	if !strings.Contains(p, "-1.5 to 1.5") {
		t.Error("system prompt does not state the angular range")
	}
}

func TestUserPrompt(t *testing.T) {
	req := &Request{
		Tick:      7,
		Mode:      mode.Approaching,
		ModeSince: 2500 * time.Millisecond,
		State:     RobotState{LinearVelocity: 0.25},
		Objects: []Object{{
			ID:         "ab12cd34",
			Class:      "cup",
			Confidence: 0.91,
			Distance:   0.6049,
			Box:        frame.BoundingBox{X1: 100, Y1: 100, X2: 300, Y2: 200},
		}},
	}

	p := UserPrompt(req)
	for _, want := range []string{"Tick 7", "APPROACHING", "for 2.5s", "linear 0.25", "cup id=ab12cd34", "0.60 m (close)", "width 200 px"} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q:\n%s", want, p)
		}
	}

	empty := UserPrompt(&Request{Mode: mode.Searching})
	if !strings.Contains(empty, "Detected objects: none") {
		t.Errorf("empty prompt = %q", empty)
	}
}

func TestEncodeImageDownscales(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1280, 720))
	img.Set(0, 0, color.White)

	data, err := EncodeImage(img, 640, 70)
	if err != nil {
		t.Fatalf("EncodeImage: %v", err)
	}
	decoded, _, err := image.DecodeConfig(strings.NewReader(string(data)))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Width != 640 || decoded.Height != 360 {
		t.Errorf("size = %dx%d, want 640x360", decoded.Width, decoded.Height)
	}

	if _, err := EncodeImage(nil, 640, 70); err != ErrNoImage {
		t.Errorf("nil image err = %v", err)
	}
}
