package tracking

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
)

var boxColor = color.RGBA{R: 0, G: 255, B: 0, A: 255}

// Observe builds one Observation per object: a copy of img with the
// object's padded box and label drawn on it, and the padded crop.
func Observe(img image.Image, objects []TrackedObject, padding int, at time.Time) []Observation {
	out := make([]Observation, 0, len(objects))
	for _, obj := range objects {
		rect := obj.Box.Pad(padding, img.Bounds())
		if rect.Empty() {
			continue
		}
		out = append(out, Observation{
			Object:     obj,
			Full:       Annotate(img, rect, Label(obj)),
			Crop:       imaging.Crop(img, rect),
			CapturedAt: at,
		})
	}
	return out
}

// Label formats the caption drawn above a box.
func Label(obj TrackedObject) string {
	return fmt.Sprintf("%s %s %.2f", obj.Class, obj.ID, obj.Confidence)
}

// Annotate returns a copy of img with rect outlined and label written above it.
func Annotate(img image.Image, rect image.Rectangle, label string) image.Image {
	dc := gg.NewContextForImage(img)
	dc.SetColor(boxColor)
	dc.SetLineWidth(2)
	dc.DrawRectangle(float64(rect.Min.X), float64(rect.Min.Y), float64(rect.Dx()), float64(rect.Dy()))
	dc.Stroke()

	if label != "" {
		y := float64(rect.Min.Y) - 4
		if y < 12 {
			y = float64(rect.Min.Y) + 14
		}
		dc.DrawString(label, float64(rect.Min.X)+2, y)
	}
	return dc.Image()
}
