package decision

import (
	"encoding/base64"
	"image"

	"github.com/disintegration/imaging"

	"github.com/teslashibe/go-stuffbot/pkg/frame"
)

// EncodeImage downsizes img to at most maxWidth pixels wide, keeping the
// aspect ratio, and encodes it as JPEG. maxWidth <= 0 disables resizing.
func EncodeImage(img image.Image, maxWidth, quality int) ([]byte, error) {
	if img == nil {
		return nil, ErrNoImage
	}
	if maxWidth > 0 && img.Bounds().Dx() > maxWidth {
		img = imaging.Resize(img, maxWidth, 0, imaging.Linear)
	}
	return frame.EncodeJPEG(img, quality)
}

// encodeBase64 is shared by the HTTP oracles.
func encodeBase64(jpeg []byte) string {
	return base64.StdEncoding.EncodeToString(jpeg)
}
