// Package camera opens a local video device for the frame source and keeps
// its capture settings adjustable at runtime.
package camera

// Config holds camera capture parameters.
type Config struct {
	// Device is the video device index (0 for /dev/video0) or a path/URL.
	Device string `json:"device" yaml:"device"`

	Width     int `json:"width" yaml:"width"`         // Frame width in pixels
	Height    int `json:"height" yaml:"height"`       // Frame height in pixels
	Framerate int `json:"framerate" yaml:"framerate"` // Requested FPS
	Quality   int `json:"quality" yaml:"quality"`     // JPEG quality 1-100 for uploads and streaming

	// FourCC selects the pixel format, e.g. "MJPG". Empty keeps the driver default.
	FourCC string `json:"fourcc" yaml:"fourcc"`

	// BufferSize is the driver-side frame queue. 1 keeps reads fresh.
	BufferSize int `json:"buffer_size" yaml:"buffer_size"`

	// Brightness adjustment (-1.0 to +1.0). 0 leaves the driver value.
	Brightness float64 `json:"brightness" yaml:"brightness"`

	// Exposure is a driver-specific manual exposure value. 0 means auto.
	Exposure float64 `json:"exposure" yaml:"exposure"`

	// Autofocus toggles continuous AF where the device supports it.
	Autofocus bool `json:"autofocus" yaml:"autofocus"`
}

// Limits for Validate.
const (
	MaxWidth     = 3840
	MaxHeight    = 2160
	MaxFramerate = 120
)

// DefaultConfig returns a 640x480 configuration suited to a 2 Hz control
// loop and a vision model that downsamples anyway.
func DefaultConfig() Config {
	return Config{
		Device:     "0",
		Width:      640,
		Height:     480,
		Framerate:  30,
		Quality:    85,
		FourCC:     "MJPG",
		BufferSize: 1,
		Autofocus:  true,
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.Device == "" {
		errors = append(errors, "device must be set")
	}
	if c.Width < 160 || c.Width > MaxWidth {
		errors = append(errors, "width must be between 160 and 3840")
	}
	if c.Height < 120 || c.Height > MaxHeight {
		errors = append(errors, "height must be between 120 and 2160")
	}
	if c.Framerate < 1 || c.Framerate > MaxFramerate {
		errors = append(errors, "framerate must be between 1 and 120")
	}
	if c.Quality < 1 || c.Quality > 100 {
		errors = append(errors, "quality must be between 1 and 100")
	}
	if c.FourCC != "" && len(c.FourCC) != 4 {
		errors = append(errors, "fourcc must be exactly four characters")
	}
	if c.BufferSize < 0 {
		errors = append(errors, "buffer_size must not be negative")
	}
	if c.Brightness < -1.0 || c.Brightness > 1.0 {
		errors = append(errors, "brightness must be between -1.0 and 1.0")
	}

	return errors
}
