// Package tracking turns per-frame detections into objects with stable
// identities across frames.
package tracking

import "strings"

// Config holds all tunable parameters for object tracking
type Config struct {
	// ConfidenceThreshold discards detections scoring below it.
	ConfidenceThreshold float64 `yaml:"confidence_threshold" json:"confidence_threshold"`

	// ExcludedClasses are never tracked. Matching is case-insensitive.
	ExcludedClasses []string `yaml:"excluded_classes" json:"excluded_classes"`

	// CropPadding grows crops and annotation boxes on every side, in pixels.
	CropPadding int `yaml:"crop_padding" json:"crop_padding"`

	// Capacity bounds the identity table. The least recently seen bucket is
	// evicted when it is full.
	Capacity int `yaml:"capacity" json:"capacity"`

	// MaxIdleTicks evicts identities not seen for this many frames. 0 disables.
	MaxIdleTicks uint64 `yaml:"max_idle_ticks" json:"max_idle_ticks"`

	// Annotate produces annotated frames and crops for newly seen objects.
	Annotate bool `yaml:"annotate" json:"annotate"`
}

// DefaultConfig returns the recommended configuration
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: 0.5,
		ExcludedClasses:     []string{"person"},
		CropPadding:         20,
		Capacity:            1024,
		MaxIdleTicks:        300, // 2.5 minutes at 2 Hz
		Annotate:            true,
	}
}

// CautiousConfig only tracks confident detections and forgets quickly.
// Useful in cluttered rooms where YOLO flickers between classes.
func CautiousConfig() Config {
	cfg := DefaultConfig()
	cfg.ConfidenceThreshold = 0.7
	cfg.MaxIdleTicks = 60
	return cfg
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		errors = append(errors, "confidence_threshold must be between 0 and 1")
	}
	if c.CropPadding < 0 {
		errors = append(errors, "crop_padding must not be negative")
	}
	if c.Capacity < 1 {
		errors = append(errors, "capacity must be at least 1")
	}
	for _, class := range c.ExcludedClasses {
		if strings.TrimSpace(class) == "" {
			errors = append(errors, "excluded_classes must not contain empty names")
			break
		}
	}

	return errors
}
