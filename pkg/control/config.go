package control

import (
	"time"

	"github.com/teslashibe/go-stuffbot/pkg/drivetrain"
	"github.com/teslashibe/go-stuffbot/pkg/history"
)

// Config holds the loop's timing and safety parameters.
type Config struct {
	// RateHz is the maximum command rate. 2 Hz means commands are at least
	// 500ms apart.
	RateHz float64 `yaml:"rate_hz"`

	// Timeout is the failsafe window: with no successful command for this
	// long, the loop sends STOP.
	Timeout time.Duration `yaml:"timeout"`

	// FailsafeRepeat is how often the failsafe STOP is re-sent while the
	// loop stays starved.
	FailsafeRepeat time.Duration `yaml:"failsafe_repeat"`

	// OracleTimeout bounds a single decision call.
	OracleTimeout time.Duration `yaml:"oracle_timeout"`

	// PollInterval is the sleep granularity between rate-limit checks.
	PollInterval time.Duration `yaml:"poll_interval"`

	// StopTimeout bounds each STOP send, including the final one.
	StopTimeout time.Duration `yaml:"stop_timeout"`

	Limits drivetrain.Limits `yaml:"limits"`

	// HistoryLength is how many past exchanges are sent with each request.
	HistoryLength int `yaml:"history_length"`

	// Image sent to the oracle.
	ImageMaxWidth int `yaml:"image_max_width"`
	ImageQuality  int `yaml:"image_quality"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		RateHz:         2,
		Timeout:        5 * time.Second,
		FailsafeRepeat: time.Second,
		OracleTimeout:  3 * time.Second,
		PollInterval:   10 * time.Millisecond,
		StopTimeout:    time.Second,
		Limits:         drivetrain.DefaultLimits(),
		HistoryLength:  history.DefaultCapacity,
		ImageMaxWidth:  640,
		ImageQuality:   80,
	}
}

// MinInterval is the minimum time between two commands.
func (c Config) MinInterval() time.Duration {
	if c.RateHz <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / c.RateHz)
}

// Validate returns a list of problems, or nil if the config is usable.
func (c Config) Validate() []string {
	var errors []string

	if c.RateHz <= 0 {
		errors = append(errors, "rate_hz must be positive")
	}
	if c.Timeout <= 0 {
		errors = append(errors, "timeout must be positive")
	}
	if c.OracleTimeout <= 0 {
		errors = append(errors, "oracle_timeout must be positive")
	}
	if c.OracleTimeout >= c.Timeout && c.Timeout > 0 {
		errors = append(errors, "oracle_timeout must be shorter than timeout")
	}
	if c.PollInterval <= 0 {
		errors = append(errors, "poll_interval must be positive")
	}
	if c.RateHz > 0 && c.PollInterval > c.MinInterval() {
		errors = append(errors, "poll_interval must not exceed the command interval")
	}
	if c.StopTimeout <= 0 {
		errors = append(errors, "stop_timeout must be positive")
	}
	if c.FailsafeRepeat < 0 {
		errors = append(errors, "failsafe_repeat must not be negative")
	}
	if c.Limits.MaxLinear <= 0 || c.Limits.MaxAngular <= 0 {
		errors = append(errors, "limits must be positive")
	}
	if c.HistoryLength < 0 {
		errors = append(errors, "history_length must not be negative")
	}

	return errors
}
