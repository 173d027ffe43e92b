package decision

import (
	"log/slog"
	"time"
)

// Config holds oracle configuration.
type Config struct {
	// Connection
	BaseURL string
	APIKey  string

	Model string

	// Request defaults
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration

	// Velocity bounds advertised in the system prompt.
	MaxLinear  float64
	MaxAngular float64

	// Image downscaling before upload. 0 keeps the original width.
	ImageMaxWidth int
	ImageQuality  int

	// Observability
	Logger *slog.Logger
}

// Option is a functional option for configuring oracles.
type Option func(*Config)

// WithBaseURL sets the API base URL.
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithModel sets the model.
func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

// WithMaxTokens sets the response token budget.
func WithMaxTokens(n int) Option {
	return func(c *Config) { c.MaxTokens = n }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(c *Config) { c.Temperature = t }
}

// WithTimeout sets the HTTP timeout. The control loop applies its own,
// usually shorter, deadline through the context.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithLimits sets the velocity bounds described to the model.
func WithLimits(maxLinear, maxAngular float64) Option {
	return func(c *Config) {
		c.MaxLinear = maxLinear
		c.MaxAngular = maxAngular
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns defaults shared by all oracles.
func DefaultConfig() *Config {
	return &Config{
		MaxTokens:     512,
		Temperature:   0.4,
		Timeout:       10 * time.Second,
		MaxLinear:     1.0,
		MaxAngular:    1.5,
		ImageMaxWidth: 640,
		ImageQuality:  80,
		Logger:        slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
