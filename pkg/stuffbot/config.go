// Package stuffbot wires camera, perception, decision and drivetrain into a
// running robot.
package stuffbot

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-stuffbot/internal/config"
	"github.com/teslashibe/go-stuffbot/pkg/camera"
	"github.com/teslashibe/go-stuffbot/pkg/control"
	"github.com/teslashibe/go-stuffbot/pkg/distance"
	"github.com/teslashibe/go-stuffbot/pkg/drivetrain"
	"github.com/teslashibe/go-stuffbot/pkg/storage"
	"github.com/teslashibe/go-stuffbot/pkg/tracking"
	"github.com/teslashibe/go-stuffbot/pkg/tracking/detection"
)

// Oracle providers.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	// ProviderChain tries Gemini first and falls back to OpenAI.
	ProviderChain = "chain"
)

// Storage backends.
const (
	BackendDisk     = "disk"
	BackendSupabase = "supabase"
	BackendDrive    = "drive"
)

// Config holds all configuration for the robot. Flag parsing is done in
// cmd/stuffbot; this struct is data only.
type Config struct {
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`

	Camera       camera.Config        `yaml:"camera"`
	CameraPreset string               `yaml:"camera_preset"`
	Detector     detection.YOLOConfig `yaml:"detector"`
	Tracking     tracking.Config      `yaml:"tracking"`
	Distance     DistanceConfig       `yaml:"distance"`
	Oracle       OracleConfig         `yaml:"oracle"`
	Control      control.Config       `yaml:"control"`
	Drivetrain   drivetrain.Config    `yaml:"drivetrain"`
	Storage      StorageConfig        `yaml:"storage"`
	Web          WebConfig            `yaml:"web"`

	// HistoryFile mirrors decision exchanges as JSON lines. Empty disables.
	HistoryFile string `yaml:"history_file"`
}

// DistanceConfig is the pinhole model calibration.
type DistanceConfig struct {
	KnownWidth  float64 `yaml:"known_width"`
	FocalLength float64 `yaml:"focal_length"`
}

// OracleConfig selects the decision model.
type OracleConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	Temperature float64 `yaml:"temperature"`

	GeminiKey string `yaml:"-"`
	OpenAIKey string `yaml:"-"`
}

// StorageConfig selects where captured objects go.
type StorageConfig struct {
	Backends  []string               `yaml:"backends"`
	Dir       string                 `yaml:"dir"`
	QueueSize int                    `yaml:"queue_size"`
	Supabase  storage.SupabaseConfig `yaml:"supabase"`
	Drive     storage.DriveConfig    `yaml:"drive"`
}

// WebConfig configures the dashboard.
type WebConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Port      string `yaml:"port"`
	StaticDir string `yaml:"static_dir"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		LogLevel:     "info",
		Camera:       camera.DefaultConfig(),
		CameraPreset: "default",
		Detector:     detection.DefaultYOLOConfig(),
		Tracking:     tracking.DefaultConfig(),
		Distance: DistanceConfig{
			KnownWidth:  distance.DefaultKnownWidth,
			FocalLength: distance.DefaultFocalLength,
		},
		Oracle: OracleConfig{
			Provider:    ProviderGemini,
			Temperature: 0.4,
		},
		Control:    control.DefaultConfig(),
		Drivetrain: drivetrain.DefaultConfig(),
		Storage: StorageConfig{
			Backends:  []string{BackendDisk},
			Dir:       "captures",
			QueueSize: storage.DefaultQueueSize,
			Supabase: storage.SupabaseConfig{
				Bucket: storage.DefaultBucket,
				Table:  storage.DefaultTable,
			},
		},
		Web: WebConfig{
			Enabled: true,
			Port:    config.DefaultWebPort,
		},
	}
}

// LoadFile reads a YAML config on top of the defaults.
func LoadFile(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadEnvConfig applies environment overrides. Secrets only ever come from
// the environment.
func (c *Config) LoadEnvConfig() {
	c.Oracle.GeminiKey = config.Env("GEMINI_API_KEY", config.Env("GOOGLE_API_KEY", ""))
	c.Oracle.OpenAIKey = config.Env("OPENAI_API_KEY", "")
	c.Oracle.Provider = config.Env("ORACLE_PROVIDER", c.Oracle.Provider)
	c.Oracle.Model = config.Env("ORACLE_MODEL", c.Oracle.Model)

	c.LogLevel = config.Env("LOG_LEVEL", c.LogLevel)
	c.Camera.Device = config.Env("CAMERA_DEVICE", c.Camera.Device)
	c.Detector.ModelPath = config.Env("YOLO_MODEL", c.Detector.ModelPath)
	c.Distance.FocalLength = config.EnvFloat("FOCAL_LENGTH", c.Distance.FocalLength)

	c.Drivetrain.Broker = config.Env("MQTT_BROKER", c.Drivetrain.Broker)
	c.Drivetrain.RosbridgeURL = config.Env("ROSBRIDGE_URL", c.Drivetrain.RosbridgeURL)
	c.Control.RateHz = config.EnvFloat("CONTROL_RATE_HZ", c.Control.RateHz)
	c.Control.Timeout = config.EnvDuration("CONTROL_TIMEOUT", c.Control.Timeout)

	c.Storage.QueueSize = config.EnvInt("UPLOAD_QUEUE_SIZE", c.Storage.QueueSize)
	c.Storage.Supabase.URL = config.Env("SUPABASE_URL", c.Storage.Supabase.URL)
	c.Storage.Supabase.Key = config.Env("SUPABASE_KEY", "")
	c.Storage.Drive.ClientID = config.Env("GOOGLE_CLIENT_ID", "")
	c.Storage.Drive.ClientSecret = config.Env("GOOGLE_CLIENT_SECRET", "")

	c.Web.Port = config.Env("WEB_PORT", c.Web.Port)
}

// Validate checks that the configuration can start a robot.
func (c *Config) Validate() error {
	if errs := c.Camera.Validate(); len(errs) > 0 {
		return &ConfigError{Field: "camera", Message: strings.Join(errs, "; ")}
	}
	if c.CameraPreset != "" && camera.GetPreset(c.CameraPreset) == nil {
		return &ConfigError{Field: "camera_preset", Message: fmt.Sprintf("unknown camera preset %q (have %s)", c.CameraPreset, strings.Join(camera.PresetNames(), ", "))}
	}
	if c.Detector.ModelPath == "" {
		return &ConfigError{Field: "detector.model_path", Message: "YOLO model path is required (set YOLO_MODEL)"}
	}
	if errs := c.Tracking.Validate(); len(errs) > 0 {
		return &ConfigError{Field: "tracking", Message: strings.Join(errs, "; ")}
	}
	if errs := c.Control.Validate(); len(errs) > 0 {
		return &ConfigError{Field: "control", Message: strings.Join(errs, "; ")}
	}
	if err := c.Drivetrain.Validate(); err != nil {
		return &ConfigError{Field: "drivetrain", Message: err.Error()}
	}

	switch c.Oracle.Provider {
	case ProviderGemini:
		if c.Oracle.GeminiKey == "" {
			return &ConfigError{Field: "oracle", Message: "GEMINI_API_KEY environment variable is required"}
		}
	case ProviderOpenAI:
		if c.Oracle.OpenAIKey == "" && c.Oracle.BaseURL == "" {
			return &ConfigError{Field: "oracle", Message: "OPENAI_API_KEY environment variable is required"}
		}
	case ProviderChain:
		if c.Oracle.GeminiKey == "" || c.Oracle.OpenAIKey == "" {
			return &ConfigError{Field: "oracle", Message: "GEMINI_API_KEY and OPENAI_API_KEY are both required for the chain provider"}
		}
	default:
		return &ConfigError{Field: "oracle.provider", Message: fmt.Sprintf("unknown oracle provider %q", c.Oracle.Provider)}
	}

	for _, b := range c.Storage.Backends {
		switch b {
		case BackendDisk:
			if c.Storage.Dir == "" {
				return &ConfigError{Field: "storage.dir", Message: "disk storage needs a directory"}
			}
		case BackendSupabase:
			if c.Storage.Supabase.URL == "" || c.Storage.Supabase.Key == "" {
				return &ConfigError{Field: "storage.supabase", Message: "SUPABASE_URL and SUPABASE_KEY environment variables are required"}
			}
		case BackendDrive:
			if c.Storage.Drive.ClientID == "" || c.Storage.Drive.ClientSecret == "" {
				return &ConfigError{Field: "storage.drive", Message: "GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET environment variables are required"}
			}
		default:
			return &ConfigError{Field: "storage.backends", Message: fmt.Sprintf("unknown storage backend %q", b)}
		}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}
