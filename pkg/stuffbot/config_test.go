package stuffbot

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-stuffbot/pkg/decision"
	"github.com/teslashibe/go-stuffbot/pkg/storage"
)

func validConfig() Config {
	cfg := DefaultConfig()
	cfg.Oracle.GeminiKey = "test-key"
	return cfg
}

func TestDefaultConfigValidates(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, ProviderGemini, cfg.Oracle.Provider)
	assert.Equal(t, []string{BackendDisk}, cfg.Storage.Backends)
	assert.True(t, cfg.Web.Enabled)
}

func TestConfigValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"missing gemini key", func(c *Config) { c.Oracle.GeminiKey = "" }, "oracle"},
		{"unknown provider", func(c *Config) { c.Oracle.Provider = "claude" }, "oracle.provider"},
		{"chain needs both keys", func(c *Config) { c.Oracle.Provider = ProviderChain }, "oracle"},
		{"unknown backend", func(c *Config) { c.Storage.Backends = []string{"s3"} }, "storage.backends"},
		{"supabase without url", func(c *Config) { c.Storage.Backends = []string{BackendSupabase} }, "storage.supabase"},
		{"drive without client", func(c *Config) { c.Storage.Backends = []string{BackendDrive} }, "storage.drive"},
		{"disk without dir", func(c *Config) { c.Storage.Dir = "" }, "storage.dir"},
		{"unknown preset", func(c *Config) { c.CameraPreset = "fisheye" }, "camera_preset"},
		{"no model", func(c *Config) { c.Detector.ModelPath = "" }, "detector.model_path"},
		{"bad rate", func(c *Config) { c.Control.RateHz = 0 }, "control"},
		{"bad transport", func(c *Config) { c.Drivetrain.Transport = "serial" }, "drivetrain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			var cerr *ConfigError
			require.True(t, errors.As(err, &cerr))
			assert.Equal(t, tt.field, cerr.Field)
		})
	}
}

func TestOpenAIWithBaseURLNeedsNoKey(t *testing.T) {
	cfg := validConfig()
	cfg.Oracle.Provider = ProviderOpenAI
	cfg.Oracle.BaseURL = "http://localhost:11434/v1"
	assert.NoError(t, cfg.Validate())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stuffbot.yaml")
	data := `
log_level: debug
oracle:
  provider: openai
  model: gpt-4o-mini
control:
  rate_hz: 4
  timeout: 2s
  oracle_timeout: 1500ms
drivetrain:
  transport: rosbridge
storage:
  backends: [disk, supabase]
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ProviderOpenAI, cfg.Oracle.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.Oracle.Model)
	assert.Equal(t, 4.0, cfg.Control.RateHz)
	assert.Equal(t, 2*time.Second, cfg.Control.Timeout)
	assert.Equal(t, 1500*time.Millisecond, cfg.Control.OracleTimeout)
	assert.Equal(t, "rosbridge", string(cfg.Drivetrain.Transport))
	assert.Equal(t, []string{BackendDisk, BackendSupabase}, cfg.Storage.Backends)

	// untouched fields keep their defaults
	def := DefaultConfig()
	assert.Equal(t, def.Control.FailsafeRepeat, cfg.Control.FailsafeRepeat)
	assert.Equal(t, def.Storage.Supabase.Bucket, cfg.Storage.Supabase.Bucket)
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("control: [not, a, map"), 0o644))
	_, err = LoadFile(path)
	assert.Error(t, err)
}

func TestLoadEnvConfig(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "google-key")
	t.Setenv("OPENAI_API_KEY", "openai-key")
	t.Setenv("ORACLE_PROVIDER", ProviderChain)
	t.Setenv("CONTROL_RATE_HZ", "5")
	t.Setenv("CONTROL_TIMEOUT", "3s")
	t.Setenv("FOCAL_LENGTH", "612.5")
	t.Setenv("MQTT_BROKER", "tcp://robot.local:1883")
	t.Setenv("SUPABASE_URL", "https://example.supabase.co")
	t.Setenv("SUPABASE_KEY", "service-key")
	t.Setenv("WEB_PORT", "9000")

	cfg := DefaultConfig()
	cfg.LoadEnvConfig()

	assert.Equal(t, "google-key", cfg.Oracle.GeminiKey)
	assert.Equal(t, "openai-key", cfg.Oracle.OpenAIKey)
	assert.Equal(t, ProviderChain, cfg.Oracle.Provider)
	assert.Equal(t, 5.0, cfg.Control.RateHz)
	assert.Equal(t, 3*time.Second, cfg.Control.Timeout)
	assert.Equal(t, 612.5, cfg.Distance.FocalLength)
	assert.Equal(t, "tcp://robot.local:1883", cfg.Drivetrain.Broker)
	assert.Equal(t, "https://example.supabase.co", cfg.Storage.Supabase.URL)
	assert.Equal(t, "service-key", cfg.Storage.Supabase.Key)
	assert.Equal(t, "9000", cfg.Web.Port)
	assert.NoError(t, cfg.Validate())
}

func TestBuildStore(t *testing.T) {
	ctx := context.Background()

	store, err := buildStore(ctx, StorageConfig{})
	require.NoError(t, err)
	assert.Nil(t, store)

	dir := t.TempDir()
	store, err = buildStore(ctx, StorageConfig{Backends: []string{BackendDisk}, Dir: dir})
	require.NoError(t, err)
	require.NotNil(t, store)
	assert.IsType(t, &storage.Disk{}, store)

	store, err = buildStore(ctx, StorageConfig{
		Backends: []string{BackendDisk, BackendSupabase},
		Dir:      dir,
		Supabase: storage.SupabaseConfig{URL: "https://example.supabase.co", Key: "k"},
	})
	require.NoError(t, err)
	multi, ok := store.(storage.Multi)
	require.True(t, ok)
	assert.Len(t, multi, 2)

	_, err = buildStore(ctx, StorageConfig{Backends: []string{"s3"}})
	assert.Error(t, err)
}

func TestBuildHistoryRestores(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	f, err := os.Create(path)
	require.NoError(t, err)
	enc := json.NewEncoder(f)
	for i := 1; i <= 5; i++ {
		require.NoError(t, enc.Encode(decision.Exchange{Tick: uint64(i), Prompt: "p"}))
	}
	require.NoError(t, f.Close())

	cfg := validConfig()
	cfg.HistoryFile = path
	cfg.Control.HistoryLength = 3

	log, err := buildHistory(cfg, slog.Default())
	require.NoError(t, err)

	items := log.Snapshot()
	require.Len(t, items, 3)
	assert.Equal(t, uint64(3), items[0].Tick)
	assert.Equal(t, uint64(5), items[2].Tick)
}

func TestBuildHistoryInMemory(t *testing.T) {
	cfg := validConfig()
	log, err := buildHistory(cfg, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, 0, log.Len())
	assert.Equal(t, cfg.Control.HistoryLength, log.Cap())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Oracle.GeminiKey = ""
	_, err := New(cfg, nil)
	assert.Error(t, err)

	app, err := New(validConfig(), nil)
	require.NoError(t, err)
	assert.Error(t, app.Run(context.Background()), "Run before Init")
}
