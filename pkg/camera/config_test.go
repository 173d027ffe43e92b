package camera

import (
	"errors"
	"testing"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if errs := cfg.Validate(); len(errs) > 0 {
		t.Errorf("DefaultConfig invalid: %v", errs)
	}
}

func TestPresetsValid(t *testing.T) {
	for _, name := range PresetNames() {
		cfg := GetPreset(name)
		if cfg == nil {
			t.Errorf("preset %q missing", name)
			continue
		}
		if errs := cfg.Validate(); len(errs) > 0 {
			t.Errorf("preset %q invalid: %v", name, errs)
		}
	}
	if GetPreset("nope") != nil {
		t.Error("unknown preset should be nil")
	}
}

func TestValidateRejects(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Width = 10
	cfg.Quality = 0
	cfg.FourCC = "MJPEG"
	cfg.Device = ""

	if errs := cfg.Validate(); len(errs) != 4 {
		t.Errorf("Validate = %v, want 4 errors", errs)
	}
}

func TestManagerSetConfig(t *testing.T) {
	m := NewManager(DefaultConfig())

	var applied []Config
	m.OnConfigChange = func(cfg Config) error {
		applied = append(applied, cfg)
		return nil
	}

	if err := m.ApplyPreset(Preset720p); err != nil {
		t.Fatalf("ApplyPreset: %v", err)
	}
	if got := m.Config(); got.Width != 1280 || got.Device != "0" {
		t.Errorf("Config = %+v", got)
	}
	if len(applied) != 1 {
		t.Errorf("callback calls = %d, want 1", len(applied))
	}

	if err := m.ApplyPreset("nope"); err == nil {
		t.Error("expected error for unknown preset")
	}

	m.OnConfigChange = func(Config) error { return errors.New("driver busy") }
	if err := m.ApplyPreset(PresetFast); err == nil {
		t.Error("expected apply error")
	}
	if got := m.Config(); got.Width != 1280 {
		t.Errorf("config changed despite apply failure: %+v", got)
	}
}
