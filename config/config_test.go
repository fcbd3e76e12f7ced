package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sentinelids/sentinel/log"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	if cfg.Backend.URL != "ws://localhost:8765" {
		t.Errorf("Backend URL = %q", cfg.Backend.URL)
	}
	if cfg.Capture.MaxPackets != 1000 {
		t.Errorf("MaxPackets = %d", cfg.Capture.MaxPackets)
	}
	if cfg.Capture.PacketIntervalMinMs != 500 || cfg.Capture.PacketIntervalMaxMs != 3000 {
		t.Errorf("Packet interval = [%d, %d)", cfg.Capture.PacketIntervalMinMs, cfg.Capture.PacketIntervalMaxMs)
	}
	if cfg.UI.Theme != "dark" {
		t.Errorf("Theme = %q", cfg.UI.Theme)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Defaults must validate: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero max packets", func(c *Config) { c.Capture.MaxPackets = 0 }},
		{"inverted interval", func(c *Config) { c.Capture.PacketIntervalMinMs = 3000; c.Capture.PacketIntervalMaxMs = 500 }},
		{"zero stats interval", func(c *Config) { c.Capture.StatsIntervalMs = 0 }},
		{"http backend url", func(c *Config) { c.Backend.URL = "http://localhost:8765" }},
		{"port out of range", func(c *Config) { c.WebServer.Port = 70000 }},
		{"unknown theme", func(c *Config) { c.UI.Theme = "solarized" }},
	}
	for _, tc := range cases {
		cfg := NewConfig()
		tc.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected a validation error", tc.name)
		}
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := NewConfig()
	cfg.Backend.URL = "wss://ids.example.net:9443"
	cfg.Capture.MaxPackets = 250
	cfg.UI.Theme = "light"

	if err := cfg.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile: %v", err)
	}

	loaded := NewConfig()
	if err := loaded.LoadFromFile(path); err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	if loaded.Backend.URL != "wss://ids.example.net:9443" {
		t.Errorf("Backend URL not round-tripped: %q", loaded.Backend.URL)
	}
	if loaded.Capture.MaxPackets != 250 {
		t.Errorf("MaxPackets not round-tripped: %d", loaded.Capture.MaxPackets)
	}
	if loaded.UI.Theme != "light" {
		t.Errorf("Theme not round-tripped: %q", loaded.UI.Theme)
	}
	if loaded.ConfigPath != path {
		t.Errorf("ConfigPath not recorded: %q", loaded.ConfigPath)
	}
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	cfg := NewConfig()
	if err := cfg.LoadFromFile(filepath.Join(t.TempDir(), "absent.json")); err != nil {
		t.Fatalf("Missing file should load defaults silently: %v", err)
	}
	if cfg.Capture.MaxPackets != 1000 {
		t.Errorf("Defaults disturbed by a missing file")
	}
}

func TestLoadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := NewConfig()
	if err := cfg.LoadFromFile(path); err == nil {
		t.Fatalf("Expected a parse error")
	}
}

func TestApplyLogLevel(t *testing.T) {
	cases := []struct {
		verbose string
		want    log.Level
	}{
		{"debug", log.LevelDebug},
		{"trace", log.LevelTrace},
		{"info", log.LevelInfo},
		{"silent", log.LevelError},
	}
	for _, c := range cases {
		cfg := NewConfig()
		cfg.ApplyLogLevel(c.verbose)
		if cfg.Logging.Level != c.want {
			t.Errorf("ApplyLogLevel(%q) = %v, want %v", c.verbose, cfg.Logging.Level, c.want)
		}
	}
}
