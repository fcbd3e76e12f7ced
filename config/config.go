package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/sentinelids/sentinel/log"
)

var (
	//go:embed config.json
	configJson string
)

// Config is the full daemon configuration, persisted as JSON next to the
// binary (or at --config). The UI section replaces the browser localStorage
// key the dashboard used for its theme.
type Config struct {
	ConfigPath string `json:"-"`

	Logging   Logging   `json:"logging"`
	Backend   Backend   `json:"backend"`
	Capture   Capture   `json:"capture"`
	Alerts    Alerts    `json:"alerts"`
	WebServer WebServer `json:"web_server"`
	UI        UI        `json:"ui"`
}

type Logging struct {
	Level      log.Level `json:"level"`
	Instaflush bool      `json:"instaflush"`
}

// Backend describes the external capture/analysis service.
type Backend struct {
	URL                string `json:"url"`
	AutoConnect        bool   `json:"auto_connect"`
	ConnectTimeoutMs   int    `json:"connect_timeout_ms"`
	HeartbeatMs        int    `json:"heartbeat_ms"`
	ModelInfoTimeoutMs int    `json:"model_info_timeout_ms"`
}

// Capture tunes the session coordinator and the synthetic producer.
type Capture struct {
	MaxPackets          int `json:"max_packets"`
	PacketIntervalMinMs int `json:"packet_interval_min_ms"`
	PacketIntervalMaxMs int `json:"packet_interval_max_ms"`
	StatsIntervalMs     int `json:"stats_interval_ms"`
}

// Alerts configures anomaly export over NATS. An empty URL disables it.
type Alerts struct {
	NatsURL          string `json:"nats_url"`
	Subject          string `json:"subject"`
	SuppressWindowMs int    `json:"suppress_window_ms"`
	CacheSize        int    `json:"cache_size"`
}

type WebServer struct {
	Port int `json:"port"`
}

type UI struct {
	Theme string `json:"theme"` // "dark" or "light"
}

var DefaultConfig = Config{
	Logging: Logging{
		Level:      log.LevelInfo,
		Instaflush: false,
	},
	Backend: Backend{
		URL:                "ws://localhost:8765",
		AutoConnect:        false,
		ConnectTimeoutMs:   10000,
		HeartbeatMs:        30000,
		ModelInfoTimeoutMs: 3000,
	},
	Capture: Capture{
		MaxPackets:          1000,
		PacketIntervalMinMs: 500,
		PacketIntervalMaxMs: 3000,
		StatsIntervalMs:     2000,
	},
	Alerts: Alerts{
		NatsURL:          "",
		Subject:          "sentinel.alerts",
		SuppressWindowMs: 30000,
		CacheSize:        1024,
	},
	WebServer: WebServer{
		Port: 8080,
	},
	UI: UI{
		Theme: "dark",
	},
}

// NewConfig returns a deep copy of the embedded defaults.
func NewConfig() Config {
	cfg := DefaultConfig
	if err := json.Unmarshal([]byte(configJson), &cfg); err != nil {
		log.Warnf("Embedded config is invalid, using built-in defaults: %v", err)
		cfg = DefaultConfig
	}
	return cfg
}

// LoadFromFile merges the on-disk file over the current values. A missing
// file is not an error; first run writes it back via SaveToFile.
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	c.ConfigPath = path
	return nil
}

func (c *Config) SaveToFile(path string) error {
	if path == "" {
		path = c.ConfigPath
	}
	if path == "" {
		return nil
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return log.Errorf("failed to create config file: %v", err)
	}
	defer file.Close()

	if _, err = file.Write(data); err != nil {
		return log.Errorf("failed to write config file: %v", err)
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Capture.MaxPackets <= 0 {
		return fmt.Errorf("capture.max_packets must be positive, got %d", c.Capture.MaxPackets)
	}
	if c.Capture.PacketIntervalMinMs <= 0 || c.Capture.PacketIntervalMaxMs <= c.Capture.PacketIntervalMinMs {
		return fmt.Errorf("invalid packet interval bounds [%d, %d)",
			c.Capture.PacketIntervalMinMs, c.Capture.PacketIntervalMaxMs)
	}
	if c.Capture.StatsIntervalMs <= 0 {
		return fmt.Errorf("capture.stats_interval_ms must be positive, got %d", c.Capture.StatsIntervalMs)
	}
	if !strings.HasPrefix(c.Backend.URL, "ws://") && !strings.HasPrefix(c.Backend.URL, "wss://") {
		return fmt.Errorf("backend.url must be a ws:// or wss:// address, got %q", c.Backend.URL)
	}
	if c.WebServer.Port < 0 || c.WebServer.Port > 65535 {
		return fmt.Errorf("web_server.port out of range: %d", c.WebServer.Port)
	}
	if c.UI.Theme != "dark" && c.UI.Theme != "light" {
		return fmt.Errorf("ui.theme must be \"dark\" or \"light\", got %q", c.UI.Theme)
	}
	return nil
}

// ApplyLogLevel maps the --verbose flag value onto the logging section.
func (c *Config) ApplyLogLevel(verbose string) {
	c.Logging.Level = log.LevelFromVerbose(verbose)
}
