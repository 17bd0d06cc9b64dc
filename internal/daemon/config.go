// Package daemon manages the bridge daemon lifecycle and configuration.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all daemon configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Provider  ProviderConfig  `toml:"provider"`
	Queue     QueueConfig     `toml:"queue"`
	Breaker   BreakerConfig   `toml:"breaker"`
	Cleanup   CleanupConfig   `toml:"cleanup"`
	Storage   StorageConfig   `toml:"storage"`
	Notify    NotifyConfig    `toml:"notify"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// ServerConfig controls the HTTP API server.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// ProviderConfig controls the transcription provider client. The API
// key can also come from the ELEVENLABS_API_KEY environment variable,
// which wins over the file so keys stay out of config.toml.
type ProviderConfig struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
	ModelID string `toml:"model_id"`
	Timeout string `toml:"timeout"`
	Webhook bool   `toml:"webhook"`
}

// QueueConfig controls the segment queue processor.
type QueueConfig struct {
	MaxConcurrent int    `toml:"max_concurrent"`
	StaleWindow   string `toml:"stale_window"`
	DispatchDelay string `toml:"dispatch_delay"`
	RetryBudget   int    `toml:"retry_budget"`
	PollInterval  string `toml:"poll_interval"`
}

// BreakerConfig controls the provider circuit breaker.
type BreakerConfig struct {
	FailureThreshold int    `toml:"failure_threshold"`
	Cooldown         string `toml:"cooldown"`
}

// CleanupConfig controls the artifact cleanup service.
type CleanupConfig struct {
	Retention     string `toml:"retention"`
	AbandonWindow string `toml:"abandon_window"`
	DeleteRecords bool   `toml:"delete_records"`
	Interval      string `toml:"interval"`
}

// StorageConfig controls where source files and chunks live.
type StorageConfig struct {
	UploadDir     string  `toml:"upload_dir"`
	ChunkDir      string  `toml:"chunk_dir"`
	SegmentLength float64 `toml:"segment_length"`
	BitrateKbps   int     `toml:"bitrate_kbps"`
}

// NotifyConfig controls client webhook delivery.
type NotifyConfig struct {
	Timeout         string `toml:"timeout"`
	NotifyOnFailure bool   `toml:"notify_on_failure"`
}

// TelemetryConfig controls observability endpoints.
type TelemetryConfig struct {
	Prometheus bool `toml:"prometheus"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	home := bridgeHome()
	return Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8035,
		},
		Provider: ProviderConfig{
			BaseURL: "https://api.elevenlabs.io",
			ModelID: "scribe_v1",
			Timeout: "120s",
			Webhook: true,
		},
		Queue: QueueConfig{
			MaxConcurrent: 8,
			StaleWindow:   "60s",
			DispatchDelay: "2s",
			RetryBudget:   2,
			PollInterval:  "10s",
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			Cooldown:         "30s",
		},
		Cleanup: CleanupConfig{
			Retention:     "24h",
			AbandonWindow: "72h",
			Interval:      "1h",
		},
		Storage: StorageConfig{
			UploadDir:     filepath.Join(home, "uploads"),
			ChunkDir:      filepath.Join(home, "chunks"),
			SegmentLength: 900,
			BitrateKbps:   128,
		},
		Notify: NotifyConfig{
			Timeout: "15s",
		},
		Telemetry: TelemetryConfig{
			Prometheus: true,
		},
	}
}

// LoadConfig reads config from $BRIDGE_HOME/config.toml, falling back
// to defaults when the file does not exist.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	path := filepath.Join(bridgeHome(), "config.toml")

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return applyEnv(cfg), nil
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return applyEnv(cfg), nil
}

// SaveConfig writes the config to $BRIDGE_HOME/config.toml.
func SaveConfig(cfg Config) error {
	path := filepath.Join(bridgeHome(), "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func applyEnv(cfg Config) Config {
	if key := os.Getenv("ELEVENLABS_API_KEY"); key != "" {
		cfg.Provider.APIKey = key
	}
	return cfg
}

// bridgeHome returns the bridge data directory.
func bridgeHome() string {
	if env := os.Getenv("BRIDGE_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".bridge")
}

// parseDuration parses a duration string, returning a fallback on error.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
