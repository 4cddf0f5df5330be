package config

import (
	"log"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv = "PAGEVAULT_CONFIG"
	dataDirEnv    = "PAGEVAULT_DATA_DIR"
	apiAddrEnv    = "PAGEVAULT_API_ADDR"
	databaseEnv   = "DATABASE_DSN"
	natsURLEnv    = "NATS_URL"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Storage  StorageConfig  `yaml:"storage"`
	Database DatabaseConfig `yaml:"database"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Imports  ImportsConfig  `yaml:"imports"`
	Events   EventsConfig   `yaml:"events"`
	API      APIConfig      `yaml:"api"`
}

// LoggingConfig controls slog verbosity.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// StorageConfig locates the archive data root (versions, media, imports).
type StorageConfig struct {
	DataDir string `yaml:"dataDir"`
}

// DatabaseConfig describes the Postgres catalog connection. An empty DSN
// selects the in-memory catalog.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// FetchConfig tunes the outbound HTTP client.
type FetchConfig struct {
	TimeoutSeconds      int    `yaml:"timeoutSeconds"`
	ImageTimeoutSeconds int    `yaml:"imageTimeoutSeconds"`
	UserAgent           string `yaml:"userAgent"`
}

// Timeout resolves the page-fetch timeout.
func (f FetchConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutSeconds) * time.Second
}

// ImageTimeout resolves the per-image fetch timeout.
func (f FetchConfig) ImageTimeout() time.Duration {
	return time.Duration(f.ImageTimeoutSeconds) * time.Second
}

// IngestConfig tunes single-ingestion behavior.
type IngestConfig struct {
	LockTTLSeconds int `yaml:"lockTtlSeconds"`
}

// LockTTL resolves the keyed-lock TTL.
func (i IngestConfig) LockTTL() time.Duration {
	return time.Duration(i.LockTTLSeconds) * time.Second
}

// ImportsConfig tunes the batch import queue.
type ImportsConfig struct {
	BatchSize               int `yaml:"batchSize"`
	StaggerSeconds          int `yaml:"staggerSeconds"`
	DispatchIntervalSeconds int `yaml:"dispatchIntervalSeconds"`
	WatchdogIntervalSeconds int `yaml:"watchdogIntervalSeconds"`
}

// Stagger resolves the per-task dispatch stagger.
func (i ImportsConfig) Stagger() time.Duration {
	return time.Duration(i.StaggerSeconds) * time.Second
}

// DispatchInterval resolves the delay between dispatcher runs.
func (i ImportsConfig) DispatchInterval() time.Duration {
	return time.Duration(i.DispatchIntervalSeconds) * time.Second
}

// WatchdogInterval resolves the stale-job check period.
func (i ImportsConfig) WatchdogInterval() time.Duration {
	return time.Duration(i.WatchdogIntervalSeconds) * time.Second
}

// EventsConfig describes the NATS event bus. An empty URL selects the
// in-process bus.
type EventsConfig struct {
	NatsURL string `yaml:"natsUrl"`
	Subject string `yaml:"subject"`
}

// APIConfig describes the HTTP surface.
type APIConfig struct {
	Addr string `yaml:"addr"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(dataDirEnv); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv(apiAddrEnv); v != "" {
		c.API.Addr = v
	}
	if v := os.Getenv(databaseEnv); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(natsURLEnv); v != "" {
		c.Events.NatsURL = v
	}
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging = override.Logging
	}
	if override.Storage.DataDir != "" {
		base.Storage = override.Storage
	}
	if override.Database.DSN != "" {
		base.Database = override.Database
	}

	if override.Fetch.TimeoutSeconds > 0 {
		base.Fetch.TimeoutSeconds = override.Fetch.TimeoutSeconds
	}
	if override.Fetch.ImageTimeoutSeconds > 0 {
		base.Fetch.ImageTimeoutSeconds = override.Fetch.ImageTimeoutSeconds
	}
	if override.Fetch.UserAgent != "" {
		base.Fetch.UserAgent = override.Fetch.UserAgent
	}

	if override.Ingest.LockTTLSeconds > 0 {
		base.Ingest.LockTTLSeconds = override.Ingest.LockTTLSeconds
	}

	if override.Imports.BatchSize > 0 {
		base.Imports.BatchSize = override.Imports.BatchSize
	}
	if override.Imports.StaggerSeconds > 0 {
		base.Imports.StaggerSeconds = override.Imports.StaggerSeconds
	}
	if override.Imports.DispatchIntervalSeconds > 0 {
		base.Imports.DispatchIntervalSeconds = override.Imports.DispatchIntervalSeconds
	}
	if override.Imports.WatchdogIntervalSeconds > 0 {
		base.Imports.WatchdogIntervalSeconds = override.Imports.WatchdogIntervalSeconds
	}

	if override.Events.NatsURL != "" {
		base.Events.NatsURL = override.Events.NatsURL
	}
	if override.Events.Subject != "" {
		base.Events.Subject = override.Events.Subject
	}

	if override.API.Addr != "" {
		base.API.Addr = override.API.Addr
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Logging: LoggingConfig{Level: "info"},
		Storage: StorageConfig{DataDir: filepath.Join("data")},
		Fetch: FetchConfig{
			TimeoutSeconds:      30,
			ImageTimeoutSeconds: 15,
			UserAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 " +
				"(KHTML, like Gecko) Chrome/120.0 Safari/537.36",
		},
		Ingest: IngestConfig{LockTTLSeconds: 60},
		Imports: ImportsConfig{
			BatchSize:               10,
			StaggerSeconds:          5,
			DispatchIntervalSeconds: 60,
			WatchdogIntervalSeconds: 300,
		},
		Events: EventsConfig{Subject: "pagevault.version.created"},
		API:    APIConfig{Addr: ":8080"},
	}
}
