package config

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/resultd/internal/artifact"
)

// Config is the complete resultd configuration. Enumerated options are
// validated at startup; unknown categories are rejected at load time,
// never silently ignored.
type Config struct {
	Storage    StorageConfig             `koanf:"storage"`
	Pipeline   PipelineConfig            `koanf:"pipeline"`
	Watch      WatchConfig               `koanf:"watch"`
	Categories map[string]CategoryConfig `koanf:"categories"`
	Analytics  AnalyticsConfig           `koanf:"analytics"`
	Server     ServerConfig              `koanf:"server"`
	Logging    LoggingConfig             `koanf:"logging"`
}

// StorageConfig locates the partitioned artifact store.
type StorageConfig struct {
	Root string `koanf:"root"`
}

// PipelineConfig tunes the ingestion queue and processor.
type PipelineConfig struct {
	// Tick is the drain cadence of the processor.
	Tick Duration `koanf:"tick"`
	// BatchSize is the number of arrivals processed per tick.
	BatchSize int `koanf:"batch_size"`
	// HighWaterMark is the queue length above which the processor logs a
	// warning and scales its batch proportionally instead of dropping.
	HighWaterMark int `koanf:"high_water_mark"`
	// GracePeriod bounds how long Stop waits for in-flight processing.
	GracePeriod Duration `koanf:"grace_period"`
}

// WatchConfig binds source locations to categories.
type WatchConfig struct {
	// Debounce coalesces rapid change notifications for the same file.
	Debounce Duration       `koanf:"debounce"`
	Sources  []SourceConfig `koanf:"sources"`
}

// SourceConfig is one producer-owned location to watch.
type SourceConfig struct {
	Category string `koanf:"category"`
	Path     string `koanf:"path"`
}

// CategoryConfig is the per-category retention policy.
type CategoryConfig struct {
	RetentionDays      int  `koanf:"retention_days"`
	CompressionEnabled bool `koanf:"compression_enabled"`
}

// AnalyticsConfig tunes the periodic analytics and cleanup passes.
type AnalyticsConfig struct {
	RefreshInterval   Duration `koanf:"refresh_interval"`
	CleanupInterval   Duration `koanf:"cleanup_interval"`
	CorrelationWindow Duration `koanf:"correlation_window"`
	// Workers bounds the pool running per-category passes concurrently.
	Workers int `koanf:"workers"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// applyDefaults fills in defaults for unset fields.
func applyDefaults(cfg *Config) {
	if cfg.Pipeline.Tick == 0 {
		cfg.Pipeline.Tick = Duration(time.Second)
	}
	if cfg.Pipeline.BatchSize == 0 {
		cfg.Pipeline.BatchSize = 1
	}
	if cfg.Pipeline.HighWaterMark == 0 {
		cfg.Pipeline.HighWaterMark = 100
	}
	if cfg.Pipeline.GracePeriod == 0 {
		cfg.Pipeline.GracePeriod = Duration(5 * time.Second)
	}

	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = Duration(300 * time.Millisecond)
	}

	if cfg.Analytics.RefreshInterval == 0 {
		cfg.Analytics.RefreshInterval = Duration(5 * time.Minute)
	}
	if cfg.Analytics.CleanupInterval == 0 {
		cfg.Analytics.CleanupInterval = Duration(time.Hour)
	}
	if cfg.Analytics.CorrelationWindow == 0 {
		cfg.Analytics.CorrelationWindow = Duration(time.Hour)
	}
	if cfg.Analytics.Workers == 0 {
		cfg.Analytics.Workers = 4
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9340
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Categories == nil {
		cfg.Categories = map[string]CategoryConfig{}
	}
	for name, cat := range cfg.Categories {
		if cat.RetentionDays == 0 {
			cat.RetentionDays = 30
			cfg.Categories[name] = cat
		}
	}
}

// Validate checks the configuration for errors. Configuration failures
// are the only error class allowed to abort the whole process.
func (c *Config) Validate() error {
	if c.Storage.Root == "" {
		return fmt.Errorf("storage.root is required")
	}

	if c.Pipeline.Tick.Duration() <= 0 {
		return fmt.Errorf("pipeline.tick must be > 0")
	}
	if c.Pipeline.BatchSize < 1 {
		return fmt.Errorf("pipeline.batch_size must be >= 1, got %d", c.Pipeline.BatchSize)
	}
	if c.Pipeline.HighWaterMark < 1 {
		return fmt.Errorf("pipeline.high_water_mark must be >= 1, got %d", c.Pipeline.HighWaterMark)
	}

	if c.Watch.Debounce.Duration() <= 0 {
		return fmt.Errorf("watch.debounce must be > 0")
	}
	for _, src := range c.Watch.Sources {
		if src.Path == "" {
			return fmt.Errorf("watch source for category %q has no path", src.Category)
		}
		if !artifact.Category(src.Category).Valid() {
			return fmt.Errorf("watch source %q: %w: %q", src.Path, artifact.ErrUnknownCategory, src.Category)
		}
	}

	for name, cat := range c.Categories {
		if !artifact.Category(name).Valid() {
			return fmt.Errorf("categories: %w: %q", artifact.ErrUnknownCategory, name)
		}
		if cat.RetentionDays < 0 {
			return fmt.Errorf("categories.%s.retention_days must be >= 0, got %d", name, cat.RetentionDays)
		}
	}

	if c.Analytics.Workers < 1 {
		return fmt.Errorf("analytics.workers must be >= 1, got %d", c.Analytics.Workers)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", c.Logging.Format)
	}

	return nil
}

// Retention returns the retention policy for a category, falling back to
// the default when unconfigured.
func (c *Config) Retention(cat artifact.Category) CategoryConfig {
	if cc, ok := c.Categories[string(cat)]; ok {
		return cc
	}
	return CategoryConfig{RetentionDays: 30}
}
