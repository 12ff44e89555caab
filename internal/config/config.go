// Package config loads the hierarchical configuration on top of
// spf13/viper: layered file + environment + defaults, with a typed Config
// tree covering every section the pipeline reads.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Translation is the "translation" config section.
type Translation struct {
	TargetLanguage            string  `mapstructure:"target_language"`
	ModelIdentifier           string  `mapstructure:"model_identifier"`
	Temperature               float64 `mapstructure:"temperature"`
	MaxConcurrentTranslations int     `mapstructure:"max_concurrent_translations"`
	RequestTimeoutSeconds     int     `mapstructure:"request_timeout_seconds"`
	APIKey                    string  `mapstructure:"api_key"`
}

// Routing is the "routing" config section.
type Routing struct {
	Strategy            string  `mapstructure:"strategy"` // cost_optimized|quality_focused|balanced|speed_focused
	CostModel           string  `mapstructure:"cost_model"`
	QualityModel        string  `mapstructure:"quality_model"`
	ComplexityThreshold float64 `mapstructure:"complexity_threshold"`
}

// Cache is the "cache" config section.
type Cache struct {
	EnableMemory        bool    `mapstructure:"enable_memory"`
	MemoryCapacity      int     `mapstructure:"memory_capacity"`
	EnablePersistent    bool    `mapstructure:"enable_persistent"`
	PersistentPath      string  `mapstructure:"persistent_path"`
	PersistentCapacity  int     `mapstructure:"persistent_capacity"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	EmbeddingModel      string  `mapstructure:"embedding_model"`
}

// Grouping is the "grouping" config section.
type Grouping struct {
	Enable            bool `mapstructure:"enable"`
	MaxGroupSizeChars int  `mapstructure:"max_group_size_chars"`
	MaxItemsPerGroup  int  `mapstructure:"max_items_per_group"`
}

// SelfCorrection is the "self_correction" config section.
type SelfCorrection struct {
	MaxAttempts int `mapstructure:"max_attempts"`
}

// Reconciliation is the "reconciliation" config section.
type Reconciliation struct {
	MinImageWidthPx     int     `mapstructure:"min_image_width_px"`
	MinImageHeightPx    int     `mapstructure:"min_image_height_px"`
	MaxAspectRatio      int     `mapstructure:"max_aspect_ratio"`
	HeadingMaxWords     int     `mapstructure:"heading_max_words"`
	HeadingMinFontRatio float64 `mapstructure:"heading_min_font_ratio"`
	LayoutEngine        string  `mapstructure:"layout_engine"` // heuristic|onnx
}

// Tracing is the "tracing" config section.
type Tracing struct {
	Enable    bool   `mapstructure:"enable"`
	OutputDir string `mapstructure:"output_dir"`
}

// Quarantine is the "quarantine" config section.
type Quarantine struct {
	Directory     string `mapstructure:"directory"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// Logging is the "logging" config section driving internal/logger's
// DefaultLogger, so the file path, rotation thresholds, and level a run logs
// at come from the same config tree as every other section rather than a
// package-private default.
type Logging struct {
	FilePath      string `mapstructure:"file_path"`
	MaxFileSizeMB int64  `mapstructure:"max_file_size_mb"`
	MaxBackups    int    `mapstructure:"max_backups"`
	Level         string `mapstructure:"level"` // debug|info|warn|error
	EnableConsole bool   `mapstructure:"enable_console"`
}

// Config is the fully-populated, defaulted configuration tree.
type Config struct {
	Translation    Translation    `mapstructure:"translation"`
	Routing        Routing        `mapstructure:"routing"`
	Cache          Cache          `mapstructure:"cache"`
	Grouping       Grouping       `mapstructure:"grouping"`
	SelfCorrection SelfCorrection `mapstructure:"self_correction"`
	Reconciliation Reconciliation `mapstructure:"reconciliation"`
	Tracing        Tracing        `mapstructure:"tracing"`
	Quarantine     Quarantine     `mapstructure:"quarantine"`
	Logging        Logging        `mapstructure:"logging"`
}

// Load reads configFile (if non-empty) and overlays environment variables and
// defaults, returning a fully-populated Config. An empty configFile is not an
// error — every key has a default — but a named file that cannot be read is.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("PDFTRANSLATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// api_key prefers the environment over the config file.
	v.BindEnv("translation.api_key", "OPENAI_API_KEY", "PDFTRANSLATOR_TRANSLATION_API_KEY")

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("translation.target_language", "en")
	v.SetDefault("translation.model_identifier", "gpt-4o-mini")
	v.SetDefault("translation.temperature", 0.1)
	v.SetDefault("translation.max_concurrent_translations", 10)
	v.SetDefault("translation.request_timeout_seconds", 600)

	v.SetDefault("routing.strategy", "balanced")
	v.SetDefault("routing.cost_model", "gpt-4o-mini")
	v.SetDefault("routing.quality_model", "gpt-4o")
	v.SetDefault("routing.complexity_threshold", 0.5)

	v.SetDefault("cache.enable_memory", true)
	v.SetDefault("cache.memory_capacity", 1000)
	v.SetDefault("cache.enable_persistent", true)
	v.SetDefault("cache.persistent_path", "cache/persistent")
	v.SetDefault("cache.persistent_capacity", 10000)
	v.SetDefault("cache.similarity_threshold", 0.85)
	v.SetDefault("cache.embedding_model", "text-embedding-3-small")

	v.SetDefault("grouping.enable", true)
	v.SetDefault("grouping.max_group_size_chars", 12000)
	v.SetDefault("grouping.max_items_per_group", 8)

	v.SetDefault("self_correction.max_attempts", 2)

	v.SetDefault("reconciliation.min_image_width_px", 50)
	v.SetDefault("reconciliation.min_image_height_px", 50)
	v.SetDefault("reconciliation.max_aspect_ratio", 20)
	v.SetDefault("reconciliation.heading_max_words", 15)
	v.SetDefault("reconciliation.heading_min_font_ratio", 1.4)
	v.SetDefault("reconciliation.layout_engine", "heuristic")

	v.SetDefault("tracing.enable", true)
	v.SetDefault("tracing.output_dir", "trace")

	v.SetDefault("quarantine.directory", "quarantine")
	v.SetDefault("quarantine.retention_days", 30)

	v.SetDefault("logging.file_path", "pdf-structural-translator.log")
	v.SetDefault("logging.max_file_size_mb", 10)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.enable_console", false)
}

// validate enforces the documented numeric ranges and enums.
func validate(c *Config) error {
	if c.Translation.Temperature < 0 || c.Translation.Temperature > 1 {
		return fmt.Errorf("config: translation.temperature must be within 0.0-1.0, got %v", c.Translation.Temperature)
	}
	if c.Translation.MaxConcurrentTranslations < 1 || c.Translation.MaxConcurrentTranslations > 64 {
		return fmt.Errorf("config: translation.max_concurrent_translations must be within 1-64, got %d", c.Translation.MaxConcurrentTranslations)
	}
	switch c.Routing.Strategy {
	case "cost_optimized", "quality_focused", "balanced", "speed_focused":
	default:
		return fmt.Errorf("config: routing.strategy %q is not one of cost_optimized|quality_focused|balanced|speed_focused", c.Routing.Strategy)
	}
	if c.Cache.SimilarityThreshold < 0 || c.Cache.SimilarityThreshold > 1 {
		return fmt.Errorf("config: cache.similarity_threshold must be within 0.0-1.0, got %v", c.Cache.SimilarityThreshold)
	}
	if c.SelfCorrection.MaxAttempts < 0 || c.SelfCorrection.MaxAttempts > 5 {
		return fmt.Errorf("config: self_correction.max_attempts must be within 0-5, got %d", c.SelfCorrection.MaxAttempts)
	}
	switch c.Reconciliation.LayoutEngine {
	case "heuristic", "onnx":
	default:
		return fmt.Errorf("config: reconciliation.layout_engine %q is not one of heuristic|onnx", c.Reconciliation.LayoutEngine)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: logging.level %q is not one of debug|info|warn|error", c.Logging.Level)
	}
	return nil
}
