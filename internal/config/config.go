// Package config loads apitrail settings from a YAML file, environment
// variables and defaults.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the full apitrail configuration.
type Config struct {
	Database     string `json:"database" yaml:"database" validate:"required"`
	Input        string `json:"input" yaml:"input"`
	Workers      int    `json:"workers" yaml:"workers" validate:"gte=1,lte=256"`
	Parallel     bool   `json:"parallel" yaml:"parallel"`
	OrphanPolicy string `json:"orphan_policy" yaml:"orphan_policy" validate:"oneof=keep fail"`
	Force        bool   `json:"force" yaml:"force"`

	Log     LogConfig     `json:"log" yaml:"log"`
	Extract ExtractConfig `json:"extract" yaml:"extract"`
	Watch   WatchConfig   `json:"watch" yaml:"watch"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `json:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `json:"format" yaml:"format" validate:"oneof=text json"`
}

// ExtractConfig controls the Python producer.
type ExtractConfig struct {
	// FilterScript is a Risor expression deciding symbol visibility.
	FilterScript string   `json:"filter_script" yaml:"filter_script"`
	SkipDirs     []string `json:"skip_dirs" yaml:"skip_dirs" validate:"dive,required"`
}

// WatchConfig controls the input watcher.
type WatchConfig struct {
	Debounce time.Duration `json:"debounce" yaml:"debounce" validate:"gte=0"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Database:     ".apitrail/apitrail.db",
		Workers:      4,
		Parallel:     true,
		OrphanPolicy: "keep",
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Extract: ExtractConfig{
			SkipDirs: []string{"test", "tests", "testing"},
		},
		Watch: WatchConfig{
			Debounce: 500 * time.Millisecond,
		},
	}
}

// Load reads configPath over the defaults, applies environment overrides
// and validates the result. An empty path skips the file.
func Load(configPath string) (Config, error) {
	cfg := Default()
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", configPath, err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyEnv overrides fields from APITRAIL_* variables. Unparseable values
// are ignored.
func applyEnv(cfg *Config) {
	if v := os.Getenv("APITRAIL_DB"); v != "" {
		cfg.Database = v
	}
	if v := os.Getenv("APITRAIL_INPUT"); v != "" {
		cfg.Input = v
	}
	if v := os.Getenv("APITRAIL_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workers = n
		}
	}
	if v := os.Getenv("APITRAIL_ORPHAN_POLICY"); v != "" {
		cfg.OrphanPolicy = strings.ToLower(v)
	}
	if v := os.Getenv("APITRAIL_LOG_LEVEL"); v != "" {
		cfg.Log.Level = strings.ToLower(v)
	}
}

var validate = validator.New()

// Validate checks field constraints and reports every violation.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		msgs[i] = fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
	}
	return errors.New(strings.Join(msgs, "; "))
}

// SlogLevel converts the configured level name.
func (l LogConfig) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// NewLogger builds a logger writing to w.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: l.SlogLevel()}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
