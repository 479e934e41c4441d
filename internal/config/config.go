package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrMissingBaseline is returned by Validate when any part of the baseline
// identity is unset. There is no default baseline.
var ErrMissingBaseline = errors.New("baseline encoder, commit and preset are required")

// Baseline identifies the reference configuration every other run is
// compared against.
type Baseline struct {
	Encoder string `yaml:"encoder" validate:"required"`
	Commit  string `yaml:"commit" validate:"required"`
	Preset  string `yaml:"preset" validate:"required"`
}

// DefaultVMAFModel is the libvmaf model used when none is configured.
const DefaultVMAFModel = "vmaf_v0.6.1"

// Metric is a tracked quality column and the header it is reported under.
type Metric struct {
	// Column is the quality column name in the measurement table
	Column string `yaml:"column" validate:"required"`

	// Label is the output header for the BD-rate column
	Label string `yaml:"label" validate:"required"`
}

type Config struct {
	// Baseline is the reference encoder/commit/preset
	Baseline Baseline `yaml:"baseline"`

	// Metrics lists the quality columns to compute BD-rate for, in output order
	Metrics []Metric `yaml:"metrics" validate:"min=1,dive"`

	// Workers is the number of videos processed concurrently (default 1)
	Workers int `yaml:"workers" validate:"gte=1"`

	// IncludeBDSNR adds a BD-SNR column per metric to the output
	IncludeBDSNR bool `yaml:"include_bdsnr"`

	// DatabasePath is the SQLite file comparisons are upserted into (optional)
	DatabasePath string `yaml:"database_path"`

	// PlotDir is where RD-curve PNGs are written (optional)
	PlotDir string `yaml:"plot_dir"`

	// FFmpegPath is the ffmpeg binary used by the score command (default: "ffmpeg")
	FFmpegPath string `yaml:"ffmpeg_path"`

	// VMAFModel is the libvmaf model version used by the score command
	VMAFModel string `yaml:"vmaf_model"`

	// LogLevel is one of debug, info, warn, error (default info)
	LogLevel string `yaml:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// LogFormat is text or json (default text)
	LogFormat string `yaml:"log_format" validate:"omitempty,oneof=text json"`
}

// DefaultMetrics are the quality columns of the v1 measurement schema.
func DefaultMetrics() []Metric {
	return []Metric{
		{Column: "vmaf", Label: "VMAF Mean"},
		{Column: "ssimcra2", Label: "SSIMCRA2 Mean"},
		{Column: "vmaf_5th", Label: "VMAF 5th"},
		{Column: "ssimcra2_5th", Label: "SSIMCRA2 5th"},
	}
}

// DefaultConfig returns a config with defaults for everything except the
// baseline, which must always be supplied.
func DefaultConfig() *Config {
	return &Config{
		Metrics:    DefaultMetrics(),
		Workers:    1,
		FFmpegPath: "ffmpeg",
		VMAFModel:  DefaultVMAFModel,
		LogLevel:   "info",
		LogFormat:  "text",
	}
}

// Load reads config from a YAML file, applying defaults for missing values.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if len(cfg.Metrics) == 0 {
		cfg.Metrics = DefaultMetrics()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.VMAFModel == "" {
		cfg.VMAFModel = DefaultVMAFModel
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}

	return cfg, nil
}

// Save writes the config to a YAML file
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the config after flags and file have been merged.
// Missing baseline fields wrap ErrMissingBaseline.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	var missing, other []string
	for _, fe := range verrs {
		if strings.HasPrefix(fe.Namespace(), "Config.Baseline.") {
			missing = append(missing, strings.ToLower(fe.Field()))
			continue
		}
		other = append(other, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w (missing: %s)", ErrMissingBaseline, strings.Join(missing, ", "))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(other, "; "))
}

// MetricColumns returns the tracked quality column names in order.
func (c *Config) MetricColumns() []string {
	out := make([]string, len(c.Metrics))
	for i, m := range c.Metrics {
		out[i] = m.Column
	}
	return out
}
