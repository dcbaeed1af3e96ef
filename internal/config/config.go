// Package config loads the arrhythmix runtime configuration from a JSON or
// YAML file. Every field is optional; the Get* accessors supply defaults.
package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/arrhythmix/internal/source"
	"github.com/banshee-data/arrhythmix/internal/units"
)

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Source kinds.
const (
	SourceSerial    = "serial"
	SourceSynthetic = "synthetic"
	SourceReplay    = "replay"
	SourceIdle      = "idle"
)

// Classifier kinds.
const (
	ClassifierRhythm = "rhythm"
	ClassifierGRPC   = "grpc"
	ClassifierHTTP   = "http"
)

// Config is the root configuration.
type Config struct {
	// Windows and trigger
	DisplayCapacity   *int     `json:"display_capacity,omitempty" yaml:"display_capacity,omitempty"`
	DisplayFill       *float64 `json:"display_fill,omitempty" yaml:"display_fill,omitempty"`
	InferenceCapacity *int     `json:"inference_capacity,omitempty" yaml:"inference_capacity,omitempty"`
	RefreshSamples    *int     `json:"refresh_samples,omitempty" yaml:"refresh_samples,omitempty"`

	// Cadences, as duration strings like "50ms"
	PollInterval    *string `json:"poll_interval,omitempty" yaml:"poll_interval,omitempty"`
	DisplayInterval *string `json:"display_interval,omitempty" yaml:"display_interval,omitempty"`
	StopTimeout     *string `json:"stop_timeout,omitempty" yaml:"stop_timeout,omitempty"`
	ClassifyTimeout *string `json:"classify_timeout,omitempty" yaml:"classify_timeout,omitempty"`

	FeedBuffer *int `json:"feed_buffer,omitempty" yaml:"feed_buffer,omitempty"`

	// Payload decoding
	ReferenceVoltage *float64 `json:"reference_voltage,omitempty" yaml:"reference_voltage,omitempty"`
	FullScaleCode    *float64 `json:"full_scale_code,omitempty" yaml:"full_scale_code,omitempty"`
	LeadsOffSentinel *string  `json:"leads_off_sentinel,omitempty" yaml:"leads_off_sentinel,omitempty"`
	SampleRateHz     *float64 `json:"sample_rate_hz,omitempty" yaml:"sample_rate_hz,omitempty"`

	// Display
	PlotMin *float64 `json:"plot_min,omitempty" yaml:"plot_min,omitempty"`
	PlotMax *float64 `json:"plot_max,omitempty" yaml:"plot_max,omitempty"`
	Units   *string  `json:"units,omitempty" yaml:"units,omitempty"`
	Listen  *string  `json:"listen,omitempty" yaml:"listen,omitempty"`

	// Sources
	Source            *string             `json:"source,omitempty" yaml:"source,omitempty"`
	Port              *string             `json:"port,omitempty" yaml:"port,omitempty"`
	DeviceIdentifier  *string             `json:"device_identifier,omitempty" yaml:"device_identifier,omitempty"`
	Recording         *string             `json:"recording,omitempty" yaml:"recording,omitempty"`
	FallbackSynthetic *bool               `json:"fallback_synthetic,omitempty" yaml:"fallback_synthetic,omitempty"`
	Serial            *source.PortOptions `json:"serial,omitempty" yaml:"serial,omitempty"`

	Classifier *ClassifierConfig `json:"classifier,omitempty" yaml:"classifier,omitempty"`
	Redis      *RedisConfig      `json:"redis,omitempty" yaml:"redis,omitempty"`

	// Database is the sqlite path. An explicit empty string disables storage.
	Database *string `json:"database,omitempty" yaml:"database,omitempty"`
}

// ClassifierConfig selects the classifier implementation.
type ClassifierConfig struct {
	Kind        string `json:"kind,omitempty" yaml:"kind,omitempty"`
	Address     string `json:"address,omitempty" yaml:"address,omitempty"`
	InputLength int    `json:"input_length,omitempty" yaml:"input_length,omitempty"`
}

// RedisConfig enables the prediction publisher when Addr is set.
type RedisConfig struct {
	Addr    string `json:"addr,omitempty" yaml:"addr,omitempty"`
	Channel string `json:"channel,omitempty" yaml:"channel,omitempty"`
	Key     string `json:"key,omitempty" yaml:"key,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// Empty returns a Config with every field unset.
func Empty() *Config {
	return &Config{}
}

// Load reads a .json, .yaml or .yml file. Fields omitted from the file keep
// their defaults, so partial configs are safe.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if ext == ".json" {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", ext, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func checkDuration(name string, v *string) error {
	if v == nil || *v == "" {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be positive, got %s", name, d)
	}
	return nil
}

func checkPositive(name string, v *int) error {
	if v != nil && *v <= 0 {
		return fmt.Errorf("%s must be positive, got %d", name, *v)
	}
	return nil
}

func checkPositiveFloat(name string, v *float64) error {
	if v != nil && !(*v > 0 && !math.IsInf(*v, 0)) {
		return fmt.Errorf("%s must be a positive number, got %v", name, *v)
	}
	return nil
}

// Validate checks that the configuration values are valid.
func (c *Config) Validate() error {
	for _, p := range []struct {
		name string
		v    *int
	}{
		{"display_capacity", c.DisplayCapacity},
		{"inference_capacity", c.InferenceCapacity},
		{"feed_buffer", c.FeedBuffer},
	} {
		if err := checkPositive(p.name, p.v); err != nil {
			return err
		}
	}
	if c.RefreshSamples != nil && *c.RefreshSamples < 0 {
		return fmt.Errorf("refresh_samples must be non-negative, got %d", *c.RefreshSamples)
	}

	for _, d := range []struct {
		name string
		v    *string
	}{
		{"poll_interval", c.PollInterval},
		{"display_interval", c.DisplayInterval},
		{"stop_timeout", c.StopTimeout},
		{"classify_timeout", c.ClassifyTimeout},
	} {
		if err := checkDuration(d.name, d.v); err != nil {
			return err
		}
	}

	for _, f := range []struct {
		name string
		v    *float64
	}{
		{"reference_voltage", c.ReferenceVoltage},
		{"full_scale_code", c.FullScaleCode},
		{"sample_rate_hz", c.SampleRateHz},
	} {
		if err := checkPositiveFloat(f.name, f.v); err != nil {
			return err
		}
	}
	if c.DisplayFill != nil && (math.IsNaN(*c.DisplayFill) || math.IsInf(*c.DisplayFill, 0)) {
		return fmt.Errorf("display_fill must be finite")
	}
	if c.GetPlotMax() <= c.GetPlotMin() {
		return fmt.Errorf("plot_max (%v) must exceed plot_min (%v)", c.GetPlotMax(), c.GetPlotMin())
	}
	if c.Units != nil && !units.IsValid(*c.Units) {
		return fmt.Errorf("units must be one of %s, got %q", units.GetValidUnitsString(), *c.Units)
	}

	if _, err := c.GetSerial(); err != nil {
		return fmt.Errorf("serial: %w", err)
	}

	switch c.GetSource() {
	case SourceSerial, SourceSynthetic, SourceIdle:
	case SourceReplay:
		if c.GetRecording() == "" {
			return fmt.Errorf("source %q requires a recording", SourceReplay)
		}
	default:
		return fmt.Errorf("unknown source %q", c.GetSource())
	}

	switch c.GetClassifierKind() {
	case ClassifierRhythm:
	case ClassifierGRPC, ClassifierHTTP:
		if c.Classifier.Address == "" {
			return fmt.Errorf("classifier kind %q requires an address", c.Classifier.Kind)
		}
	default:
		return fmt.Errorf("unknown classifier kind %q", c.Classifier.Kind)
	}
	if c.Classifier != nil && c.Classifier.InputLength < 0 {
		return fmt.Errorf("classifier.input_length must be non-negative, got %d", c.Classifier.InputLength)
	}
	return nil
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func stringOr(v *string, def string) string {
	if v == nil || *v == "" {
		return def
	}
	return *v
}

func (c *Config) GetDisplayCapacity() int      { return intOr(c.DisplayCapacity, 200) }
func (c *Config) GetDisplayFill() float64      { return floatOr(c.DisplayFill, 0) }
func (c *Config) GetInferenceCapacity() int    { return intOr(c.InferenceCapacity, 171) }
func (c *Config) GetRefreshSamples() int       { return intOr(c.RefreshSamples, 40) }
func (c *Config) GetFeedBuffer() int           { return intOr(c.FeedBuffer, 256) }
func (c *Config) GetReferenceVoltage() float64 { return floatOr(c.ReferenceVoltage, 3.7) }
func (c *Config) GetFullScaleCode() float64    { return floatOr(c.FullScaleCode, 4095) }
func (c *Config) GetSampleRateHz() float64     { return floatOr(c.SampleRateHz, 20) }
func (c *Config) GetPlotMin() float64          { return floatOr(c.PlotMin, 0) }
func (c *Config) GetPlotMax() float64          { return floatOr(c.PlotMax, 4) }

func (c *Config) GetPollInterval() time.Duration {
	return durationOr(c.PollInterval, 50*time.Millisecond)
}

func (c *Config) GetDisplayInterval() time.Duration {
	return durationOr(c.DisplayInterval, 300*time.Millisecond)
}

func (c *Config) GetStopTimeout() time.Duration {
	return durationOr(c.StopTimeout, 2*time.Second)
}

func (c *Config) GetClassifyTimeout() time.Duration {
	return durationOr(c.ClassifyTimeout, 10*time.Second)
}

// GetLeadsOffSentinel returns the sentinel payload, "Leads Off" by default.
func (c *Config) GetLeadsOffSentinel() string {
	return stringOr(c.LeadsOffSentinel, source.DefaultSentinel)
}

func (c *Config) GetUnits() string  { return stringOr(c.Units, units.Volts) }
func (c *Config) GetListen() string { return stringOr(c.Listen, ":8080") }
func (c *Config) GetSource() string { return stringOr(c.Source, SourceSerial) }
func (c *Config) GetPort() string   { return stringOr(c.Port, source.AutoPath) }
func (c *Config) GetRecording() string {
	return stringOr(c.Recording, "")
}

func (c *Config) GetDeviceIdentifier() string {
	return stringOr(c.DeviceIdentifier, source.DefaultIdentifier)
}

func (c *Config) GetFallbackSynthetic() bool {
	if c.FallbackSynthetic == nil {
		return false
	}
	return *c.FallbackSynthetic
}

// GetDatabase returns the sqlite path. An explicit "" disables storage.
func (c *Config) GetDatabase() string {
	if c.Database == nil {
		return "arrhythmix.db"
	}
	return *c.Database
}

// GetSerial returns the port options with defaults applied.
func (c *Config) GetSerial() (source.PortOptions, error) {
	var opts source.PortOptions
	if c.Serial != nil {
		opts = *c.Serial
	}
	return opts.Normalise()
}

func (c *Config) GetClassifierKind() string {
	if c.Classifier == nil || c.Classifier.Kind == "" {
		return ClassifierRhythm
	}
	return c.Classifier.Kind
}

func (c *Config) GetClassifier() ClassifierConfig {
	var cc ClassifierConfig
	if c.Classifier != nil {
		cc = *c.Classifier
	}
	cc.Kind = c.GetClassifierKind()
	return cc
}

// GetRedis returns the publisher settings; an empty Addr disables publishing.
func (c *Config) GetRedis() RedisConfig {
	var rc RedisConfig
	if c.Redis != nil {
		rc = *c.Redis
	}
	return rc
}

// Decoder returns the payload decoder described by the configuration.
func (c *Config) Decoder() source.Decoder {
	return source.Decoder{
		Sentinel:  c.GetLeadsOffSentinel(),
		FullScale: c.GetFullScaleCode(),
		Reference: c.GetReferenceVoltage(),
	}
}
