package config

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vango-dev/reactor/internal/errors"
	"github.com/vango-dev/reactor/pkg/reactive"
)

const (
	// ConfigFileName is the name of the JSON configuration file.
	ConfigFileName = "reactor.json"

	// YAMLConfigFileName is the name of the YAML configuration file. It is
	// used when no JSON file exists.
	YAMLConfigFileName = "reactor.yaml"

	// DefaultDevtoolsAddr is the default devtools listen address.
	DefaultDevtoolsAddr = "localhost:7070"

	// DefaultBufferSize is the default number of events kept by devtools.
	DefaultBufferSize = 1024

	// DefaultNamespace is the default Prometheus namespace.
	DefaultNamespace = "reactor"

	// DefaultTracerName is the default OpenTelemetry tracer name.
	DefaultTracerName = "github.com/vango-dev/reactor"

	// DefaultReportDir is where reports are written when no bucket is set.
	DefaultReportDir = "reports"
)

// Environment variables that override file settings.
const (
	EnvLogLevel       = "REACTOR_LOG_LEVEL"
	EnvLogFormat      = "REACTOR_LOG_FORMAT"
	EnvRecursionLimit = "REACTOR_RECURSION_LIMIT"
	EnvDevtoolsAddr   = "REACTOR_DEVTOOLS_ADDR"
	EnvReportBucket   = "REACTOR_REPORT_BUCKET"
)

// Config represents the complete reactor configuration.
type Config struct {
	// Runtime contains reactive runtime settings.
	Runtime RuntimeConfig `json:"runtime" yaml:"runtime"`

	// Log contains logging settings.
	Log LogConfig `json:"log" yaml:"log"`

	// Metrics contains Prometheus settings.
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`

	// Tracing contains OpenTelemetry settings.
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`

	// Devtools contains devtools server settings.
	Devtools DevtoolsConfig `json:"devtools" yaml:"devtools"`

	// Report contains bench and scenario report settings.
	Report ReportConfig `json:"report" yaml:"report"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// RuntimeConfig contains reactive runtime settings.
type RuntimeConfig struct {
	// RecursionLimit caps how often one job may run in a single flush.
	// Zero is unbounded.
	RecursionLimit int `json:"recursionLimit,omitempty" yaml:"recursionLimit,omitempty"`

	// MaxFlushPasses caps the passes of a single flush. Zero is unbounded.
	MaxFlushPasses int `json:"maxFlushPasses,omitempty" yaml:"maxFlushPasses,omitempty"`

	// OnExceeded is "drop" (default) or "break".
	OnExceeded string `json:"onExceeded,omitempty" yaml:"onExceeded,omitempty"`

	// Debug attaches caller locations to warnings.
	Debug bool `json:"debug,omitempty" yaml:"debug,omitempty"`

	// QueueSize is the dispatch queue capacity of a runtime loop.
	QueueSize int `json:"queueSize,omitempty" yaml:"queueSize,omitempty"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `json:"level,omitempty" yaml:"level,omitempty"`

	// Format is text or json.
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// MetricsConfig contains Prometheus settings.
type MetricsConfig struct {
	Enabled   bool   `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Namespace string `json:"namespace,omitempty" yaml:"namespace,omitempty"`
}

// TracingConfig contains OpenTelemetry settings.
type TracingConfig struct {
	Enabled    bool   `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	TracerName string `json:"tracerName,omitempty" yaml:"tracerName,omitempty"`
}

// DevtoolsConfig contains devtools server settings.
type DevtoolsConfig struct {
	// Addr is the listen address.
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`

	// BufferSize is the number of recent events kept for /snapshot.
	BufferSize int `json:"bufferSize,omitempty" yaml:"bufferSize,omitempty"`
}

// ReportConfig contains report output settings. When S3Bucket is set,
// reports are uploaded; otherwise they are written to Dir.
type ReportConfig struct {
	Dir      string `json:"dir,omitempty" yaml:"dir,omitempty"`
	S3Bucket string `json:"s3Bucket,omitempty" yaml:"s3Bucket,omitempty"`
	S3Prefix string `json:"s3Prefix,omitempty" yaml:"s3Prefix,omitempty"`
	Region   string `json:"region,omitempty" yaml:"region,omitempty"`
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		Runtime: RuntimeConfig{
			OnExceeded: "drop",
			QueueSize:  reactive.DefaultLoopQueueSize,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Namespace: DefaultNamespace,
		},
		Tracing: TracingConfig{
			TracerName: DefaultTracerName,
		},
		Devtools: DevtoolsConfig{
			Addr:       DefaultDevtoolsAddr,
			BufferSize: DefaultBufferSize,
		},
		Report: ReportConfig{
			Dir: DefaultReportDir,
		},
	}
}

// Load reads configuration from the specified directory. It looks for
// reactor.json, then reactor.yaml.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, ConfigFileName)
	if _, err := os.Stat(path); err != nil {
		yamlPath := filepath.Join(dir, YAMLConfigFileName)
		if _, yerr := os.Stat(yamlPath); yerr == nil {
			path = yamlPath
		}
	}
	return LoadFile(path)
}

// LoadOrDefault loads configuration from dir, falling back to defaults
// when no configuration file exists. Environment overrides apply either way.
func LoadOrDefault(dir string) (*Config, error) {
	if !Exists(dir) {
		cfg := New()
		if err := cfg.applyEnv(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return Load(dir)
}

// LoadFile reads configuration from the specified file path. Files ending
// in .yaml or .yml are parsed as YAML, everything else as JSON.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.CodeConfigRead).
				WithDetail("No " + ConfigFileName + " or " + YAMLConfigFileName + " found in " + filepath.Dir(path)).
				WithSuggestion("Create " + ConfigFileName + " or run without a config file to use defaults")
		}
		return nil, errors.New(errors.CodeConfigRead).Wrap(err)
	}

	cfg := New()
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, errors.New(errors.CodeConfigRead).
			WithDetail("Failed to parse " + filepath.Base(path) + ": " + err.Error()).
			WithSuggestion("Check that the file is valid " + formatName(path))
	}

	cfg.configPath = path
	cfg.applyDefaults()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func formatName(path string) string {
	if isYAML(path) {
		return "YAML"
	}
	return "JSON"
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.Newf(errors.CategoryConfig, "no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to the specified path, in YAML for .yaml
// and .yml paths and in JSON otherwise.
func (c *Config) SaveTo(path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
		// Add newline at end of file
		data = append(data, '\n')
	}
	if err != nil {
		return errors.New(errors.CodeConfigRead).Wrap(err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New(errors.CodeConfigRead).Wrap(err)
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	d := New()
	if c.Runtime.OnExceeded == "" {
		c.Runtime.OnExceeded = d.Runtime.OnExceeded
	}
	if c.Runtime.QueueSize == 0 {
		c.Runtime.QueueSize = d.Runtime.QueueSize
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = d.Metrics.Namespace
	}
	if c.Tracing.TracerName == "" {
		c.Tracing.TracerName = d.Tracing.TracerName
	}
	if c.Devtools.Addr == "" {
		c.Devtools.Addr = d.Devtools.Addr
	}
	if c.Devtools.BufferSize == 0 {
		c.Devtools.BufferSize = d.Devtools.BufferSize
	}
	if c.Report.Dir == "" {
		c.Report.Dir = d.Report.Dir
	}
}

// applyEnv applies REACTOR_* environment overrides.
func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv(EnvDevtoolsAddr); v != "" {
		c.Devtools.Addr = v
	}
	if v := os.Getenv(EnvReportBucket); v != "" {
		c.Report.S3Bucket = v
	}
	if v := os.Getenv(EnvRecursionLimit); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.New(errors.CodeInvalidConfig).
				WithDetail(EnvRecursionLimit + " must be an integer, got " + strconv.Quote(v)).
				Wrap(err)
		}
		c.Runtime.RecursionLimit = n
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Runtime.RecursionLimit < 0 {
		return errors.New(errors.CodeInvalidConfig).
			WithDetail("runtime.recursionLimit must not be negative")
	}
	if c.Runtime.MaxFlushPasses < 0 {
		return errors.New(errors.CodeInvalidConfig).
			WithDetail("runtime.maxFlushPasses must not be negative")
	}
	switch c.Runtime.OnExceeded {
	case "", "drop", "break":
	default:
		return errors.New(errors.CodeInvalidConfig).
			WithDetail("runtime.onExceeded must be drop or break, got " + strconv.Quote(c.Runtime.OnExceeded))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return errors.New(errors.CodeInvalidConfig).
			WithDetail("log.format must be text or json, got " + strconv.Quote(c.Log.Format))
	}
	if c.Devtools.BufferSize < 0 {
		return errors.New(errors.CodeInvalidConfig).
			WithDetail("devtools.bufferSize must not be negative")
	}
	if c.Report.S3Bucket != "" && c.Report.Region == "" {
		return errors.New(errors.CodeInvalidConfig).
			WithDetail("report.region is required when report.s3Bucket is set")
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, errors.New(errors.CodeInvalidConfig).
			WithDetail("log.level must be debug, info, warn or error, got " + strconv.Quote(s))
	}
	return level, nil
}

// Logger builds a slog logger writing to w according to the Log section.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// BudgetConfig returns the flush budget settings of the Runtime section, or
// nil when no limit is set.
func (c *Config) BudgetConfig() *reactive.FlushBudgetConfig {
	if c.Runtime.RecursionLimit == 0 && c.Runtime.MaxFlushPasses == 0 {
		return nil
	}
	mode := reactive.BudgetModeDrop
	if c.Runtime.OnExceeded == "break" {
		mode = reactive.BudgetModeBreak
	}
	return &reactive.FlushBudgetConfig{
		RecursionLimit: c.Runtime.RecursionLimit,
		MaxPasses:      c.Runtime.MaxFlushPasses,
		OnExceeded:     mode,
	}
}

// Budget returns a flush budget for one runtime, or nil when no limit is
// set.
func (c *Config) Budget() *reactive.FlushBudget {
	cfg := c.BudgetConfig()
	if cfg == nil {
		return nil
	}
	return reactive.NewFlushBudget(cfg)
}

// RuntimeOptions returns the runtime options described by the config,
// logging to logger.
func (c *Config) RuntimeOptions(logger *slog.Logger) []reactive.Option {
	opts := []reactive.Option{
		reactive.WithLogger(logger),
		reactive.WithDebug(c.Runtime.Debug),
	}
	if b := c.Budget(); b != nil {
		opts = append(opts, reactive.WithBudget(b))
	}
	return opts
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	for _, name := range []string{ConfigFileName, YAMLConfigFileName} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}

// FindProjectRoot walks up directories to find the directory holding a
// config file.
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		if Exists(dir) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New(errors.CodeConfigRead).
				WithDetail("No " + ConfigFileName + " found in " + startDir + " or any parent directory")
		}
		dir = parent
	}
}
