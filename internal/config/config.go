package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/dgallion1/standoffalign/internal/standoff"
	"github.com/dgallion1/standoffalign/internal/streams"
)

// ConfigFileEnv names the env var holding an optional TOML config path.
const ConfigFileEnv = "STANDOFFALIGN_CONFIG"

type Config struct {
	Port string

	// Auth for the HTTP API
	APIKey string

	// Block stores (stream folders with url/text/deferred files)
	SourceDir   string
	TargetDir   string
	Compression string

	// Alignment
	Continuation string
	Strict       bool
	MaxLineBytes int

	// Output
	OutputFormat string
	ResultDB     string

	// Job queue
	WorkerCount    int
	MaxQueueSize   int
	MaxUploadBytes int64
	JobTTL         time.Duration
	StatsWindow    time.Duration

	LogLevel string
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Port:           "8090",
		Compression:    string(streams.Gzip),
		Continuation:   standoff.ContinueAtSpanStart.String(),
		MaxLineBytes:   64 * 1024 * 1024,
		OutputFormat:   "text",
		ResultDB:       "standoffalign.db",
		WorkerCount:    4,
		MaxQueueSize:   100,
		MaxUploadBytes: 52428800, // 50MB
		JobTTL:         1 * time.Hour,
		StatsWindow:    1 * time.Hour,
		LogLevel:       "info",
	}
}

// Load builds the configuration from defaults, a .env file in the working
// directory (if any), the TOML file named by STANDOFFALIGN_CONFIG (if set)
// and finally the environment, later sources winning.
func Load() (Config, error) {
	// Best-effort: a missing .env is fine.
	_ = godotenv.Load()

	cfg := Defaults()
	if path := os.Getenv(ConfigFileEnv); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return cfg, err
		}
	}
	cfg.applyEnv()
	cfg.fillDefaults()
	return cfg, nil
}

// fileConfig is the TOML layout. Durations are strings such as "30m".
type fileConfig struct {
	Port           string `toml:"port"`
	APIKey         string `toml:"api_key"`
	SourceDir      string `toml:"source_dir"`
	TargetDir      string `toml:"target_dir"`
	Compression    string `toml:"compression"`
	Continuation   string `toml:"continuation"`
	Strict         *bool  `toml:"strict"`
	MaxLineBytes   int    `toml:"max_line_bytes"`
	OutputFormat   string `toml:"output_format"`
	ResultDB       string `toml:"result_db"`
	WorkerCount    int    `toml:"worker_count"`
	MaxQueueSize   int    `toml:"max_queue_size"`
	MaxUploadBytes int64  `toml:"max_upload_bytes"`
	JobTTL         string `toml:"job_ttl"`
	StatsWindow    string `toml:"stats_window"`
	LogLevel       string `toml:"log_level"`
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var f fileConfig
	if err := toml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	setString(&c.Port, f.Port)
	setString(&c.APIKey, f.APIKey)
	setString(&c.SourceDir, f.SourceDir)
	setString(&c.TargetDir, f.TargetDir)
	setString(&c.Compression, f.Compression)
	setString(&c.Continuation, f.Continuation)
	if f.Strict != nil {
		c.Strict = *f.Strict
	}
	if f.MaxLineBytes > 0 {
		c.MaxLineBytes = f.MaxLineBytes
	}
	setString(&c.OutputFormat, f.OutputFormat)
	setString(&c.ResultDB, f.ResultDB)
	if f.WorkerCount > 0 {
		c.WorkerCount = f.WorkerCount
	}
	if f.MaxQueueSize > 0 {
		c.MaxQueueSize = f.MaxQueueSize
	}
	if f.MaxUploadBytes > 0 {
		c.MaxUploadBytes = f.MaxUploadBytes
	}
	for _, d := range []struct {
		raw string
		dst *time.Duration
		key string
	}{
		{f.JobTTL, &c.JobTTL, "job_ttl"},
		{f.StatsWindow, &c.StatsWindow, "stats_window"},
	} {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("parse config %s: %s: %w", path, d.key, err)
		}
		*d.dst = v
	}
	setString(&c.LogLevel, f.LogLevel)
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func (c *Config) applyEnv() {
	c.Port = envOr("PORT", c.Port)
	c.APIKey = envOr("STANDOFFALIGN_API_KEY", c.APIKey)

	c.SourceDir = envOr("SOURCE_DIR", c.SourceDir)
	c.TargetDir = envOr("TARGET_DIR", c.TargetDir)
	c.Compression = envOr("STREAM_COMPRESSION", c.Compression)

	c.Continuation = envOr("STANDOFF_CONTINUATION", c.Continuation)
	c.Strict = envBool("STRICT_RECORDS", c.Strict)
	c.MaxLineBytes = envInt("MAX_LINE_BYTES", c.MaxLineBytes)

	c.OutputFormat = envOr("OUTPUT_FORMAT", c.OutputFormat)
	c.ResultDB = envOr("RESULT_DB", c.ResultDB)

	c.WorkerCount = envInt("WORKER_COUNT", c.WorkerCount)
	c.MaxQueueSize = envInt("MAX_QUEUE_SIZE", c.MaxQueueSize)
	c.MaxUploadBytes = envInt64("MAX_UPLOAD_BYTES", c.MaxUploadBytes)
	c.JobTTL = envDuration("JOB_TTL", c.JobTTL)
	c.StatsWindow = envDuration("STATS_WINDOW", c.StatsWindow)

	c.LogLevel = envOr("LOG_LEVEL", c.LogLevel)
}

func (c *Config) fillDefaults() {
	d := Defaults()
	if c.WorkerCount <= 0 {
		c.WorkerCount = d.WorkerCount
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = d.MaxQueueSize
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = d.MaxUploadBytes
	}
	if c.MaxLineBytes <= 0 {
		c.MaxLineBytes = d.MaxLineBytes
	}
	if c.JobTTL <= 0 {
		c.JobTTL = d.JobTTL
	}
	if c.StatsWindow <= 0 {
		c.StatsWindow = d.StatsWindow
	}
}

// Validate checks settings shared by every command.
func (c Config) Validate() error {
	if _, err := standoff.ParsePolicy(c.Continuation); err != nil {
		return err
	}
	if _, err := streams.ParseCompression(c.Compression); err != nil {
		return err
	}
	switch c.OutputFormat {
	case "text", "jsonl", "sqlite":
	default:
		return fmt.Errorf("unknown output format %q (want text, jsonl or sqlite)", c.OutputFormat)
	}
	if c.OutputFormat == "sqlite" && c.ResultDB == "" {
		return fmt.Errorf("RESULT_DB is required for sqlite output")
	}
	return nil
}

// ValidateServe additionally checks what the HTTP service needs.
func (c Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.APIKey == "" {
		return fmt.Errorf("STANDOFFALIGN_API_KEY is required")
	}
	if c.SourceDir == "" || c.TargetDir == "" {
		return fmt.Errorf("SOURCE_DIR and TARGET_DIR are required")
	}
	return nil
}

// Policy returns the parsed standoff continuation policy.
func (c Config) Policy() standoff.Policy {
	p, _ := standoff.ParsePolicy(c.Continuation)
	return p
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
