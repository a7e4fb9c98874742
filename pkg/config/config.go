package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable the tool reads
const EnvPrefix = "IGMONITOR_"

// Config holds all configuration options for the follower monitor
type Config struct {
	// Upstream source client
	Source SourceConfig `yaml:"source" json:"source"`

	// Request pacing
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Collector cadences and thresholds
	Collection CollectionConfig `yaml:"collection" json:"collection"`

	// Where records are kept
	Storage StorageConfig `yaml:"storage" json:"storage"`

	// Terminal output
	Output OutputConfig `yaml:"output" json:"output"`

	// Notification preferences
	Notifications NotificationConfig `yaml:"notifications" json:"notifications"`

	// Prometheus endpoint
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// SourceConfig configures the HTTP client that pages through followers and followees
type SourceConfig struct {
	BaseURL     string        `yaml:"base_url" json:"base_url"`
	UserAgent   string        `yaml:"user_agent" json:"user_agent"`
	AppID       string        `yaml:"app_id" json:"app_id"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts"`
	PageSize    int           `yaml:"page_size" json:"page_size"`
	// RequestsPerSecond feeds the client-side token bucket under the governor
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
	Account           string  `yaml:"account" json:"account"`
}

// RateLimitConfig holds the governor pacing
type RateLimitConfig struct {
	RequestsPerWindow int           `yaml:"requests_per_window" json:"requests_per_window"`
	Window            time.Duration `yaml:"window" json:"window"`
	JitterMin         time.Duration `yaml:"jitter_min" json:"jitter_min"`
	JitterMax         time.Duration `yaml:"jitter_max" json:"jitter_max"`
	BatchSize         int           `yaml:"batch_size" json:"batch_size"`
	BatchPauseMin     time.Duration `yaml:"batch_pause_min" json:"batch_pause_min"`
	BatchPauseMax     time.Duration `yaml:"batch_pause_max" json:"batch_pause_max"`
	Cooldown          time.Duration `yaml:"cooldown" json:"cooldown"`
}

// CollectionConfig holds collector cadences
type CollectionConfig struct {
	PaceEvery       int  `yaml:"pace_every" json:"pace_every"`
	CheckpointEvery int  `yaml:"checkpoint_every" json:"checkpoint_every"`
	PromptEvery     int  `yaml:"prompt_every" json:"prompt_every"`
	LargeFollowers  int  `yaml:"large_followers" json:"large_followers"`
	LargeFollowees  int  `yaml:"large_followees" json:"large_followees"`
	AssumeYes       bool `yaml:"assume_yes" json:"assume_yes"`
}

// StorageConfig selects the record backend
type StorageConfig struct {
	Backend   string `yaml:"backend" json:"backend"`
	DataDir   string `yaml:"data_dir" json:"data_dir"`
	Retention int    `yaml:"retention" json:"retention"`
}

// OutputConfig holds terminal output preferences
type OutputConfig struct {
	MaxNames int  `yaml:"max_names" json:"max_names"`
	Color    bool `yaml:"color" json:"color"`
	Quiet    bool `yaml:"quiet" json:"quiet"`
}

// NotificationConfig holds notification preferences
type NotificationConfig struct {
	Enabled          bool   `yaml:"enabled" json:"enabled"`
	OnChanges        bool   `yaml:"on_changes" json:"on_changes"`
	OnError          bool   `yaml:"on_error" json:"on_error"`
	OnRateLimit      bool   `yaml:"on_rate_limit" json:"on_rate_limit"`
	NotificationType string `yaml:"notification_type" json:"notification_type"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Address string `yaml:"address" json:"address"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	File   string `yaml:"file" json:"file"`
}

// Storage backends
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Source: SourceConfig{
			BaseURL:           "https://www.instagram.com",
			UserAgent:         "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
			AppID:             "936619743392459",
			Timeout:           300 * time.Second,
			MaxAttempts:       3,
			PageSize:          50,
			RequestsPerSecond: 0.5,
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: 15,
			Window:            60 * time.Second,
			JitterMin:         2 * time.Second,
			JitterMax:         5 * time.Second,
			BatchSize:         100,
			BatchPauseMin:     3 * time.Second,
			BatchPauseMax:     7 * time.Second,
			Cooldown:          600 * time.Second,
		},
		Collection: CollectionConfig{
			PaceEvery:       10,
			CheckpointEvery: 250,
			PromptEvery:     500,
			LargeFollowers:  10000,
			LargeFollowees:  7500,
		},
		Storage: StorageConfig{
			Backend:   BackendFile,
			DataDir:   DefaultDataDir(),
			Retention: 50,
		},
		Output: OutputConfig{
			MaxNames: 10,
			Color:    true,
		},
		Notifications: NotificationConfig{
			Enabled:          false,
			OnChanges:        true,
			OnError:          true,
			OnRateLimit:      true,
			NotificationType: "terminal",
		},
		Metrics: MetricsConfig{
			Address: "127.0.0.1:9464",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// DefaultDataDir returns the platform data directory for monitoring records
func DefaultDataDir() string {
	var base string
	switch runtime.GOOS {
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support")
	case "windows":
		base = os.Getenv("APPDATA")
	default:
		base = os.Getenv("XDG_DATA_HOME")
		if base == "" {
			base = filepath.Join(os.Getenv("HOME"), ".local", "share")
		}
	}
	if base == "" {
		return filepath.Join(".", "igmonitor-data")
	}
	return filepath.Join(base, "igmonitor")
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	setString := func(name string, dst *string) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	setDuration := func(name string, dst *time.Duration) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = d
		}
	}
	setBool := func(name string, dst *bool) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			*dst = strings.EqualFold(v, "true") || v == "1"
		}
	}

	setString("BASE_URL", &c.Source.BaseURL)
	setString("USER_AGENT", &c.Source.UserAgent)
	setString("ACCOUNT", &c.Source.Account)
	setDuration("TIMEOUT", &c.Source.Timeout)
	setInt("MAX_ATTEMPTS", &c.Source.MaxAttempts)

	setInt("REQUESTS_PER_WINDOW", &c.RateLimit.RequestsPerWindow)
	setDuration("WINDOW", &c.RateLimit.Window)
	setDuration("COOLDOWN", &c.RateLimit.Cooldown)

	setBool("ASSUME_YES", &c.Collection.AssumeYes)

	setString("BACKEND", &c.Storage.Backend)
	setString("DATA_DIR", &c.Storage.DataDir)
	setInt("RETENTION", &c.Storage.Retention)

	setBool("NOTIFICATIONS_ENABLED", &c.Notifications.Enabled)
	setBool("METRICS_ENABLED", &c.Metrics.Enabled)
	setString("METRICS_ADDRESS", &c.Metrics.Address)

	setString("LOG_LEVEL", &c.Logging.Level)
	setString("LOG_FORMAT", &c.Logging.Format)
	setString("LOG_FILE", &c.Logging.File)

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".igmonitor.yaml",
		".igmonitor.yml",
		filepath.Join(home, ".config", "igmonitor", "config.yaml"),
		filepath.Join(home, ".config", "igmonitor", "config.yml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Source.BaseURL == "" {
		errs = append(errs, errors.New("source base URL is required"))
	}
	if c.Source.Timeout <= 0 {
		errs = append(errs, errors.New("source timeout must be positive"))
	}
	if c.Source.MaxAttempts <= 0 {
		errs = append(errs, errors.New("source max attempts must be positive"))
	}
	if c.Source.PageSize <= 0 || c.Source.PageSize > 200 {
		errs = append(errs, errors.New("source page size must be between 1 and 200"))
	}

	if c.RateLimit.RequestsPerWindow <= 0 {
		errs = append(errs, errors.New("requests per window must be positive"))
	}
	if c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("rate limit window must be positive"))
	}
	if c.RateLimit.JitterMin < 0 || c.RateLimit.JitterMax < c.RateLimit.JitterMin {
		errs = append(errs, errors.New("jitter range is invalid"))
	}
	if c.RateLimit.BatchPauseMin < 0 || c.RateLimit.BatchPauseMax < c.RateLimit.BatchPauseMin {
		errs = append(errs, errors.New("batch pause range is invalid"))
	}
	if c.RateLimit.Cooldown < 0 {
		errs = append(errs, errors.New("cooldown cannot be negative"))
	}

	if c.Collection.PaceEvery <= 0 {
		errs = append(errs, errors.New("pace interval must be positive"))
	}
	if c.Collection.CheckpointEvery <= 0 {
		errs = append(errs, errors.New("checkpoint interval must be positive"))
	}
	if c.Collection.PromptEvery < 0 {
		errs = append(errs, errors.New("prompt interval cannot be negative"))
	}

	switch strings.ToLower(c.Storage.Backend) {
	case BackendFile, BackendSQLite:
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}
	if c.Storage.DataDir == "" {
		errs = append(errs, errors.New("data directory is required"))
	}
	if c.Storage.Retention < 0 {
		errs = append(errs, errors.New("retention cannot be negative"))
	}

	if c.Output.MaxNames < 0 {
		errs = append(errs, errors.New("max names cannot be negative"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "console", "json", "":
	default:
		errs = append(errs, errors.New("invalid log format"))
	}

	validNotifTypes := map[string]bool{
		"terminal": true, "desktop": true, "none": true,
	}
	if !validNotifTypes[strings.ToLower(c.Notifications.NotificationType)] {
		errs = append(errs, errors.New("invalid notification type"))
	}

	return errors.Join(errs...)
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration.
// Only flags the user actually set should be present in the map.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["data-dir"].(string); ok && v != "" {
		c.Storage.DataDir = v
	}
	if v, ok := flags["backend"].(string); ok && v != "" {
		c.Storage.Backend = v
	}
	if v, ok := flags["account"].(string); ok && v != "" {
		c.Source.Account = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := flags["yes"].(bool); ok && v {
		c.Collection.AssumeYes = true
	}
	if v, ok := flags["quiet"].(bool); ok && v {
		c.Output.Quiet = true
	}
	if v, ok := flags["no-color"].(bool); ok && v {
		c.Output.Color = false
	}
	if v, ok := flags["max-names"].(int); ok && v > 0 {
		c.Output.MaxNames = v
	}
	if v, ok := flags["metrics-addr"].(string); ok && v != "" {
		c.Metrics.Enabled = true
		c.Metrics.Address = v
	}
	if v, ok := flags["notify"].(bool); ok && v {
		c.Notifications.Enabled = true
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".igmonitor.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
