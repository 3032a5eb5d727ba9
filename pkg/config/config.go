// Package config provides configuration management for the results importer
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/bttc/roundrobin/pkg/errors"
	"github.com/bttc/roundrobin/pkg/interfaces"
)

// DefaultEnvPrefix is the prefix for environment overrides (RR_POLICY_MAX_RATING, ...)
const DefaultEnvPrefix = "RR"

// Policy holds the extraction thresholds shared by parsers and validator
type Policy struct {
	MissingMatchTolerance float64 `mapstructure:"missing_match_tolerance" yaml:"missing_match_tolerance" json:"missing_match_tolerance" validate:"gte=0,lte=1"`
	MinRating             int     `mapstructure:"min_rating" yaml:"min_rating" json:"min_rating" validate:"gt=0"`
	MaxRating             int     `mapstructure:"max_rating" yaml:"max_rating" json:"max_rating" validate:"gtfield=MinRating"`
	MaxGameScore          int     `mapstructure:"max_game_score" yaml:"max_game_score" json:"max_game_score" validate:"gt=0"`
	DefaultWinScore       int     `mapstructure:"default_win_score" yaml:"default_win_score" json:"default_win_score" validate:"gt=0,ltefield=MaxGameScore"`
	OCRMinPageChars       int     `mapstructure:"ocr_min_page_chars" yaml:"ocr_min_page_chars" json:"ocr_min_page_chars" validate:"gte=0"`
	OCRMinTextChars       int     `mapstructure:"ocr_min_text_chars" yaml:"ocr_min_text_chars" json:"ocr_min_text_chars" validate:"gte=0"`
	MaxRosterRows         int     `mapstructure:"max_roster_rows" yaml:"max_roster_rows" json:"max_roster_rows" validate:"gt=2"`
	ScoreStartColumn      int     `mapstructure:"score_start_column" yaml:"score_start_column" json:"score_start_column" validate:"gte=2"`
	MetadataScanChars     int     `mapstructure:"metadata_scan_chars" yaml:"metadata_scan_chars" json:"metadata_scan_chars" validate:"gt=0"`
}

// DefaultPolicy returns the thresholds the results documents were tuned against
func DefaultPolicy() Policy {
	return Policy{
		MissingMatchTolerance: 0.2,
		MinRating:             500,
		MaxRating:             3500,
		MaxGameScore:          5,
		DefaultWinScore:       3,
		OCRMinPageChars:       10,
		OCRMinTextChars:       100,
		MaxRosterRows:         20,
		ScoreStartColumn:      4,
		MetadataScanChars:     500,
	}
}

// FetchConfig configures the HTTP fetcher and results index
type FetchConfig struct {
	BaseURL       string        `mapstructure:"base_url" yaml:"base_url" json:"base_url" validate:"required,url"`
	IndexPath     string        `mapstructure:"index_path" yaml:"index_path" json:"index_path" validate:"required"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout" validate:"gt=0"`
	RetryAttempts uint          `mapstructure:"retry_attempts" yaml:"retry_attempts" json:"retry_attempts" validate:"gte=1"`
	RetryDelay    time.Duration `mapstructure:"retry_delay" yaml:"retry_delay" json:"retry_delay"`
	RateLimit     float64       `mapstructure:"rate_limit" yaml:"rate_limit" json:"rate_limit" validate:"gte=0"`
	UserAgent     string        `mapstructure:"user_agent" yaml:"user_agent,omitempty" json:"user_agent,omitempty"`
}

// IndexURL returns the absolute results index URL
func (f FetchConfig) IndexURL() string {
	return strings.TrimRight(f.BaseURL, "/") + "/" + strings.TrimLeft(f.IndexPath, "/")
}

// OCRConfig configures the optional OCR service client
type OCRConfig struct {
	Enabled    bool          `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Endpoint   string        `mapstructure:"endpoint" yaml:"endpoint,omitempty" json:"endpoint,omitempty" validate:"omitempty,url"`
	APIKey     string        `mapstructure:"api_key" yaml:"api_key,omitempty" json:"api_key,omitempty"`
	Language   string        `mapstructure:"language" yaml:"language" json:"language"`
	DPI        int           `mapstructure:"dpi" yaml:"dpi" json:"dpi" validate:"gte=0"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	MaxElapsed time.Duration `mapstructure:"max_elapsed" yaml:"max_elapsed" json:"max_elapsed"`
}

// StoreConfig configures the persistence adapter
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path" json:"path" validate:"required"`
}

// ImportConfig configures the import orchestration
type ImportConfig struct {
	Workers      int  `mapstructure:"workers" yaml:"workers" json:"workers" validate:"gte=1,lte=32"`
	SkipExisting bool `mapstructure:"skip_existing" yaml:"skip_existing" json:"skip_existing"`
}

// SchedulerConfig configures the weekly scheduled import
type SchedulerConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Weekday  string `mapstructure:"weekday" yaml:"weekday" json:"weekday" validate:"oneof=sunday monday tuesday wednesday thursday friday saturday"`
	At       string `mapstructure:"at" yaml:"at" json:"at" validate:"required"`
	Location string `mapstructure:"location" yaml:"location" json:"location" validate:"required"`
	Lookback int    `mapstructure:"lookback_days" yaml:"lookback_days" json:"lookback_days" validate:"gte=1"`
}

// Config is the root configuration of the importer
type Config struct {
	Policy    Policy          `mapstructure:"policy" yaml:"policy" json:"policy"`
	Fetch     FetchConfig     `mapstructure:"fetch" yaml:"fetch" json:"fetch"`
	OCR       OCRConfig       `mapstructure:"ocr" yaml:"ocr" json:"ocr"`
	Store     StoreConfig     `mapstructure:"store" yaml:"store" json:"store"`
	Import    ImportConfig    `mapstructure:"import" yaml:"import" json:"import"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" yaml:"scheduler" json:"scheduler"`
	LogLevel  string          `mapstructure:"log_level" yaml:"log_level" json:"log_level" validate:"oneof=debug info warn error fatal"`
	LogFile   string          `mapstructure:"log_file" yaml:"log_file,omitempty" json:"log_file,omitempty"`
}

// NewConfig creates a configuration with defaults
func NewConfig() *Config {
	return &Config{
		Policy: DefaultPolicy(),
		Fetch: FetchConfig{
			BaseURL:       "https://berkeleytabletennis.org",
			IndexPath:     "/results",
			Timeout:       10 * time.Second,
			RetryAttempts: 3,
			RetryDelay:    time.Second,
			RateLimit:     2,
			UserAgent:     "rrimport/1.0",
		},
		OCR: OCRConfig{
			Language:   "eng",
			DPI:        300,
			Timeout:    60 * time.Second,
			MaxElapsed: 2 * time.Minute,
		},
		Store: StoreConfig{
			Path: "data/roundrobin.db",
		},
		Import: ImportConfig{
			Workers:      5,
			SkipExisting: true,
		},
		Scheduler: SchedulerConfig{
			Weekday:  "friday",
			At:       "00:00",
			Location: "America/Los_Angeles",
			Lookback: 14,
		},
		LogLevel: "info",
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.NewConfigInvalidError("invalid configuration", err)
	}
	if c.OCR.Enabled && c.OCR.Endpoint == "" {
		return errors.NewConfigInvalidError("ocr.endpoint is required when ocr is enabled", nil)
	}
	if _, _, err := c.Scheduler.Clock(); err != nil {
		return errors.NewConfigInvalidError("invalid scheduler time", err)
	}
	return nil
}

// Clock parses the HH:MM run time
func (s SchedulerConfig) Clock() (hour, minute uint, err error) {
	t, err := time.Parse("15:04", s.At)
	if err != nil {
		return 0, 0, fmt.Errorf("scheduler.at %q: %w", s.At, err)
	}
	return uint(t.Hour()), uint(t.Minute()), nil
}

// Day returns the configured run day
func (s SchedulerConfig) Day() time.Weekday {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), s.Weekday) {
			return d
		}
	}
	return time.Friday
}

// FromYAMLFile loads configuration from a YAML file over the current values
func (c *Config) FromYAMLFile(path string) error {
	return c.fromFile(path, "yaml")
}

// FromJSONFile loads configuration from a JSON file over the current values
func (c *Config) FromJSONFile(path string) error {
	return c.fromFile(path, "json")
}

func (c *Config) fromFile(path, kind string) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType(kind)

	if err := v.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			return errors.NewConfigNotFoundError(path)
		}
		return errors.NewConfigInvalidError("failed to read config file", err)
	}

	return v.Unmarshal(c)
}

// ToYAMLFile saves configuration to a YAML file
func (c *Config) ToYAMLFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// Load builds the effective configuration: defaults, then the optional file,
// then environment variables under envPrefix
func Load(path, envPrefix string) (*Config, error) {
	cfg := NewConfig()

	v := LoadFromEnv(envPrefix)
	setDefaults(v, cfg)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
				return nil, errors.NewConfigNotFoundError(path)
			}
			return nil, errors.NewConfigInvalidError("failed to read config file", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.NewConfigInvalidError("failed to decode config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it during Unmarshal
func setDefaults(v *viper.Viper, cfg *Config) {
	p := cfg.Policy
	v.SetDefault("policy.missing_match_tolerance", p.MissingMatchTolerance)
	v.SetDefault("policy.min_rating", p.MinRating)
	v.SetDefault("policy.max_rating", p.MaxRating)
	v.SetDefault("policy.max_game_score", p.MaxGameScore)
	v.SetDefault("policy.default_win_score", p.DefaultWinScore)
	v.SetDefault("policy.ocr_min_page_chars", p.OCRMinPageChars)
	v.SetDefault("policy.ocr_min_text_chars", p.OCRMinTextChars)
	v.SetDefault("policy.max_roster_rows", p.MaxRosterRows)
	v.SetDefault("policy.score_start_column", p.ScoreStartColumn)
	v.SetDefault("policy.metadata_scan_chars", p.MetadataScanChars)

	f := cfg.Fetch
	v.SetDefault("fetch.base_url", f.BaseURL)
	v.SetDefault("fetch.index_path", f.IndexPath)
	v.SetDefault("fetch.timeout", f.Timeout)
	v.SetDefault("fetch.retry_attempts", f.RetryAttempts)
	v.SetDefault("fetch.retry_delay", f.RetryDelay)
	v.SetDefault("fetch.rate_limit", f.RateLimit)
	v.SetDefault("fetch.user_agent", f.UserAgent)

	o := cfg.OCR
	v.SetDefault("ocr.enabled", o.Enabled)
	v.SetDefault("ocr.endpoint", o.Endpoint)
	v.SetDefault("ocr.api_key", o.APIKey)
	v.SetDefault("ocr.language", o.Language)
	v.SetDefault("ocr.dpi", o.DPI)
	v.SetDefault("ocr.timeout", o.Timeout)
	v.SetDefault("ocr.max_elapsed", o.MaxElapsed)

	v.SetDefault("store.path", cfg.Store.Path)
	v.SetDefault("import.workers", cfg.Import.Workers)
	v.SetDefault("import.skip_existing", cfg.Import.SkipExisting)

	s := cfg.Scheduler
	v.SetDefault("scheduler.enabled", s.Enabled)
	v.SetDefault("scheduler.weekday", s.Weekday)
	v.SetDefault("scheduler.at", s.At)
	v.SetDefault("scheduler.location", s.Location)
	v.SetDefault("scheduler.lookback_days", s.Lookback)

	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_file", cfg.LogFile)
}

// ConfigManager implements the configuration manager interface
type ConfigManager struct {
	config map[string]interface{}
	mu     sync.RWMutex
	viper  *viper.Viper
}

// NewConfigManager creates a new configuration manager
func NewConfigManager() interfaces.ConfigManager {
	return &ConfigManager{
		config: make(map[string]interface{}),
		viper:  viper.New(),
	}
}

// Load loads configuration from a file
func (cm *ConfigManager) Load(ctx context.Context, path string) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.viper.SetConfigFile(path)
	if err := cm.viper.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	cm.config = cm.viper.AllSettings()
	return nil
}

// Get retrieves a configuration value
func (cm *ConfigManager) Get(key string) interface{} {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	return cm.viper.Get(key)
}

// Set sets a configuration value
func (cm *ConfigManager) Set(key string, value interface{}) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.viper.Set(key, value)
	cm.config[key] = value
	return nil
}

// Save saves configuration to a file
func (cm *ConfigManager) Save(ctx context.Context, path string) error {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	return cm.viper.WriteConfigAs(path)
}

// Policy decodes the current policy section over the defaults
func (cm *ConfigManager) Policy() (Policy, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	cfg := NewConfig()
	if err := cm.viper.Unmarshal(cfg); err != nil {
		return Policy{}, errors.NewConfigInvalidError("failed to decode policy", err)
	}
	if err := validator.New().Struct(cfg.Policy); err != nil {
		return Policy{}, errors.NewConfigInvalidError("invalid policy", err)
	}
	return cfg.Policy, nil
}

// Watch reports changed top-level keys whenever the loaded file is rewritten
func (cm *ConfigManager) Watch(ctx context.Context, callback func(key string, value interface{})) error {
	cm.viper.OnConfigChange(func(e fsnotify.Event) {
		if ctx.Err() != nil {
			return
		}
		cm.mu.Lock()
		cm.config = cm.viper.AllSettings()
		settings := make(map[string]interface{}, len(cm.config))
		for key, value := range cm.config {
			settings[key] = value
		}
		cm.mu.Unlock()

		for key, value := range settings {
			callback(key, value)
		}
	})
	cm.viper.WatchConfig()

	return nil
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv(prefix string) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(prefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return v
}
