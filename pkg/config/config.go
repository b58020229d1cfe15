package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Provider error policies
const (
	OnProviderErrorSkipKeyword = "skip_keyword"
	OnProviderErrorAbortRun    = "abort_run"
)

// Config holds all configuration options for the pixiv crawler
type Config struct {
	// pixiv credentials
	Pixiv PixivConfig `yaml:"pixiv" json:"pixiv"`

	// Keyword scan settings
	Crawl CrawlConfig `yaml:"crawl" json:"crawl"`

	// Search API pacing
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Output settings
	Output OutputConfig `yaml:"output" json:"output"`

	// Download settings
	Download DownloadConfig `yaml:"download" json:"download"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// PixivConfig holds pixiv-specific configuration
type PixivConfig struct {
	Account      string `yaml:"account" json:"account"`
	RefreshToken string `yaml:"refresh_token" json:"refresh_token"`
	UserAgent    string `yaml:"user_agent" json:"user_agent"`

	// Endpoint overrides, empty means the public pixiv endpoints
	AuthURL    string `yaml:"auth_url,omitempty" json:"auth_url,omitempty"`
	APIBaseURL string `yaml:"api_base_url,omitempty" json:"api_base_url,omitempty"`
}

// CrawlConfig holds the run parameters of a crawl
type CrawlConfig struct {
	Keywords        []string `yaml:"keywords" json:"keywords"`
	MaxItems        int      `yaml:"max_items" json:"max_items"`
	MaxPages        int      `yaml:"max_pages" json:"max_pages"`
	OnProviderError string   `yaml:"on_provider_error" json:"on_provider_error"`
	SearchTarget    string   `yaml:"search_target" json:"search_target"`
	Sort            string   `yaml:"sort" json:"sort"`
}

// RateLimitConfig holds pacing for search API calls
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// OutputConfig holds output directory configuration
type OutputConfig struct {
	BaseDirectory     string `yaml:"base_directory" json:"base_directory"`
	IllustrationsDir  string `yaml:"illustrations_dir" json:"illustrations_dir"`
	RecordFile        string `yaml:"record_file" json:"record_file"`
	OverwriteExisting bool   `yaml:"overwrite_existing" json:"overwrite_existing"`
}

// DownloadConfig holds download-specific configuration
type DownloadConfig struct {
	Workers    int           `yaml:"workers" json:"workers"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"` // 0 means the HTTP client default
	SourceHost string        `yaml:"source_host" json:"source_host"`
	MirrorHost string        `yaml:"mirror_host" json:"mirror_host"`
	UserAgent  string        `yaml:"user_agent" json:"user_agent"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
	JSON  bool   `yaml:"json" json:"json"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Pixiv: PixivConfig{
			UserAgent: "PixivIOSApp/7.13.3 (iOS 14.6; iPhone13,2)",
		},
		Crawl: CrawlConfig{
			MaxItems:        50000,
			MaxPages:        1000,
			OnProviderError: OnProviderErrorSkipKeyword,
			SearchTarget:    "partial_match_for_tags",
			Sort:            "date_desc",
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
		},
		Output: OutputConfig{
			BaseDirectory:     ".",
			IllustrationsDir:  "Illustrations",
			RecordFile:        "illust_data.csv",
			OverwriteExisting: false,
		},
		Download: DownloadConfig{
			Workers:    10,
			Timeout:    0,
			SourceHost: "i.pximg.net",
			MirrorHost: "i.pixiv.cat",
			UserAgent:  "Mozilla/5.0",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// IllustrationsPath returns the directory downloads are written to
func (c *Config) IllustrationsPath() string {
	return filepath.Join(c.Output.BaseDirectory, c.Output.IllustrationsDir)
}

// RecordPath returns the path of the persisted dedup record
func (c *Config) RecordPath() string {
	if filepath.IsAbs(c.Output.RecordFile) {
		return c.Output.RecordFile
	}
	return filepath.Join(c.Output.BaseDirectory, c.Output.RecordFile)
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if token := os.Getenv("PIXIVCRAWL_REFRESH_TOKEN"); token != "" {
		c.Pixiv.RefreshToken = token
	}
	if account := os.Getenv("PIXIVCRAWL_ACCOUNT"); account != "" {
		c.Pixiv.Account = account
	}

	if keywords := os.Getenv("PIXIVCRAWL_KEYWORDS"); keywords != "" {
		c.Crawl.Keywords = splitKeywords(keywords)
	}
	if v, ok, err := envInt("PIXIVCRAWL_MAX_ITEMS"); err != nil {
		return err
	} else if ok {
		c.Crawl.MaxItems = v
	}
	if v, ok, err := envInt("PIXIVCRAWL_MAX_PAGES"); err != nil {
		return err
	} else if ok {
		c.Crawl.MaxPages = v
	}
	if policy := os.Getenv("PIXIVCRAWL_ON_PROVIDER_ERROR"); policy != "" {
		c.Crawl.OnProviderError = policy
	}

	if v, ok, err := envInt("PIXIVCRAWL_REQUESTS_PER_MINUTE"); err != nil {
		return err
	} else if ok {
		c.RateLimit.RequestsPerMinute = v
	}

	if outputDir := os.Getenv("PIXIVCRAWL_OUTPUT_DIR"); outputDir != "" {
		c.Output.BaseDirectory = outputDir
	}
	if overwrite := os.Getenv("PIXIVCRAWL_OVERWRITE_EXISTING"); overwrite != "" {
		c.Output.OverwriteExisting = strings.ToLower(overwrite) == "true"
	}

	if v, ok, err := envInt("PIXIVCRAWL_WORKERS"); err != nil {
		return err
	} else if ok {
		c.Download.Workers = v
	}
	if mirror := os.Getenv("PIXIVCRAWL_MIRROR_HOST"); mirror != "" {
		c.Download.MirrorHost = mirror
	}

	if logLevel := os.Getenv("PIXIVCRAWL_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
	if logFile := os.Getenv("PIXIVCRAWL_LOG_FILE"); logFile != "" {
		c.Logging.File = logFile
	}

	return nil
}

func envInt(key string) (int, bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, true, nil
}

func splitKeywords(raw string) []string {
	var keywords []string
	for _, kw := range strings.Split(raw, ",") {
		if kw = strings.TrimSpace(kw); kw != "" {
			keywords = append(keywords, kw)
		}
	}
	return keywords
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil
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
		"pixivcrawl.yaml",
		".pixivcrawl.yaml",
		".pixivcrawl.yml",
		filepath.Join(home, ".config", "pixivcrawl", "config.yaml"),
		filepath.Join(home, ".config", "pixivcrawl", "config.yml"),
		filepath.Join(home, ".pixivcrawl.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid. Credentials are checked
// separately because they may come from the credential store.
func (c *Config) Validate() error {
	var errs []error

	if c.Crawl.MaxItems <= 0 {
		errs = append(errs, errors.New("max items must be positive"))
	}
	if c.Crawl.MaxPages <= 0 {
		errs = append(errs, errors.New("max pages must be positive"))
	}
	switch c.Crawl.OnProviderError {
	case OnProviderErrorSkipKeyword, OnProviderErrorAbortRun:
	default:
		errs = append(errs, fmt.Errorf("invalid on_provider_error %q (want %s or %s)",
			c.Crawl.OnProviderError, OnProviderErrorSkipKeyword, OnProviderErrorAbortRun))
	}

	if c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}

	if c.Download.Workers <= 0 {
		errs = append(errs, errors.New("workers must be positive"))
	}
	if c.Download.Workers > 64 {
		errs = append(errs, errors.New("workers should not exceed 64"))
	}
	if c.Download.Timeout < 0 {
		errs = append(errs, errors.New("download timeout cannot be negative"))
	}

	if c.Output.BaseDirectory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}
	if c.Output.IllustrationsDir == "" {
		errs = append(errs, errors.New("illustrations directory is required"))
	}
	if c.Output.RecordFile == "" {
		errs = append(errs, errors.New("record file is required"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
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

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if keywords, ok := flags["keywords"].([]string); ok && len(keywords) > 0 {
		c.Crawl.Keywords = keywords
	}
	if maxItems, ok := flags["max-items"].(int); ok && maxItems > 0 {
		c.Crawl.MaxItems = maxItems
	}
	if maxPages, ok := flags["max-pages"].(int); ok && maxPages > 0 {
		c.Crawl.MaxPages = maxPages
	}
	if policy, ok := flags["on-provider-error"].(string); ok && policy != "" {
		c.Crawl.OnProviderError = policy
	}
	if outputDir, ok := flags["output"].(string); ok && outputDir != "" {
		c.Output.BaseDirectory = outputDir
	}
	if overwrite, ok := flags["overwrite"].(bool); ok {
		c.Output.OverwriteExisting = overwrite
	}
	if workers, ok := flags["workers"].(int); ok && workers > 0 {
		c.Download.Workers = workers
	}
	if account, ok := flags["account"].(string); ok && account != "" {
		c.Pixiv.Account = account
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Missing .env files are fine
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".pixivcrawl.env"))

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
