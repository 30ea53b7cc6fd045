package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	APIURL         string        `yaml:"api_url" env:"CRMQ_API_URL"`
	OverlayDSN     string        `yaml:"overlay_dsn" env:"CRMQ_OVERLAY_DSN"`
	ActorEmail     string        `yaml:"actor_email" env:"CRMQ_ACTOR_EMAIL"`
	PageSize       int           `yaml:"page_size" env:"CRMQ_PAGE_SIZE"`
	PollInterval   time.Duration `yaml:"poll_interval" env:"CRMQ_POLL_INTERVAL"`
	RefetchDelay   time.Duration `yaml:"refetch_delay" env:"CRMQ_REFETCH_DELAY"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"CRMQ_REQUEST_TIMEOUT"`
	LogLevel       string        `yaml:"log_level" env:"CRMQ_LOG_LEVEL"`
	LogFormat      string        `yaml:"log_format" env:"CRMQ_LOG_FORMAT"`
	Output         string        `yaml:"output" env:"CRMQ_OUTPUT"`
	ListenAddr     string        `yaml:"listen_addr" env:"CRMQ_LISTEN_ADDR"`

	ExportDir        string `yaml:"export_dir" env:"CRMQ_EXPORT_DIR"`
	ExportS3Bucket   string `yaml:"export_s3_bucket" env:"CRMQ_EXPORT_S3_BUCKET"`
	ExportS3Region   string `yaml:"export_s3_region" env:"CRMQ_EXPORT_S3_REGION"`
	ExportS3Endpoint string `yaml:"export_s3_endpoint" env:"CRMQ_EXPORT_S3_ENDPOINT"`
	ExportS3Prefix   string `yaml:"export_s3_prefix" env:"CRMQ_EXPORT_S3_PREFIX"`

	WebhookURLs []string `yaml:"webhook_urls" env:"CRMQ_WEBHOOK_URLS" envSeparator:","`
}

// secretFiles are the _FILE variants. The env library reads the named file
// into the field.
type secretFiles struct {
	OverlayDSN string `env:"CRMQ_OVERLAY_DSN_FILE,file"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		APIURL:         "http://localhost:3000/api",
		PageSize:       10,
		PollInterval:   60 * time.Second,
		RefetchDelay:   500 * time.Millisecond,
		RequestTimeout: 30 * time.Second,
		LogLevel:       "warn",
		LogFormat:      "console",
		Output:         "table",
		ListenAddr:     ":8080",
		ExportDir:      ".",
		ExportS3Region: "us-east-1",
	}
}

// Load loads configuration from multiple sources with precedence:
// 1. Environment variables (CRMQ_*, with CRMQ_OVERLAY_DSN_FILE)
// 2. ./.env.local (dotenv) - walks up parent directories to find it
// 3. ~/.config/crmq/config.yaml (YAML)
// 4. Defaults
func Load() (*Config, error) {
	cfg := Defaults()

	if err := loadYAMLConfig(cfg); err != nil {
		return nil, err
	}

	// godotenv.Load never overrides variables already in the environment
	if envPath := findEnvLocal(); envPath != "" {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("load %s: %w", envPath, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if os.Getenv("CRMQ_OVERLAY_DSN") == "" {
		var files secretFiles
		if err := env.Parse(&files); err != nil {
			return nil, fmt.Errorf("parse environment: %w", err)
		}
		if dsn := strings.TrimSpace(files.OverlayDSN); dsn != "" {
			cfg.OverlayDSN = dsn
		}
	}

	if cfg.OverlayDSN == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.OverlayDSN = filepath.Join(homeDir, ".local", "share", "crmq", "overlay.db")
	}
	cfg.ActorEmail = strings.TrimSpace(cfg.ActorEmail)
	cfg.WebhookURLs = compact(cfg.WebhookURLs)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.APIURL == "" {
		errs = append(errs, errors.New("api_url is required"))
	}
	if c.PageSize < 1 {
		errs = append(errs, fmt.Errorf("page_size must be at least 1, got %d", c.PageSize))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval))
	}
	if c.RefetchDelay < 0 {
		errs = append(errs, fmt.Errorf("refetch_delay must not be negative, got %s", c.RefetchDelay))
	}
	if c.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("request_timeout must not be negative, got %s", c.RequestTimeout))
	}
	return errors.Join(errs...)
}

// Path returns the YAML config location.
func Path() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config", "crmq", "config.yaml"), nil
}

// loadYAMLConfig loads configuration from ~/.config/crmq/config.yaml. A
// missing file is not an error.
func loadYAMLConfig(cfg *Config) error {
	configPath, err := Path()
	if err != nil {
		return nil
	}
	data, err := os.ReadFile(configPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", configPath, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", configPath, err)
	}
	return nil
}

// findEnvLocal searches for .env.local starting from cwd and walking up
// parent directories. Stops at the user's home directory.
// Returns the path to .env.local if found, empty string otherwise.
func findEnvLocal() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		if _, err := os.Stat(".env.local"); err == nil {
			return ".env.local"
		}
		return ""
	}

	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	homeDir = filepath.Clean(homeDir)
	dir := filepath.Clean(cwd)

	for {
		envPath := filepath.Join(dir, ".env.local")
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
		if dir == homeDir {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// Actor returns the acting recruiter: the flag value if set, else the
// configured email.
func (c *Config) Actor(flag string) string {
	if flag = strings.TrimSpace(flag); flag != "" {
		return flag
	}
	return c.ActorEmail
}

func compact(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
