// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const defaultSiteHeader = "Hi, I'm Yotam, designer working with AI and the web."

// Config holds everything a sync run needs.
type Config struct {
	// Remote store
	DriveFolderID      string
	ServiceAccountJSON string
	ServiceAccountFile string
	ServiceAccountARN  string
	ExportFormat       string
	CrawlConcurrency   int

	// Local state and outputs
	ContentDir   string
	ErrorLogPath string
	JournalPath  string

	// Asset host
	AssetBucket    string
	AssetPrefix    string
	AssetPublicURL string
	S3Endpoint     string
	S3Region       string
	S3AccessKey    string
	S3SecretKey    string

	// Generative service
	AnthropicAPIKey string
	AnthropicModel  string

	// Pipeline
	PruneThreshold int
	SiteHeader     string
	IntroDocName   string

	// Observability
	LogLevel       string
	LogFormat      string
	LogOutput      string
	PushgatewayURL string
}

// Load reads configuration from environment variables with defaults.
// A set but malformed numeric variable is an error.
func Load() (*Config, error) {
	cfg := Defaults()
	var err error

	cfg.DriveFolderID = os.Getenv("DRIVE_FOLDER_ID")
	cfg.ServiceAccountJSON = os.Getenv("GOOGLE_SERVICE_ACCOUNT")
	cfg.ServiceAccountARN = os.Getenv("GOOGLE_SERVICE_ACCOUNT_SECRET")
	cfg.ServiceAccountFile = envOr("GOOGLE_SERVICE_ACCOUNT_FILE", cfg.ServiceAccountFile)
	cfg.ExportFormat = envOr("DRIVE_EXPORT_FORMAT", cfg.ExportFormat)
	if cfg.CrawlConcurrency, err = envInt("CRAWL_CONCURRENCY", cfg.CrawlConcurrency); err != nil {
		return nil, err
	}

	cfg.ContentDir = envOr("CONTENT_DIR", cfg.ContentDir)
	cfg.ErrorLogPath = envOr("ERROR_LOG", cfg.ErrorLogPath)
	cfg.JournalPath = envOr("JOURNAL_DB", cfg.JournalPath)

	cfg.AssetBucket = os.Getenv("ASSET_BUCKET")
	cfg.AssetPrefix = envOr("ASSET_PREFIX", cfg.AssetPrefix)
	cfg.AssetPublicURL = os.Getenv("ASSET_PUBLIC_URL")
	cfg.S3Endpoint = os.Getenv("S3_ENDPOINT")
	cfg.S3Region = envOr("S3_REGION", cfg.S3Region)
	cfg.S3AccessKey = os.Getenv("S3_ACCESS_KEY")
	cfg.S3SecretKey = os.Getenv("S3_SECRET_KEY")

	cfg.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	cfg.AnthropicModel = envOr("ANTHROPIC_MODEL", cfg.AnthropicModel)

	if cfg.PruneThreshold, err = envInt("PRUNE_THRESHOLD", cfg.PruneThreshold); err != nil {
		return nil, err
	}
	cfg.SiteHeader = envOr("SITE_HEADER", cfg.SiteHeader)
	cfg.IntroDocName = envOr("INTRO_DOC_NAME", cfg.IntroDocName)

	cfg.LogLevel = envOr("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = envOr("LOG_FORMAT", cfg.LogFormat)
	cfg.LogOutput = envOr("LOG_OUTPUT", cfg.LogOutput)
	cfg.PushgatewayURL = os.Getenv("PUSHGATEWAY_URL")

	return cfg, nil
}

// Defaults returns a Config with every optional field populated.
func Defaults() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		ServiceAccountFile: "service-account.json",
		ExportFormat:       "text",
		CrawlConcurrency:   4,
		ContentDir:         filepath.Join("public", "content"),
		ErrorLogPath:       ".upload-errors.log",
		JournalPath:        filepath.Join(home, ".folio", "runs.db"),
		AssetPrefix:        "drive-portfolio",
		S3Region:           "us-east-1",
		AnthropicModel:     "claude-sonnet-4-20250514",
		PruneThreshold:     10,
		SiteHeader:         defaultSiteHeader,
		IntroDocName:       "_intro",
		LogLevel:           "info",
		LogFormat:          "console",
		LogOutput:          "stderr",
	}
}

// ValidateSync checks the keys a sync run cannot do without.
func (c *Config) ValidateSync() error {
	if c.DriveFolderID == "" {
		return fmt.Errorf("DRIVE_FOLDER_ID is required")
	}
	if c.AssetBucket == "" {
		return fmt.Errorf("ASSET_BUCKET is required")
	}
	if c.AssetPublicURL == "" {
		return fmt.Errorf("ASSET_PUBLIC_URL is required")
	}
	if c.ExportFormat != "text" && c.ExportFormat != "html" {
		return fmt.Errorf("DRIVE_EXPORT_FORMAT must be text or html, got %q", c.ExportFormat)
	}
	if c.PruneThreshold < 0 {
		return fmt.Errorf("PRUNE_THRESHOLD must not be negative")
	}
	if c.CrawlConcurrency < 1 {
		return fmt.Errorf("CRAWL_CONCURRENCY must be at least 1")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not an integer: %w", key, v, err)
	}
	return n, nil
}
