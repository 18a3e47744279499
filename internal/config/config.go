package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/MimeLyc/mineru-batch/internal/failure"
	"github.com/MimeLyc/mineru-batch/internal/mineru"
	"github.com/MimeLyc/mineru-batch/pkg/icron"
	"github.com/MimeLyc/mineru-batch/pkg/log"
)

// Config holds all settings of one invocation.
//
// Environment Variables:
// - MINERU_TOKEN: API token (required)
// - MINERU_API_BASE: API base URL (default: https://mineru.net/api/v4)
// - MINERU_CONCURRENCY: documents in flight (default: 5)
// - MINERU_BATCH_SIZE: files per upload batch (default: 1)
// - MINERU_POLL_INTERVAL: status poll interval, "5s" or seconds (default: 5s)
// - MINERU_TIMEOUT: per-document timeout, "10m" or seconds (default: 10m)
// - MINERU_BATCH_TIMEOUT: whole-run timeout, 0 for none (default: 0)
// - MINERU_RETRIES: attempts per remote operation (default: 5)
// - MINERU_MODEL: pipeline, vlm or MinerU-HTML (default: vlm)
// - MINERU_LANGUAGE: OCR language hint (optional)
// - MINERU_OUTPUT_DIR: output root (default: ./output)
// - MINERU_SCHEDULE: cron expression for scheduled runs (optional)
// - SETTINGS_FILE: JSON settings file (optional)
// - LOG_LEVEL: debug, info, warn or error (default: info)
// - LOG_FILE: also append logs to this file (optional)
type Config struct {
	API     APIConfig     `json:"api"`
	Input   InputConfig   `json:"input"`
	Output  OutputConfig  `json:"output"`
	Convert ConvertConfig `json:"convert"`
	Run     RunConfig     `json:"run"`
	Log     LogConfig     `json:"log"`
}

type APIConfig struct {
	Token         string        `json:"-"`
	BaseURL       string        `json:"base_url"`
	Timeout       time.Duration `json:"timeout"`
	UploadTimeout time.Duration `json:"upload_timeout"`
	MaxAttempts   int           `json:"max_attempts"`
}

// InputConfig selects the documents. Exactly one of URL, File, Dir and
// URLsFile is set.
type InputConfig struct {
	URL       string `json:"url"`
	File      string `json:"file"`
	Dir       string `json:"dir"`
	URLsFile  string `json:"urls_file"`
	Recursive bool   `json:"recursive"`
}

type OutputConfig struct {
	Dir    string `json:"dir"`
	Resume bool   `json:"resume"`
}

type ConvertConfig struct {
	Model         string `json:"model"`
	OCR           bool   `json:"ocr"`
	EnableFormula bool   `json:"enable_formula"`
	EnableTable   bool   `json:"enable_table"`
	Language      string `json:"language"`
}

type RunConfig struct {
	Concurrency  int           `json:"concurrency"`
	BatchSize    int           `json:"batch_size"`
	PollInterval time.Duration `json:"poll_interval"`
	JobTimeout   time.Duration `json:"job_timeout"`
	BatchTimeout time.Duration `json:"batch_timeout"`
	Schedule     string        `json:"schedule"`
}

type LogConfig struct {
	Level string `json:"level"`
	File  string `json:"file"`
}

// MaxBatchSize is the service's limit on files per upload batch.
const MaxBatchSize = 200

// Option is a function type for configuring Config
type Option func(*Config)

// LoadDotEnv loads .env from the working directory when present. Values
// already in the environment win.
func LoadDotEnv() {
	if _, err := os.Stat(".env"); err != nil {
		return
	}
	if err := godotenv.Load(); err != nil {
		log.Warn("Failed to load .env: %v", err)
	}
}

// NewFromEnv creates a Config from environment variables, then applies opts
// in order and validates the result.
func NewFromEnv(opts ...Option) (*Config, error) {
	config := &Config{
		API: APIConfig{
			Token:         getEnvString("MINERU_TOKEN", ""),
			BaseURL:       getEnvString("MINERU_API_BASE", mineru.DefaultBaseURL),
			Timeout:       getEnvDuration("MINERU_API_TIMEOUT", mineru.DefaultTimeout),
			UploadTimeout: getEnvDuration("MINERU_UPLOAD_TIMEOUT", mineru.DefaultUploadTimeout),
			MaxAttempts:   getEnvInt("MINERU_RETRIES", 5),
		},
		Output: OutputConfig{
			Dir: getEnvString("MINERU_OUTPUT_DIR", "./output"),
		},
		Convert: ConvertConfig{
			Model:         getEnvString("MINERU_MODEL", mineru.ModelVLM),
			EnableFormula: true,
			EnableTable:   true,
			Language:      getEnvString("MINERU_LANGUAGE", ""),
		},
		Run: RunConfig{
			Concurrency:  getEnvInt("MINERU_CONCURRENCY", 5),
			BatchSize:    getEnvInt("MINERU_BATCH_SIZE", 1),
			PollInterval: getEnvDuration("MINERU_POLL_INTERVAL", 5*time.Second),
			JobTimeout:   getEnvDuration("MINERU_TIMEOUT", 10*time.Minute),
			BatchTimeout: getEnvDuration("MINERU_BATCH_TIMEOUT", 0),
			Schedule:     getEnvString("MINERU_SCHEDULE", ""),
		},
		Log: LogConfig{
			Level: getEnvString("LOG_LEVEL", "info"),
			File:  getEnvString("LOG_FILE", ""),
		},
	}

	// Apply custom options
	for _, opt := range opts {
		opt(config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	log.Debug("Config: %s", config)
	return config, nil
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	if strings.TrimSpace(c.API.Token) == "" {
		return failure.New(failure.Config, "MINERU_TOKEN or --token is required")
	}
	if err := c.Input.validate(c.Run.Schedule != ""); err != nil {
		return err
	}
	if !mineru.IsSupportedModel(c.Convert.Model) {
		return failure.Newf(failure.Config, "unsupported model %q", c.Convert.Model)
	}
	if c.Run.Concurrency < 1 {
		return failure.Newf(failure.Config, "concurrency must be at least 1, got %d", c.Run.Concurrency)
	}
	if c.Run.BatchSize < 1 || c.Run.BatchSize > MaxBatchSize {
		return failure.Newf(failure.Config, "batch size must be between 1 and %d, got %d", MaxBatchSize, c.Run.BatchSize)
	}
	if c.Run.BatchSize > c.Run.Concurrency {
		return failure.Newf(failure.Config, "batch size %d exceeds concurrency %d", c.Run.BatchSize, c.Run.Concurrency)
	}
	if c.Run.PollInterval <= 0 {
		return failure.New(failure.Config, "poll interval must be positive")
	}
	if c.Run.JobTimeout <= 0 {
		return failure.New(failure.Config, "timeout must be positive")
	}
	if c.Run.BatchTimeout < 0 {
		return failure.New(failure.Config, "batch timeout must not be negative")
	}
	if c.API.MaxAttempts < 1 {
		return failure.Newf(failure.Config, "retries must be at least 1, got %d", c.API.MaxAttempts)
	}
	if c.Run.Schedule != "" {
		if err := icron.Validate(c.Run.Schedule); err != nil {
			return failure.Wrap(err, failure.Config, "invalid schedule")
		}
	}
	return nil
}

func (in InputConfig) validate(scheduled bool) error {
	set := 0
	for _, v := range []string{in.URL, in.File, in.Dir, in.URLsFile} {
		if strings.TrimSpace(v) != "" {
			set++
		}
	}
	switch {
	case set == 0:
		return failure.New(failure.Config, "one of --url, --file, --dir or --urls-file is required")
	case set > 1:
		return failure.New(failure.Config, "--url, --file, --dir and --urls-file are mutually exclusive")
	case scheduled && in.Dir == "":
		return failure.New(failure.Config, "--schedule requires --dir")
	}
	return nil
}

func (c *Config) String() string {
	return fmt.Sprintf("{api:%s token:%s input:%+v output:%+v convert:%+v run:%+v log:%+v}",
		c.API.BaseURL, maskToken(c.API.Token), c.Input, c.Output, c.Convert, c.Run, c.Log)
}

func maskToken(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "****" + token[len(token)-4:]
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s") and bare seconds ("90").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := parseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func parseDuration(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(value)
}
