package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/MimeLyc/mineru-batch/internal/failure"
	"github.com/MimeLyc/mineru-batch/internal/mineru"
	"github.com/MimeLyc/mineru-batch/pkg/icron"
)

// RuntimeSettings is the JSON settings file. Set fields override the
// environment; command-line flags override the file. Pointer fields
// distinguish "off" from "not set".
type RuntimeSettings struct {
	APIBase       string `json:"api_base,omitempty"`
	Token         string `json:"token,omitempty"`
	Model         string `json:"model,omitempty"`
	Language      string `json:"language,omitempty"`
	OCR           *bool  `json:"ocr,omitempty"`
	EnableFormula *bool  `json:"enable_formula,omitempty"`
	EnableTable   *bool  `json:"enable_table,omitempty"`
	OutputDir     string `json:"output_dir,omitempty"`
	Concurrency   int    `json:"concurrency,omitempty"`
	BatchSize     int    `json:"batch_size,omitempty"`
	PollInterval  string `json:"poll_interval,omitempty"`
	Timeout       string `json:"timeout,omitempty"`
	CronExpr      string `json:"cron_expr,omitempty"`
}

func RuntimeSettingsFilePath() string {
	return getEnvString("SETTINGS_FILE", "")
}

// Validate checks the fields that are set.
func (s RuntimeSettings) Validate() error {
	if s.Model != "" && !mineru.IsSupportedModel(s.Model) {
		return failure.Newf(failure.Config, "unsupported model %q", s.Model)
	}
	if s.Concurrency < 0 {
		return failure.New(failure.Config, "concurrency must not be negative")
	}
	if s.BatchSize < 0 || s.BatchSize > MaxBatchSize {
		return failure.Newf(failure.Config, "batch_size must be between 1 and %d", MaxBatchSize)
	}
	for name, value := range map[string]string{"poll_interval": s.PollInterval, "timeout": s.Timeout} {
		if value == "" {
			continue
		}
		if d, err := parseDuration(value); err != nil || d <= 0 {
			return failure.Newf(failure.Config, "invalid %s %q", name, value)
		}
	}
	if strings.TrimSpace(s.CronExpr) != "" {
		if err := icron.Validate(s.CronExpr); err != nil {
			return failure.Wrap(err, failure.Config, "invalid cron_expr")
		}
	}
	return nil
}

func WithRuntimeSettings(settings RuntimeSettings) Option {
	return func(c *Config) {
		if strings.TrimSpace(settings.APIBase) != "" {
			c.API.BaseURL = settings.APIBase
		}
		if strings.TrimSpace(settings.Token) != "" {
			c.API.Token = settings.Token
		}
		if strings.TrimSpace(settings.Model) != "" {
			c.Convert.Model = settings.Model
		}
		if strings.TrimSpace(settings.Language) != "" {
			c.Convert.Language = settings.Language
		}
		if settings.OCR != nil {
			c.Convert.OCR = *settings.OCR
		}
		if settings.EnableFormula != nil {
			c.Convert.EnableFormula = *settings.EnableFormula
		}
		if settings.EnableTable != nil {
			c.Convert.EnableTable = *settings.EnableTable
		}
		if strings.TrimSpace(settings.OutputDir) != "" {
			c.Output.Dir = settings.OutputDir
		}
		if settings.Concurrency > 0 {
			c.Run.Concurrency = settings.Concurrency
		}
		if settings.BatchSize > 0 {
			c.Run.BatchSize = settings.BatchSize
		}
		if d, err := parseDuration(settings.PollInterval); err == nil && settings.PollInterval != "" {
			c.Run.PollInterval = d
		}
		if d, err := parseDuration(settings.Timeout); err == nil && settings.Timeout != "" {
			c.Run.JobTimeout = d
		}
		if strings.TrimSpace(settings.CronExpr) != "" {
			c.Run.Schedule = settings.CronExpr
		}
	}
}

func LoadRuntimeSettingsFile(path string) (RuntimeSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuntimeSettings{}, failure.Wrap(err, failure.Config, "cannot read settings file")
	}
	var settings RuntimeSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return RuntimeSettings{}, failure.Wrap(err, failure.Config, fmt.Sprintf("invalid settings file %s", path))
	}
	if err := settings.Validate(); err != nil {
		return RuntimeSettings{}, err
	}
	return settings, nil
}
