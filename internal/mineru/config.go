package mineru

import (
	"strings"
	"time"

	"github.com/MimeLyc/mineru-batch/internal/failure"
	"github.com/MimeLyc/mineru-batch/internal/retry"
)

const (
	DefaultBaseURL       = "https://mineru.net/api/v4"
	DefaultTimeout       = 60 * time.Second
	DefaultUploadTimeout = 5 * time.Minute

	ModelPipeline = "pipeline"
	ModelVLM      = "vlm"
	ModelHTML     = "MinerU-HTML"
)

var supportedModels = []string{ModelPipeline, ModelVLM, ModelHTML}

// Options are the conversion switches sent with every submission.
type Options struct {
	ModelVersion  string `json:"model_version"`
	EnableFormula bool   `json:"enable_formula"`
	EnableTable   bool   `json:"enable_table"`
	IsOCR         bool   `json:"is_ocr"`
	Language      string `json:"language,omitempty"`
}

func DefaultOptions() Options {
	return Options{
		ModelVersion:  ModelVLM,
		EnableFormula: true,
		EnableTable:   true,
	}
}

// Config holds everything the client needs to reach the service.
//
// Timeout bounds a single API call; UploadTimeout bounds a single PUT of a
// document body. Retry is applied to each operation independently.
type Config struct {
	BaseURL       string
	Token         string
	Timeout       time.Duration
	UploadTimeout time.Duration
	Options       Options
	Retry         retry.Policy
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Token) == "" {
		return failure.New(failure.Config, "API token is required (set MINERU_TOKEN or --token)")
	}
	if c.BaseURL == "" {
		return failure.New(failure.Config, "API base URL is required")
	}
	if !IsSupportedModel(c.Options.ModelVersion) {
		return failure.Newf(failure.Config, "unsupported model %q (want one of %s)",
			c.Options.ModelVersion, strings.Join(supportedModels, ", "))
	}
	return nil
}

func IsSupportedModel(model string) bool {
	for _, m := range supportedModels {
		if m == model {
			return true
		}
	}
	return false
}

func (c *Config) headers() map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + c.Token,
		"Content-Type":  "application/json",
		"Accept":        "*/*",
	}
}
