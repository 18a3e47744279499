package mineru

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MimeLyc/mineru-batch/internal/failure"
	"github.com/MimeLyc/mineru-batch/internal/jobs"
	"github.com/MimeLyc/mineru-batch/internal/retry"
	"github.com/MimeLyc/mineru-batch/pkg/log"
)

const maxErrorBody = 512

// Client talks to the MinerU v4 API. It is safe for concurrent use.
type Client struct {
	config       *Config
	httpClient   *http.Client
	uploadClient *http.Client
	baseURL      string
}

// NewClient validates config and fills in defaults.
//
//	client, err := mineru.NewClient(&mineru.Config{
//		BaseURL: mineru.DefaultBaseURL,
//		Token:   os.Getenv("MINERU_TOKEN"),
//		Options: mineru.DefaultOptions(),
//	})
func NewClient(config *Config) (*Client, error) {
	cfg := *config
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Options.ModelVersion == "" {
		cfg.Options.ModelVersion = ModelVLM
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = DefaultUploadTimeout
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = retry.Default("request")
	}

	return &Client{
		config:       &cfg,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		uploadClient: &http.Client{Timeout: cfg.UploadTimeout},
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
	}, nil
}

// Options returns the conversion options sent with every submission.
func (c *Client) Options() Options {
	return c.config.Options
}

// RequestUploadTarget asks for one pre-signed upload URL per file.
func (c *Client) RequestUploadTarget(ctx context.Context, files []FileSpec) (*UploadTarget, error) {
	if len(files) == 0 {
		return nil, failure.New(failure.ServiceRejected, "no files in upload request")
	}
	payload := batchRequest{Files: files, Options: c.config.Options}

	return retry.DoValue(ctx, c.policy("request upload target"), func(ctx context.Context) (*UploadTarget, error) {
		var data batchData
		if err := c.call(ctx, http.MethodPost, "/file-urls/batch", payload, &data); err != nil {
			return nil, err
		}
		if data.BatchID == "" {
			return nil, failure.New(failure.TransientNetwork, "response without batch_id")
		}
		if len(data.FileURLs) != len(files) {
			return nil, failure.Newf(failure.ServiceRejected,
				"expected %d upload URLs, got %d", len(files), len(data.FileURLs))
		}
		return &UploadTarget{BatchID: data.BatchID, URLs: data.FileURLs}, nil
	})
}

// UploadFile PUTs the file at path to a pre-signed URL. The file is
// reopened for every attempt.
func (c *Client) UploadFile(ctx context.Context, uploadURL, path string) error {
	return retry.Do(ctx, c.policy("upload "+path), func(ctx context.Context) error {
		f, err := os.Open(path)
		if err != nil {
			return failure.Wrap(err, failure.Preflight, "open document")
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			return failure.Wrap(err, failure.Preflight, "stat document")
		}
		return c.put(ctx, uploadURL, f, info.Size())
	})
}

// UploadBytes PUTs data to a pre-signed URL.
func (c *Client) UploadBytes(ctx context.Context, uploadURL string, data []byte) error {
	return retry.Do(ctx, c.policy("upload"), func(ctx context.Context) error {
		return c.put(ctx, uploadURL, bytes.NewReader(data), int64(len(data)))
	})
}

// FetchStatus returns the state of every document of a batch. An empty
// list means the service has not registered the uploads yet.
func (c *Client) FetchStatus(ctx context.Context, batchID string) ([]jobs.Status, error) {
	return retry.DoValue(ctx, c.policy("fetch batch status"), func(ctx context.Context) ([]jobs.Status, error) {
		var data batchResultData
		if err := c.call(ctx, http.MethodGet, "/extract-results/batch/"+batchID, nil, &data); err != nil {
			return nil, err
		}
		out := make([]jobs.Status, 0, len(data.ExtractResult))
		for _, r := range data.ExtractResult {
			out = append(out, r.status())
		}
		return out, nil
	})
}

// CreateURLTask submits a remotely hosted document and returns its task id.
func (c *Client) CreateURLTask(ctx context.Context, docURL, dataID string) (string, error) {
	payload := taskRequest{URL: docURL, DataID: dataID, Options: c.config.Options}

	return retry.DoValue(ctx, c.policy("create url task"), func(ctx context.Context) (string, error) {
		var data taskData
		if err := c.call(ctx, http.MethodPost, "/extract/task", payload, &data); err != nil {
			return "", err
		}
		if data.TaskID == "" {
			return "", failure.New(failure.TransientNetwork, "response without task_id")
		}
		return data.TaskID, nil
	})
}

// FetchTask returns the state of a single URL task.
func (c *Client) FetchTask(ctx context.Context, taskID string) (jobs.Status, error) {
	return retry.DoValue(ctx, c.policy("fetch task status"), func(ctx context.Context) (jobs.Status, error) {
		var data taskData
		if err := c.call(ctx, http.MethodGet, "/extract/task/"+taskID, nil, &data); err != nil {
			return jobs.Status{}, err
		}
		return data.status(), nil
	})
}

func (c *Client) policy(name string) retry.Policy {
	p := c.config.Retry
	p.Name = name
	p.OnRetry = func(attempt int, err error, delay time.Duration) {
		log.Warn("%s failed (attempt %d/%d), retrying in %s: %s",
			name, attempt, p.MaxAttempts, delay, failure.Message(err))
	}
	return p
}

// call performs one API request and decodes the envelope's data into out.
func (c *Client) call(ctx context.Context, method, path string, payload, out any) error {
	requestID := uuid.NewString()

	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return failure.Wrap(err, failure.Unknown, "marshal request")
		}
		body = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return failure.Wrap(err, failure.Unknown, "create request")
	}
	for key, value := range c.config.headers() {
		req.Header.Set(key, value)
	}

	log.Debug("[%s] %s %s", requestID, method, path)
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return failure.Wrap(ctx.Err(), failure.Interrupted, "request interrupted")
		}
		return failure.Wrap(err, failure.TransientNetwork, "request failed").
			WithContext("request_id", requestID).
			WithContext("path", path)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return failure.Wrap(err, failure.TransientNetwork, "read response").
			WithContext("request_id", requestID)
	}
	log.Debug("[%s] %s %s -> %d in %s", requestID, method, path, resp.StatusCode, time.Since(start).Round(time.Millisecond))

	if ferr := classify(resp.StatusCode, raw, out); ferr != nil {
		return ferr.WithContext("request_id", requestID)
	}
	return nil
}

// classify maps an HTTP response onto the failure taxonomy.
func classify(status int, raw []byte, out any) *failure.Error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return failure.Newf(failure.Unauthorized, "HTTP %d: %s", status, snippet(raw))
	case status == http.StatusTooManyRequests || status >= 500:
		return failure.Newf(failure.TransientNetwork, "HTTP %d: %s", status, snippet(raw))
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if status >= 400 {
			return failure.Newf(failure.ServiceRejected, "HTTP %d: %s", status, snippet(raw))
		}
		return failure.Wrap(err, failure.TransientNetwork, "undecodable response")
	}

	// An envelope without a code carries no verdict; the HTTP status decides.
	if !env.Code.absent() && !env.Code.ok() {
		msg := env.Msg
		if msg == "" {
			msg = fmt.Sprintf("API error code %q", string(env.Code))
		}
		kind := failure.ServiceRejected
		if env.Code.unauthorized() {
			kind = failure.Unauthorized
		}
		return failure.New(kind, msg).WithContext("code", string(env.Code))
	}
	if status >= 400 {
		return failure.Newf(failure.ServiceRejected, "HTTP %d: %s", status, snippet(raw))
	}

	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return failure.Wrap(err, failure.TransientNetwork, "undecodable response data")
		}
	}
	return nil
}

// put uploads body without a Content-Type header; pre-signed URLs are
// signed without one and reject requests that carry it.
func (c *Client) put(ctx context.Context, uploadURL string, body io.Reader, size int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, body)
	if err != nil {
		return failure.Wrap(err, failure.ServiceRejected, "invalid upload URL")
	}
	req.ContentLength = size
	req.Header.Del("Content-Type")

	resp, err := c.uploadClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return failure.Wrap(ctx.Err(), failure.Interrupted, "upload interrupted")
		}
		return failure.Wrap(err, failure.TransientNetwork, "upload failed")
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNonAuthoritativeInfo {
		return failure.Newf(failure.TransientNetwork, "upload returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func snippet(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody] + "..."
	}
	if s == "" {
		return "empty body"
	}
	return s
}
