package mineru

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MimeLyc/mineru-batch/internal/jobs"
)

// FileSpec names one local document in an upload-target request.
type FileSpec struct {
	Name   string `json:"name"`
	DataID string `json:"data_id"`
}

// UploadTarget is the service's answer to an upload-target request: one
// batch id and one pre-signed URL per requested file, in request order.
type UploadTarget struct {
	BatchID string
	URLs    []string
}

type batchRequest struct {
	Files []FileSpec `json:"files"`
	Options
}

type batchData struct {
	BatchID  string   `json:"batch_id"`
	FileURLs []string `json:"file_urls"`
}

type taskRequest struct {
	URL    string `json:"url"`
	DataID string `json:"data_id"`
	Options
}

type taskData struct {
	TaskID     string `json:"task_id"`
	DataID     string `json:"data_id"`
	FileName   string `json:"file_name"`
	State      string `json:"state"`
	FullZipURL string `json:"full_zip_url"`
	ErrMsg     string `json:"err_msg"`
}

type batchResultData struct {
	BatchID       string     `json:"batch_id"`
	ExtractResult []taskData `json:"extract_result"`
}

// envelope is the common response wrapper of every API call.
type envelope struct {
	Code    apiCode         `json:"code"`
	Msg     string          `json:"msg"`
	TraceID string          `json:"trace_id"`
	Data    json.RawMessage `json:"data"`
}

// apiCode accepts both numeric and string codes; the service uses 0 for
// success and strings such as "A0211" for token errors.
type apiCode string

func (c *apiCode) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*c = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = apiCode(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid code %s: %w", b, err)
	}
	*c = apiCode(n.String())
	return nil
}

func (c apiCode) ok() bool {
	return c == "0"
}

func (c apiCode) absent() bool {
	return c == ""
}

func (c apiCode) unauthorized() bool {
	return c == "A0202" || c == "A0211"
}

func mapState(s string) jobs.State {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "done":
		return jobs.StateDone
	case "failed":
		return jobs.StateFailed
	case "running", "converting":
		return jobs.StateRunning
	default:
		return jobs.StateQueued
	}
}

func (t taskData) status() jobs.Status {
	return jobs.Status{
		DataID:    t.DataID,
		FileName:  t.FileName,
		State:     mapState(t.State),
		ResultURL: t.FullZipURL,
		ErrMsg:    t.ErrMsg,
	}
}
