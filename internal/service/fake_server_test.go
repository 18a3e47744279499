package service

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

// fakeMinerU is an in-process stand-in for the MinerU v4 API, the upload
// bucket and the result CDN.
type fakeMinerU struct {
	srv *httptest.Server

	mu       sync.Mutex
	batches  map[string][]string // batch id -> data ids
	uploaded map[string]bool
	polls    map[string]int
	tasks    map[string]string // task id -> data id
	nextID   int

	// failWith maps a data id to the remote err_msg it fails with.
	failWith map[string]string
	// rejectSubmit maps a data id to a non-zero API code message.
	rejectSubmit map[string]string
	// failUploads maps a data id to the HTTP status its PUT always gets.
	failUploads  map[string]int
	tokenExpired bool
	dropUploads  bool

	apiCalls atomic.Int32
	submits  atomic.Int32
	maxBatch atomic.Int32
}

func newFakeMinerU(t *testing.T) *fakeMinerU {
	t.Helper()
	f := &fakeMinerU{
		batches:      make(map[string][]string),
		uploaded:     make(map[string]bool),
		polls:        make(map[string]int),
		tasks:        make(map[string]string),
		failWith:     make(map[string]string),
		rejectSubmit: make(map[string]string),
		failUploads:  make(map[string]int),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/file-urls/batch", f.handleBatch)
	mux.HandleFunc("GET /api/extract-results/batch/{id}", f.handleBatchStatus)
	mux.HandleFunc("POST /api/extract/task", f.handleTask)
	mux.HandleFunc("GET /api/extract/task/{id}", f.handleTaskStatus)
	mux.HandleFunc("PUT /upload/{id}", f.handleUpload)
	mux.HandleFunc("GET /zip/{id}", f.handleZip)
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeMinerU) apiURL() string {
	return f.srv.URL + "/api"
}

func (f *fakeMinerU) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeMinerU) authorized(w http.ResponseWriter) bool {
	f.apiCalls.Add(1)
	if f.tokenExpired {
		f.writeJSON(w, map[string]any{"code": "A0211", "msg": "token expired"})
		return false
	}
	return true
}

func (f *fakeMinerU) handleBatch(w http.ResponseWriter, r *http.Request) {
	if !f.authorized(w) {
		return
	}
	f.submits.Add(1)
	var req struct {
		Files []struct {
			Name   string `json:"name"`
			DataID string `json:"data_id"`
		} `json:"files"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	for n := int32(len(req.Files)); ; {
		cur := f.maxBatch.Load()
		if n <= cur || f.maxBatch.CompareAndSwap(cur, n) {
			break
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(req.Files))
	urls := make([]string, 0, len(req.Files))
	for _, file := range req.Files {
		if msg, ok := f.rejectSubmit[file.DataID]; ok {
			f.writeJSON(w, map[string]any{"code": -60005, "msg": msg})
			return
		}
		ids = append(ids, file.DataID)
		urls = append(urls, f.srv.URL+"/upload/"+file.DataID)
	}
	f.nextID++
	batchID := fmt.Sprintf("batch-%d", f.nextID)
	f.batches[batchID] = ids
	f.writeJSON(w, map[string]any{
		"code": 0,
		"msg":  "ok",
		"data": map[string]any{"batch_id": batchID, "file_urls": urls},
	})
}

func (f *fakeMinerU) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Content-Type") != "" {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	id := r.PathValue("id")
	f.mu.Lock()
	status, failing := f.failUploads[id]
	if !f.dropUploads && !failing {
		f.uploaded[id] = true
	}
	f.mu.Unlock()
	if failing {
		w.WriteHeader(status)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// state reports running on the first poll of a document and its final
// state afterwards. Caller holds f.mu.
func (f *fakeMinerU) state(dataID string) map[string]any {
	f.polls[dataID]++
	entry := map[string]any{"data_id": dataID, "file_name": dataID + ".pdf"}
	switch {
	case !f.uploaded[dataID]:
		entry["state"] = "waiting-file"
	case f.polls[dataID] == 1:
		entry["state"] = "running"
	case f.failWith[dataID] != "":
		entry["state"] = "failed"
		entry["err_msg"] = f.failWith[dataID]
	default:
		entry["state"] = "done"
		entry["full_zip_url"] = f.srv.URL + "/zip/" + dataID
	}
	return entry
}

func (f *fakeMinerU) handleBatchStatus(w http.ResponseWriter, r *http.Request) {
	if !f.authorized(w) {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ids, ok := f.batches[r.PathValue("id")]
	if !ok {
		f.writeJSON(w, map[string]any{"code": -10002, "msg": "batch not found"})
		return
	}
	results := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		results = append(results, f.state(id))
	}
	f.writeJSON(w, map[string]any{
		"code": 0,
		"data": map[string]any{"batch_id": r.PathValue("id"), "extract_result": results},
	})
}

func (f *fakeMinerU) handleTask(w http.ResponseWriter, r *http.Request) {
	if !f.authorized(w) {
		return
	}
	f.submits.Add(1)
	var req struct {
		URL    string `json:"url"`
		DataID string `json:"data_id"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	taskID := fmt.Sprintf("task-%d", f.nextID)
	f.tasks[taskID] = req.DataID
	f.uploaded[req.DataID] = true
	f.writeJSON(w, map[string]any{"code": 0, "data": map[string]any{"task_id": taskID}})
}

func (f *fakeMinerU) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	if !f.authorized(w) {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	dataID := f.tasks[r.PathValue("id")]
	entry := f.state(dataID)
	entry["task_id"] = r.PathValue("id")
	f.writeJSON(w, map[string]any{"code": 0, "data": entry})
}

func (f *fakeMinerU) handleZip(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	md, _ := zw.Create("full.md")
	_, _ = md.Write([]byte("# " + strings.ToUpper(id)))
	img, _ := zw.Create("images/p1.jpg")
	_, _ = img.Write([]byte("jpg"))
	_ = zw.Close()
	w.Header().Set("Content-Type", "application/zip")
	_, _ = w.Write(buf.Bytes())
}
