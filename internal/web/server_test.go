package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"canvas-bulkflow/internal/jobs"
	"canvas-bulkflow/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCanvas serves just enough of the API for a download job: metadata plus
// a content stream for every id.
func fakeCanvas(t *testing.T) *httptest.Server {
	t.Helper()
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/api/v1/files/"):
			id := strings.TrimPrefix(r.URL.Path, "/api/v1/files/")
			fmt.Fprintf(w, `{"id":%s,"url":"%s/content/%s","size":13}`, id, server.URL, id)
		case strings.HasPrefix(r.URL.Path, "/content/"):
			w.Header().Set("Content-Type", "application/pdf")
			io.WriteString(w, "%PDF-1.4 data")
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestServer(t *testing.T, canvasURL string) (*Server, string) {
	t.Helper()
	outputFolder := filepath.Join(t.TempDir(), "Downloads")
	cfg := models.Config{
		Token:        "test-token",
		BaseUrl:      canvasURL,
		OutputFolder: outputFolder,
		OcrFolder:    t.TempDir(),
	}
	return &Server{Config: cfg, Registry: jobs.NewRegistry(time.Hour)}, outputFolder
}

// startForm builds the multipart request body for POST /start.
func startForm(t *testing.T, csvContent, action string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("csv_file", "report.csv")
	require.NoError(t, err)
	_, err = io.WriteString(part, csvContent)
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("action", action))
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func pollUntilDone(t *testing.T, handler http.Handler, jobID string) jobs.Snapshot {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status/"+jobID, nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var snap jobs.Snapshot
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
		if snap.Status == jobs.StatusDone {
			return snap
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("job did not finish in time")
	return jobs.Snapshot{}
}

func TestServerDownloadJob(t *testing.T) {
	canvas := fakeCanvas(t)
	server, outputFolder := newTestServer(t, canvas.URL)
	handler := server.Handler()

	csv := "Id,Name,Mime type,Scanned:1\n101,Report.pdf,application/pdf,1\n"
	body, contentType := startForm(t, csv, "download", nil)

	req := httptest.NewRequest(http.MethodPost, "/start", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var started map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	jobID := started["job_id"]
	require.NotEmpty(t, jobID)

	snap := pollUntilDone(t, handler, jobID)
	assert.Equal(t, "Finished", snap.Message)
	assert.Equal(t, 1, snap.Current)
	assert.Equal(t, 1, snap.Total)
	assert.Contains(t, snap.Log, "Downloaded Report.pdf (13 bytes) successfully.")

	data, err := os.ReadFile(filepath.Join(outputFolder, "Report.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 data", string(data))
}

// fakeCanvasWithUpload also covers the replace handshake: metadata, folder,
// initiation, and a storage endpoint answering 201.
func fakeCanvasWithUpload(t *testing.T) *httptest.Server {
	t.Helper()
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/api/v1/files/"):
			id := strings.TrimPrefix(r.URL.Path, "/api/v1/files/")
			fmt.Fprintf(w, `{"id":%s,"folder_id":9,"display_name":"Remote Name.pdf"}`, id)
		case strings.HasPrefix(r.URL.Path, "/api/v1/folders/"):
			io.WriteString(w, `{"id":9,"context_id":555,"context_type":"Course"}`)
		case r.URL.Path == "/api/v1/courses/555/files":
			fmt.Fprintf(w, `{"upload_url":"%s/storage","upload_params":{"key":"abc"}}`, server.URL)
		case r.URL.Path == "/storage":
			w.WriteHeader(http.StatusCreated)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func startJob(t *testing.T, handler http.Handler, csv, action string, fields map[string]string) string {
	t.Helper()
	body, contentType := startForm(t, csv, action, fields)
	req := httptest.NewRequest(http.MethodPost, "/start", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var started map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	require.NotEmpty(t, started["job_id"])
	return started["job_id"]
}

func TestServerUploadJobUsesFormColumns(t *testing.T) {
	canvas := fakeCanvasWithUpload(t)
	server, _ := newTestServer(t, canvas.URL)
	handler := server.Handler()

	require.NoError(t, os.WriteFile(filepath.Join(server.Config.OcrFolder, "Report.pdf"), []byte("%PDF-1.4 ocr"), 0644))

	// The form's column names win over the configured OCR columns.
	csv := "Doc Id,Local Path\n101,Report.pdf\n"
	jobID := startJob(t, handler, csv, "upload", map[string]string{
		"file_id_column":  "Doc Id",
		"filename_column": "Local Path",
	})

	snap := pollUntilDone(t, handler, jobID)
	assert.Equal(t, "Finished", snap.Message)
	assert.Contains(t, snap.Log, "Files successfully replaced: 1")
	assert.NotContains(t, snap.Log, "Missing file_id")
}

func TestServerUploadJobDefaultColumns(t *testing.T) {
	canvas := fakeCanvasWithUpload(t)
	server, _ := newTestServer(t, canvas.URL)
	handler := server.Handler()

	require.NoError(t, os.WriteFile(filepath.Join(server.Config.OcrFolder, "Report.pdf"), []byte("%PDF-1.4 ocr"), 0644))

	// Blank form fields fall back to the OCR column defaults.
	csv := "File_ID,OCR_File_Path\n101,Report.pdf\n"
	jobID := startJob(t, handler, csv, "upload", map[string]string{
		"file_id_column":  "",
		"filename_column": "",
	})

	snap := pollUntilDone(t, handler, jobID)
	assert.Equal(t, "Finished", snap.Message)
	assert.Contains(t, snap.Log, "Files successfully replaced: 1")
}

func TestServerDownloadJobUnusableOutputFolder(t *testing.T) {
	canvas := fakeCanvas(t)
	server, _ := newTestServer(t, canvas.URL)

	// Point the output folder at a regular file so it cannot be created.
	blocked := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocked, []byte("x"), 0644))
	server.Config.OutputFolder = blocked
	handler := server.Handler()

	csv := "Id,Name,Mime type,Scanned:1\n101,Report.pdf,application/pdf,1\n"
	jobID := startJob(t, handler, csv, "download", nil)

	snap := pollUntilDone(t, handler, jobID)
	assert.Equal(t, "Finished with errors", snap.Message)
	assert.Contains(t, snap.Log, "Cannot create output folder")
}

func TestServerJobWithFailures(t *testing.T) {
	canvas := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer canvas.Close()

	server, _ := newTestServer(t, canvas.URL)
	handler := server.Handler()

	csv := "Id,Name,Mime type,Scanned:1\n101,Report.pdf,application/pdf,1\n"
	body, contentType := startForm(t, csv, "download", nil)

	req := httptest.NewRequest(http.MethodPost, "/start", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var started map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))

	snap := pollUntilDone(t, handler, started["job_id"])
	assert.Equal(t, "Finished with errors", snap.Message)
}

func TestServerStartValidation(t *testing.T) {
	server, _ := newTestServer(t, "https://unused.example")
	handler := server.Handler()

	t.Run("invalid action", func(t *testing.T) {
		body, contentType := startForm(t, "Id,Name\n", "ocr", nil)
		req := httptest.NewRequest(http.MethodPost, "/start", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing file", func(t *testing.T) {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		require.NoError(t, mw.WriteField("action", "download"))
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/start", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("no token anywhere", func(t *testing.T) {
		noToken := &Server{Config: models.Config{}, Registry: jobs.NewRegistry(0)}
		body, contentType := startForm(t, "Id,Name\n", "download", nil)
		req := httptest.NewRequest(http.MethodPost, "/start", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		noToken.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestServerStatusUnknownJob(t *testing.T) {
	server, _ := newTestServer(t, "https://unused.example")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status/does-not-exist", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var payload map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "missing", payload["status"])
}

func TestServerIndexPage(t *testing.T) {
	server, _ := newTestServer(t, "https://canvas.example")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	page := rec.Body.String()
	assert.Contains(t, page, "Canvas BulkFlow")
	assert.Contains(t, page, "https://canvas.example")
}
