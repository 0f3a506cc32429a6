package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"canvas-bulkflow/internal/api"
	"canvas-bulkflow/internal/database"
	"canvas-bulkflow/internal/downloader"
	"canvas-bulkflow/internal/jobs"
	"canvas-bulkflow/internal/manifest"
	"canvas-bulkflow/internal/models"
	"canvas-bulkflow/internal/pipeline"

	log "github.com/sirupsen/logrus"
)

// maxManifestBytes bounds the in-memory portion of the multipart parse.
const maxManifestBytes = 32 << 20

// Server exposes the pipelines over HTTP: a single-page form, an async job
// starter, and a polling endpoint. Each started job runs one pipeline in its
// own goroutine; the registry is the only shared state.
type Server struct {
	Config   models.Config
	Registry *jobs.Registry
	Ledger   *database.Ledger

	// Transport is shared by all job API clients. Nil means the default.
	Transport http.RoundTripper
}

// jobParams are the per-request overrides taken from the start form. Empty
// fields fall back to the server config. The column fields are kept raw:
// their defaults differ per direction, so each pipeline branch resolves them.
type jobParams struct {
	Token          string
	BaseUrl        string
	OutputFolder   string
	OcrFolder      string
	FileIdColumn   string
	FilenameColumn string
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /start", s.handleStart)
	mux.HandleFunc("GET /status/{jobID}", s.handleStatus)
	return mux
}

// ListenAndServe runs the server on the configured address.
func (s *Server) ListenAndServe() error {
	addr := s.Config.ListenAddr
	if addr == "" {
		addr = models.DefaultListenAddr
	}
	log.Infof("Web front-end listening on http://%s", addr)
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := indexData{
		BaseUrl:        s.Config.BaseUrl,
		Token:          s.Config.Token,
		OutputFolder:   s.Config.OutputFolder,
		OcrFolder:      s.Config.OcrFolder,
		FileIdColumn:   s.Config.FileIdColumn,
		FilenameColumn: s.Config.FilenameColumn,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, data); err != nil {
		log.WithError(err).Error("Failed to render index page")
	}
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxManifestBytes); err != nil {
		http.Error(w, "Invalid multipart form.", http.StatusBadRequest)
		return
	}

	action := strings.ToLower(strings.TrimSpace(r.FormValue("action")))
	if action != "download" && action != "upload" {
		http.Error(w, "Invalid action; expected 'download' or 'upload'.", http.StatusBadRequest)
		return
	}

	upload, _, err := r.FormFile("csv_file")
	if err != nil {
		http.Error(w, "Missing CSV file.", http.StatusBadRequest)
		return
	}
	defer upload.Close()

	params := s.paramsFromForm(r)
	if params.Token == "" {
		http.Error(w, "No API token provided and none configured.", http.StatusBadRequest)
		return
	}

	// The manifest is spooled to disk so the request can return immediately
	// while the job goroutine reads it at its own pace.
	tmp, err := os.CreateTemp("", "bulkflow-manifest-*.csv")
	if err != nil {
		http.Error(w, "Failed to store manifest.", http.StatusInternalServerError)
		return
	}
	if _, err := io.Copy(tmp, upload); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		http.Error(w, "Failed to store manifest.", http.StatusInternalServerError)
		return
	}
	tmp.Close()

	id := s.Registry.Create()
	log.Infof("Starting %s job %s", action, id)
	go s.runJob(id, action, tmp.Name(), params)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"job_id": id})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.Registry.Snapshot(r.PathValue("jobID"))
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"status": "missing"})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}

func (s *Server) paramsFromForm(r *http.Request) jobParams {
	pick := func(field, fallback string) string {
		if v := strings.TrimSpace(r.FormValue(field)); v != "" {
			return v
		}
		return fallback
	}
	return jobParams{
		Token:          pick("token", s.Config.Token),
		BaseUrl:        pick("base_url", s.Config.BaseUrl),
		OutputFolder:   pick("output_folder", s.Config.OutputFolder),
		OcrFolder:      pick("ocr_folder", s.Config.OcrFolder),
		FileIdColumn:   strings.TrimSpace(r.FormValue("file_id_column")),
		FilenameColumn: strings.TrimSpace(r.FormValue("filename_column")),
	}
}

// runJob drives one pipeline run to completion on its own goroutine. A panic
// anywhere in the pipeline is captured into the job log instead of killing
// the process, and the job always reaches the done state.
func (s *Server) runJob(id, action, manifestPath string, params jobParams) {
	s.Registry.Start(id)

	hadErrors := false
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				hadErrors = true
				log.Errorf("Job %s panicked: %v", id, rec)
				s.Registry.AppendLog(id, fmt.Sprintf("[ERROR] Unexpected failure: %v", rec))
				s.Registry.AppendLog(id, string(debug.Stack()))
			}
		}()
		hadErrors = s.execute(id, action, manifestPath, params)
	}()

	message := "Finished"
	if hadErrors {
		message = "Finished with errors"
	}
	s.Registry.Finish(id, message)

	if err := os.Remove(manifestPath); err != nil {
		log.WithError(err).Debugf("Could not remove temp manifest %s", manifestPath)
	}
}

// execute runs the selected pipeline and reports whether any row failed.
func (s *Server) execute(id, action, manifestPath string, params jobParams) bool {
	f, err := os.Open(manifestPath)
	if err != nil {
		s.Registry.AppendLog(id, fmt.Sprintf("[ERROR] Cannot open manifest: %v", err))
		return true
	}
	defer f.Close()

	timeout := time.Duration(s.Config.ApiClientTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout, Transport: s.Transport}
	client := api.NewClient(params.BaseUrl, params.Token, httpClient)

	progress := pipeline.Progress(func(current, total int, message string) {
		s.Registry.UpdateProgress(id, current, total, message)
	})
	sink := pipeline.Sink(func(line string) {
		s.Registry.AppendLog(id, line)
	})

	delay := time.Duration(s.Config.RowDelayMs) * time.Millisecond

	var outcomes []pipeline.Outcome
	switch action {
	case "download":
		rows, duplicates := manifest.LoadFiltered(f, manifest.Options{
			FileIdColumn:   fallback(params.FileIdColumn, s.Config.FileIdColumn),
			FilenameColumn: fallback(params.FilenameColumn, s.Config.FilenameColumn),
		}, manifest.ScannedPDF)
		fetcher := &pipeline.Fetcher{
			Client:       client,
			Downloader:   downloader.NewDownloader(httpClient, params.Token),
			OutputFolder: params.OutputFolder,
			Delay:        delay,
			OnProgress:   progress,
			Log:          sink,
		}
		var runErr error
		outcomes, runErr = fetcher.Run(rows, duplicates)
		if runErr != nil {
			s.Registry.AppendLog(id, fmt.Sprintf("[ERROR] %v", runErr))
			return true
		}
	case "upload":
		rows := manifest.Load(f, manifest.Options{
			FileIdColumn:   fallback(params.FileIdColumn, s.ocrFileIdColumn()),
			FilenameColumn: fallback(params.FilenameColumn, s.ocrFilePathColumn()),
		})
		replacer := &pipeline.Replacer{
			Client:     client,
			OcrFolder:  params.OcrFolder,
			Delay:      delay,
			OnProgress: progress,
			Log:        sink,
		}
		outcomes = replacer.Run(rows)
	}

	s.recordOutcomes(action, outcomes)

	for _, o := range outcomes {
		if o.Kind.Failed() {
			return true
		}
	}
	return false
}

func (s *Server) recordOutcomes(direction string, outcomes []pipeline.Outcome) {
	if s.Ledger == nil {
		return
	}
	now := time.Now().Unix()
	for _, o := range outcomes {
		entry := models.LedgerEntry{
			Direction: direction,
			FileID:    o.FileID,
			Name:      o.Name,
			Outcome:   o.Kind.String(),
			Bytes:     o.Bytes,
			Timestamp: now,
		}
		if err := s.Ledger.Record(entry); err != nil {
			log.WithError(err).Warn("Failed to record ledger entry")
		}
	}
}

func (s *Server) ocrFileIdColumn() string {
	if s.Config.OcrFileIdColumn != "" {
		return s.Config.OcrFileIdColumn
	}
	return models.DefaultOcrFileIdColumn
}

func (s *Server) ocrFilePathColumn() string {
	if s.Config.OcrFilePathColumn != "" {
		return s.Config.OcrFilePathColumn
	}
	return models.DefaultOcrFilePathColumn
}

func fallback(v, def string) string {
	if v != "" {
		return v
	}
	return def
}
