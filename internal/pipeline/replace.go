package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"canvas-bulkflow/internal/api"
	"canvas-bulkflow/internal/manifest"

	log "github.com/sirupsen/logrus"
)

// Replacer runs the upload direction: for each manifest row it resolves the
// remote document's folder and owning course, then replaces the document in
// place with a locally OCRed file via the service's create-then-upload
// handshake. The remote display name is reused, not the manifest's.
type Replacer struct {
	Client     *api.Client
	OcrFolder  string
	Delay      time.Duration
	OnProgress Progress
	Log        Sink
}

// Run processes rows strictly in manifest order, one outcome per row. The
// pacing delay applies after every processed row regardless of outcome.
func (r *Replacer) Run(rows []manifest.Row) []Outcome {
	total := len(rows)
	outcomes := make([]Outcome, 0, total)
	processed := 0

	for _, row := range rows {
		processed++
		r.OnProgress.report(processed, total, fmt.Sprintf("Processing row %d...", row.Index))

		outcomes = append(outcomes, r.replaceRow(row))

		if r.Delay > 0 {
			time.Sleep(r.Delay)
		}
	}

	r.summarize(outcomes)
	return outcomes
}

func (r *Replacer) replaceRow(row manifest.Row) Outcome {
	base := Outcome{RowIndex: row.Index, FileID: row.FileID}

	fileID, ok := manifest.ParseFileID(row.FileID)
	if !ok {
		r.Log.logf("[Row %d] Missing file_id. Skipping.", row.Index)
		base.Kind = SkippedMissingId
		return base
	}

	var localPath string
	if row.LocalPath != "" {
		localPath = filepath.Join(r.OcrFolder, row.LocalPath)
	}
	if localPath == "" || !fileExists(localPath) {
		r.Log.logf("[Row %d] Local file path missing or invalid: %s. Skipping.", row.Index, localPath)
		base.Kind = SkippedMissingLocalFile
		return base
	}

	meta, err := r.Client.GetFile(fileID)
	if err != nil {
		r.Log.logf("[Row %d] Failed to get metadata for file_id=%s: %v", row.Index, row.FileID, err)
		base.Kind = FailedMetadata
		return base
	}
	if meta.FolderID == 0 || meta.DisplayName == "" {
		r.Log.logf("[Row %d] Metadata for file_id=%s is missing folder_id or display_name.", row.Index, row.FileID)
		base.Kind = FailedMetadata
		return base
	}
	base.Name = meta.DisplayName

	folder, err := r.Client.GetFolder(meta.FolderID)
	if err != nil {
		r.Log.logf("[Row %d] Failed to get folder info for folder_id=%d: %v", row.Index, meta.FolderID, err)
		base.Kind = FailedMetadata
		return base
	}

	if !strings.EqualFold(folder.ContextType, "course") {
		r.Log.logf("[Row %d] Not a course folder (context_type=%s). Skipping.", row.Index, folder.ContextType)
		base.Kind = SkippedIneligibleContainer
		return base
	}

	r.Log.logf("[Row %d] Overwriting file_id=%s with local file: %s", row.Index, row.FileID, localPath)
	kind, status := r.overwrite(folder.ContextID, meta.FolderID, localPath, meta.DisplayName)
	base.Kind = kind
	base.StatusCode = status
	if kind == Uploaded {
		r.Log.logf("[Row %d] Successfully replaced file_id=%s.", row.Index, row.FileID)
	} else {
		r.Log.logf("[Row %d] Failed to replace file_id=%s.", row.Index, row.FileID)
	}
	return base
}

// overwrite runs the three-step handshake: initiate, multipart POST, and the
// optional follow-redirect finalize.
func (r *Replacer) overwrite(courseID, folderID int64, localPath, displayName string) (Kind, int) {
	info, err := os.Stat(localPath)
	if err != nil {
		r.Log.logf("Local file not found: %s", localPath)
		return FailedTransfer, 0
	}

	ticket, err := r.Client.InitiateUpload(courseID, folderID, displayName, info.Size())
	if err != nil {
		var statusErr *api.StatusError
		switch {
		case errors.As(err, &statusErr):
			r.Log.logf("Failed to initiate upload for '%s' (Status: %d).", displayName, statusErr.StatusCode)
			return FailedTransfer, statusErr.StatusCode
		case errors.Is(err, api.ErrMissingUploadTarget):
			r.Log.logf("Missing 'upload_url' or 'upload_params' in initiation response.")
			return FailedTransfer, 0
		default:
			r.Log.logf("Failed to initiate upload for '%s': %v", displayName, err)
			return FailedTransfer, 0
		}
	}

	f, err := os.Open(localPath)
	if err != nil {
		r.Log.logf("Cannot open local file %s: %v", localPath, err)
		return FailedTransfer, 0
	}
	defer f.Close()

	result, err := r.Client.PostUpload(ticket, displayName, f)
	if err != nil {
		r.Log.logf("File upload step failed: %v", err)
		return FailedTransfer, 0
	}

	switch {
	case result.Completed():
		log.Debugf("Replaced '%s' (status=%d)", displayName, result.StatusCode)
		return Uploaded, 0
	case result.StatusCode == 302:
		if !result.Redirected() {
			r.Log.logf("Redirect failed or missing location header.")
			return FailedTransfer, result.StatusCode
		}
		finalStatus, err := r.Client.FinalizeRedirect(result.Location)
		if err != nil {
			r.Log.logf("Redirect finalize failed: %v", err)
			return FailedTransfer, result.StatusCode
		}
		if finalStatus == 200 || finalStatus == 201 {
			log.Debugf("Replaced '%s' (after redirect)", displayName)
			return Uploaded, 0
		}
		r.Log.logf("Redirect finalize returned status %d.", finalStatus)
		return FailedTransfer, finalStatus
	default:
		r.Log.logf("File upload step failed. Status %d", result.StatusCode)
		return FailedTransfer, result.StatusCode
	}
}

func (r *Replacer) summarize(outcomes []Outcome) {
	var succeeded, failed, skipped int
	for _, o := range outcomes {
		switch {
		case o.Kind == Uploaded:
			succeeded++
		case o.Kind.Failed():
			failed++
		case o.Kind.Skipped():
			skipped++
		}
	}

	r.Log.logf("")
	r.Log.logf("=== UPLOAD SUMMARY ===")
	r.Log.logf("Total rows in CSV: %d", len(outcomes))
	r.Log.logf("Files successfully replaced: %d", succeeded)
	r.Log.logf("Files failed to replace: %d", failed)
	r.Log.logf("Files skipped: %d", skipped)
	log.Infof("Upload run finished: %d replaced, %d failed, %d skipped", succeeded, failed, skipped)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
