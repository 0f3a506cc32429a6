package pipeline

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"canvas-bulkflow/internal/api"
	"canvas-bulkflow/internal/downloader"
	"canvas-bulkflow/internal/helpers"
	"canvas-bulkflow/internal/manifest"

	log "github.com/sirupsen/logrus"
)

// Fetcher runs the download direction: for each eligible manifest row it
// resolves remote metadata, retrieves the content stream, writes it under
// the output folder, and verifies the byte count.
type Fetcher struct {
	Client       *api.Client
	Downloader   *downloader.Downloader
	OutputFolder string
	Delay        time.Duration
	OnProgress   Progress
	Log          Sink
}

// Run processes the candidate rows strictly in manifest order and returns
// one outcome per row. Rows whose target name is in the duplicates set are
// skipped individually so every occurrence is visible in the log. Row
// failures never abort the batch; an unusable output folder does, before any
// row is touched.
func (f *Fetcher) Run(rows []manifest.Row, duplicates map[string]struct{}) ([]Outcome, error) {
	if !helpers.CheckAndMakeDir(f.OutputFolder) {
		f.Log.logf("Cannot create output folder %s, aborting.", f.OutputFolder)
		return nil, fmt.Errorf("cannot create output folder %s", f.OutputFolder)
	}

	total := len(rows)
	outcomes := make([]Outcome, 0, total)
	processed := 0

	for _, row := range rows {
		processed++
		f.OnProgress.report(processed, total, fmt.Sprintf("Processing row %d...", row.Index))

		outcome := f.fetchRow(row, duplicates)
		outcomes = append(outcomes, outcome)

		// Pace only rows that reached the content transfer, to reduce the
		// chance of remote rate-limiting.
		if outcome.Kind == Downloaded && f.Delay > 0 {
			time.Sleep(f.Delay)
		}
	}

	f.summarize(outcomes)
	return outcomes, nil
}

func (f *Fetcher) fetchRow(row manifest.Row, duplicates map[string]struct{}) Outcome {
	base := Outcome{RowIndex: row.Index, FileID: row.FileID, Name: row.TargetName}

	fileID, ok := manifest.ParseFileID(row.FileID)
	if !ok {
		f.Log.logf("[Row %d] Missing file ID. Skipping.", row.Index)
		base.Kind = SkippedMissingId
		return base
	}

	if _, dup := duplicates[row.TargetName]; dup {
		f.Log.logf("[Row %d] Skipping ALL duplicates named '%s' (File ID: %s).", row.Index, row.TargetName, row.FileID)
		base.Kind = SkippedDuplicate
		return base
	}

	meta, err := f.Client.GetFile(fileID)
	if err != nil {
		var statusErr *api.StatusError
		if errors.As(err, &statusErr) {
			f.Log.logf("[Row %d] Failed to retrieve metadata for file ID %s (Status: %d). Skipping.", row.Index, row.FileID, statusErr.StatusCode)
		} else {
			f.Log.logf("[Row %d] Failed to retrieve metadata for file ID %s: %v. Skipping.", row.Index, row.FileID, err)
		}
		base.Kind = FailedMetadata
		return base
	}
	if meta.Url == "" {
		f.Log.logf("[Row %d] No download URL found for file ID %s. Skipping.", row.Index, row.FileID)
		base.Kind = FailedMetadata
		return base
	}

	f.Log.logf("[Row %d] Downloading %s (file ID %s)", row.Index, row.TargetName, row.FileID)
	targetPath := filepath.Join(f.OutputFolder, row.TargetName)
	written, contentType, err := f.Downloader.FetchFile(targetPath, meta.Url)
	if err != nil {
		var statusErr *api.StatusError
		if errors.As(err, &statusErr) {
			f.Log.logf("[Row %d] Failed to download %s (Status: %d).", row.Index, row.TargetName, statusErr.StatusCode)
			base.Kind = FailedTransfer
			base.StatusCode = statusErr.StatusCode
			return base
		}
		f.Log.logf("[Row %d] Failed to download %s: %v", row.Index, row.TargetName, err)
		base.Kind = FailedTransfer
		return base
	}

	if !strings.Contains(strings.ToLower(contentType), "application/pdf") {
		f.Log.logf("[Row %d] Warning: %s returned unexpected Content-Type: %s", row.Index, row.TargetName, contentType)
	}

	if meta.Size > 0 && written < meta.Size {
		f.Log.logf("[Row %d] Downloaded %s is smaller than expected (Expected: %d bytes, Got: %d bytes).", row.Index, row.TargetName, meta.Size, written)
	} else {
		f.Log.logf("[Row %d] Downloaded %s (%d bytes) successfully.", row.Index, row.TargetName, written)
	}

	base.Kind = Downloaded
	base.Bytes = written
	return base
}

func (f *Fetcher) summarize(outcomes []Outcome) {
	var downloaded int
	var dups []Outcome
	for _, o := range outcomes {
		switch o.Kind {
		case Downloaded:
			downloaded++
		case SkippedDuplicate:
			dups = append(dups, o)
		}
	}

	f.Log.logf("")
	f.Log.logf("=== DOWNLOAD SUMMARY ===")
	f.Log.logf("Downloaded: %d files.", downloaded)
	if len(dups) > 0 {
		f.Log.logf("Skipped %d files due to name duplication:", len(dups))
		for _, o := range dups {
			f.Log.logf("  - File ID: %s, Name: %s", o.FileID, o.Name)
		}
	} else {
		f.Log.logf("No duplicates were skipped.")
	}
	log.Infof("Download run finished: %d downloaded, %d duplicate rows skipped, %d rows total", downloaded, len(dups), len(outcomes))
}
