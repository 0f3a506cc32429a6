package downloader

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"canvas-bulkflow/internal/api"
	"canvas-bulkflow/internal/helpers"

	log "github.com/sirupsen/logrus"
)

// Custom Downloader Errors
var (
	ErrFileSystem  = errors.New("filesystem error") // Covers create, write, rename
	ErrHttpRequest = errors.New("HTTP request creation/execution error")
)

// Downloader retrieves document content streams to local files.
type Downloader struct {
	client *http.Client
	token  string
}

// NewDownloader creates a new Downloader instance. A nil client gets a
// default with a generous timeout suitable for large files.
func NewDownloader(client *http.Client, token string) *Downloader {
	if client == nil {
		client = &http.Client{
			Timeout: 15 * time.Minute,
		}
	}
	return &Downloader{
		client: client,
		token:  token,
	}
}

// FetchFile downloads the given URL to targetFilepath, overwriting any
// existing file of the same name. Content is streamed through a temp file
// in the target directory and renamed into place, so a failed transfer
// never leaves a truncated file under the final name. Returns the byte
// count written and the response Content-Type.
//
// A non-200 response is returned as an *api.StatusError so callers can
// record the failing status.
func (d *Downloader) FetchFile(targetFilepath, url string) (int64, string, error) {
	targetDir := filepath.Dir(targetFilepath)
	if !helpers.CheckAndMakeDir(targetDir) {
		return 0, "", fmt.Errorf("%w: failed to create target directory %s", ErrFileSystem, targetDir)
	}

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return 0, "", fmt.Errorf("%w: creating download request for %s: %w", ErrHttpRequest, url, err)
	}
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("%w: performing request for %s: %w", ErrHttpRequest, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, "", &api.StatusError{Op: "content download", StatusCode: resp.StatusCode}
	}
	contentType := resp.Header.Get("Content-Type")

	tempFile, err := os.CreateTemp(targetDir, filepath.Base(targetFilepath)+".*.tmp")
	if err != nil {
		return 0, "", fmt.Errorf("%w: creating temporary file for %s: %w", ErrFileSystem, targetFilepath, err)
	}
	keepTemp := false
	defer func() {
		if !keepTemp {
			if removeErr := os.Remove(tempFile.Name()); removeErr != nil {
				log.WithError(removeErr).Warnf("Failed to remove temporary file %s", tempFile.Name())
			}
		}
	}()

	counter := &helpers.CounterWriter{Writer: tempFile}
	if _, err := io.Copy(counter, resp.Body); err != nil {
		tempFile.Close()
		return 0, "", fmt.Errorf("%w: writing temporary file %s: %w", ErrFileSystem, tempFile.Name(), err)
	}
	if err := tempFile.Close(); err != nil {
		return 0, "", fmt.Errorf("%w: closing temp file %s: %w", ErrFileSystem, tempFile.Name(), err)
	}

	if err := os.Rename(tempFile.Name(), targetFilepath); err != nil {
		return 0, "", fmt.Errorf("%w: renaming %s to %s: %w", ErrFileSystem, tempFile.Name(), targetFilepath, err)
	}
	keepTemp = true

	log.Debugf("Wrote %s (%s)", targetFilepath, helpers.BytesToSize(counter.Total))
	return int64(counter.Total), contentType, nil
}
