package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"canvas-bulkflow/internal/models"

	log "github.com/sirupsen/logrus"
)

// Custom Error Types
var (
	ErrUnauthorized = errors.New("API request unauthorized (check API token)")
	// ErrMissingUploadTarget marks a 2xx initiation response that lacks the
	// upload_url/upload_params fields needed for the second handshake step.
	ErrMissingUploadTarget = errors.New("initiation response missing upload_url or upload_params")
)

// StatusError reports a remote call that completed with a non-success HTTP
// status. The code is preserved so pipelines can classify the row outcome
// without re-inspecting responses.
type StatusError struct {
	Op         string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed with status %d", e.Op, e.StatusCode)
}

// Client issues authenticated calls against a Canvas-style API.
type Client struct {
	BaseUrl    string
	Token      string
	HttpClient *http.Client

	// uploadClient shares the transport but never follows redirects: the
	// storage endpoint's 302 must be re-fetched explicitly with our own
	// auth header, not replayed by the transport.
	uploadClient *http.Client
}

// NewClient creates a new API client. A nil httpClient gets a default with a
// 60 second timeout.
func NewClient(baseUrl, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	uploadClient := &http.Client{
		Timeout:   httpClient.Timeout,
		Transport: httpClient.Transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &Client{
		BaseUrl:      strings.TrimRight(baseUrl, "/"),
		Token:        token,
		HttpClient:   httpClient,
		uploadClient: uploadClient,
	}
}

func (c *Client) authGet(rawUrl string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, rawUrl, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request for %s: %w", rawUrl, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	return c.HttpClient.Do(req)
}

// GetFile fetches document metadata by id.
func (c *Client) GetFile(id int64) (models.FileMetadata, error) {
	reqUrl := fmt.Sprintf("%s/api/v1/files/%d", c.BaseUrl, id)
	resp, err := c.authGet(reqUrl)
	if err != nil {
		return models.FileMetadata{}, fmt.Errorf("file metadata request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Debugf("GetFile(%d) returned status %d", id, resp.StatusCode)
		return models.FileMetadata{}, &StatusError{Op: "file metadata", StatusCode: resp.StatusCode}
	}

	var meta models.FileMetadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return models.FileMetadata{}, fmt.Errorf("error decoding file metadata for id %d: %w", id, err)
	}
	return meta, nil
}

// GetFolder fetches folder metadata by id.
func (c *Client) GetFolder(id int64) (models.FolderMetadata, error) {
	reqUrl := fmt.Sprintf("%s/api/v1/folders/%d", c.BaseUrl, id)
	resp, err := c.authGet(reqUrl)
	if err != nil {
		return models.FolderMetadata{}, fmt.Errorf("folder metadata request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Debugf("GetFolder(%d) returned status %d", id, resp.StatusCode)
		return models.FolderMetadata{}, &StatusError{Op: "folder metadata", StatusCode: resp.StatusCode}
	}

	var meta models.FolderMetadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return models.FolderMetadata{}, fmt.Errorf("error decoding folder metadata for id %d: %w", id, err)
	}
	return meta, nil
}

// InitiateUpload runs the first handshake step: a form-encoded POST to the
// course's file-creation endpoint. on_duplicate=overwrite replaces the
// remote document under the same display name.
func (c *Client) InitiateUpload(courseID, folderID int64, name string, size int64) (models.UploadTicket, error) {
	reqUrl := fmt.Sprintf("%s/api/v1/courses/%d/files", c.BaseUrl, courseID)
	form := url.Values{}
	form.Set("name", name)
	form.Set("parent_folder_id", strconv.FormatInt(folderID, 10))
	form.Set("on_duplicate", "overwrite")
	form.Set("size", strconv.FormatInt(size, 10))
	form.Set("content_type", "application/pdf")

	req, err := http.NewRequest(http.MethodPost, reqUrl, strings.NewReader(form.Encode()))
	if err != nil {
		return models.UploadTicket{}, fmt.Errorf("error creating initiation request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HttpClient.Do(req)
	if err != nil {
		return models.UploadTicket{}, fmt.Errorf("upload initiation request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return models.UploadTicket{}, &StatusError{Op: "upload initiation", StatusCode: resp.StatusCode}
	}

	var ticket models.UploadTicket
	if err := json.NewDecoder(resp.Body).Decode(&ticket); err != nil {
		return models.UploadTicket{}, fmt.Errorf("error decoding initiation response: %w", err)
	}
	if ticket.UploadUrl == "" || len(ticket.Params) == 0 {
		return models.UploadTicket{}, ErrMissingUploadTarget
	}
	return ticket, nil
}

// UploadResult classifies the response to the content POST. Exactly one of
// Completed/Redirected is true for a handshake that can still succeed; any
// other combination fails the row.
type UploadResult struct {
	StatusCode int
	Location   string
}

// Completed reports a directly successful content POST.
func (r UploadResult) Completed() bool {
	return r.StatusCode == http.StatusOK || r.StatusCode == http.StatusCreated
}

// Redirected reports a 302 that carried a Location to finalize against.
func (r UploadResult) Redirected() bool {
	return r.StatusCode == http.StatusFound && r.Location != ""
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// PostUpload runs the second handshake step: a multipart POST of the file
// bytes to the ticket's upload_url with upload_params as accompanying
// fields. The target is typically external storage, so no auth header is
// sent. The body is streamed, not buffered.
func (c *Client) PostUpload(ticket models.UploadTicket, filename string, content io.Reader) (UploadResult, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		var err error
		defer func() {
			pw.CloseWithError(err)
		}()
		for key, value := range ticket.Params {
			if err = mw.WriteField(key, fmt.Sprint(value)); err != nil {
				return
			}
		}
		// The file part must come after the params and carry the PDF type.
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(filename)))
		h.Set("Content-Type", "application/pdf")
		part, perr := mw.CreatePart(h)
		if perr != nil {
			err = perr
			return
		}
		if _, err = io.Copy(part, content); err != nil {
			return
		}
		err = mw.Close()
	}()

	req, err := http.NewRequest(http.MethodPost, ticket.UploadUrl, pr)
	if err != nil {
		return UploadResult{}, fmt.Errorf("error creating upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.uploadClient.Do(req)
	if err != nil {
		return UploadResult{}, fmt.Errorf("upload request: %w", err)
	}
	defer resp.Body.Close()
	// Drain so the transport can reuse the connection.
	_, _ = io.Copy(io.Discard, resp.Body)

	return UploadResult{
		StatusCode: resp.StatusCode,
		Location:   resp.Header.Get("Location"),
	}, nil
}

// FinalizeRedirect performs the follow-redirect step of the handshake: a GET
// of the Location URL with our own auth header. Returns the final status.
func (c *Client) FinalizeRedirect(location string) (int, error) {
	resp, err := c.authGet(location)
	if err != nil {
		return 0, fmt.Errorf("redirect finalize request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}
