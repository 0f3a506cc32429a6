package models

type (
	Config struct {
		// Connection/Auth
		Token   string `toml:"Token"`
		BaseUrl string `toml:"BaseUrl"`

		// Paths
		OutputFolder string `toml:"OutputFolder"`
		OcrFolder    string `toml:"OcrFolder"`
		LedgerPath   string `toml:"LedgerPath"`

		// Manifest columns
		FileIdColumn      string `toml:"FileIdColumn"`
		FilenameColumn    string `toml:"FilenameColumn"`
		OcrFileIdColumn   string `toml:"OcrFileIdColumn"`
		OcrFilePathColumn string `toml:"OcrFilePathColumn"`

		// Transfer behavior
		RowDelayMs          int `toml:"RowDelayMs"`
		ApiClientTimeoutSec int `toml:"ApiClientTimeoutSec"`

		// Web front-end
		ListenAddr       string `toml:"ListenAddr"`
		JobRetentionMins int    `toml:"JobRetentionMins"`

		// Other
		LogApiRequests bool `toml:"LogApiRequests"`
	}

	// FileMetadata is the validated shape of GET /api/v1/files/{id}.
	// Url and Size may be absent in the raw response; zero values stand in,
	// and callers must treat an empty Url as a missing content location.
	FileMetadata struct {
		ID          int64  `json:"id"`
		Url         string `json:"url"`
		Size        int64  `json:"size"`
		FolderID    int64  `json:"folder_id"`
		DisplayName string `json:"display_name"`
		ContentType string `json:"content-type"`
	}

	// FolderMetadata is the validated shape of GET /api/v1/folders/{id}.
	FolderMetadata struct {
		ID          int64  `json:"id"`
		ContextID   int64  `json:"context_id"`
		ContextType string `json:"context_type"`
	}

	// UploadTicket is the successful payload of the upload-initiation call.
	// Params carries the opaque form fields the storage endpoint expects
	// alongside the file part; the API does not document their types, so
	// they stay untyped until written back out as form values.
	UploadTicket struct {
		UploadUrl string                 `json:"upload_url"`
		Params    map[string]interface{} `json:"upload_params"`
	}

	// LedgerEntry is one recorded transfer outcome in the local history db.
	LedgerEntry struct {
		Direction string `json:"direction"`
		FileID    string `json:"fileId"`
		Name      string `json:"name"`
		Outcome   string `json:"outcome"`
		Bytes     int64  `json:"bytes,omitempty"`
		Timestamp int64  `json:"timestamp"`
	}
)

// Defaults matching the original deployment.
const (
	DefaultBaseUrl           = "https://usu.instructure.com"
	DefaultFileIdColumn      = "Id"
	DefaultFilenameColumn    = "Name"
	DefaultOcrFileIdColumn   = "File_ID"
	DefaultOcrFilePathColumn = "OCR_File_Path"
	DefaultRowDelayMs        = 1000
	DefaultListenAddr        = "127.0.0.1:5000"
)
