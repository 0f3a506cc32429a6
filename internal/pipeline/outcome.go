package pipeline

// Kind classifies the terminal state of one manifest row.
type Kind int

const (
	Downloaded Kind = iota
	Uploaded
	SkippedDuplicate
	SkippedMissingId
	SkippedMissingLocalFile
	SkippedIneligibleContainer
	FailedMetadata
	FailedTransfer
)

var kindNames = map[Kind]string{
	Downloaded:                 "Downloaded",
	Uploaded:                   "Uploaded",
	SkippedDuplicate:           "SkippedDuplicate",
	SkippedMissingId:           "SkippedMissingId",
	SkippedMissingLocalFile:    "SkippedMissingLocalFile",
	SkippedIneligibleContainer: "SkippedIneligibleContainer",
	FailedMetadata:             "FailedMetadata",
	FailedTransfer:             "FailedTransfer",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// Skipped reports whether the row was rejected by validation rather than by
// a remote call.
func (k Kind) Skipped() bool {
	switch k {
	case SkippedDuplicate, SkippedMissingId, SkippedMissingLocalFile, SkippedIneligibleContainer:
		return true
	}
	return false
}

// Failed reports whether a remote call failed the row.
func (k Kind) Failed() bool {
	return k == FailedMetadata || k == FailedTransfer
}

// Outcome is the immutable per-row result. Outcomes are appended in manifest
// order, one per eligible row.
type Outcome struct {
	Kind       Kind
	RowIndex   int
	FileID     string
	Name       string
	Bytes      int64 // Downloaded only
	StatusCode int   // FailedTransfer only, 0 when no status applies
}
