package manifest

import (
	"encoding/csv"
	"io"
	"math"
	"strconv"
	"strings"

	"canvas-bulkflow/internal/helpers"
	"canvas-bulkflow/internal/models"

	log "github.com/sirupsen/logrus"
)

// Row is one line of the manifest. TargetName is already sanitized for use
// as a local filename and as the dedup key. FileID is kept raw: it may be
// absent or malformed and the pipelines classify that per row.
type Row struct {
	Index      int
	FileID     string
	TargetName string
	LocalPath  string
}

// Record is one manifest line keyed by header name.
type Record map[string]string

// Predicate selects manifest records for processing.
type Predicate func(rec Record) bool

// ScannedPDF is the download-direction filter: PDF documents flagged as
// scanned by the accessibility report.
func ScannedPDF(rec Record) bool {
	return rec["Mime type"] == "application/pdf" && rec["Scanned:1"] == "1"
}

// Options names the manifest columns to read.
type Options struct {
	FileIdColumn   string
	FilenameColumn string
}

func (o Options) withDefaults() Options {
	if o.FileIdColumn == "" {
		o.FileIdColumn = models.DefaultFileIdColumn
	}
	if o.FilenameColumn == "" {
		o.FilenameColumn = models.DefaultFilenameColumn
	}
	return o
}

// records parses the CSV stream into header-keyed records. Malformed input
// never fails the run: whatever parsed cleanly is returned and the rest is
// logged and dropped, so a broken manifest degrades to an empty row set.
func records(r io.Reader) []Record {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if err != io.EOF {
			log.WithError(err).Warn("Failed to read manifest header")
		}
		return nil
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var recs []Record
	for {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.WithError(err).Warnf("Stopping manifest parse after %d rows", len(recs))
			break
		}
		rec := make(Record, len(header))
		for i, name := range header {
			if i < len(fields) {
				rec[name] = strings.TrimSpace(fields[i])
			}
		}
		recs = append(recs, rec)
	}
	return recs
}

// Load reads every manifest row for the upload direction. LocalPath carries
// the OCRed-file-path column value, to be resolved against the OCR folder.
func Load(r io.Reader, opts Options) []Row {
	opts = opts.withDefaults()
	var rows []Row
	for i, rec := range records(r) {
		rows = append(rows, Row{
			Index:     i,
			FileID:    rec[opts.FileIdColumn],
			LocalPath: rec[opts.FilenameColumn],
		})
	}
	return rows
}

// LoadFiltered reads the manifest for the download direction: it applies the
// predicate, sanitizes target names, and computes the set of names occurring
// more than once within the candidate set. The candidate rows are returned
// in manifest order and NOT deduplicated here; the fetch pipeline skips
// duplicate-named rows one at a time so each occurrence is logged.
func LoadFiltered(r io.Reader, opts Options, pred Predicate) ([]Row, map[string]struct{}) {
	opts = opts.withDefaults()

	var rows []Row
	nameCounts := make(map[string]int)
	for i, rec := range records(r) {
		if pred != nil && !pred(rec) {
			continue
		}
		name := helpers.SanitizeFilename(rec[opts.FilenameColumn])
		rows = append(rows, Row{
			Index:      i,
			FileID:     rec[opts.FileIdColumn],
			TargetName: name,
		})
		nameCounts[name]++
	}

	duplicates := make(map[string]struct{})
	for name, count := range nameCounts {
		if count >= 2 {
			duplicates[name] = struct{}{}
		}
	}
	log.Debugf("Manifest: %d candidate rows, %d duplicated names", len(rows), len(duplicates))
	return rows, duplicates
}

// ParseFileID parses a manifest identifier. Spreadsheet exports commonly
// render integer ids as floats ("12345.0"), so an integral float is
// accepted; anything else non-numeric is rejected.
func ParseFileID(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return id, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == math.Trunc(f) && !math.IsInf(f, 0) {
		return int64(f), true
	}
	return 0, false
}
