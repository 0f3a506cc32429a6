package manifest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const allyReportCSV = `Id,Name,Mime type,Scanned:1
101,Report.pdf,application/pdf,1
102,Syllabus.pdf,application/pdf,1
103,Report.pdf,application/pdf,1
104,Notes.docx,application/msword,1
105,Clean.pdf,application/pdf,0
`

func TestLoadFilteredScannedPDF(t *testing.T) {
	rows, duplicates := LoadFiltered(strings.NewReader(allyReportCSV), Options{}, ScannedPDF)

	// Only scanned PDFs survive the filter; the docx and the unscanned PDF
	// are dropped, but duplicate names are NOT removed here.
	require.Len(t, rows, 3)
	assert.Equal(t, "101", rows[0].FileID)
	assert.Equal(t, "Report.pdf", rows[0].TargetName)
	assert.Equal(t, "102", rows[1].FileID)
	assert.Equal(t, "103", rows[2].FileID)

	require.Len(t, duplicates, 1)
	_, ok := duplicates["Report.pdf"]
	assert.True(t, ok, "Report.pdf appears twice and must be marked duplicate")
}

func TestLoadFilteredSanitizedCollision(t *testing.T) {
	// Two names that differ only in reserved characters collide after
	// sanitization and both count toward the duplicate set.
	csv := `Id,Name,Mime type,Scanned:1
1,week?1.pdf,application/pdf,1
2,week1.pdf,application/pdf,1
`
	rows, duplicates := LoadFiltered(strings.NewReader(csv), Options{}, ScannedPDF)
	require.Len(t, rows, 2)
	assert.Equal(t, "week1.pdf", rows[0].TargetName)
	assert.Contains(t, duplicates, "week1.pdf")
}

func TestLoadFilteredCustomColumns(t *testing.T) {
	csv := `FID,Title,Mime type,Scanned:1
7,Custom.pdf,application/pdf,1
`
	rows, _ := LoadFiltered(strings.NewReader(csv), Options{FileIdColumn: "FID", FilenameColumn: "Title"}, ScannedPDF)
	require.Len(t, rows, 1)
	assert.Equal(t, "7", rows[0].FileID)
	assert.Equal(t, "Custom.pdf", rows[0].TargetName)
}

func TestLoadUploadManifest(t *testing.T) {
	csv := `File_ID,OCR_File_Path
201,ocr/Report.pdf
,ocr/Orphan.pdf
`
	rows := Load(strings.NewReader(csv), Options{
		FileIdColumn:   "File_ID",
		FilenameColumn: "OCR_File_Path",
	})
	require.Len(t, rows, 2)
	assert.Equal(t, "201", rows[0].FileID)
	assert.Equal(t, "ocr/Report.pdf", rows[0].LocalPath)
	// Rows with a missing id still come back; the pipeline classifies them.
	assert.Equal(t, "", rows[1].FileID)
}

func TestRecordsMalformedManifest(t *testing.T) {
	// A quoting error mid-file stops the parse but keeps what came before.
	csv := "Id,Name,Mime type,Scanned:1\n1,Good.pdf,application/pdf,1\n2,\"broken,application/pdf,1\n"
	rows, _ := LoadFiltered(strings.NewReader(csv), Options{}, ScannedPDF)
	require.Len(t, rows, 1)
	assert.Equal(t, "Good.pdf", rows[0].TargetName)
}

func TestRecordsEmptyInput(t *testing.T) {
	rows, duplicates := LoadFiltered(strings.NewReader(""), Options{}, ScannedPDF)
	assert.Empty(t, rows)
	assert.Empty(t, duplicates)
}

func TestParseFileID(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   int64
		wantOk bool
	}{
		{"Plain integer", "12345", 12345, true},
		{"Whitespace", "  42 ", 42, true},
		{"Spreadsheet float", "12345.0", 12345, true},
		{"Scientific integral", "1e3", 1000, true},
		{"Fractional float", "12345.5", 0, false},
		{"Empty", "", 0, false},
		{"Words", "abc", 0, false},
		{"Infinity", "Inf", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseFileID(tt.input)
			assert.Equal(t, tt.wantOk, ok, "ok for %q", tt.input)
			if tt.wantOk {
				assert.Equal(t, tt.want, got, "value for %q", tt.input)
			}
		})
	}
}
