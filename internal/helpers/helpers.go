package helpers

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

// reservedFilenameChars are stripped before a manifest name is used on disk.
// These are the characters rejected by common Windows filesystems.
const reservedFilenameChars = `\/*?:"<>|`

// SanitizeFilename removes filesystem-reserved characters from a name.
// The result is stable: sanitizing twice yields the same string.
func SanitizeFilename(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, ch := range name {
		if !strings.ContainsRune(reservedFilenameChars, ch) {
			b.WriteRune(ch)
		}
	}
	return b.String()
}

// CounterWriter tracks the number of bytes written to the underlying writer.
type CounterWriter struct {
	Total  uint64
	Writer io.Writer
}

// Write implements the io.Writer interface for CounterWriter.
func (cw *CounterWriter) Write(p []byte) (int, error) {
	n, err := cw.Writer.Write(p)
	cw.Total += uint64(n)
	return n, err
}

// BytesToSize converts a byte count into a human-readable string (KB, MB, GB, etc.).
func BytesToSize(bytes uint64) string {
	sizes := []string{"B", "KB", "MB", "GB", "TB"}
	if bytes == 0 {
		return "0B"
	}
	i := int(math.Floor(math.Log(float64(bytes)) / math.Log(1024)))
	if i >= len(sizes) {
		i = len(sizes) - 1 // Handle very large sizes
	}
	return fmt.Sprintf("%.2f%s", float64(bytes)/math.Pow(1024, float64(i)), sizes[i])
}

// CheckAndMakeDir ensures a directory exists, creating it if necessary.
// Uses standard directory permissions (0700).
func CheckAndMakeDir(dir string) bool {
	err := os.MkdirAll(dir, 0700)
	if err != nil {
		log.WithError(err).Errorf("Error creating directory %s", dir)
		return false
	}
	return true
}
