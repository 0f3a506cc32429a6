package api

import (
	"bufio"
	"fmt"
	"net/http"
	"net/http/httputil"
	"os"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// LoggingTransport wraps an http.RoundTripper and appends request/response
// dumps to a log file. Bodies are never dumped: downloads are large binary
// streams and upload params may embed signed credentials.
type LoggingTransport struct {
	Transport http.RoundTripper
	logFile   *os.File
	mu        sync.Mutex
	writer    *bufio.Writer
}

// NewLoggingTransport opens the log file for appending and returns the
// wrapping transport.
func NewLoggingTransport(transport http.RoundTripper, logFilePath string) (*LoggingTransport, error) {
	f, err := os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open API log file %s: %w", logFilePath, err)
	}
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &LoggingTransport{
		Transport: transport,
		logFile:   f,
		writer:    bufio.NewWriter(f),
	}, nil
}

// RoundTrip executes a single HTTP transaction, logging headers and timing.
func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	start := time.Now()
	if dump, err := httputil.DumpRequestOut(req, false); err != nil {
		log.WithError(err).Error("Failed to dump API request for logging")
	} else {
		t.writeLog(fmt.Sprintf("--- Request (%s) ---\n%s", start.Format(time.RFC3339), string(dump)))
	}

	resp, err := t.Transport.RoundTrip(req)
	duration := time.Since(start)

	if err != nil {
		t.writeLog(fmt.Sprintf("--- Response Error (Duration: %v) ---\n%s", duration, err.Error()))
	} else if dump, dumpErr := httputil.DumpResponse(resp, false); dumpErr != nil {
		log.WithError(dumpErr).Error("Failed to dump API response for logging")
		t.writeLog(fmt.Sprintf("--- Response (Duration: %v) ---\nStatus: %s", duration, resp.Status))
	} else {
		t.writeLog(fmt.Sprintf("--- Response (Duration: %v) ---\n%s", duration, string(dump)))
	}

	t.writer.Flush()
	return resp, err
}

func (t *LoggingTransport) writeLog(s string) {
	if _, err := t.writer.WriteString(s + "\n\n"); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing to API log file: %v\n", err)
	}
}

// Close flushes and closes the underlying log file.
func (t *LoggingTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush API log buffer: %w", err)
	}
	return t.logFile.Close()
}
