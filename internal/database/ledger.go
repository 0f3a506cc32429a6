package database

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"canvas-bulkflow/internal/models"

	"git.mills.io/prologic/bitcask"
	log "github.com/sirupsen/logrus"
)

// ErrNotFound is returned when a key is not found in the ledger.
var ErrNotFound = errors.New("key not found")

// gzipMagicBytes are the first two bytes of a gzip stream.
var gzipMagicBytes = []byte{0x1f, 0x8b}

// Ledger is a local append-only history of transfer outcomes, backed by
// bitcask with gzip-compressed values. It is an audit trail only: the remote
// service stays the source of truth and nothing here short-circuits a run.
type Ledger struct {
	db *bitcask.Bitcask
	sync.RWMutex
}

// Open initializes the ledger at the given path, creating parent directories
// as needed.
func Open(path string) (*Ledger, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory %s: %w", dir, err)
		}
	}

	db, err := bitcask.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger at %s: %w", path, err)
	}
	log.Debugf("Ledger opened at %s", path)
	return &Ledger{db: db}, nil
}

// Close safely closes the ledger.
func (l *Ledger) Close() error {
	l.Lock()
	defer l.Unlock()
	return l.db.Close()
}

// Get retrieves and decompresses the value for a key.
func (l *Ledger) Get(key []byte) ([]byte, error) {
	l.RLock()
	value, err := l.db.Get(key)
	l.RUnlock()
	if err != nil {
		if errors.Is(err, bitcask.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error getting key %s: %w", string(key), err)
	}
	return decompressIfGzipped(value)
}

// Put compresses and stores a key-value pair.
func (l *Ledger) Put(key, value []byte) error {
	compressed, err := compressGzip(value, gzip.BestCompression)
	if err != nil {
		return fmt.Errorf("error compressing value for key %s: %w", string(key), err)
	}
	l.Lock()
	err = l.db.Put(key, compressed)
	l.Unlock()
	if err != nil {
		return fmt.Errorf("error putting key %s: %w", string(key), err)
	}
	return nil
}

// Record appends one transfer outcome. Keys embed the timestamp and file id,
// so repeated runs against the same document accumulate history instead of
// overwriting it.
func (l *Ledger) Record(entry models.LedgerEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("error marshalling ledger entry for %s: %w", entry.FileID, err)
	}
	key := fmt.Sprintf("t_%d_%s_%s", entry.Timestamp, entry.Direction, entry.FileID)
	return l.Put([]byte(key), data)
}

// Entries returns all recorded outcomes, oldest first.
func (l *Ledger) Entries() ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry

	l.RLock()
	err := l.db.Fold(func(key []byte) error {
		raw, err := l.db.Get(key)
		if err != nil {
			log.WithError(err).Warnf("Ledger: error getting value for key %s", string(key))
			return nil
		}
		value, err := decompressIfGzipped(raw)
		if err != nil {
			log.WithError(err).Warnf("Ledger: error decompressing value for key %s", string(key))
			return nil
		}
		var entry models.LedgerEntry
		if err := json.Unmarshal(value, &entry); err != nil {
			log.WithError(err).Warnf("Ledger: skipping malformed entry at key %s", string(key))
			return nil
		}
		entries = append(entries, entry)
		return nil
	})
	l.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("error folding ledger: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp < entries[j].Timestamp
	})
	return entries, nil
}

// --- Compression Helpers ---

func decompressIfGzipped(value []byte) ([]byte, error) {
	if !bytes.HasPrefix(value, gzipMagicBytes) {
		return value, nil
	}
	gReader, err := gzip.NewReader(bytes.NewReader(value))
	if err != nil {
		log.WithError(err).Warn("Error creating gzip reader for value, returning raw data.")
		return value, nil
	}
	defer gReader.Close()

	decompressed, err := io.ReadAll(gReader)
	if err != nil {
		log.WithError(err).Warn("Error decompressing value, returning raw data.")
		return value, nil
	}
	return decompressed, nil
}

func compressGzip(value []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	gWriter, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("error creating gzip writer: %w", err)
	}
	if _, err := gWriter.Write(value); err != nil {
		_ = gWriter.Close()
		return nil, fmt.Errorf("error writing compressed data: %w", err)
	}
	if err := gWriter.Close(); err != nil {
		return nil, fmt.Errorf("error closing gzip writer: %w", err)
	}
	return buf.Bytes(), nil
}
