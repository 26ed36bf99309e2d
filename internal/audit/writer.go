package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Sink accepts finished cycle records. Implementations must apply
// redaction before persisting.
type Sink interface {
	Append(record CycleRecord) error
}

// Writer is the append-only JSONL sink: one JSON object per line,
// synced after every write so a crash never loses an approved order's
// trail.
type Writer struct {
	mu   sync.Mutex
	file *os.File
	log  zerolog.Logger
}

// NewWriter opens (or creates) the JSONL file, creating parent
// directories as needed.
func NewWriter(path string) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create audit log directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log %s: %w", path, err)
	}
	return &Writer{
		file: f,
		log:  log.With().Str("component", "audit_writer").Logger(),
	}, nil
}

// Append redacts, serializes, and writes one record followed by a
// newline, then syncs to disk.
func (w *Writer) Append(record CycleRecord) error {
	data, err := json.Marshal(record.Redacted())
	if err != nil {
		return fmt.Errorf("failed to marshal cycle record: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write cycle record: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync audit log: %w", err)
	}
	return nil
}

// Close releases the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
