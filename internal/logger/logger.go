// Package logger writes the append-only audit stream: one JSON object per
// line, secrets scrubbed before anything reaches disk.
package logger

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gzhole/lca/internal/redact"
)

const (
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"

	KindCommand = "command"
	KindPatch   = "patch"
)

// defaultMaxLogBytes is the size at which New moves the current log aside.
const defaultMaxLogBytes = 10 << 20

// Record is one audit line.
type Record struct {
	Timestamp  string   `json:"timestamp"`
	Level      string   `json:"level"`
	Kind       string   `json:"kind"`
	Summary    string   `json:"summary"`
	Outcome    string   `json:"outcome"`
	DurationMs int64    `json:"duration_ms"`
	Verdict    string   `json:"verdict,omitempty"`
	Reasons    []string `json:"reasons,omitempty"`
	ExitCode   *int     `json:"exit_code,omitempty"`
	Files      []string `json:"files,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// ErrClosed is returned by Log after Close.
var ErrClosed = errors.New("audit log closed")

type AuditLogger struct {
	file *os.File
	path string
	mu   sync.Mutex
}

// New opens (creating if needed) the log at path. A log already at or over
// the size limit is renamed to path+".1" first, replacing any older backup.
func New(path string) (*AuditLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create log dir: %w", err)
	}
	if info, err := os.Stat(path); err == nil && info.Size() >= defaultMaxLogBytes {
		if err := os.Rename(path, path+".1"); err != nil {
			return nil, fmt.Errorf("failed to rotate audit log: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	return &AuditLogger{file: file, path: path}, nil
}

func (l *AuditLogger) Path() string { return l.path }

func (l *AuditLogger) Log(rec Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return ErrClosed
	}

	if rec.Timestamp == "" {
		rec.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	if rec.Level == "" {
		rec.Level = LevelInfo
	}

	// Redact sensitive data before logging
	rec.Summary = redact.Redact(rec.Summary)
	rec.Reasons = redact.RedactArgs(rec.Reasons)
	if rec.Error != "" {
		rec.Error = redact.Redact(rec.Error)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	data = append(data, '\n')
	_, err = l.file.Write(data)
	return err
}

// Close flushes to stable storage and closes the file. It is safe to call
// more than once.
func (l *AuditLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	syncErr := l.file.Sync()
	closeErr := l.file.Close()
	l.file = nil
	return errors.Join(syncErr, closeErr)
}

// ReadAll returns every well-formed record in the log at path. Malformed
// lines are skipped; a missing file yields no records.
func ReadAll(path string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var records []Record
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue // skip malformed lines
		}
		records = append(records, rec)
	}
	return records, scanner.Err()
}
