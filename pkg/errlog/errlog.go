// Package errlog appends per-identifier fetch failures to a plain text file.
//
// Line format:
//
//	[2024-05-01 12:00:00] Batch 3 | ID=1002 | Error=client_rejected error (status 403): 403 Forbidden
package errlog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FileName is the error log file created inside the logs directory.
const FileName = "errors.log"

// TimeFormat is the timestamp layout of each line.
const TimeFormat = "2006-01-02 15:04:05"

// Log is an append-only failure log. It is safe for concurrent use.
type Log struct {
	mu   sync.Mutex
	file *os.File
	path string
	now  func() time.Time
}

// Open opens (or creates) the error log inside dir.
func Open(dir string) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create logs dir: %w", err)
	}

	path := filepath.Join(dir, FileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open error log: %w", err)
	}

	return &Log{file: f, path: path, now: time.Now}, nil
}

// Path returns the log file path.
func (l *Log) Path() string {
	return l.path
}

// Report appends one failure line.
func (l *Log) Report(batch int, id, reason string) error {
	line := Format(l.now(), batch, id, reason)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return fmt.Errorf("error log closed")
	}
	if _, err := l.file.WriteString(line); err != nil {
		return fmt.Errorf("write error log: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Format renders one log line, newline included. Line breaks inside reason are flattened.
func Format(ts time.Time, batch int, id, reason string) string {
	reason = strings.Join(strings.Fields(reason), " ")
	return fmt.Sprintf("[%s] Batch %d | ID=%s | Error=%s\n", ts.Format(TimeFormat), batch, id, reason)
}
