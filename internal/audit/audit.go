package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Entry is the summary of one detection run
type Entry struct {
	RunID       string         `json:"run_id"`
	Timestamp   time.Time      `json:"timestamp"`
	Stage       string         `json:"stage"`
	Input       string         `json:"input"`
	Records     int            `json:"records"`
	Skipped     *int           `json:"skipped,omitempty"`
	Events      int            `json:"events"`
	DistinctIPs int            `json:"distinct_ips"`
	Reasons     map[string]int `json:"reasons,omitempty"`
	Report      string         `json:"report,omitempty"`
}

// Logger handles appending run summaries to the audit log
type Logger struct {
	mu       sync.Mutex
	filePath string
}

// NewLogger creates a new audit logger
func NewLogger(filePath string) *Logger {
	return &Logger{
		filePath: filePath,
	}
}

// Path returns the audit log location
func (l *Logger) Path() string {
	return l.filePath
}

// Log writes an entry to the audit log in a thread-safe manner
func (l *Logger) Log(entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.filePath), 0o755); err != nil {
		return fmt.Errorf("failed to create audit directory: %w", err)
	}

	f, err := os.OpenFile(l.filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	// one JSON document per line
	encoder := json.NewEncoder(f)
	if err := encoder.Encode(entry); err != nil {
		return fmt.Errorf("failed to encode entry: %w", err)
	}

	return nil
}
