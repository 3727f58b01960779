package state

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
)

// ErrorLog collects upload failures for one run and writes them as plain text.
// The file is only left on disk when at least one entry was recorded.
type ErrorLog struct {
	mu      sync.Mutex
	fs      billy.Filesystem
	name    string
	started time.Time
	entries []string
}

// NewErrorLog prepares a log stamped with the run's start time
func NewErrorLog(fs billy.Filesystem, name string, started time.Time) *ErrorLog {
	return &ErrorLog{fs: fs, name: name, started: started}
}

// Failed records an asset whose upload failed during this run
func (l *ErrorLog) Failed(location, reason string) {
	l.add(fmt.Sprintf("File: %s\nReason: %s\n", location, reason))
}

// Skipped records an asset not retried because it failed in an earlier run
func (l *ErrorLog) Skipped(location, reason string) {
	l.add(fmt.Sprintf("File (skipped): %s\nReason: %s\n", location, reason))
}

func (l *ErrorLog) add(entry string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
}

// Len returns the number of recorded entries
func (l *ErrorLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Flush writes the log when it has entries and removes a stale one otherwise
func (l *ErrorLog) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) == 0 {
		if _, err := l.fs.Stat(l.name); err == nil {
			if err := l.fs.Remove(l.name); err != nil {
				return fmt.Errorf("remove %s: %w", l.name, err)
			}
		}
		return nil
	}

	var sb strings.Builder
	sb.WriteString("Upload Error Log - ")
	sb.WriteString(l.started.UTC().Format(time.RFC3339))
	sb.WriteString("\n\n")
	for _, e := range l.entries {
		sb.WriteString(e)
		sb.WriteString("\n")
	}
	return New(l.fs).write(l.name, []byte(sb.String()))
}
