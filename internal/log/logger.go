// Package log provides the council event journal.
// This file appends JSON events to journal.jsonl.
package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Event type constants.
const (
	EventSessionStarted     = "session_started"
	EventSessionResumed     = "session_resumed"
	EventIterationStarted   = "iteration_started"
	EventMemberResponded    = "member_responded"
	EventMemberFailed       = "member_failed"
	EventMergeCompleted     = "merge_completed"
	EventSessionCompleted   = "session_completed"
	EventSessionFailed      = "session_failed"
	EventSessionInterrupted = "session_interrupted"
)

// LogEvent represents a single structured event written to the journal.
type LogEvent struct {
	Time         time.Time              `json:"time"`
	Event        string                 `json:"event"`
	SessionID    string                 `json:"session"`
	Iteration    int                    `json:"iteration,omitempty"`
	Phase        string                 `json:"phase,omitempty"`
	MemberID     string                 `json:"member,omitempty"`
	Provider     string                 `json:"provider,omitempty"`
	Model        string                 `json:"model,omitempty"`
	Error        string                 `json:"error,omitempty"`
	ErrorKind    string                 `json:"error_kind,omitempty"`
	InputTokens  int                    `json:"input_tokens,omitempty"`
	OutputTokens int                    `json:"output_tokens,omitempty"`
	DurationMs   int64                  `json:"duration_ms,omitempty"`
	CostUSD      float64                `json:"cost_usd,omitempty"`
	Data         map[string]interface{} `json:"data,omitempty"`
}

// Logger writes append-only JSONL events to a journal file.
type Logger struct {
	path string
	mu   sync.Mutex
}

// NewLogger creates a Logger that writes to journal.jsonl inside dir.
// Creates dir if it does not already exist.
// Does not truncate an existing journal.
func NewLogger(dir string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	return &Logger{
		path: filepath.Join(dir, "journal.jsonl"),
	}, nil
}

// Path returns the journal file location.
func (l *Logger) Path() string {
	return l.path
}

// Append writes a single LogEvent as one JSON line to the journal.
// If event.Time is the zero value, it is automatically set to time.Now().UTC().
// Thread-safe via mutex.
func (l *Logger) Append(event LogEvent) error {
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal log event: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write log event: %w", err)
	}

	return nil
}

// ReadSession returns the events recorded for one session, in write order.
// Returns an empty slice (not an error) if the journal does not exist.
func (l *Logger) ReadSession(sessionID string) ([]LogEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []LogEvent{}, nil
		}
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	events := []LogEvent{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event LogEvent
		if err := json.Unmarshal(line, &event); err != nil {
			return nil, fmt.Errorf("parse journal line %d: %w", lineNum, err)
		}
		if event.SessionID == sessionID {
			events = append(events, event)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}

	return events, nil
}
