// Package trace implements the engine's append-only JSONL audit trail.
package trace

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// EventType enumerates all trace event types.
type EventType string

const (
	EventRunStart        EventType = "run_start"
	EventRunComplete     EventType = "run_complete"
	EventCommandStart    EventType = "command_start"
	EventCommandComplete EventType = "command_complete"
	EventErrorCaptured   EventType = "error_captured"
	EventErrorCleared    EventType = "error_cleared"
	EventExit            EventType = "exit"
)

// CommandStatus is the execution status of a command.
type CommandStatus string

const (
	StatusSuccess CommandStatus = "success"
	StatusSkipped CommandStatus = "skipped"
	StatusFailed  CommandStatus = "failed"
	StatusError   CommandStatus = "error"
)

// Event is a single trace event written to the JSONL stream.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	RunID     string         `json:"run_id"`
	Depth     int            `json:"depth"`
	Data      map[string]any `json:"data,omitempty"`
}

// Writer writes trace events to an append-only JSONL stream.
// It is safe for concurrent use by independent script runs.
type Writer struct {
	mu    sync.Mutex
	w     io.Writer
	runID string
	enc   *json.Encoder
	depth int
}

// NewWriter creates a trace writer that writes to the given io.Writer.
func NewWriter(w io.Writer, runID string) *Writer {
	return &Writer{
		w:     w,
		runID: runID,
		enc:   json.NewEncoder(w),
	}
}

// NewFileWriter creates a trace writer that appends to a JSONL file.
func NewFileWriter(path, runID string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	return NewWriter(f, runID), nil
}

// Close closes the underlying writer if it is closable.
func (tw *Writer) Close() error {
	if c, ok := tw.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Emit writes a single trace event.
func (tw *Writer) Emit(eventType EventType, data map[string]any) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	evt := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		RunID:     tw.runID,
		Depth:     tw.depth,
		Data:      data,
	}
	return tw.enc.Encode(evt)
}

// EmitRunStart emits a run_start event and increases the nesting depth.
func (tw *Writer) EmitRunStart(script string, commands int) error {
	err := tw.Emit(EventRunStart, map[string]any{
		"script":   script,
		"commands": commands,
	})
	tw.mu.Lock()
	tw.depth++
	tw.mu.Unlock()
	return err
}

// EmitRunComplete decreases the nesting depth and emits a run_complete event.
func (tw *Writer) EmitRunComplete(script, status string, duration time.Duration) error {
	tw.mu.Lock()
	if tw.depth > 0 {
		tw.depth--
	}
	tw.mu.Unlock()
	return tw.Emit(EventRunComplete, map[string]any{
		"script":   script,
		"status":   status,
		"duration": duration.String(),
	})
}

// EmitCommandStart emits a command_start event.
func (tw *Writer) EmitCommandStart(name string) error {
	return tw.Emit(EventCommandStart, map[string]any{"command": name})
}

// EmitCommandComplete emits a command_complete event.
func (tw *Writer) EmitCommandComplete(name string, status CommandStatus, duration time.Duration, failure string) error {
	data := map[string]any{
		"command":  name,
		"status":   string(status),
		"duration": duration.String(),
	}
	if failure != "" {
		data["failure"] = failure
	}
	return tw.Emit(EventCommandComplete, data)
}

// EmitErrorCaptured emits an error_captured event for a sticky error.
func (tw *Writer) EmitErrorCaptured(command, errType, message string) error {
	return tw.Emit(EventErrorCaptured, map[string]any{
		"command": command,
		"type":    errType,
		"message": message,
	})
}

// EmitErrorCleared emits an error_cleared event.
func (tw *Writer) EmitErrorCleared(command, errType string) error {
	return tw.Emit(EventErrorCleared, map[string]any{
		"command": command,
		"type":    errType,
	})
}

// EmitExit emits an exit event when a non-local exit reaches a script
// boundary.
func (tw *Writer) EmitExit(script string) error {
	return tw.Emit(EventExit, map[string]any{"script": script})
}
