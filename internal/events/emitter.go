package events

import (
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Event types written by the scan pipeline.
const (
	TypeScanStart    = "scan-start"
	TypeScanRetry    = "scan-retry"
	TypeScanError    = "scan-error"
	TypeScanFinished = "scan-finished"
	TypeSinkResult   = "sink-result"
	TypeDecision     = "decision"
	TypeSleep        = "sleep"
	TypeShutdown     = "shutdown"
	TypeStatusServer = "status-server"
	TypeReport       = "report"
)

// Level grades an event for log filtering downstream.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Fields carries structured event attributes.
type Fields map[string]interface{}

// Event represents a single NDJSON record.
type Event struct {
	Type      string    `json:"type"`
	Level     Level     `json:"level,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Target    string    `json:"target,omitempty"`
	Message   string    `json:"message,omitempty"`
	Fields    Fields    `json:"fields,omitempty"`
}

// Emitter writes NDJSON events to an io.Writer safely across goroutines. A nil *Emitter
// discards everything.
type Emitter struct {
	writer io.Writer
	now    func() time.Time

	mu       sync.Mutex
	firstErr error
}

// NewEmitter returns a new NDJSON emitter.
func NewEmitter(w io.Writer) *Emitter {
	return &Emitter{writer: w, now: time.Now}
}

// Emit serializes the event to JSON and appends a newline.
func (e *Emitter) Emit(evt Event) error {
	if e == nil {
		return nil
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = e.now().UTC()
	}
	if evt.Level == "" {
		evt.Level = LevelInfo
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.writer.Write(append(payload, '\n')); err != nil {
		return err
	}
	return nil
}

// Log emits without returning an error; the first failure is kept for Err. Pipeline code
// uses it so a broken log stream never changes a gate decision.
func (e *Emitter) Log(level Level, typ, target, message string, fields Fields) {
	if e == nil {
		return
	}
	err := e.Emit(Event{Type: typ, Level: level, Target: target, Message: message, Fields: fields})
	if err == nil {
		return
	}
	e.mu.Lock()
	if e.firstErr == nil {
		e.firstErr = err
	}
	e.mu.Unlock()
}

func (e *Emitter) Info(typ, target, message string, fields Fields) {
	e.Log(LevelInfo, typ, target, message, fields)
}

func (e *Emitter) Warn(typ, target, message string, fields Fields) {
	e.Log(LevelWarn, typ, target, message, fields)
}

func (e *Emitter) Error(typ, target, message string, fields Fields) {
	e.Log(LevelError, typ, target, message, fields)
}

// Err returns the first write failure seen by Log.
func (e *Emitter) Err() error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.firstErr
}
