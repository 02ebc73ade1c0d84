// Package audit records every AI gateway call as one JSON line. The file is
// the authoritative trail for model behavior; stdout mirrors it for dev.
package audit

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	OutcomeOK            = "ok"
	OutcomeTimeout       = "timeout"
	OutcomeUpstreamError = "upstream_error"
	OutcomeInvalidOutput = "invalid_output"
)

// Entry is one call record. Exactly one entry per gateway call, success or
// failure.
type Entry struct {
	CorrelationID string   `json:"correlation_id"`
	Kind          string   `json:"kind"`
	FragmentIDs   []string `json:"fragment_ids,omitempty"`
	LatencyMS     int64    `json:"latency_ms"`
	Outcome       string   `json:"outcome"`
	Retried       bool     `json:"retried,omitempty"`
	Error         string   `json:"error,omitempty"`
	At            int64    `json:"at"`
}

type Logger struct {
	mu sync.Mutex
	w  io.Writer
}

// NewFileLogger writes to a size-rotated file and mirrors to stdout.
func NewFileLogger(path string) *Logger {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Printf("audit: create log dir: %v", err)
	}
	rot := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    50, // MB
		MaxBackups: 5,
		MaxAge:     30, // days
	}
	return &Logger{w: io.MultiWriter(os.Stdout, rot)}
}

// NewWriterLogger records to an arbitrary writer. Tests use this.
func NewWriterLogger(w io.Writer) *Logger { return &Logger{w: w} }

func (l *Logger) Record(e Entry) {
	if e.At == 0 {
		e.At = time.Now().Unix()
	}
	b, err := json.Marshal(e)
	if err != nil {
		log.Printf("audit: marshal entry: %v", err)
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.w.Write(append(b, '\n')); err != nil {
		log.Printf("audit: write entry: %v", err)
	}
}
