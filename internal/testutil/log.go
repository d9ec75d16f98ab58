package testutil

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
)

// LogBuffer captures JSON log records for assertions.
type LogBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// NewLogger returns a debug-level JSON logger writing into a LogBuffer.
func NewLogger() (*slog.Logger, *LogBuffer) {
	lb := &LogBuffer{}
	return slog.New(slog.NewJSONHandler(lb, &slog.HandlerOptions{Level: slog.LevelDebug})), lb
}

func (lb *LogBuffer) Write(p []byte) (int, error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.buf.Write(p)
}

// Records decodes every captured record.
func (lb *LogBuffer) Records(t testing.TB) []map[string]any {
	t.Helper()
	lb.mu.Lock()
	defer lb.mu.Unlock()

	var out []map[string]any
	dec := json.NewDecoder(bytes.NewReader(lb.buf.Bytes()))
	for dec.More() {
		var rec map[string]any
		if err := dec.Decode(&rec); err != nil {
			t.Fatalf("decode log record: %v", err)
		}
		out = append(out, rec)
	}
	return out
}

// Find returns the captured records with the given level and message.
func (lb *LogBuffer) Find(t testing.TB, level slog.Level, msg string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, rec := range lb.Records(t) {
		if rec[slog.LevelKey] == level.String() && rec[slog.MessageKey] == msg {
			out = append(out, rec)
		}
	}
	return out
}
