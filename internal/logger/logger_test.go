package logger

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func TestNew_WritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")

	log := New(Options{Level: "debug", FilePath: path})
	log.Debug("hello")
	log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected log file: %v", err)
	}
	if len(data) == 0 || data[0] != '{' {
		t.Fatalf("expected JSON log line, got %q", data)
	}
}

func TestNew_InfoLevelDropsDebug(t *testing.T) {
	log := New(Options{Level: "info"})
	if log.Core().Enabled(zap.DebugLevel) {
		t.Fatalf("debug should be disabled at info level")
	}
}
