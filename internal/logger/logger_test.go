package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewWritesStageToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	l := New(Options{File: path})

	l.Named(StageAssign).Info("Assignment pass complete", zap.Int("merged", 3))
	l.Named(StageAssign).Debug("hidden below info")
	l.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 log line, got %d: %q", len(lines), data)
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["logger"] != StageAssign || entry["merged"] != float64(3) {
		t.Errorf("entry = %v", entry)
	}
}

func TestNewVerboseEnablesDebug(t *testing.T) {
	if New(Options{}).Core().Enabled(zapcore.DebugLevel) {
		t.Error("debug should be disabled by default")
	}
	if !New(Options{Verbose: true}).Core().Enabled(zapcore.DebugLevel) {
		t.Error("verbose should enable debug")
	}
}

func TestReplaceRestores(t *testing.T) {
	prev := Get()
	core, logs := observer.New(zapcore.InfoLevel)
	restore := Replace(zap.New(core))

	Named(StageExtract).Info("Starting feature extraction")
	restore()

	if Get() != prev {
		t.Error("Replace did not restore the previous logger")
	}
	entries := logs.All()
	if len(entries) != 1 || entries[0].LoggerName != StageExtract {
		t.Errorf("entries = %+v", entries)
	}
}
