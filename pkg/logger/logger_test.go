package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitAndLevelString(t *testing.T) {
	defer Init("info")
	Init("debug")
	if got := LevelString(); got != "debug" {
		t.Fatalf("LevelString() = %q, want %q", got, "debug")
	}
	Init("WARN")
	if got := LevelString(); got != "warn" {
		t.Fatalf("LevelString() = %q, want %q", got, "warn")
	}
	Init("Error")
	if got := LevelString(); got != "error" {
		t.Fatalf("LevelString() = %q, want %q", got, "error")
	}
	Init("nonsense")
	if got := LevelString(); got != "info" {
		t.Fatalf("LevelString() = %q, want %q for unknown input", got, "info")
	}
}

func TestLevelFiltering(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := SetLogger(zap.New(core))
	defer restore()
	defer Init("info")

	Init("warn")
	Debugf("debug-msg")
	Infof("info-msg")
	Warnf("warn-msg %d", 1)
	Errorf("error-msg")

	if logs.FilterMessage("debug-msg").Len() != 0 {
		t.Fatalf("debug messages should be suppressed at warn level")
	}
	if logs.FilterMessage("info-msg").Len() != 0 {
		t.Fatalf("info messages should be suppressed at warn level")
	}
	if logs.FilterMessage("warn-msg 1").Len() != 1 {
		t.Fatalf("warn message missing: %+v", logs.All())
	}
	if logs.FilterMessage("error-msg").Len() != 1 {
		t.Fatalf("error message missing: %+v", logs.All())
	}

	Init("info")
	Info("hello")
	if logs.FilterMessage("hello").Len() != 1 {
		t.Fatalf("Info expected at info level, got: %+v", logs.All())
	}
}

func TestStructuredLoggerIsSwappable(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	restore := SetLogger(zap.New(core))
	L().Info("structured", zap.Int("words", 5))
	restore()

	entries := logs.FilterMessage("structured").All()
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	if entries[0].ContextMap()["words"] != int64(5) {
		t.Fatalf("unexpected fields: %v", entries[0].ContextMap())
	}
}
