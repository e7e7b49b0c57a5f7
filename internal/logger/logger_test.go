package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestSetup_ReturnsJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf, slog.LevelInfo)

	if l == nil {
		t.Fatal("expected non-nil logger")
	}

	l.Info("test message", slog.String("key", "value"))

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected valid JSON log output, got error: %v\nraw output: %s", err, buf.String())
	}

	if entry["msg"] != "test message" {
		t.Errorf("msg = %q, want %q", entry["msg"], "test message")
	}
	if entry["key"] != "value" {
		t.Errorf("key = %q, want %q", entry["key"], "value")
	}
	if _, ok := entry["time"]; !ok {
		t.Error("expected 'time' field in JSON log output")
	}
}

func TestSetup_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf, slog.LevelWarn)

	l.Info("should be dropped")
	l.Warn("warning test")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 log line, got %d: %s", len(lines), buf.String())
	}

	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("failed to parse JSON: %v", err)
	}
	if entry["level"] != "WARN" {
		t.Errorf("level = %q, want %q", entry["level"], "WARN")
	}
}

func TestSetup_NilLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf, nil)

	l.Debug("debug message")
	if buf.Len() != 0 {
		t.Errorf("expected debug to be dropped at default level, got %s", buf.String())
	}
	l.Info("info message")
	if buf.Len() == 0 {
		t.Error("expected info to be written at default level")
	}
}

func TestSetup_MultipleAttributes(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf, slog.LevelInfo)

	l.Info("feed built",
		slog.String("user_id", "sai"),
		slog.String("subject_type", "2"),
		slog.Int("items_count", 30),
	)

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON: %v", err)
	}

	if entry["user_id"] != "sai" {
		t.Errorf("user_id = %q, want %q", entry["user_id"], "sai")
	}
	if entry["subject_type"] != "2" {
		t.Errorf("subject_type = %q, want %q", entry["subject_type"], "2")
	}
	if entry["items_count"] != float64(30) {
		t.Errorf("items_count = %v, want %v", entry["items_count"], 30)
	}
}

func TestSetupDefault_SetsGlobalLogger(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	level := new(slog.LevelVar)
	SetupDefault(&buf, level)

	slog.Default().Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected debug to be dropped before level change, got %s", buf.String())
	}

	// 設定読み込み後にレベルを変更できる
	level.Set(slog.LevelDebug)
	slog.Default().Debug("global test", slog.String("test_key", "test_val"))

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON: %v\nraw: %s", err, buf.String())
	}
	if entry["msg"] != "global test" {
		t.Errorf("msg = %q, want %q", entry["msg"], "global test")
	}
	if entry["test_key"] != "test_val" {
		t.Errorf("test_key = %q, want %q", entry["test_key"], "test_val")
	}
}
