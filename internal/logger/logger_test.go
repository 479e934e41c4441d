package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "info", "text")

	// Debug should NOT appear at info level
	Debug("hidden")
	if buf.Len() > 0 {
		t.Error("debug message should not appear at info level")
	}

	// Switch to debug level at runtime
	SetLevel("debug")

	buf.Reset()
	Debug("visible")
	if buf.Len() == 0 {
		t.Error("debug message should appear after SetLevel(debug)")
	}

	SetLevel("error")

	buf.Reset()
	Warn("hidden again")
	if buf.Len() > 0 {
		t.Error("warn message should not appear at error level")
	}
}

func TestSetLevelInvalidFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "garbage", "text")

	Debug("should be hidden")
	if buf.Len() > 0 {
		t.Error("invalid level should fall back to info, hiding debug")
	}

	Info("should be visible")
	if buf.Len() == 0 {
		t.Error("info should be visible at info level")
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "info", "JSON")

	Info("comparison done", "rows", 12)

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("expected JSON line, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "comparison done" {
		t.Errorf("unexpected msg %v", entry["msg"])
	}
	if entry["rows"] != float64(12) {
		t.Errorf("unexpected rows %v", entry["rows"])
	}
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "info", "text")

	Error("baseline missing", "video", "crowd_run")
	if !strings.Contains(buf.String(), "video=crowd_run") {
		t.Errorf("expected key=value output, got %q", buf.String())
	}
}
