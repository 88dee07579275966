package utils

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" WARN ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, "debug", "json")
	l.Debug("hello", "thread_id", "t1")
	out := buf.String()
	if !strings.Contains(out, `"msg":"hello"`) || !strings.Contains(out, `"thread_id":"t1"`) {
		t.Fatalf("unexpected json output: %s", out)
	}
}

func TestMaskSensitiveString(t *testing.T) {
	if got := MaskSensitiveString("short"); got != "*****" {
		t.Fatalf("MaskSensitiveString(short) = %q", got)
	}
	if got := MaskSensitiveString("sk-1234567890abcd"); got != "sk-1*********abcd" {
		t.Fatalf("MaskSensitiveString = %q", got)
	}
}
