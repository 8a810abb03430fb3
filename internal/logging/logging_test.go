package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"", zapcore.InfoLevel},
		{"debug", zapcore.DebugLevel},
		{"INFO", zapcore.InfoLevel},
		{"warning", zapcore.WarnLevel},
		{" error ", zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if err != nil {
			t.Fatalf("ParseLevel(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestNew(t *testing.T) {
	for _, json := range []bool{false, true} {
		logger, err := New("warn", json)
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if logger.Core().Enabled(zapcore.InfoLevel) {
			t.Fatalf("expected info disabled at warn level")
		}
		if !logger.Core().Enabled(zapcore.ErrorLevel) {
			t.Fatalf("expected error enabled at warn level")
		}
	}
	if _, err := New("loud", false); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}
