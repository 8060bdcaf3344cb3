package logging

import (
	"context"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  slog.Level
	}{
		{"debug", "debug", slog.LevelDebug},
		{"info", "info", slog.LevelInfo},
		{"notice", "notice", LevelNotice},
		{"warning", "warning", slog.LevelWarn},
		{"warn alias", "warn", slog.LevelWarn},
		{"error", "error", slog.LevelError},
		{"critical", "critical", LevelCritical},
		{"alert", "alert", LevelAlert},
		{"emergency", "emergency", LevelEmergency},
		{"mixed case", "NoTiCe", LevelNotice},
		{"unknown defaults to info", "verbose", slog.LevelInfo},
		{"empty defaults to info", "", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestValidLevel(t *testing.T) {
	for _, lvl := range []string{"debug", "info", "notice", "warning", "error", "critical", "alert", "emergency"} {
		if !ValidLevel(lvl) {
			t.Errorf("ValidLevel(%q) = false, want true", lvl)
		}
	}
	for _, lvl := range []string{"", "verbose", "trace"} {
		if ValidLevel(lvl) {
			t.Errorf("ValidLevel(%q) = true, want false", lvl)
		}
	}
}

func TestSeverityOrdering(t *testing.T) {
	// The syslog scale must remain strictly increasing so the floor
	// comparison in Enabled works.
	order := []slog.Level{
		slog.LevelDebug,
		slog.LevelInfo,
		LevelNotice,
		slog.LevelWarn,
		slog.LevelError,
		LevelCritical,
		LevelAlert,
		LevelEmergency,
	}
	for i := 1; i < len(order); i++ {
		if order[i-1] >= order[i] {
			t.Errorf("severity %v is not below %v", order[i-1], order[i])
		}
	}
}

func TestWithConnectionUniqueIDs(t *testing.T) {
	logger := slog.Default()
	l1 := WithConnection(logger)
	l2 := WithConnection(logger)
	if l1 == l2 {
		t.Error("expected distinct loggers for distinct connections")
	}
}

func TestContextRoundTrip(t *testing.T) {
	logger := slog.Default().With("test", true)
	ctx := NewContext(context.Background(), logger)

	if got := FromContext(ctx); got != logger {
		t.Error("FromContext did not return the stored logger")
	}

	if got := FromContext(context.Background()); got != slog.Default() {
		t.Error("FromContext on empty context should return the default logger")
	}
}
