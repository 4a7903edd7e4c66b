package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestDefaultLoggerIsSilent(t *testing.T) {
	Set(nil)
	if L().Enabled(context.Background(), slog.LevelError) {
		t.Error("expected default logger to be disabled")
	}
}

func TestSetupText(t *testing.T) {
	var buf bytes.Buffer
	Setup("debug", "text", &buf)
	defer Set(nil)

	L().Debug("TPM2: paquet", "bytes", 12)
	if !strings.Contains(buf.String(), "bytes=12") {
		t.Errorf("expected text attribute in output, got %q", buf.String())
	}
}

func TestSetupJSON(t *testing.T) {
	var buf bytes.Buffer
	Setup("info", "json", &buf)
	defer Set(nil)

	L().Debug("invisible")
	L().Info("visible")
	out := buf.String()
	if strings.Contains(out, "invisible") {
		t.Error("debug line should be filtered at info level")
	}
	if !strings.Contains(out, `"msg":"visible"`) {
		t.Errorf("expected JSON record, got %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
