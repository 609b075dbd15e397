package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":    zerolog.DebugLevel,
		" WARN ":   zerolog.WarnLevel,
		"off":      zerolog.Disabled,
		"trace":    zerolog.TraceLevel,
		"error":    zerolog.ErrorLevel,
		"warning":  zerolog.WarnLevel,
		"inactive": zerolog.Disabled,
	}
	for raw, want := range cases {
		got, ok := parseLevel(raw)
		if !ok || got != want {
			t.Fatalf("parseLevel(%q) = %v,%v want %v", raw, got, ok, want)
		}
	}
	if _, ok := parseLevel("loud"); ok {
		t.Fatalf("unknown level accepted")
	}
	if _, ok := parseLevel(""); ok {
		t.Fatalf("empty level accepted")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogTimestamp, "false")
	t.Setenv(EnvLogNoColor, "true")
	t.Setenv(EnvLogBypass, "1")

	cfg := defaultConfig(ProfileRuntime)
	applyEnvOverrides(&cfg)
	if cfg.Level != zerolog.ErrorLevel || cfg.Timestamp || !cfg.NoColor || !cfg.Bypass {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
}

func TestNewBypassWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: zerolog.InfoLevel, Bypass: true, Out: &buf})
	logger.Debug().Msg("hidden")
	logger.Info().Str("agent", "00:00:00:00:12:34").Msg("bound")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line leaked: %q", out)
	}
	if !strings.Contains(out, `"agent":"00:00:00:00:12:34"`) {
		t.Fatalf("expected json field, got %q", out)
	}
}
