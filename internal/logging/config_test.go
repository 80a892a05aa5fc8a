package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		raw  string
		want zerolog.Level
		ok   bool
	}{
		{"", zerolog.InfoLevel, false},
		{"Debug", zerolog.DebugLevel, true},
		{" warning ", zerolog.WarnLevel, true},
		{"off", zerolog.Disabled, true},
		{"diagnostics", zerolog.TraceLevel, true},
		{"loud", zerolog.InfoLevel, false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.raw)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("ParseLevel(%q)=(%v,%v) want (%v,%v)", tt.raw, got, ok, tt.want, tt.ok)
		}
	}
}

func TestApplyJSONWritesStructuredEvents(t *testing.T) {
	prev := log.Logger
	prevLevel := zerolog.GlobalLevel()
	defer func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
	}()

	var out bytes.Buffer
	Apply(Config{Level: zerolog.InfoLevel, JSON: true, Out: &out})
	log.Info().Str("addr", "10.0.0.1:2608").Msg("router.request")
	log.Debug().Msg("hidden")

	line := out.String()
	if !strings.Contains(line, `"addr":"10.0.0.1:2608"`) || !strings.Contains(line, `"message":"router.request"`) {
		t.Fatalf("unexpected log output: %s", line)
	}
	if strings.Contains(line, "hidden") {
		t.Fatalf("debug event leaked at info level: %s", line)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogJSON, "true")
	t.Setenv(EnvLogTimestamp, "nope")
	cfg := defaultConfig(ProfileRuntime)
	applyEnvOverrides(&cfg)
	if cfg.Level != zerolog.ErrorLevel || !cfg.JSON || !cfg.Timestamp {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}
