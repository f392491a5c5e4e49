package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewWithWriter(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "source", "info")

	log.Debug().Msg("hidden")
	log.Info().Str("vault_id", "v1").Msg("vault saved")

	line := strings.TrimSpace(buf.String())
	if strings.Contains(line, "hidden") {
		t.Fatalf("debug message should be filtered: %s", line)
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(line), &m); err != nil {
		t.Fatalf("invalid JSON %q: %v", line, err)
	}
	if m["component"] != "source" {
		t.Errorf("component = %v, want source", m["component"])
	}
	if m["vault_id"] != "v1" {
		t.Errorf("vault_id = %v, want v1", m["vault_id"])
	}
	if m["message"] != "vault saved" {
		t.Errorf("message = %v", m["message"])
	}
	if _, ok := m["time"]; !ok {
		t.Error("missing time field")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{" INFO ", zerolog.InfoLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.WarnLevel},
		{"loud", zerolog.WarnLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
