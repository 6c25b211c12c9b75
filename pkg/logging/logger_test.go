package logging

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

// decodeLines parses every JSON log line written to buf.
func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var lines []map[string]any
	scanner := bufio.NewScanner(buf)
	for scanner.Scan() {
		var entry map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("log line is not JSON: %q: %v", scanner.Text(), err)
		}
		lines = append(lines, entry)
	}
	return lines
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != LevelInfo {
		t.Errorf("Level = %s, want info", cfg.Level)
	}
	if cfg.Pretty {
		t.Error("Pretty = true, want JSON output by default")
	}
	if cfg.Output == nil {
		t.Error("Output is nil")
	}
}

func TestSetup_LevelFiltering(t *testing.T) {
	tests := []struct {
		level LogLevel
		want  []string
	}{
		{LevelDebug, []string{"debug", "info", "warn", "error"}},
		{LevelInfo, []string{"info", "warn", "error"}},
		{LevelWarn, []string{"warn", "error"}},
		{LevelError, []string{"error"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			buf := &bytes.Buffer{}
			Setup(Config{Level: tt.level, Output: buf})

			logger := NewLogger("engine")
			logger.Debug().Int("attempt", 2).Msg("Executing request")
			logger.Info().Int("batch", 1).Msg("Batch started")
			logger.Warn().Str("error_class", "server").Msg("Retrying request after backoff")
			logger.Error().Int("batch", 1).Msg("Artifact write failed")

			lines := decodeLines(t, buf)
			if len(lines) != len(tt.want) {
				t.Fatalf("got %d lines, want %d: %v", len(lines), len(tt.want), lines)
			}
			for i, entry := range lines {
				if entry["level"] != tt.want[i] {
					t.Errorf("line %d level = %v, want %s", i, entry["level"], tt.want[i])
				}
				if entry["component"] != "engine" {
					t.Errorf("line %d component = %v, want engine", i, entry["component"])
				}
				if _, ok := entry["time"]; !ok {
					t.Errorf("line %d has no timestamp", i)
				}
			}
		})
	}
}

func TestNewLogger_RunContext(t *testing.T) {
	buf := &bytes.Buffer{}
	Setup(Config{Level: LevelInfo, Output: buf})

	logger := NewLogger("driver").With().Str("run_id", "3f1c9a").Logger()
	logger.Info().
		Int("batch", 7).
		Int("succeeded", 998).
		Int("failed", 2).
		Msg("Batch complete")

	lines := decodeLines(t, buf)
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}

	entry := lines[0]
	if entry["component"] != "driver" {
		t.Errorf("component = %v, want driver", entry["component"])
	}
	if entry["run_id"] != "3f1c9a" {
		t.Errorf("run_id = %v, want 3f1c9a", entry["run_id"])
	}
	if entry["batch"] != float64(7) {
		t.Errorf("batch = %v, want 7", entry["batch"])
	}
	if entry["message"] != "Batch complete" {
		t.Errorf("message = %v", entry["message"])
	}
}

func TestSetup_Pretty(t *testing.T) {
	buf := &bytes.Buffer{}
	Setup(Config{Level: LevelInfo, Pretty: true, Output: buf})

	logger := NewLogger("client")
	logger.Info().Str("id", "1001").Msg("Serving payload from cache")

	out := buf.String()
	if strings.HasPrefix(out, "{") {
		t.Errorf("pretty output should not be JSON: %q", out)
	}
	if !strings.Contains(out, "Serving payload from cache") || !strings.Contains(out, "1001") {
		t.Errorf("pretty output missing message or field: %q", out)
	}
}

func TestSetup_NilOutputFallsBack(t *testing.T) {
	logger := Setup(Config{Level: LevelError})
	logger.Debug().Msg("dropped")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    LogLevel
		expected zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{"Error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.expected {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestValidate(t *testing.T) {
	for _, level := range []LogLevel{"debug", "INFO", "warn", "warning", "error"} {
		if err := Validate(level); err != nil {
			t.Errorf("Validate(%q) error = %v", level, err)
		}
	}
	for _, level := range []LogLevel{"", "verbose", "trace"} {
		if err := Validate(level); err == nil {
			t.Errorf("Validate(%q) should fail", level)
		}
	}
}
