package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestInitLoggerTo(t *testing.T) {
	tests := []struct {
		name    string
		level   Level
		format  Format
		wantOut bool
		wantFmt string
	}{
		{"debug json", LevelDebug, FormatJSON, true, `"msg":"hello"`},
		{"info text", LevelInfo, FormatText, true, "msg=hello"},
		{"error level hides info", LevelError, FormatJSON, false, ""},
	}

	old := GetLogger()
	defer func() {
		current.Store(old)
		slog.SetDefault(old)
	}()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			InitLoggerTo(&buf, tt.level, tt.format)
			GetLogger().Info("hello")
			out := buf.String()
			if (out != "") != tt.wantOut {
				t.Fatalf("output = %q, wantOut %v", out, tt.wantOut)
			}
			if tt.wantOut && !strings.Contains(out, tt.wantFmt) {
				t.Errorf("output = %q, want it to contain %q", out, tt.wantFmt)
			}
		})
	}
}

func TestTimestampFormat(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, LevelInfo, FormatJSON).Info("x")
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("invalid JSON log: %v", err)
	}
	ts, _ := rec["time"].(string)
	if _, err := time.Parse(time.RFC3339, ts); err != nil {
		t.Errorf("time %q is not RFC3339: %v", ts, err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   LevelDebug,
		"info":    LevelInfo,
		"WARN":    LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
		"bogus":   LevelInfo,
	}
	for name, want := range tests {
		if got := ParseLevel(name); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestWithConversionID(t *testing.T) {
	var buf bytes.Buffer
	base := New(&buf, LevelInfo, FormatJSON)
	WithConversionID(base).Info("a")
	WithConversionID(base).Info("b")

	var ids []string
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatal(err)
		}
		id, _ := rec["conversion_id"].(string)
		if len(id) != 36 {
			t.Errorf("conversion_id = %q, want a UUID", id)
		}
		ids = append(ids, id)
	}
	if len(ids) != 2 || ids[0] == ids[1] {
		t.Errorf("conversion ids = %v, want two distinct ids", ids)
	}
}

func TestConversionHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, LevelDebug, FormatJSON)

	ConversionStart(logger, "nexus", "nexml", "in.nex")
	ConversionDone(logger, "nexus", "nexml", 42, 1, 1500*time.Millisecond, "output", "out.xml")
	ConversionError(logger, "mega", "read", errors.New("bad header"))
	DiagnosticLogged(logger, "unsupported", "net1", "networks cannot be written")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d log lines, want 4:\n%s", len(lines), buf.String())
	}

	checks := []struct {
		msg    string
		level  string
		fields map[string]any
	}{
		{"conversion_start", "INFO", map[string]any{"from": "nexus", "to": "nexml", "input": "in.nex"}},
		{"conversion_done", "INFO", map[string]any{"events": float64(42), "duration_ms": float64(1500), "output": "out.xml"}},
		{"conversion_error", "ERROR", map[string]any{"format": "mega", "pass": "read", "error": "bad header"}},
		{"diagnostic", "WARN", map[string]any{"kind": "unsupported", "element_id": "net1"}},
	}
	for i, c := range checks {
		var rec map[string]any
		if err := json.Unmarshal([]byte(lines[i]), &rec); err != nil {
			t.Fatalf("line %d: %v", i, err)
		}
		if rec["msg"] != c.msg || rec["level"] != c.level {
			t.Errorf("line %d: msg=%v level=%v, want %s %s", i, rec["msg"], rec["level"], c.msg, c.level)
		}
		for k, v := range c.fields {
			if rec[k] != v {
				t.Errorf("line %d: %s = %v, want %v", i, k, rec[k], v)
			}
		}
	}
}

func TestGetLogger(t *testing.T) {
	if GetLogger() == nil {
		t.Error("GetLogger() = nil")
	}
}
