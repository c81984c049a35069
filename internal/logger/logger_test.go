package logger

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNew_WritesJSONWithComponentField(t *testing.T) {
	var buf bytes.Buffer
	l := New(&Config{Level: DefaultConfig().Level, Format: "json", Output: &buf})

	l.Component("state-machine").Info().Msg("tick processed")

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("expected valid JSON log line, got error %v (line: %s)", err, buf.String())
	}

	if decoded["component"] != "state-machine" {
		t.Errorf("expected component field, got %v", decoded["component"])
	}
	if decoded["message"] != "tick processed" {
		t.Errorf("expected message field, got %v", decoded["message"])
	}
}

func TestWithError_NilIsNoop(t *testing.T) {
	l := Default()
	if l.WithError(nil) != l {
		t.Error("expected WithError(nil) to return the same logger")
	}
}
