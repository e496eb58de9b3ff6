package telemetry

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"testing"
)

func TestInfoWritesJSONFields(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(os.Stdout) })

	Info("job.status", map[string]any{
		"job_id": "job-1",
		"error":  errors.New("boom"),
	})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if entry["msg"] != "job.status" {
		t.Fatalf("expected msg job.status, got %v", entry["msg"])
	}
	if entry["job_id"] != "job-1" {
		t.Fatalf("expected job_id field, got %v", entry["job_id"])
	}
	if entry["error"] != "boom" {
		t.Fatalf("expected error string, got %v", entry["error"])
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatalf("expected ts field")
	}
}

func TestDebugSuppressedAtInfo(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(os.Stdout)
		Init("info")
	})
	Init("info")

	Debug("hidden", nil)
	if buf.Len() != 0 {
		t.Fatalf("expected no output, got %q", buf.String())
	}

	Init("debug")
	Debug("shown", nil)
	if buf.Len() == 0 {
		t.Fatalf("expected debug output after level change")
	}
}
