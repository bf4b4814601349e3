package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	return entry
}

func TestContextHelpersAddFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("INFO", &buf)

	log.WithComponent("dispatch").WithOrderID(7).WithPhone("5582999990000").
		WithError(errors.New("send failed")).Info("Automatic notification failed")

	entry := decodeLine(t, &buf)
	if entry["component"] != "dispatch" {
		t.Errorf("component = %v", entry["component"])
	}
	if entry["order_id"] != float64(7) {
		t.Errorf("order_id = %v", entry["order_id"])
	}
	if entry["phone"] != "5582999990000" {
		t.Errorf("phone = %v", entry["phone"])
	}
	if entry["error"] != "send failed" {
		t.Errorf("error = %v", entry["error"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("warn", &buf)

	log.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info line should be filtered at WARN, got %q", buf.String())
	}
	log.Warn("kept")
	if entry := decodeLine(t, &buf); entry["msg"] != "kept" {
		t.Fatalf("msg = %v", entry["msg"])
	}
}
