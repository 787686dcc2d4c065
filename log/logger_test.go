package log

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	logger, err := NewLogger(Config{
		Level:       "WARN",
		Encoding:    "json",
		OutputPaths: []string{path},
	})
	if err != nil {
		t.Fatal(err)
	}

	logger.Info("dropped")
	logger.Warn("kept")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("want(1) log line have(%v): %q", len(lines), data)
	}

	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatal(err)
	}
	if entry["msg"] != "kept" || entry["level"] != "WARN" ||
		entry["service"] != "btcrl" {
		t.Errorf("unexpected entry: %v", entry)
	}
	if _, ok := entry["ts"]; !ok {
		t.Error("missing timestamp")
	}
}

func TestNewLoggerInvalidLevel(t *testing.T) {
	if _, err := NewLogger(Config{Level: "loud"}); err == nil {
		t.Error("expected error for invalid level")
	}
}
