package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewParsesLevelAndFormat(t *testing.T) {
	log := New(LoggingConfig{Level: "debug", Format: "json"})
	if log.GetLevel() != logrus.DebugLevel {
		t.Fatalf("expected debug level, got %s", log.GetLevel())
	}

	var buf bytes.Buffer
	log.SetOutput(&buf)
	log.WithField("round", 3).Info("settled")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected json output: %v (%q)", err, buf.String())
	}
	if entry["msg"] != "settled" || entry["round"] != float64(3) {
		t.Fatalf("unexpected entry: %v", entry)
	}
}

func TestNewFallsBackToInfo(t *testing.T) {
	log := New(LoggingConfig{Level: "loud"})
	if log.GetLevel() != logrus.InfoLevel {
		t.Fatalf("expected info level, got %s", log.GetLevel())
	}
}

func TestNewDefaultKeepsName(t *testing.T) {
	if got := NewDefault("keeper").Name(); got != "keeper" {
		t.Fatalf("expected keeper, got %q", got)
	}
}
