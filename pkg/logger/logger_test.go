package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewDefaultTagsComponent(t *testing.T) {
	var buf bytes.Buffer
	log := NewDefault("unit")
	log.SetOutput(&buf)
	log.Info("hello")
	out := buf.String()
	if !strings.Contains(out, "component=unit") {
		t.Fatalf("expected component field in output, got %q", out)
	}
	if !strings.Contains(out, "hello") {
		t.Fatalf("expected message in output, got %q", out)
	}
}

func TestNewJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(LoggingConfig{Level: "debug", Format: "json"})
	log.SetOutput(&buf)
	log.WithField("k", "v").Debug("structured")
	out := buf.String()
	if !strings.Contains(out, `"k":"v"`) {
		t.Fatalf("expected json field in output, got %q", out)
	}
}

func TestBadLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := New(LoggingConfig{Level: "nope"})
	log.SetOutput(&buf)
	log.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug should be suppressed at info level, got %q", buf.String())
	}
	log.Info("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("info should be emitted, got %q", buf.String())
	}
}
