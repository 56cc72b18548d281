package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zulandar/docchat/internal/config"
)

func TestNew_WritesFileAndConsole(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "docchat.log")
	var console bytes.Buffer

	l, err := New(config.LogConfig{File: path, Level: "info"}, &console)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Info("catalog loaded")
	l.Warn("catalog fetch failed")
	_ = l.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"message":"catalog loaded"`) {
		t.Errorf("log file missing info entry: %s", data)
	}
	if !strings.Contains(string(data), `"level":"WARN"`) {
		t.Errorf("log file missing capital level: %s", data)
	}

	out := console.String()
	if strings.Contains(out, "catalog loaded") {
		t.Errorf("console should not show info lines at info level: %s", out)
	}
	if !strings.Contains(out, "catalog fetch failed") {
		t.Errorf("console missing warning: %s", out)
	}
}

func TestNew_DebugLevelReachesConsole(t *testing.T) {
	var console bytes.Buffer
	l, err := New(config.LogConfig{File: filepath.Join(t.TempDir(), "x.log"), Level: "debug"}, &console)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Debug("hydrating conversation")
	_ = l.Sync()
	if !strings.Contains(console.String(), "hydrating conversation") {
		t.Errorf("console missing debug line: %s", console.String())
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(config.LogConfig{File: filepath.Join(t.TempDir(), "x.log"), Level: "loud"}, nil)
	if err == nil {
		t.Fatal("expected error for invalid level")
	}
}

func TestNewFileOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docchat.log")
	l, err := NewFileOnly(config.LogConfig{File: path, Level: "info"})
	if err != nil {
		t.Fatalf("NewFileOnly: %v", err)
	}
	l.Info("stream opened")
	_ = l.Sync()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), "stream opened") {
		t.Errorf("log file missing entry: %s", data)
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatal("OrNop(nil) returned nil")
	}
}
