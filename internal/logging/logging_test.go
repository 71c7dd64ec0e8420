package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSetup_WritesToDailyFile(t *testing.T) {
	dir := t.TempDir()
	closer, err := Setup(dir, slog.LevelInfo)
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	defer closer.Close()

	slog.Info("hello from test", slog.String("k", "v"))

	expected := filepath.Join(dir, "app_"+time.Now().UTC().Format("20060102")+".log")
	content, err := os.ReadFile(expected)
	if err != nil {
		t.Fatalf("expected log file %s to exist: %v", expected, err)
	}
	if !strings.Contains(string(content), "hello from test") {
		t.Errorf("expected log content to include the message, got %q", content)
	}
}

func TestSetup_EmptyDirDisablesFileSink(t *testing.T) {
	closer, err := Setup("", slog.LevelInfo)
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	if err := closer.Close(); err != nil {
		t.Errorf("expected no-op closer to succeed, got %v", err)
	}
}
