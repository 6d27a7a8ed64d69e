package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/haydenmc/kelvinbot/internal/config"
)

func TestRunInitCreatesWorkspace(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	var out bytes.Buffer

	if err := runInit(&out, dir); err != nil {
		t.Fatalf("runInit: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "data")); err != nil {
		t.Errorf("data directory missing: %v", err)
	}

	// The shipped example must itself be a loadable config.
	cfg, err := config.Load(filepath.Join(dir, "config.yaml"))
	if err != nil {
		t.Fatalf("example config does not load: %v", err)
	}
	if len(cfg.Services) == 0 || len(cfg.Middlewares) == 0 {
		t.Error("example config has no services or middlewares")
	}
}

func TestRunInitDoesNotOverwrite(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("services: {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := runInit(&out, dir); err != nil {
		t.Fatalf("runInit: %v", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "services: {}\n" {
		t.Error("runInit overwrote an existing config.yaml")
	}
}
