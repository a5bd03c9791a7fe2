package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")
	content := fmt.Sprintf(`[paths]
data_dir = %q
artifact_dir = %q

[sync]
upload_endpoint = "https://verify.example.com/upload"
`, filepath.Join(dir, "data"), filepath.Join(dir, "artifacts"))
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return configPath
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestConfigInitWritesSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")
	out, err := runCommand(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, target) {
		t.Fatalf("expected output to name %s, got %q", target, out)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "upload_endpoint") {
		t.Fatal("expected sample config to document upload_endpoint")
	}

	// a second init without --overwrite must refuse
	if _, err := runCommand(t, "config", "init", "--path", target); err == nil {
		t.Fatal("expected refusal to overwrite existing config")
	}
}

func TestQueueStatusEmptyQueue(t *testing.T) {
	configPath := writeTestConfig(t)
	out, err := runCommand(t, "--config", configPath, "queue", "status")
	if err != nil {
		t.Fatalf("queue status: %v", err)
	}
	if !strings.Contains(out, "Queue is empty") {
		t.Fatalf("expected empty-queue message, got %q", out)
	}
}

func TestQueueListEmptyQueue(t *testing.T) {
	configPath := writeTestConfig(t)
	out, err := runCommand(t, "--config", configPath, "queue", "list")
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	if !strings.Contains(out, "No queue items") {
		t.Fatalf("expected no-items message, got %q", out)
	}
}

func TestQueueListRejectsUnknownStatus(t *testing.T) {
	configPath := writeTestConfig(t)
	if _, err := runCommand(t, "--config", configPath, "queue", "list", "--status", "stalled"); err == nil {
		t.Fatal("expected unknown status to be rejected")
	}
}

func TestQueueClearRequiresForce(t *testing.T) {
	configPath := writeTestConfig(t)
	if _, err := runCommand(t, "--config", configPath, "queue", "clear"); err == nil {
		t.Fatal("expected clear without --force to fail")
	}
	out, err := runCommand(t, "--config", configPath, "queue", "clear", "--force")
	if err != nil {
		t.Fatalf("queue clear --force: %v", err)
	}
	if !strings.Contains(out, "Removed 0 items") {
		t.Fatalf("unexpected clear output: %q", out)
	}
}

func TestStatusShowsConfiguredPaths(t *testing.T) {
	configPath := writeTestConfig(t)
	out, err := runCommand(t, "--config", configPath, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "verify.example.com") {
		t.Fatalf("expected upload endpoint in status output, got %q", out)
	}
	if !strings.Contains(out, "pending") {
		t.Fatalf("expected queue summary in status output, got %q", out)
	}
}

func TestLocalesListsDefault(t *testing.T) {
	configPath := writeTestConfig(t)
	out, err := runCommand(t, "--config", configPath, "locales")
	if err != nil {
		t.Fatalf("locales: %v", err)
	}
	if !strings.Contains(out, "default") {
		t.Fatalf("expected default marker in locales output, got %q", out)
	}
	if !strings.Contains(out, "hi") {
		t.Fatalf("expected hindi code listed, got %q", out)
	}
}

func TestQueueHealthReportsDatabase(t *testing.T) {
	configPath := writeTestConfig(t)
	out, err := runCommand(t, "--config", configPath, "queue", "health")
	if err != nil {
		t.Fatalf("queue health: %v", err)
	}
	if !strings.Contains(out, "Integrity check: yes") {
		t.Fatalf("expected passing integrity check, got %q", out)
	}
}
