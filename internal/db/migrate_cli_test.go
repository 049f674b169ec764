package db

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunMigrateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.db")
	var out bytes.Buffer

	if err := RunMigrateCommand([]string{"up"}, path, &out); err != nil {
		t.Fatalf("migrate up failed: %v", err)
	}
	if !strings.Contains(out.String(), "Current version: 2") {
		t.Errorf("unexpected output: %q", out.String())
	}

	out.Reset()
	if err := RunMigrateCommand([]string{"down"}, path, &out); err != nil {
		t.Fatalf("migrate down failed: %v", err)
	}
	if !strings.Contains(out.String(), "Current version: 1") {
		t.Errorf("unexpected output: %q", out.String())
	}

	out.Reset()
	if err := RunMigrateCommand([]string{"status"}, path, &out); err != nil {
		t.Fatalf("migrate status failed: %v", err)
	}
	if !strings.Contains(out.String(), "latest 2") {
		t.Errorf("unexpected output: %q", out.String())
	}
}

func TestRunMigrateCommand_BadArgs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.db")
	var out bytes.Buffer

	if err := RunMigrateCommand(nil, path, &out); err == nil {
		t.Error("expected error for missing action")
	}
	if !strings.Contains(out.String(), "Usage:") {
		t.Error("help should be printed for missing action")
	}
	if err := RunMigrateCommand([]string{"sideways"}, path, &out); err == nil {
		t.Error("expected error for unknown action")
	}
	if err := RunMigrateCommand([]string{"force"}, path, &out); err == nil {
		t.Error("expected error for force without version")
	}
	if err := RunMigrateCommand([]string{"force", "x"}, path, &out); err == nil {
		t.Error("expected error for non-numeric version")
	}
	if err := RunMigrateCommand([]string{"help"}, path, &out); err != nil {
		t.Errorf("help should succeed: %v", err)
	}
}
