package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunCreateAndValidate(t *testing.T) {
	dir := t.TempDir()
	var stdout, stderr bytes.Buffer

	if code := run([]string{"--cmd", "create", "--dir", dir, "--name", "add door scans"}, &stdout, &stderr); code != 0 {
		t.Fatalf("create exit %d: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "_add_door_scans.sql") {
		t.Fatalf("unexpected output %q", stdout.String())
	}

	stdout.Reset()
	if code := run([]string{"-c", "validate", "--dir", dir}, &stdout, &stderr); code != 0 {
		t.Fatalf("validate exit %d: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "passed") {
		t.Fatalf("unexpected output %q", stdout.String())
	}
}

func TestRunCreateRequiresName(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"--cmd", "create", "--dir", t.TempDir()}, &stdout, &stderr); code != 2 {
		t.Fatalf("expected usage exit 2, got %d", code)
	}
}

func TestRunValidateRejectsBrokenDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "1_bad.sql"), []byte("-- +goose Up\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	var stdout, stderr bytes.Buffer
	if code := run([]string{"--cmd", "validate", "--dir", dir}, &stdout, &stderr); code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
}
