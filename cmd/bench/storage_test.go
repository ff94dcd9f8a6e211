package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestStorageStatus(t *testing.T) {
	cfg := testConfig(t, "")
	out, err := runCmd(t, "storage", "status", "-c", cfg, "--session", "alice")
	if err != nil {
		t.Fatalf("storage status: %v", err)
	}
	if !strings.Contains(out, "Location: HOST") || !strings.Contains(out, "Locked:   false") {
		t.Errorf("output = %q", out)
	}
}

func TestStorageMove(t *testing.T) {
	cfg := testConfig(t, "")
	out, err := runCmd(t, "storage", "target", "-c", cfg, "--session", "alice")
	if err != nil {
		t.Fatalf("storage target: %v", err)
	}
	if out != "Storage on TARGET\n" {
		t.Errorf("output = %q", out)
	}
}

func TestStorageMove_LockedByOther(t *testing.T) {
	cfg := testConfig(t, "")
	if _, err := runCmd(t, "target", "lock", "-c", cfg, "--session", "alice"); err != nil {
		t.Fatalf("lock: %v", err)
	}
	_, err := runCmd(t, "storage", "host", "-c", cfg, "--session", "bob")
	if err == nil || !strings.Contains(err.Error(), "locked") {
		t.Errorf("err = %v, want storage locked", err)
	}
}

func TestStorageWrite_Build(t *testing.T) {
	image := filepath.Join(t.TempDir(), "core.img")
	if err := os.WriteFile(image, []byte("benchyard image\n!"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg := testConfig(t, "builds:\n  core: "+image+"\n")

	out, err := runCmd(t, "storage", "write", "core", "-c", cfg, "--session", "alice")
	if err != nil {
		t.Fatalf("storage write: %v", err)
	}
	if out != "Wrote "+image+" (17 B)\n" {
		t.Errorf("output = %q", out)
	}
}

func TestStorageWrite_MissingImage(t *testing.T) {
	cfg := testConfig(t, "")
	_, err := runCmd(t, "storage", "write", filepath.Join(t.TempDir(), "nope.img"), "-c", cfg, "--session", "alice")
	if err == nil || !strings.Contains(err.Error(), "open image") {
		t.Errorf("err = %v, want open image error", err)
	}
}

func TestStorageSwap(t *testing.T) {
	cfg := testConfig(t, "")
	out, err := runCmd(t, "storage", "swap", "-c", cfg, "--session", "alice")
	if err != nil {
		t.Fatalf("storage swap: %v", err)
	}
	if out != "Storage on TARGET\n" {
		t.Errorf("output = %q", out)
	}
}
