package main

import (
	"strings"
	"testing"
)

func TestTargetOn_Sequenced(t *testing.T) {
	cfg := testConfig(t, "")
	out, err := runCmd(t, "target", "on", "-c", cfg, "--session", "alice", "--settle", "0")
	if err != nil {
		t.Fatalf("target on: %v", err)
	}
	if out != "Target ON, storage on TARGET\n" {
		t.Errorf("output = %q", out)
	}
}

func TestTargetOff_Raw(t *testing.T) {
	cfg := testConfig(t, "")
	out, err := runCmd(t, "target", "off", "--raw", "-c", cfg, "--session", "alice")
	if err != nil {
		t.Fatalf("target off: %v", err)
	}
	if out != "Target OFF\n" {
		t.Errorf("output = %q", out)
	}
}

func TestTargetToggle(t *testing.T) {
	cfg := testConfig(t, "")
	out, err := runCmd(t, "target", "toggle", "-c", cfg, "--session", "alice")
	if err != nil {
		t.Fatalf("target toggle: %v", err)
	}
	if out != "Target ON\n" {
		t.Errorf("output = %q", out)
	}
}

func TestTargetLock_ConflictAndUnlock(t *testing.T) {
	cfg := testConfig(t, "")

	out, err := runCmd(t, "target", "lock", "-c", cfg, "--session", "alice")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if out != "Board bench-t locked by alice\n" {
		t.Errorf("lock output = %q", out)
	}

	status, err := runCmd(t, "target", "status", "-c", cfg, "--session", "alice")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(status, "Owner:   alice") {
		t.Errorf("status = %q, want owner alice", status)
	}

	if _, err := runCmd(t, "target", "lock", "-c", cfg, "--session", "bob"); err == nil || !strings.Contains(err.Error(), "board held by alice") {
		t.Errorf("lock by bob err = %v, want held by alice", err)
	}
	if _, err := runCmd(t, "target", "on", "--raw", "-c", cfg, "--session", "bob"); err == nil || !strings.Contains(err.Error(), "LOCKED") {
		t.Errorf("on by bob err = %v, want LOCKED", err)
	}

	out, err = runCmd(t, "target", "unlock", "-c", cfg, "--session", "bob")
	if err != nil {
		t.Fatalf("unlock by bob: %v", err)
	}
	if !strings.Contains(out, "was not locked by bob") {
		t.Errorf("unlock by bob = %q", out)
	}

	out, err = runCmd(t, "target", "unlock", "-c", cfg, "--session", "alice")
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if out != "Board bench-t unlocked\n" {
		t.Errorf("unlock output = %q", out)
	}

	if _, err := runCmd(t, "target", "on", "--raw", "-c", cfg, "--session", "bob"); err != nil {
		t.Errorf("on by bob after unlock: %v", err)
	}
}

func TestTargetStatus_Unlocked(t *testing.T) {
	cfg := testConfig(t, "")
	out, err := runCmd(t, "target", "status", "-c", cfg, "--session", "alice")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"Board:   bench-t", "Power:   OFF", "Storage: HOST", "Owner:   -"} {
		if !strings.Contains(out, want) {
			t.Errorf("status missing %q:\n%s", want, out)
		}
	}
}

func TestTargetWait(t *testing.T) {
	cfg := testConfig(t, "")
	out, err := runCmd(t, "target", "wait", "-c", cfg, "--session", "alice")
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if out != "Target is up\n" {
		t.Errorf("output = %q", out)
	}
}
