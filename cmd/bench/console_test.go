package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/zulandar/benchyard/internal/console"
)

func TestConsoleCmds_NoConsoleConfigured(t *testing.T) {
	cfg := testConfig(t, "")
	for _, sub := range []string{"check", "login", "tail", "dump", "attach"} {
		t.Run(sub, func(t *testing.T) {
			_, err := runCmd(t, "console", sub, "-c", cfg)
			if err == nil || !strings.Contains(err.Error(), "no console configured") {
				t.Errorf("err = %v, want no console configured", err)
			}
		})
	}
}

func TestAttach_ForwardsUntilDetach(t *testing.T) {
	var sent bytes.Buffer
	c := &console.Console{Buffer: console.NewBuffer(&sent, zerolog.Nop())}
	var out bytes.Buffer

	err := attach(context.Background(), c, strings.NewReader("uname -a\n\x1dignored"), &out)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if sent.String() != "uname -a\n" {
		t.Errorf("sent = %q, want %q", sent.String(), "uname -a\n")
	}
	if !strings.Contains(out.String(), "Detached") {
		t.Errorf("out = %q, want detach notice", out.String())
	}
}

func TestAttach_MirrorsConsoleOutput(t *testing.T) {
	var sent bytes.Buffer
	c := &console.Console{Buffer: console.NewBuffer(&sent, zerolog.Nop())}
	var out bytes.Buffer

	// Input ends without the detach key; EOF ends the session.
	if err := attach(context.Background(), c, strings.NewReader("ls\n"), &out); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if sent.String() != "ls\n" {
		t.Errorf("sent = %q", sent.String())
	}
	// Mirroring stops once attach returns.
	c.Write([]byte("after\n"))
	if strings.Contains(out.String(), "after") {
		t.Errorf("out = %q, mirror not removed", out.String())
	}
}
