package usb

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/zulandar/benchyard/internal/power"
)

func newHub() (*Hub, *Mock, *Mock) {
	storage, hid := NewMock(), NewMock()
	return NewHub(Port{Class: "storage", Switch: storage}, Port{Class: "hid", Switch: hid}, Port{Switch: NewMock()}), storage, hid
}

func TestHub_HasClass(t *testing.T) {
	h, _, _ := newHub()
	tests := []struct {
		class string
		want  bool
	}{
		{"storage", true},
		{"hid", true},
		{"serial", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := h.HasClass(tt.class); got != tt.want {
			t.Errorf("HasClass(%q) = %v, want %v", tt.class, got, tt.want)
		}
	}
}

func TestHub_ByClass(t *testing.T) {
	ctx := context.Background()
	h, storage, hid := newHub()

	if !h.OffByClass(ctx, "storage") {
		t.Fatal("OffByClass(storage) = false")
	}
	if !h.OnByClass(ctx, "storage") {
		t.Fatal("OnByClass(storage) = false")
	}
	if diff := cmp.Diff([]string{"off", "on"}, storage.Calls()); diff != "" {
		t.Errorf("storage calls mismatch (-want +got):\n%s", diff)
	}
	if len(hid.Calls()) != 0 {
		t.Errorf("hid calls = %v, want none", hid.Calls())
	}
	if h.OnByClass(ctx, "serial") || h.OffByClass(ctx, "serial") {
		t.Error("unknown class should report false")
	}
}

func TestHub_ByClassFailure(t *testing.T) {
	h, storage, _ := newHub()
	storage.Fail(true)
	if h.OnByClass(context.Background(), "storage") {
		t.Error("OnByClass should report backend failure")
	}
}

func TestHub_ByIndex(t *testing.T) {
	ctx := context.Background()
	h, _, hid := newHub()

	ok, err := h.Off(ctx, 1)
	if err != nil || !ok {
		t.Fatalf("Off(1) = %v, %v", ok, err)
	}
	st, err := h.Status(ctx, 1)
	if err != nil || st != power.Off {
		t.Errorf("Status(1) = %q, %v, want OFF", st, err)
	}
	if hid.Status(ctx) != power.Off {
		t.Error("index 1 should address the hid port")
	}
	if _, err := h.On(ctx, 3); !errors.Is(err, ErrNoPort) {
		t.Errorf("On(3) err = %v, want ErrNoPort", err)
	}
	if _, err := h.Status(ctx, -1); !errors.Is(err, ErrNoPort) {
		t.Errorf("Status(-1) err = %v, want ErrNoPort", err)
	}
}

func TestNew_Variants(t *testing.T) {
	if diff := cmp.Diff([]string{"mock", "shell"}, Variants()); diff != "" {
		t.Errorf("Variants mismatch (-want +got):\n%s", diff)
	}
	if _, err := New("uhub9000", nil); !errors.Is(err, ErrConfiguration) {
		t.Errorf("err = %v, want ErrConfiguration", err)
	}
	if _, err := New("shell", map[string]string{"on": "true"}); !errors.Is(err, ErrConfiguration) {
		t.Errorf("err = %v, want ErrConfiguration", err)
	}
}

func TestShell_Commands(t *testing.T) {
	state := filepath.Join(t.TempDir(), "port")
	sw, err := New("shell", map[string]string{
		"on":     "echo ON > " + state,
		"off":    "echo OFF > " + state,
		"status": "cat " + state,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	if sw.Status(ctx) != power.Unsure {
		t.Error("status before any switch should be ???")
	}
	if !sw.Off(ctx) || sw.Status(ctx) != power.Off {
		t.Error("Off did not switch the port")
	}
	if !sw.On(ctx) || sw.Status(ctx) != power.On {
		t.Error("On did not switch the port")
	}
}

func TestHub_Probe(t *testing.T) {
	sw := &Shell{}
	sw.Configure(map[string]string{"on": "true", "off": "true", "probe": "exit 3"})
	h := NewHub(Port{Class: "storage", Switch: NewMock()}, Port{Switch: sw})
	err := h.Probe(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}
