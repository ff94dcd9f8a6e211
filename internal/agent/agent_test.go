package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/zulandar/benchyard/internal/clock"
	"github.com/zulandar/benchyard/internal/config"
	"github.com/zulandar/benchyard/internal/console"
	"github.com/zulandar/benchyard/internal/db"
	"github.com/zulandar/benchyard/internal/lock"
	"github.com/zulandar/benchyard/internal/media"
	"github.com/zulandar/benchyard/internal/models"
	"github.com/zulandar/benchyard/internal/notify"
	"github.com/zulandar/benchyard/internal/power"
	"github.com/zulandar/benchyard/internal/sequencer"
	"github.com/zulandar/benchyard/internal/usb"
)

type fixture struct {
	agent   *Agent
	power   *power.Mock
	mux     *media.Mock
	storage *usb.Mock
	buf     *console.Buffer
	rec     *notify.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gormDB, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	f := &fixture{
		power:   power.NewMock(),
		mux:     media.NewMock(),
		storage: usb.NewMock(),
		buf:     console.NewBuffer(nil, zerolog.Nop()),
		rec:     &notify.Recorder{},
	}
	f.agent = &Agent{
		Board:    "bench-01",
		Power:    f.power,
		Mux:      f.mux,
		USB:      usb.NewHub(usb.Port{Class: "storage", Switch: f.storage}, usb.Port{Switch: usb.NewMock()}),
		Console:  f.buf,
		Locker:   lock.New(lock.Opts{DB: gormDB, Board: "bench-01", Clock: clock.Fake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))}),
		DB:       gormDB,
		Monitors: []notify.Monitor{f.rec},
		Log:      zerolog.Nop(),
	}
	return f
}

func (f *fixture) lockFor(t *testing.T, session string) {
	t.Helper()
	if _, err := f.agent.TargetLock(context.Background(), session, 0); err != nil {
		t.Fatalf("TargetLock(%s): %v", session, err)
	}
}

func TestPowerLocked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if f.agent.PowerLocked(ctx, "alice") {
		t.Error("free board reported locked")
	}
	f.lockFor(t, "alice")
	if f.agent.PowerLocked(ctx, "alice") {
		t.Error("owner reported locked")
	}
	if !f.agent.PowerLocked(ctx, "bob") {
		t.Error("other session not locked out")
	}
}

func TestTargetOn_RefusedForOtherSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.lockFor(t, "alice")

	if f.agent.TargetOn(ctx, "bob") {
		t.Fatal("TargetOn succeeded for a non-owner")
	}
	if f.power.Count("on") != 0 {
		t.Error("power backend called for a non-owner")
	}
	if st := f.agent.TargetStatus(ctx, "bob"); st != power.Locked {
		t.Errorf("TargetStatus(bob) = %q, want LOCKED", st)
	}
	if st := f.agent.TargetToggle(ctx, "bob"); st != power.Locked {
		t.Errorf("TargetToggle(bob) = %q, want LOCKED", st)
	}
	if st := f.agent.TargetStatus(ctx, "alice"); st != power.Off {
		t.Errorf("TargetStatus(alice) = %q, want OFF", st)
	}
}

func TestTargetOn_SideEffects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	marker := filepath.Join(t.TempDir(), "on")
	f.agent.Scripts.PowerOn = []string{`echo "$BENCH_BOARD $BENCH_SESSION" > ` + marker}
	f.buf.Pause()

	if !f.agent.TargetOn(ctx, "alice") {
		t.Fatal("TargetOn failed")
	}
	if f.buf.Paused() {
		t.Error("console capture not resumed")
	}
	out, err := os.ReadFile(marker)
	if err != nil || string(out) != "bench-01 alice\n" {
		t.Errorf("power-on script output = %q, %v", out, err)
	}
	events := f.rec.Events()
	if len(events) != 1 || events[0].State != power.On || events[0].Action != "on" {
		t.Errorf("monitor events = %+v", events)
	}

	var rows []models.PowerEvent
	f.agent.DB.Find(&rows)
	if len(rows) != 1 || rows[0].Action != "on" || !rows[0].OK || rows[0].State != "ON" {
		t.Errorf("power events = %+v", rows)
	}
}

func TestTargetOff_PausesConsole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.power.Set(power.On)

	if !f.agent.TargetOff(ctx, "alice") {
		t.Fatal("TargetOff failed")
	}
	if !f.buf.Paused() {
		t.Error("console capture not paused")
	}
	if events := f.rec.Events(); len(events) != 1 || events[0].State != power.Off {
		t.Errorf("monitor events = %+v", events)
	}
}

func TestTargetOff_FailureNoNotification(t *testing.T) {
	f := newFixture(t)
	f.power.Set(power.On)
	f.power.FailOff(true)
	if f.agent.TargetOff(context.Background(), "alice") {
		t.Fatal("TargetOff reported success")
	}
	if len(f.rec.Events()) != 0 {
		t.Error("monitor told about a failed transition")
	}
	if f.buf.Paused() {
		t.Error("console paused after failed power off")
	}
}

func TestTargetToggle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if st := f.agent.TargetToggle(ctx, "alice"); st != power.On {
		t.Errorf("first toggle = %q, want ON", st)
	}
	if st := f.agent.TargetToggle(ctx, "alice"); st != power.Off {
		t.Errorf("second toggle = %q, want OFF", st)
	}
	if !f.buf.Paused() {
		t.Error("console not paused after toggling off")
	}
	if n := len(f.rec.Events()); n != 2 {
		t.Errorf("events = %d, want 2", n)
	}
}

type blockingPower struct{ *power.Mock }

func (blockingPower) Wait(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestTargetWait_Timeout(t *testing.T) {
	f := newFixture(t)
	f.agent.Power = blockingPower{power.NewMock()}
	f.agent.WaitTimeout = 10 * time.Millisecond
	err := f.agent.TargetWait(context.Background(), "alice")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
}

func TestTargetCommand(t *testing.T) {
	f := newFixture(t)
	if !f.agent.TargetCommand(context.Background(), "alice", []string{"reset", "1"}) {
		t.Fatal("TargetCommand failed")
	}
	if f.power.Count("command reset 1") != 1 {
		t.Errorf("calls = %v", f.power.Calls())
	}
}

func TestStorageLocked(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(f *fixture)
		session string
		want    bool
	}{
		{"target off", func(f *fixture) {}, "alice", false},
		{"target on", func(f *fixture) { f.power.Set(power.On) }, "alice", true},
		{"target on with hotplug", func(f *fixture) { f.power.Set(power.On); f.agent.Hotplug = true }, "alice", false},
		{"state unknown", func(f *fixture) { f.power.Report(power.Unsure) }, "alice", true},
		{"no mux", func(f *fixture) { f.agent.Mux = nil }, "alice", true},
		{"no power controller", func(f *fixture) { f.agent.Power = nil }, "alice", true},
		{"other session", func(f *fixture) {
			f.agent.Locker.TryAcquire(context.Background(), "bob")
		}, "alice", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(f)
			if got := f.agent.StorageLocked(context.Background(), tt.session); got != tt.want {
				t.Errorf("StorageLocked() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStorageMoves(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if !f.agent.StorageToTarget(ctx, "alice") {
		t.Fatal("StorageToTarget failed")
	}
	if loc := f.agent.StorageSwap(ctx, "alice"); loc != media.Host {
		t.Errorf("StorageSwap = %q, want HOST", loc)
	}
	f.power.Set(power.On)
	if f.agent.StorageToTarget(ctx, "alice") {
		t.Error("storage moved while target on")
	}
	if loc := f.agent.StorageSwap(ctx, "alice"); loc != media.Host {
		t.Errorf("StorageSwap while locked = %q, want HOST", loc)
	}
}

func TestStorageWriteImage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	img := filepath.Join(t.TempDir(), "core.wic")
	os.WriteFile(img, []byte("bootloader+rootfs"), 0644)

	if err := f.agent.StorageWriteImage(ctx, "alice", img); err != nil {
		t.Fatalf("StorageWriteImage: %v", err)
	}
	if string(f.mux.Written()) != "bootloader+rootfs" {
		t.Errorf("written = %q", f.mux.Written())
	}
	st := f.agent.StorageStatus(ctx, "alice")
	if st.Writing || st.Written != 17 || st.Location != media.Host {
		t.Errorf("StorageStatus = %+v", st)
	}

	f.agent.Locker.TryAcquire(ctx, "bob")
	if err := f.agent.StorageWriteImage(ctx, "alice", img); !errors.Is(err, ErrLocked) {
		t.Errorf("err = %v, want ErrLocked", err)
	}
}

func TestStorageWriteImage_NoMux(t *testing.T) {
	f := newFixture(t)
	f.agent.Mux = nil
	if err := f.agent.StorageWriteImage(context.Background(), "alice", "x"); !errors.Is(err, ErrNoStorage) {
		t.Errorf("err = %v, want ErrNoStorage", err)
	}
	if st := f.agent.StorageStatus(context.Background(), "alice"); st.Location != media.Unknown {
		t.Errorf("Location = %q, want ???", st.Location)
	}
}

func TestUSB_OneBased(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if f.agent.USBPorts() != 2 {
		t.Errorf("USBPorts() = %d, want 2", f.agent.USBPorts())
	}
	if ok, err := f.agent.USBOff(ctx, "alice", 1); !ok || err != nil {
		t.Fatalf("USBOff(1) = %v, %v", ok, err)
	}
	if f.storage.Status(ctx) != power.Off {
		t.Error("port 1 should be the storage port")
	}
	if st, _ := f.agent.USBStatus(ctx, "alice", 1); st != power.Off {
		t.Errorf("USBStatus(1) = %q", st)
	}
	if _, err := f.agent.USBOn(ctx, "alice", 0); !errors.Is(err, usb.ErrNoPort) {
		t.Errorf("USBOn(0) err = %v, want ErrNoPort", err)
	}
	if !f.agent.USBHasClass("storage") || f.agent.USBHasClass("hid") {
		t.Error("USBHasClass mismatch")
	}
}

func TestConsole_NotConfigured(t *testing.T) {
	f := newFixture(t)
	f.agent.Console = nil
	ctx := context.Background()
	f.agent.ConsoleClear("alice")
	if _, ok := f.agent.ConsoleTail("alice"); ok {
		t.Error("ConsoleTail without console")
	}
	if err := f.agent.ConsoleSend(ctx, "alice", "x"); !errors.Is(err, console.ErrNotConnected) {
		t.Errorf("err = %v, want ErrNotConnected", err)
	}
	if _, err := f.agent.ConsoleRun(ctx, "alice", "ls"); !errors.Is(err, console.ErrNotConnected) {
		t.Errorf("err = %v, want ErrNotConnected", err)
	}
	if f.agent.ConsoleDump("alice") != "" {
		t.Error("ConsoleDump without console")
	}
}

func TestConsole_Buffer(t *testing.T) {
	f := newFixture(t)
	f.buf.Write([]byte("a\nb\n# "))
	if got := f.agent.ConsoleDump("alice"); got != "a\nb\n# " {
		t.Errorf("ConsoleDump = %q", got)
	}
	if line, _ := f.agent.ConsoleHead("alice"); line != "a" {
		t.Errorf("ConsoleHead = %q", line)
	}
	f.agent.ConsolePrompt("alice", "$ ")
	if f.buf.CurrentPrompt() != "$ " {
		t.Errorf("prompt = %q", f.buf.CurrentPrompt())
	}
}

// The sequencer drives the agent through a session client.
func TestClient_SequencerRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seq := sequencer.New(f.agent.Client("scenario-1"), zerolog.Nop())
	seq.Clock = clock.Fake(time.Now())

	if err := seq.TargetOn(ctx); err != nil {
		t.Fatalf("TargetOn: %v", err)
	}
	if f.power.Status(ctx) != power.On || f.mux.Status(ctx) != media.Target {
		t.Error("target not on with storage attached")
	}
	if owner, _ := f.agent.TargetOwner(ctx); owner != "" {
		t.Errorf("board still held by %q", owner)
	}

	if err := seq.TargetOff(ctx); err != nil {
		t.Fatalf("TargetOff: %v", err)
	}
	if f.power.Status(ctx) != power.Off || f.mux.Status(ctx) != media.Host {
		t.Error("target not off with storage returned")
	}
	var actions []string
	var rows []models.PowerEvent
	f.agent.DB.Order("id").Find(&rows)
	for _, r := range rows {
		actions = append(actions, r.Action)
	}
	if diff := cmp.Diff([]string{"on", "off"}, actions); diff != "" {
		t.Errorf("power events (-want +got):\n%s", diff)
	}
}

func TestClient_KeepsOuterLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.lockFor(t, "scenario-1")
	seq := sequencer.New(f.agent.Client("scenario-1"), zerolog.Nop())
	seq.Clock = clock.Fake(time.Now())

	if err := seq.TargetOn(ctx); err != nil {
		t.Fatalf("TargetOn: %v", err)
	}
	if owner, _ := f.agent.TargetOwner(ctx); owner != "scenario-1" {
		t.Errorf("owner = %q, want the outer lock kept", owner)
	}
	released, _ := f.agent.TargetUnlock(ctx, "scenario-1")
	if !released {
		t.Error("TargetUnlock did not release")
	}
}

func TestFromConfig(t *testing.T) {
	gormDB, _ := db.OpenMemory()
	cfg, err := config.Parse([]byte(`
board: bench-09
power:
  variant: mock
sdmux:
  variant: mock
  hotplug: true
usb:
  - class: storage
    variant: mock
  - class: hid
    variant: mock
builds:
  core: /srv/core.wic
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	a, err := FromConfig(cfg, Options{DB: gormDB, Log: zerolog.Nop()})
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	if a.Board != "bench-09" || a.Power == nil || a.Mux == nil || !a.Hotplug {
		t.Errorf("agent = %+v", a)
	}
	if a.USBPorts() != 2 || !a.USBHasClass("hid") {
		t.Error("usb ports not built")
	}
	if a.Locker.Board() != "bench-09" {
		t.Errorf("locker board = %q", a.Locker.Board())
	}
	if len(a.Monitors) != 0 {
		t.Errorf("monitors = %v, want none", a.Monitors)
	}
	if a.WaitTimeout != 2*time.Minute {
		t.Errorf("WaitTimeout = %v", a.WaitTimeout)
	}
}

func TestFromConfig_BadBackend(t *testing.T) {
	cfg := &config.Config{Board: "b"}
	cfg.Power.Variant = "shell"
	if _, err := FromConfig(cfg, Options{}); !errors.Is(err, power.ErrConfiguration) {
		t.Errorf("err = %v, want power.ErrConfiguration", err)
	}
}

func TestTargetHold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	// A real clock keeps the heartbeat goroutine waiting instead of spinning.
	f.agent.Locker = lock.New(lock.Opts{DB: f.agent.DB, Board: "bench-01"})

	release, err := f.agent.TargetHold(ctx, "alice", 0, time.Hour)
	if err != nil {
		t.Fatalf("TargetHold: %v", err)
	}
	if owner, _ := f.agent.TargetOwner(ctx); owner != "alice" {
		t.Errorf("owner = %q, want alice", owner)
	}
	if !f.agent.PowerLocked(ctx, "bob") {
		t.Error("bob not locked out while alice holds the board")
	}

	release()
	if owner, _ := f.agent.TargetOwner(ctx); owner != "" {
		t.Errorf("owner after release = %q, want none", owner)
	}
}

func TestTargetHold_Held(t *testing.T) {
	f := newFixture(t)
	f.lockFor(t, "alice")
	if _, err := f.agent.TargetHold(context.Background(), "bob", 0, time.Hour); !errors.Is(err, lock.ErrLockTimeout) {
		t.Errorf("err = %v, want lock.ErrLockTimeout", err)
	}
}
