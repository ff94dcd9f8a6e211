// Package steps is the library of board steps for scenario files:
// flashing builds, powering the target, logging in on the console,
// toggling USB devices and watching disks appear.
package steps

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/zulandar/benchyard/internal/clock"
	"github.com/zulandar/benchyard/internal/config"
	"github.com/zulandar/benchyard/internal/console"
	"github.com/zulandar/benchyard/internal/power"
	"github.com/zulandar/benchyard/internal/scenario"
	"github.com/zulandar/benchyard/internal/sequencer"
)

// Step delays.
const (
	DetachDelay = time.Second
	AttachDelay = 5 * time.Second
)

// DiskCommand lists block device names, one per line.
const DiskCommand = "cat /proc/diskstats|awk '{ print $3; }'"

// KernelCommand prints the running kernel release.
const KernelCommand = "uname -r"

var (
	// ErrUnknownBuild is returned for a build name missing from the
	// builds map.
	ErrUnknownBuild = errors.New("steps: build is not configured")

	// ErrNoNewDisks is returned when no disk appeared since the snapshot.
	ErrNoNewDisks = errors.New("steps: no new disks")
)

// Client is the board as the steps see it.
type Client interface {
	sequencer.Board
	console.Channel
	StorageWriteImage(ctx context.Context, path string) error
	USBHasClass(class string) bool
	USBOnByClass(ctx context.Context, class string) bool
	USBOffByClass(ctx context.Context, class string) bool
}

// Session is the state one scenario's steps share.
type Session struct {
	// Build is the image path last written to the storage.
	Build   string
	Runtime console.Runtime
	// Disks is the noted disk list, nil until noted.
	Disks         []string
	USBClass      string
	KernelVersion string
}

// Library binds the steps to a board.
type Library struct {
	Client        Client
	Builds        map[string]string
	BootDelay     time.Duration
	KernelVersion string
	Sequencer     *sequencer.Sequencer
	Sync          *console.Synchronizer
	Clock         clock.Clock
	Log           zerolog.Logger

	mu      sync.Mutex
	flashed string
}

// New returns a Library driving c with the builds, boot delay and kernel
// expectation from cfg.
func New(c Client, cfg *config.Config, log zerolog.Logger) *Library {
	l := &Library{
		Client:        c,
		Builds:        cfg.Builds,
		BootDelay:     cfg.Boot.Delay,
		KernelVersion: cfg.Kernel.Version,
		Sequencer:     sequencer.New(c, log),
		Sync:          console.NewSynchronizer(c, log),
		Clock:         clock.Real(),
		Log:           log,
	}
	return l
}

// SetClock makes every delay of the library and its helpers use c.
func (l *Library) SetClock(c clock.Clock) {
	l.Clock = c
	l.Sequencer.Clock = c
	l.Sync.Clock = c
}

// NewSession starts the state for a scenario. The flashed build carries
// over between scenarios since the storage keeps it.
func (l *Library) NewSession() *Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &Session{Build: l.flashed, Runtime: console.RuntimeUnknown}
}

// Register adds the steps to reg.
func (l *Library) Register(reg *scenario.Registry[Session]) {
	reg.Given("my {name:w} build was flashed", l.BuildWasFlashed)
	reg.When("a kernel version is specified", l.KernelVersionSpecified)
	reg.Then("the running kernel version shall match", l.KernelVersionCompliance)
	reg.Step("my target is on", l.TargetIsOn)
	reg.Step("Linux is running", l.LinuxIsRunning)
	reg.Step("Linux was booted", l.LinuxBooted)
	reg.Given("my USB {className:w} device is detached", l.USBDeviceDetached)
	reg.When("I attach my USB {className:w} device", l.AttachUSBDevice)
	reg.Given("I have noted available disks", l.NoteAvailableDisks)
	reg.Then("I expect new disk(s)", l.ExpectNewDisks)
}

// BuildWasFlashed writes the named build unless it is already on the
// storage. Writing powers the target off and hands the card to the host
// first.
func (l *Library) BuildWasFlashed(ctx context.Context, sc *scenario.Context[Session], args map[string]string) error {
	name := args["name"]
	image, ok := l.Builds[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownBuild, name)
	}
	if image == sc.State.Build {
		sc.Log.Debug().Str("build", name).Msg("build already flashed")
		return nil
	}
	if err := l.Sequencer.TargetOff(ctx); err != nil {
		return err
	}
	if err := l.Client.StorageWriteImage(ctx, image); err != nil {
		return err
	}
	sc.State.Build = image
	l.mu.Lock()
	l.flashed = image
	l.mu.Unlock()
	return nil
}

// KernelVersionSpecified is pending unless a kernel version pattern is
// configured.
func (l *Library) KernelVersionSpecified(ctx context.Context, sc *scenario.Context[Session], args map[string]string) error {
	sc.State.KernelVersion = l.KernelVersion
	if l.KernelVersion == "" {
		return scenario.Pending("no kernel version configured")
	}
	return nil
}

// KernelVersionCompliance matches the first line of uname -r against
// the configured pattern, anchored at the start.
func (l *Library) KernelVersionCompliance(ctx context.Context, sc *scenario.Context[Session], args map[string]string) error {
	version := sc.State.KernelVersion
	if version == "" {
		return scenario.Pending("no kernel version configured")
	}
	re, err := regexp.Compile("^(?:" + version + ")")
	if err != nil {
		return fmt.Errorf("steps: kernel version pattern: %w", err)
	}
	out, err := l.Client.Run(ctx, KernelCommand)
	if err != nil {
		return fmt.Errorf("steps: %s: %w", KernelCommand, err)
	}
	var release string
	if lines := console.Output(out); len(lines) > 0 {
		release = lines[0]
	}
	if !re.MatchString(release) {
		return fmt.Errorf("steps: kernel %q does not match %q", release, version)
	}
	return nil
}

// TargetIsOn powers the target on and, when it was not already on,
// gives it the boot delay.
func (l *Library) TargetIsOn(ctx context.Context, sc *scenario.Context[Session], args map[string]string) error {
	initial := l.Client.TargetStatus(ctx)
	if err := l.Sequencer.TargetOn(ctx); err != nil {
		return err
	}
	if initial != power.On {
		sc.Log.Debug().Dur("delay", l.BootDelay).Msg("waiting for boot")
		return clock.Sleep(ctx, l.clock(), l.BootDelay)
	}
	return nil
}

// LinuxIsRunning logs in on the console and requires a Linux kernel.
func (l *Library) LinuxIsRunning(ctx context.Context, sc *scenario.Context[Session], args map[string]string) error {
	sc.State.Runtime = console.RuntimeUnknown
	if err := l.Sync.Login(ctx); err != nil {
		return err
	}
	rt, err := l.Sync.DetectRuntime(ctx)
	sc.State.Runtime = rt
	return err
}

// LinuxBooted is "my target is on" followed by "Linux is running".
func (l *Library) LinuxBooted(ctx context.Context, sc *scenario.Context[Session], args map[string]string) error {
	if err := sc.BehaveLike(ctx, "my target is on"); err != nil {
		return err
	}
	return sc.BehaveLike(ctx, "Linux is running")
}

// USBDeviceDetached powers off the port carrying the class. It is
// pending when the board has no such device.
func (l *Library) USBDeviceDetached(ctx context.Context, sc *scenario.Context[Session], args map[string]string) error {
	class := args["className"]
	sc.State.USBClass = class
	if !l.Client.USBHasClass(class) {
		return scenario.Pending("no USB %s device", class)
	}
	if !l.Client.USBOffByClass(ctx, class) {
		return fmt.Errorf("steps: detach USB %s device failed", class)
	}
	return clock.Sleep(ctx, l.clock(), DetachDelay)
}

// AttachUSBDevice powers on the port carrying the class and waits for
// the target to notice.
func (l *Library) AttachUSBDevice(ctx context.Context, sc *scenario.Context[Session], args map[string]string) error {
	class := args["className"]
	sc.State.USBClass = class
	if !l.Client.USBHasClass(class) {
		return scenario.Pending("no USB %s device", class)
	}
	if !l.Client.USBOnByClass(ctx, class) {
		return fmt.Errorf("steps: attach USB %s device failed", class)
	}
	return clock.Sleep(ctx, l.clock(), AttachDelay)
}

// NoteAvailableDisks snapshots the target's disk list.
func (l *Library) NoteAvailableDisks(ctx context.Context, sc *scenario.Context[Session], args map[string]string) error {
	disks, err := l.readDisks(ctx)
	if err != nil {
		return err
	}
	sc.State.Disks = disks
	sc.Log.Debug().Strs("disks", disks).Msg("noted disks")
	return nil
}

// ExpectNewDisks requires more disks than the snapshot holds.
func (l *Library) ExpectNewDisks(ctx context.Context, sc *scenario.Context[Session], args map[string]string) error {
	disks, err := l.readDisks(ctx)
	if err != nil {
		return err
	}
	if sc.State.Disks == nil {
		return errors.New("steps: available disks were not noted")
	}
	if len(disks) <= len(sc.State.Disks) {
		return fmt.Errorf("%w: %d now, %d noted", ErrNoNewDisks, len(disks), len(sc.State.Disks))
	}
	return nil
}

func (l *Library) readDisks(ctx context.Context) ([]string, error) {
	if err := l.Sync.Login(ctx); err != nil {
		return nil, err
	}
	out, err := l.Client.Run(ctx, DiskCommand)
	if err != nil {
		return nil, fmt.Errorf("steps: list disks: %w", err)
	}
	disks := console.Output(out)
	if disks == nil {
		disks = []string{}
	}
	return disks, nil
}

func (l *Library) clock() clock.Clock {
	if l.Clock == nil {
		return clock.Real()
	}
	return l.Clock
}
