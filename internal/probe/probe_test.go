package probe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/zulandar/benchyard/internal/agent"
	"github.com/zulandar/benchyard/internal/clock"
	"github.com/zulandar/benchyard/internal/db"
	"github.com/zulandar/benchyard/internal/media"
	"github.com/zulandar/benchyard/internal/models"
	"github.com/zulandar/benchyard/internal/power"
	"github.com/zulandar/benchyard/internal/usb"
)

func TestNextRun(t *testing.T) {
	from := time.Date(2026, 4, 2, 8, 30, 0, 0, time.UTC)
	tests := []struct {
		schedule string
		want     time.Duration
	}{
		{"0 9 * * *", 30 * time.Minute},
		{"* * * * *", time.Minute},
		{"*/5 * * * *", 5 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.schedule, func(t *testing.T) {
			got, err := NextRun(tt.schedule, from)
			if err != nil {
				t.Fatalf("NextRun: %v", err)
			}
			if got != tt.want {
				t.Errorf("NextRun() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNextRun_Invalid(t *testing.T) {
	if _, err := NextRun("not a cron expr", time.Now()); err == nil {
		t.Fatal("expected error for invalid expression")
	}
}

func TestComponents(t *testing.T) {
	a := &agent.Agent{Power: power.NewMock(), Mux: media.NewMock(), USB: usb.NewHub(usb.Port{Class: "hid", Switch: usb.NewMock()})}
	var names []string
	for _, c := range Components(a) {
		names = append(names, c.Name)
	}
	if diff := cmp.Diff([]string{"power", "sdmux", "usb"}, names); diff != "" {
		t.Errorf("components (-want +got):\n%s", diff)
	}
	if got := Components(&agent.Agent{USB: usb.NewHub()}); len(got) != 0 {
		t.Errorf("unconfigured agent probes %d components", len(got))
	}
}

func TestRunOnce_Records(t *testing.T) {
	gormDB, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	pw := power.NewMock()
	pw.Set(power.On)
	a := &agent.Agent{Power: pw, Mux: media.NewMock()}
	now := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	p := &Prober{DB: gormDB, Board: "bench-01", Components: Components(a), Clock: clock.Fake(now), Log: zerolog.Nop()}

	results, err := p.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(results) != 2 || !results[0].OK || results[0].Detail != "ON" || results[1].Detail != "HOST" {
		t.Errorf("results = %+v", results)
	}

	pw.SetProbeError(errors.New("relay board not answering"))
	if _, err := p.RunOnce(context.Background()); err != nil {
		t.Fatalf("second RunOnce: %v", err)
	}

	var count int64
	gormDB.Model(&models.ProbeResult{}).Count(&count)
	if count != 4 {
		t.Errorf("rows = %d, want 4", count)
	}

	latest, err := Latest(context.Background(), gormDB, "bench-01")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if len(latest) != 2 {
		t.Fatalf("latest = %+v", latest)
	}
	if latest[0].Component != "power" || latest[0].OK || latest[0].Detail != "relay board not answering" {
		t.Errorf("latest power = %+v", latest[0])
	}
	if latest[1].Component != "sdmux" || !latest[1].OK {
		t.Errorf("latest sdmux = %+v", latest[1])
	}
	if !latest[1].CreatedAt.Equal(now) {
		t.Errorf("CreatedAt = %v, want %v", latest[1].CreatedAt, now)
	}
}

func TestRunOnce_CheckTimeout(t *testing.T) {
	p := &Prober{
		Timeout: 10 * time.Millisecond,
		Components: []Component{{Name: "slow", Check: func(ctx context.Context) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		}}},
		Log: zerolog.Nop(),
	}
	results, err := p.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if results[0].OK || results[0].Detail != context.DeadlineExceeded.Error() {
		t.Errorf("result = %+v", results[0])
	}
}

func TestStart_BadSchedule(t *testing.T) {
	p := &Prober{Log: zerolog.Nop()}
	if _, err := p.Start(context.Background(), "every tuesday"); err == nil {
		t.Fatal("expected schedule error")
	}
}

func TestStart_Stop(t *testing.T) {
	p := &Prober{Log: zerolog.Nop()}
	stop, err := p.Start(context.Background(), "0 3 * * *")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	stop()
}
