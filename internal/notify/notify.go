// Package notify tells chat channels about target power changes.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zulandar/benchyard/internal/config"
	"github.com/zulandar/benchyard/internal/power"
)

// Event is a completed power transition.
type Event struct {
	Board   string
	Session string
	Action  string // on, off, toggle
	State   power.State
	At      time.Time
}

// Title is a one-line summary of the event.
func (e Event) Title() string {
	return fmt.Sprintf("%s is %s", e.Board, e.State)
}

// Color returns a hex color for the resulting state.
func (e Event) Color() string {
	switch e.State {
	case power.On:
		return "#36a64f"
	case power.Off:
		return "#808080"
	default:
		return "#e8a317"
	}
}

// Monitor receives power events.
type Monitor interface {
	Name() string
	PowerChanged(ctx context.Context, ev Event) error
}

// FromConfig builds the monitors enabled in cfg.
func FromConfig(cfg config.NotifyConfig) ([]Monitor, error) {
	var monitors []Monitor
	if cfg.Slack.WebhookURL != "" {
		monitors = append(monitors, NewSlack(cfg.Slack.WebhookURL))
	}
	if cfg.Discord.BotToken != "" {
		d, err := NewDiscord(DiscordOpts{BotToken: cfg.Discord.BotToken, ChannelID: cfg.Discord.ChannelID})
		if err != nil {
			return nil, err
		}
		monitors = append(monitors, d)
	}
	return monitors, nil
}

// Recorder is a Monitor that keeps every event, for tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	Err    error
}

func (r *Recorder) Name() string { return "recorder" }

func (r *Recorder) PowerChanged(ctx context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.Err
}

// Events returns the recorded events in order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
