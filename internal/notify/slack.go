package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	slackapi "github.com/slack-go/slack"
)

// Slack posts events to an incoming webhook.
type Slack struct {
	webhookURL string
}

// NewSlack returns a Slack monitor posting to webhookURL.
func NewSlack(webhookURL string) *Slack {
	return &Slack{webhookURL: webhookURL}
}

func (s *Slack) Name() string { return "slack" }

// PowerChanged posts ev as a colored attachment.
func (s *Slack) PowerChanged(ctx context.Context, ev Event) error {
	msg := &slackapi.WebhookMessage{
		Text: ev.Title(),
		Attachments: []slackapi.Attachment{{
			Color: ev.Color(),
			Fields: []slackapi.AttachmentField{
				{Title: "Action", Value: ev.Action, Short: true},
				{Title: "Session", Value: sessionOrNone(ev.Session), Short: true},
			},
			Ts: json.Number(strconv.FormatInt(ev.At.Unix(), 10)),
		}},
	}
	if err := slackapi.PostWebhookContext(ctx, s.webhookURL, msg); err != nil {
		return fmt.Errorf("notify: slack: %w", err)
	}
	return nil
}

func sessionOrNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
