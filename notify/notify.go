// Package notify sends outbound chat messages to league channels.
package notify

import (
	"context"
	"log/slog"

	"github.com/slack-go/slack"

	"github.com/castling-club/leaguebot/telemetry"
)

// Message is one outbound chat message. Attachments non-nil (even empty)
// activates link parsing on the platform side.
type Message struct {
	Text        string
	Channel     string
	Attachments []slack.Attachment
}

// Sayer delivers messages to the chat platform.
type Sayer interface {
	Say(ctx context.Context, msg Message) error
}

// SlackNotifier posts messages through the Slack Web API.
type SlackNotifier struct {
	client *slack.Client
}

// NewSlack builds a SlackNotifier from a bot token.
func NewSlack(token string) *SlackNotifier {
	return &SlackNotifier{client: slack.New(token)}
}

func (n *SlackNotifier) Say(ctx context.Context, msg Message) error {
	opts := []slack.MsgOption{slack.MsgOptionText(msg.Text, false)}
	if msg.Attachments != nil {
		opts = append(opts, slack.MsgOptionAttachments(msg.Attachments...))
	}
	_, _, err := n.client.PostMessageContext(ctx, msg.Channel, opts...)
	if err != nil {
		return err
	}
	telemetry.NotificationsSent.Inc()
	return nil
}

// LogNotifier is the fallback when no chat token is configured: it logs
// messages instead of sending them.
type LogNotifier struct{}

func (LogNotifier) Say(_ context.Context, msg Message) error {
	slog.Info("notify (log-only)", slog.String("channel", msg.Channel), slog.String("text", msg.Text))
	telemetry.NotificationsSent.Inc()
	return nil
}
