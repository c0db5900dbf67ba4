package email

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/resend/resend-go/v2"
)

// Message is one outgoing notification. Text is the plain-text fallback for
// clients that do not render HTML. Tags are attached as provider metadata so
// alerts can be filtered by job type in the Resend dashboard.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
	Tags    map[string]string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender writes the message to the log instead of delivering it.
type LogSender struct {
	logger *slog.Logger
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.InfoContext(ctx, "alert email not delivered",
		"to", msg.To, "subject", msg.Subject, "text", msg.Text)
	return nil
}

type ResendSender struct {
	client *resend.Client
	from   string
}

func (s *ResendSender) Send(ctx context.Context, msg Message) error {
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
		Tags:    resendTags(msg.Tags),
	}
	if _, err := s.client.Emails.SendWithContext(ctx, params); err != nil {
		return fmt.Errorf("send alert to %s: %w", msg.To, err)
	}
	return nil
}

func resendTags(tags map[string]string) []resend.Tag {
	if len(tags) == 0 {
		return nil
	}
	out := make([]resend.Tag, 0, len(tags))
	for name, value := range tags {
		out = append(out, resend.Tag{Name: name, Value: value})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// NewSender delivers through Resend outside ENV=local. Without an API key it
// logs instead, so a worker started without mail settings still runs.
func NewSender(env, apiKey, from string, logger *slog.Logger) Sender {
	if env == "local" || apiKey == "" {
		return &LogSender{logger: logger.With("component", "email")}
	}
	return &ResendSender{
		client: resend.NewClient(apiKey),
		from:   from,
	}
}
