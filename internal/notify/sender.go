// Package notify delivers outbound account emails. SMTPSender talks to a real mail
// server; LogSender is used when notifications are disabled.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/volunteer-hub/volunteer-hub/internal/config"
)

// Message is a plain-text email
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers messages
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

var errHeaderInjection = errors.New("header values must not contain line breaks")

func (m Message) validate() error {
	if m.To == "" {
		return errors.New("recipient is required")
	}
	if strings.ContainsAny(m.To, "\r\n") || strings.ContainsAny(m.Subject, "\r\n") {
		return errHeaderInjection
	}
	return nil
}

// NewSender returns an SMTPSender when notifications are enabled, otherwise a LogSender.
func NewSender(cfg config.NotificationsConfig) Sender {
	if cfg.Enabled && cfg.SMTP.Host != "" {
		return NewSMTPSender(cfg.SMTP)
	}
	slog.Info("notifications disabled, welcome emails will be logged without content")
	return &LogSender{}
}

// LogSender records that a message would have been sent. The body is never logged
// because it can carry a temporary credential.
type LogSender struct{}

// Send implements Sender
func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	slog.InfoContext(ctx, "notification not sent (delivery disabled)", "to", msg.To, "subject", msg.Subject)
	return nil
}
