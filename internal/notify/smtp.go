package notify

import (
	"context"
	"fmt"
	"log/slog"

	"gopkg.in/gomail.v2"

	"github.com/jmylchreest/vodarr/internal/config"
)

// SMTP sends notifications as plain-text email.
type SMTP struct {
	from   string
	sender gomail.Sender
	dialer *gomail.Dialer
	logger *slog.Logger
}

// NewSMTP creates a notifier that dials the relay for each message.
func NewSMTP(cfg config.SMTPConfig, logger *slog.Logger) *SMTP {
	port := cfg.Port
	if port == 0 {
		port = 587
	}
	return &SMTP{
		from:   cfg.From,
		dialer: gomail.NewDialer(cfg.Host, port, cfg.Username, cfg.Password.Reveal()),
		logger: logger,
	}
}

// NewSMTPWithSender creates a notifier that hands messages to sender.
func NewSMTPWithSender(from string, sender gomail.Sender, logger *slog.Logger) *SMTP {
	return &SMTP{from: from, sender: sender, logger: logger}
}

// Notify emails n to the video owner.
func (s *SMTP) Notify(ctx context.Context, n Notification) error {
	if n.OwnerEmail == "" {
		return fmt.Errorf("sending %s: owner has no email address", n.Kind)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", n.OwnerEmail)
	m.SetHeader("Subject", n.Subject())
	m.SetBody("text/plain", n.Body())

	var err error
	if s.sender != nil {
		err = gomail.Send(s.sender, m)
	} else {
		err = s.dialer.DialAndSend(m)
	}
	if err != nil {
		return fmt.Errorf("sending %s email: %w", n.Kind, err)
	}

	s.logger.DebugContext(ctx, "notification emailed",
		slog.String("kind", string(n.Kind)),
		slog.String("video_id", n.VideoID),
	)
	return nil
}
