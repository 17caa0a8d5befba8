// Package notify tells video owners about review outcomes.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmylchreest/vodarr/internal/config"
)

// Kind identifies the notification template.
type Kind string

const (
	KindVideoApproved Kind = "video-approved"
	KindVideoRejected Kind = "video-rejected"
)

// Notification is one owner-facing message.
type Notification struct {
	Kind       Kind   `json:"kind"`
	VideoID    string `json:"videoId"`
	VideoName  string `json:"videoName"`
	OwnerEmail string `json:"ownerEmail"`
	// Reason is set for rejections.
	Reason string `json:"reason,omitempty"`
}

// Subject returns the message subject line.
func (n Notification) Subject() string {
	switch n.Kind {
	case KindVideoApproved:
		return fmt.Sprintf("Your video %q has been approved", n.VideoName)
	case KindVideoRejected:
		return fmt.Sprintf("Your video %q has been rejected", n.VideoName)
	default:
		return string(n.Kind)
	}
}

// Body returns the plain-text message body.
func (n Notification) Body() string {
	switch n.Kind {
	case KindVideoApproved:
		return fmt.Sprintf("Your video %q passed review and is now available.", n.VideoName)
	case KindVideoRejected:
		return fmt.Sprintf("Your video %q did not pass review.\n\nReason: %s", n.VideoName, n.Reason)
	default:
		return ""
	}
}

// Notifier delivers notifications. Callers treat failures as non-fatal.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Open builds the Notifier selected by cfg.Driver. The returned close
// function releases driver resources.
func Open(ctx context.Context, cfg config.NotifyConfig, logger *slog.Logger) (Notifier, func() error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Driver {
	case "log", "":
		return NewLog(logger), func() error { return nil }, nil
	case "pubsub":
		p, err := NewPubSub(ctx, cfg.PubSub, logger)
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil
	case "smtp":
		return NewSMTP(cfg.SMTP, logger), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown notify driver %q", cfg.Driver)
	}
}

// Log writes notifications to the structured log.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a log notifier.
func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger}
}

// Notify logs n.
func (l *Log) Notify(ctx context.Context, n Notification) error {
	l.logger.InfoContext(ctx, "owner notification",
		slog.String("kind", string(n.Kind)),
		slog.String("video_id", n.VideoID),
		slog.String("to", n.OwnerEmail),
		slog.String("subject", n.Subject()),
	)
	return nil
}
