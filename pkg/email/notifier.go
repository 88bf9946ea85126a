package email

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/printforge/pkg/logger"
)

// Notifier sends best-effort notifications through an EmailSender.
type Notifier struct {
	sender EmailSender
	tag    string
	logger *slog.Logger
}

type NotifierOption func(*Notifier)

func WithLogger(l *slog.Logger) NotifierOption {
	return func(n *Notifier) {
		if l != nil {
			n.logger = l
		}
	}
}

// WithTag labels every message for provider-side analytics.
func WithTag(tag string) NotifierOption {
	return func(n *Notifier) { n.tag = tag }
}

func NewNotifier(sender EmailSender, opts ...NotifierOption) *Notifier {
	if sender == nil {
		panic("email: sender is required")
	}
	n := &Notifier{sender: sender, tag: "lifecycle", logger: logger.Discard()}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Send reports whether the message was accepted. Failures are logged only.
func (n *Notifier) Send(ctx context.Context, to, subject, htmlBody string) bool {
	err := n.sender.SendEmail(ctx, SendEmailParams{
		SendTo:   to,
		Subject:  subject,
		BodyHTML: htmlBody,
		Tag:      n.tag,
	})
	if err != nil {
		n.logger.WarnContext(ctx, "email not sent",
			slog.String("subject", subject),
			logger.Error(err),
		)
		return false
	}
	return true
}
