package entitlement

import (
	"context"
	"log/slog"
	"time"

	"github.com/a-h/templ"

	"github.com/dmitrymomot/printforge/pkg/email/templates"
	"github.com/dmitrymomot/printforge/pkg/logger"
)

// Notifier delivers lifecycle emails. Send reports success; the Service
// only logs failures.
type Notifier interface {
	Send(ctx context.Context, to, subject, htmlBody string) bool
}

const notifyTimeout = 10 * time.Second

type message struct {
	subject string
	body    templ.Component
}

func trialStartedMessage(e Entitlement) message {
	return message{
		subject: "Your Pro trial has started",
		body:    templates.TrialStarted(templates.TrialStartedParams{TrialEnds: formatDate(e.TrialEndsAt)}),
	}
}

func subscriptionActivatedMessage(e Entitlement) message {
	return message{
		subject: "Your Pro subscription is active",
		body: templates.SubscriptionActivated(templates.SubscriptionActivatedParams{
			Plan:      string(e.Plan),
			PeriodEnd: formatDate(e.PeriodEnd),
		}),
	}
}

func subscriptionCanceledMessage(e Entitlement) message {
	return message{
		subject: "Your Pro subscription has ended",
		body:    templates.SubscriptionCanceled(templates.SubscriptionCanceledParams{FreeQuota: e.ModelsRemaining}),
	}
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format("January 2, 2006")
}

func (s *Service) notify(ctx context.Context, to string, msg message) {
	if s.notifier == nil || to == "" || msg.body == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	html, err := templates.Render(ctx, msg.body)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to render notification",
			slog.String("subject", msg.subject),
			logger.Error(err),
		)
		return
	}

	if !s.notifier.Send(ctx, to, msg.subject, html) {
		s.logger.WarnContext(ctx, "notification not delivered", slog.String("subject", msg.subject))
	}
}
