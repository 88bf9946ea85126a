package templates

import (
	"context"
	"io"
	"strconv"

	"github.com/a-h/templ"
)

// TrialStartedParams fills the trial welcome email.
type TrialStartedParams struct {
	TrialEnds string
}

// SubscriptionActivatedParams fills the paid activation email.
// PeriodEnd is optional.
type SubscriptionActivatedParams struct {
	Plan      string
	PeriodEnd string
}

// SubscriptionCanceledParams fills the downgrade email.
type SubscriptionCanceledParams struct {
	FreeQuota int64
}

// TrialStarted renders the email sent when a trial is granted.
func TrialStarted(p TrialStartedParams) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return write(w,
			"<h1>Your PrintForge Pro trial has started</h1>\n",
			"<p>Unlimited model generation is unlocked until ", templ.EscapeString(p.TrialEnds), ".</p>",
		)
	})
}

// SubscriptionActivated renders the email sent when a paid plan starts.
func SubscriptionActivated(p SubscriptionActivatedParams) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		until := ""
		if p.PeriodEnd != "" {
			until = " until " + templ.EscapeString(p.PeriodEnd)
		}
		return write(w,
			"<h1>Welcome to PrintForge Pro</h1>\n",
			"<p>Your ", templ.EscapeString(p.Plan), " subscription is active", until, ".</p>",
		)
	})
}

// SubscriptionCanceled renders the email sent after a downgrade to free.
func SubscriptionCanceled(p SubscriptionCanceledParams) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return write(w,
			"<h1>Your PrintForge Pro subscription has ended</h1>\n",
			"<p>You are back on the free plan with ", strconv.FormatInt(p.FreeQuota, 10), " generations per month.</p>",
		)
	})
}

func write(w io.Writer, parts ...string) error {
	for _, s := range parts {
		if _, err := io.WriteString(w, s); err != nil {
			return err
		}
	}
	return nil
}
