package logger

import (
	"log/slog"
	"time"
)

// Error logs err under "error". Nil errors produce an empty attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

func UserID(id string) slog.Attr {
	return nonEmpty("user_id", id)
}

func JobID(id string) slog.Attr {
	return nonEmpty("job_id", id)
}

func RequestID(id string) slog.Attr {
	return nonEmpty("request_id", id)
}

// CustomerRef is the billing provider's customer id.
func CustomerRef(ref string) slog.Attr {
	return nonEmpty("customer_ref", ref)
}

// SubscriptionRef is the billing provider's subscription id.
func SubscriptionRef(ref string) slog.Attr {
	return nonEmpty("subscription_ref", ref)
}

func EventType(t string) slog.Attr {
	return nonEmpty("event_type", t)
}

func EventID(id string) slog.Attr {
	return nonEmpty("event_id", id)
}

func Status(s string) slog.Attr {
	return nonEmpty("status", s)
}

func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Period is a "YYYY-MM" billing period.
func Period(p string) slog.Attr {
	return nonEmpty("period", p)
}

func Count(n int) slog.Attr {
	return slog.Int("count", n)
}

func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

func nonEmpty(key, value string) slog.Attr {
	if value == "" {
		return slog.Attr{}
	}
	return slog.String(key, value)
}
