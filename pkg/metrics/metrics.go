// Package metrics holds the Prometheus collectors shared by the printforge
// services. Collectors register with the default registry on import.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "printforge"

var (
	// ReconcileCorrections counts local entitlements overwritten by the billing provider.
	ReconcileCorrections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "entitlement",
		Name:      "reconcile_corrections_total",
		Help:      "Entitlements corrected from the billing provider, by new status.",
	}, []string{"status"})

	// ProviderErrors counts billing provider calls that failed and fell back to local state.
	ProviderErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "entitlement",
		Name:      "provider_errors_total",
		Help:      "Billing provider call failures by operation.",
	}, []string{"operation"})

	TrialsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "entitlement",
		Name:      "trials_expired_total",
		Help:      "Trials downgraded on read after their end date.",
	})

	QuotaRejections = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "entitlement",
		Name:      "quota_rejections_total",
		Help:      "Generation requests rejected because the monthly quota was exhausted.",
	})

	MonthlyResets = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "entitlement",
		Name:      "monthly_resets_total",
		Help:      "Entitlement records reset at a period rollover.",
	})

	// WebhookEvents counts billing webhooks by event type and outcome.
	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "billing",
		Name:      "webhook_events_total",
		Help:      "Billing webhook events by type and outcome.",
	}, []string{"event_type", "outcome"})

	WebhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "billing",
		Name:      "webhook_duration_seconds",
		Help:      "Billing webhook processing duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event_type"})

	// JobTransitions counts import job status changes by target status.
	JobTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "importjob",
		Name:      "transitions_total",
		Help:      "Import job transitions by target status.",
	}, []string{"status"})

	JobsReaped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "importjob",
		Name:      "reaped_total",
		Help:      "Import jobs removed by the retention sweep.",
	})

	DownloadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "importjob",
		Name:      "download_duration_seconds",
		Help:      "Remote model download duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "API requests by route pattern, method and status code.",
	}, []string{"route", "method", "code"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "API request duration in seconds, event streams excluded.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})
)
