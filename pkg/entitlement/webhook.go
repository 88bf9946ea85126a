package entitlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrymomot/printforge/pkg/logger"
	"github.com/dmitrymomot/printforge/pkg/metrics"
)

// HandleWebhook verifies and applies one billing webhook delivery.
//
// Signature failures return ErrInvalidSignature before anything is applied.
// Events that cannot be matched to a user are logged and acknowledged, since
// redelivery would not change the outcome. Handlers are idempotent, so
// duplicate deliveries are safe.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	start := time.Now()

	ev, err := s.provider.ParseWebhook(payload, signature)
	if err != nil {
		metrics.WebhookEvents.WithLabelValues("unknown", "rejected").Inc()
		if errors.Is(err, ErrInvalidSignature) {
			return err
		}
		return fmt.Errorf("parse webhook: %w", err)
	}

	log := s.logger.With(logger.EventID(ev.ID), logger.EventType(ev.ProviderType))
	defer func() {
		metrics.WebhookDuration.WithLabelValues(ev.ProviderType).Observe(time.Since(start).Seconds())
	}()

	switch ev.Type {
	case EventCheckoutCompleted:
		err = s.ApplyCheckoutCompleted(ctx, ev.CustomerRef, ev.SubscriptionRef, ev.PriceRef)
	case EventSubscriptionUpdated:
		err = s.ApplySubscriptionUpdated(ctx, Subscription{
			ID:               ev.SubscriptionRef,
			CustomerRef:      ev.CustomerRef,
			Status:           ev.Status,
			PriceRef:         ev.PriceRef,
			CurrentPeriodEnd: ev.PeriodEnd,
		})
	case EventSubscriptionDeleted:
		err = s.applyDeleted(ctx, ev.CustomerRef, ev.SubscriptionRef)
	default:
		metrics.WebhookEvents.WithLabelValues(ev.ProviderType, "ignored").Inc()
		log.DebugContext(ctx, "webhook event ignored")
		return nil
	}

	switch {
	case errors.Is(err, ErrUnresolvedEvent):
		metrics.WebhookEvents.WithLabelValues(ev.ProviderType, "unresolved").Inc()
		log.WarnContext(ctx, "webhook event dropped, user not found",
			logger.CustomerRef(ev.CustomerRef),
			logger.Error(err),
		)
		return nil
	case err != nil:
		metrics.WebhookEvents.WithLabelValues(ev.ProviderType, "failed").Inc()
		log.ErrorContext(ctx, "webhook event failed", logger.Error(err))
		return err
	}

	metrics.WebhookEvents.WithLabelValues(ev.ProviderType, "applied").Inc()
	log.InfoContext(ctx, "webhook event applied", logger.CustomerRef(ev.CustomerRef))
	return nil
}
