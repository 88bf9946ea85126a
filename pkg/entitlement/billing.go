package entitlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrymomot/printforge/pkg/logger"
	"github.com/dmitrymomot/printforge/pkg/metrics"
)

// ApplyCheckoutCompleted activates the subscription bought in a completed
// checkout. The user is found by customer reference, or through the user id
// stored in the provider's customer metadata when the local link has not been
// written yet. Returns ErrUnresolvedEvent when neither works.
// Applying the same checkout twice yields the same record.
func (s *Service) ApplyCheckoutCompleted(ctx context.Context, customerRef, subscriptionRef, priceRef string) error {
	userID, err := s.resolveUser(ctx, customerRef)
	if err != nil {
		return err
	}
	_, err = s.applyCheckout(ctx, userID, customerRef, subscriptionRef, priceRef)
	return err
}

func (s *Service) applyCheckout(ctx context.Context, userID, customerRef, subscriptionRef, priceRef string) (Entitlement, error) {
	sub := Subscription{
		ID:          subscriptionRef,
		CustomerRef: customerRef,
		Status:      StatusActive,
		PriceRef:    priceRef,
	}
	if subscriptionRef != "" {
		live, err := s.retrieveSubscription(ctx, subscriptionRef)
		if err != nil {
			s.logger.WarnContext(ctx, "checkout applied without live subscription status",
				logger.UserID(userID),
				logger.SubscriptionRef(subscriptionRef),
				logger.Error(err),
			)
		} else {
			sub.Status = live.Status
			sub.CurrentPeriodEnd = live.CurrentPeriodEnd
			if sub.PriceRef == "" {
				sub.PriceRef = live.PriceRef
			}
		}
	}

	plan := s.planForPrice(sub.PriceRef)
	now := s.now()
	var activated bool
	e, err := s.store.Update(ctx, userID, func(cur *Entitlement, found bool) error {
		if !found {
			*cur = newEntitlement(userID, s.freeQuota, now)
		}
		activated = !(cur.IsPro && cur.SubscriptionRef == sub.ID)
		cur.applySubscription(sub, plan, s.freeQuota)
		cur.UpdatedAt = now
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to persist checkout",
			logger.UserID(userID),
			logger.CustomerRef(customerRef),
			logger.Error(err),
		)
		// the provider holds the confirmed state; hand it back so the caller can use it
		fallback := newEntitlement(userID, s.freeQuota, now)
		fallback.applySubscription(sub, plan, s.freeQuota)
		return fallback, fmt.Errorf("persist checkout: %w", err)
	}

	if activated && e.IsPro {
		s.logger.InfoContext(ctx, "subscription activated",
			logger.UserID(userID),
			logger.SubscriptionRef(sub.ID),
			logger.Status(string(e.Status)),
		)
		s.notify(ctx, e.Email, subscriptionActivatedMessage(e))
	}
	return e, nil
}

// ApplySubscriptionUpdated mirrors a provider subscription change. sub must
// carry at least CustomerRef and Status.
func (s *Service) ApplySubscriptionUpdated(ctx context.Context, sub Subscription) error {
	userID, err := s.resolveUser(ctx, sub.CustomerRef)
	if err != nil {
		return err
	}

	plan := s.planForPrice(sub.PriceRef)
	now := s.now()
	_, err = s.store.Update(ctx, userID, func(cur *Entitlement, found bool) error {
		if !found {
			*cur = newEntitlement(userID, s.freeQuota, now)
		}
		// an old subscription lapsing must not downgrade its replacement
		if sub.ID != "" && cur.SubscriptionRef != "" && cur.SubscriptionRef != sub.ID &&
			cur.IsPro && !sub.Status.Entitled() {
			return ErrSkipUpdate
		}
		cur.applySubscription(sub, plan, s.freeQuota)
		cur.UpdatedAt = now
		return nil
	})
	if err != nil {
		return fmt.Errorf("apply subscription update: %w", err)
	}

	s.logger.InfoContext(ctx, "subscription updated",
		logger.UserID(userID),
		logger.SubscriptionRef(sub.ID),
		logger.Status(string(sub.Status)),
	)
	return nil
}

// ApplySubscriptionDeleted downgrades the customer's user to the free plan.
func (s *Service) ApplySubscriptionDeleted(ctx context.Context, customerRef string) error {
	return s.applyDeleted(ctx, customerRef, "")
}

// applyDeleted ignores deletions of a subscription the user no longer holds
// when subscriptionRef is known.
func (s *Service) applyDeleted(ctx context.Context, customerRef, subscriptionRef string) error {
	userID, err := s.resolveUser(ctx, customerRef)
	if err != nil {
		return err
	}

	now := s.now()
	var canceled bool
	e, err := s.store.Update(ctx, userID, func(cur *Entitlement, found bool) error {
		canceled = false
		if !found {
			*cur = newEntitlement(userID, s.freeQuota, now)
			cur.CustomerRef = customerRef
		}
		if subscriptionRef != "" && cur.SubscriptionRef != "" && cur.SubscriptionRef != subscriptionRef {
			return ErrSkipUpdate
		}
		canceled = cur.Status != StatusCanceled
		cur.cancel(s.freeQuota)
		cur.UpdatedAt = now
		return nil
	})
	if err != nil {
		return fmt.Errorf("apply subscription deletion: %w", err)
	}

	if canceled {
		s.logger.InfoContext(ctx, "subscription canceled", logger.UserID(userID))
		s.notify(ctx, e.Email, subscriptionCanceledMessage(e))
	}
	return nil
}

// resolveUser finds the user that owns a billing customer.
func (s *Service) resolveUser(ctx context.Context, customerRef string) (string, error) {
	if customerRef == "" {
		return "", fmt.Errorf("%w: missing customer reference", ErrUnresolvedEvent)
	}

	e, err := s.store.FindByCustomerRef(ctx, customerRef)
	if err == nil {
		return e.UserID, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", fmt.Errorf("find entitlement by customer: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()

	userID, err := s.provider.CustomerUserID(pctx, customerRef)
	if err != nil || userID == "" {
		if err != nil && !errors.Is(err, ErrNotFound) {
			metrics.ProviderErrors.WithLabelValues("customer_user_id").Inc()
			s.logger.WarnContext(ctx, "customer metadata lookup failed",
				logger.CustomerRef(customerRef),
				logger.Error(err),
			)
		}
		return "", fmt.Errorf("%w: customer %s", ErrUnresolvedEvent, customerRef)
	}

	s.logger.InfoContext(ctx, "billing customer resolved from provider metadata",
		logger.CustomerRef(customerRef),
		logger.UserID(userID),
	)
	return userID, nil
}
