package entitlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrymomot/printforge/pkg/logger"
	"github.com/dmitrymomot/printforge/pkg/metrics"
)

// CreateCheckout starts a provider checkout for plan. The user's billing
// customer is created on first use and linked to the record, with the user id
// in the customer metadata so webhooks can find the user before the link is
// stored.
func (s *Service) CreateCheckout(ctx context.Context, userID, email string, plan Plan, successURL, cancelURL string) (CheckoutSession, error) {
	price, err := s.priceForPlan(plan)
	if err != nil {
		return CheckoutSession{}, err
	}

	e, err := s.store.Get(ctx, userID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return CheckoutSession{}, fmt.Errorf("load entitlement: %w", err)
	}
	if e.SubscriptionRef != "" && e.Status.Entitled() {
		return CheckoutSession{}, ErrAlreadySubscribed
	}

	customerRef, err := s.ensureCustomer(ctx, userID, email, e.CustomerRef)
	if err != nil {
		return CheckoutSession{}, err
	}

	pctx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()

	session, err := s.provider.CreateCheckoutSession(pctx, CheckoutParams{
		UserID:      userID,
		CustomerRef: customerRef,
		PriceRef:    price,
		SuccessURL:  successURL,
		CancelURL:   cancelURL,
	})
	if err != nil {
		metrics.ProviderErrors.WithLabelValues("create_checkout_session").Inc()
		return CheckoutSession{}, fmt.Errorf("%w: create checkout session: %w", ErrProviderUnavailable, err)
	}
	return session, nil
}

func (s *Service) ensureCustomer(ctx context.Context, userID, email, existing string) (string, error) {
	if existing != "" {
		return existing, nil
	}

	pctx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()

	customerRef, err := s.provider.CreateCustomer(pctx, email, map[string]string{"user_id": userID})
	if err != nil {
		metrics.ProviderErrors.WithLabelValues("create_customer").Inc()
		return "", fmt.Errorf("%w: create customer: %w", ErrProviderUnavailable, err)
	}

	now := s.now()
	e, err := s.store.Update(ctx, userID, func(cur *Entitlement, found bool) error {
		if !found {
			*cur = newEntitlement(userID, s.freeQuota, now)
		}
		if email != "" {
			cur.Email = email
		}
		if cur.CustomerRef == "" {
			cur.CustomerRef = customerRef
		}
		cur.UpdatedAt = now
		return nil
	})
	if err != nil {
		// the customer metadata still carries the user id for webhook resolution
		s.logger.ErrorContext(ctx, "failed to link billing customer",
			logger.UserID(userID),
			logger.CustomerRef(customerRef),
			logger.Error(err),
		)
		return customerRef, nil
	}
	if e.CustomerRef != customerRef {
		s.logger.WarnContext(ctx, "concurrent checkout created a duplicate customer",
			logger.UserID(userID),
			logger.CustomerRef(customerRef),
		)
	}
	return e.CustomerRef, nil
}

// ConfirmCheckout applies a paid checkout session the client returned from,
// without waiting for the webhook. The provider-confirmed view is returned even
// when it could not be persisted.
func (s *Service) ConfirmCheckout(ctx context.Context, userID, sessionID string) (View, error) {
	pctx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	details, err := s.provider.RetrieveCheckoutSession(pctx, sessionID)
	cancel()
	if err != nil {
		metrics.ProviderErrors.WithLabelValues("retrieve_checkout_session").Inc()
		return View{}, fmt.Errorf("%w: retrieve checkout session: %w", ErrProviderUnavailable, err)
	}
	if err := s.checkSessionOwner(ctx, userID, details); err != nil {
		return View{}, err
	}
	if !details.Paid() {
		return View{}, ErrCheckoutIncomplete
	}

	// persistence failures are logged by applyCheckout; the next read self-heals
	e, _ := s.applyCheckout(ctx, userID, details.CustomerRef, details.SubscriptionRef, details.PriceRef)
	return e.View(), nil
}

// Sync re-reads the customer's subscriptions from the provider. The first
// entitled one is adopted. Otherwise the linked subscription is mirrored as the
// provider reports it, and the user is downgraded only when it is canceled.
func (s *Service) Sync(ctx context.Context, userID string) (View, error) {
	e, err := s.store.Get(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return newEntitlement(userID, s.freeQuota, s.now()).View(), nil
	}
	if err != nil {
		return View{}, fmt.Errorf("load entitlement: %w", err)
	}
	if e.CustomerRef == "" {
		return s.refresh(ctx, e).View(), nil
	}

	pctx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	subs, err := s.provider.ListActiveSubscriptions(pctx, e.CustomerRef)
	cancel()
	if err != nil {
		metrics.ProviderErrors.WithLabelValues("list_active_subscriptions").Inc()
		return View{}, fmt.Errorf("%w: list subscriptions: %w", ErrProviderUnavailable, err)
	}

	for _, sub := range subs {
		if !sub.Status.Entitled() {
			continue
		}
		if sub.CustomerRef == "" {
			sub.CustomerRef = e.CustomerRef
		}
		if err := s.ApplySubscriptionUpdated(ctx, sub); err != nil {
			return View{}, err
		}
		return s.GetEntitlement(ctx, userID)
	}

	if e.SubscriptionRef == "" {
		if e.Status == StatusActive {
			if err := s.applyDeleted(ctx, e.CustomerRef, ""); err != nil {
				return View{}, err
			}
		}
		return s.GetEntitlement(ctx, userID)
	}

	// The active list leaves out past_due and other live states, so the linked
	// subscription is only dropped once the provider reports it canceled.
	sub, err := s.retrieveSubscription(ctx, e.SubscriptionRef)
	if err != nil {
		return View{}, err
	}
	if sub.Status == StatusCanceled {
		if err := s.applyDeleted(ctx, e.CustomerRef, e.SubscriptionRef); err != nil {
			return View{}, err
		}
		return s.GetEntitlement(ctx, userID)
	}

	if sub.ID == "" {
		sub.ID = e.SubscriptionRef
	}
	if sub.CustomerRef == "" {
		sub.CustomerRef = e.CustomerRef
	}
	if err := s.ApplySubscriptionUpdated(ctx, sub); err != nil {
		return View{}, err
	}
	return s.GetEntitlement(ctx, userID)
}

// checkSessionOwner accepts a session tagged with the caller's user id, or an
// untagged one created for the caller's own billing customer.
func (s *Service) checkSessionOwner(ctx context.Context, userID string, details CheckoutDetails) error {
	if details.UserID != "" {
		if details.UserID != userID {
			return ErrCheckoutMismatch
		}
		return nil
	}

	e, err := s.store.Get(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return ErrCheckoutMismatch
	}
	if err != nil {
		return fmt.Errorf("load entitlement: %w", err)
	}
	if e.CustomerRef == "" || e.CustomerRef != details.CustomerRef {
		return ErrCheckoutMismatch
	}
	return nil
}
