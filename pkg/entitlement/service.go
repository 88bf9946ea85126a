package entitlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dmitrymomot/printforge/pkg/logger"
	"github.com/dmitrymomot/printforge/pkg/metrics"
)

// Service reconciles local entitlements with the billing provider and
// enforces monthly usage limits.
type Service struct {
	store    Store
	provider BillingProvider
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time

	freeQuota       int64
	trialDuration   time.Duration
	providerTimeout time.Duration
	resetBatch      int
	monthlyPrice    string
	annualPrice     string

	reads singleflight.Group
}

// NewService panics when store or provider is nil.
func NewService(store Store, provider BillingProvider, opts ...ServiceOption) *Service {
	if store == nil {
		panic("entitlement: store is required")
	}
	if provider == nil {
		panic("entitlement: billing provider is required")
	}

	s := &Service{
		store:           store,
		provider:        provider,
		logger:          logger.Discard(),
		now:             time.Now,
		freeQuota:       DefaultFreeQuota,
		trialDuration:   DefaultTrialDuration,
		providerTimeout: DefaultProviderTimeout,
		resetBatch:      DefaultResetBatchSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("entitlement"))
	return s
}

// GetEntitlement returns the user's current entitlement. Unknown users get the
// free-tier defaults without a record being created. Expired trials and stale
// usage periods are corrected and persisted on the way, and a linked
// subscription is checked against the billing provider. Provider failures are
// logged and the local state is returned.
//
// Concurrent reads for the same user share one reconciliation. The shared
// call is detached from the caller that started it, so a departing caller
// only ends its own wait.
func (s *Service) GetEntitlement(ctx context.Context, userID string) (View, error) {
	ch := s.reads.DoChan(userID, func() (any, error) {
		return s.reconcile(context.WithoutCancel(ctx), userID)
	})
	select {
	case <-ctx.Done():
		return View{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return View{}, res.Err
		}
		return res.Val.(View), nil
	}
}

func (s *Service) reconcile(ctx context.Context, userID string) (View, error) {
	e, err := s.store.Get(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return newEntitlement(userID, s.freeQuota, s.now()).View(), nil
	}
	if err != nil {
		return View{}, fmt.Errorf("load entitlement: %w", err)
	}

	e = s.refresh(ctx, e)
	if e.SubscriptionRef == "" {
		return e.View(), nil
	}

	sub, err := s.retrieveSubscription(ctx, e.SubscriptionRef)
	if err != nil {
		s.logger.WarnContext(ctx, "serving local entitlement, billing provider unavailable",
			logger.UserID(userID),
			logger.SubscriptionRef(e.SubscriptionRef),
			logger.Error(err),
		)
		return e.View(), nil
	}
	if !s.drifted(e, sub) {
		return e.View(), nil
	}

	plan := s.planForPrice(sub.PriceRef)
	now := s.now()
	updated, err := s.store.Update(ctx, userID, func(cur *Entitlement, found bool) error {
		if !found || cur.SubscriptionRef != sub.ID {
			return ErrSkipUpdate
		}
		cur.applySubscription(sub, plan, s.freeQuota)
		cur.UpdatedAt = now
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to persist reconciled entitlement",
			logger.UserID(userID),
			logger.Error(err),
		)
		e.applySubscription(sub, plan, s.freeQuota)
		return e.View(), nil
	}

	metrics.ReconcileCorrections.WithLabelValues(string(sub.Status)).Inc()
	s.logger.InfoContext(ctx, "entitlement corrected from billing provider",
		logger.UserID(userID),
		logger.Status(string(sub.Status)),
		slog.String("previous_status", string(e.Status)),
	)
	return updated.View(), nil
}

func (s *Service) drifted(e Entitlement, sub Subscription) bool {
	if e.Status != sub.Status {
		return true
	}
	if !sameTime(e.PeriodEnd, sub.CurrentPeriodEnd) {
		return true
	}
	return sub.PriceRef != "" && s.planForPrice(sub.PriceRef) != e.Plan
}

// refresh persists a due trial expiry and a due usage reset in one write.
// The conditions are re-checked inside the update, so concurrent callers
// write at most once.
func (s *Service) refresh(ctx context.Context, e Entitlement) Entitlement {
	now := s.now()
	period := Period(now)
	if !e.TrialExpired(now) && e.LastResetPeriod == period {
		return e
	}

	var expired, reset bool
	updated, err := s.store.Update(ctx, e.UserID, func(cur *Entitlement, found bool) error {
		expired, reset = false, false
		if !found {
			return ErrSkipUpdate
		}
		if cur.TrialExpired(now) {
			cur.expireTrial(s.freeQuota)
			expired = true
		}
		if cur.LastResetPeriod != period {
			cur.resetUsage(period, s.freeQuota)
			reset = true
		}
		if !expired && !reset {
			return ErrSkipUpdate
		}
		cur.UpdatedAt = now
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to persist entitlement refresh",
			logger.UserID(e.UserID),
			logger.Error(err),
		)
		if e.TrialExpired(now) {
			e.expireTrial(s.freeQuota)
		}
		return e
	}

	if expired {
		metrics.TrialsExpired.Inc()
		s.logger.InfoContext(ctx, "trial expired", logger.UserID(e.UserID))
	}
	if reset {
		metrics.MonthlyResets.Inc()
	}
	return updated
}

// StartTrial grants a one-time pro trial. The check runs against the stored
// record, so a client cannot replay it. email is stored when non-empty.
func (s *Service) StartTrial(ctx context.Context, userID, email string) (Entitlement, error) {
	now := s.now()
	e, err := s.store.Update(ctx, userID, func(cur *Entitlement, found bool) error {
		if !found {
			*cur = newEntitlement(userID, s.freeQuota, now)
		}
		if cur.TrialConsumed {
			return ErrTrialAlreadyUsed
		}
		if cur.IsPro && cur.SubscriptionRef != "" {
			return ErrTrialNotAvailable
		}
		if email != "" {
			cur.Email = email
		}
		cur.startTrial(now, s.trialDuration)
		cur.UpdatedAt = now
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrTrialAlreadyUsed) || errors.Is(err, ErrTrialNotAvailable) {
			return Entitlement{}, err
		}
		return Entitlement{}, fmt.Errorf("start trial: %w", err)
	}

	s.logger.InfoContext(ctx, "trial started", logger.UserID(userID))
	s.notify(ctx, e.Email, trialStartedMessage(e))
	return e, nil
}

// DecrementGenerationQuota records one model generation. Pro users are not
// counted. Free users get ErrQuotaExhausted once the monthly quota is used.
func (s *Service) DecrementGenerationQuota(ctx context.Context, userID string) (Usage, error) {
	if err := s.prepareUsage(ctx, userID); err != nil {
		return Usage{}, err
	}

	u, err := s.store.DecrementQuota(ctx, userID)
	if errors.Is(err, ErrQuotaExhausted) {
		metrics.QuotaRejections.Inc()
		return u, err
	}
	if err != nil {
		return Usage{}, fmt.Errorf("decrement quota: %w", err)
	}
	return u, nil
}

// RecordDownload counts one model download for the current month.
func (s *Service) RecordDownload(ctx context.Context, userID string) (Usage, error) {
	if err := s.prepareUsage(ctx, userID); err != nil {
		return Usage{}, err
	}

	u, err := s.store.IncrementDownloads(ctx, userID)
	if err != nil {
		return Usage{}, fmt.Errorf("record download: %w", err)
	}
	return u, nil
}

// prepareUsage makes sure the atomic counter operations see a record for the
// current tier and period.
func (s *Service) prepareUsage(ctx context.Context, userID string) error {
	e, err := s.store.Get(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		now := s.now()
		_, err = s.store.Update(ctx, userID, func(cur *Entitlement, found bool) error {
			if found {
				return ErrSkipUpdate
			}
			*cur = newEntitlement(userID, s.freeQuota, now)
			return nil
		})
		if err != nil {
			return fmt.Errorf("create entitlement: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("load entitlement: %w", err)
	}

	s.refresh(ctx, e)
	return nil
}

// ResetMonthlyLimits resets the usage counters of every record not yet reset
// for the current period and returns how many were reset. Records already
// reset this period are skipped, so a second run in the same month resets none.
func (s *Service) ResetMonthlyLimits(ctx context.Context) (int, error) {
	now := s.now()
	period := Period(now)
	total := 0

	for {
		ids, err := s.store.ListStale(ctx, period, s.resetBatch)
		if err != nil {
			return total, fmt.Errorf("list stale entitlements: %w", err)
		}
		if len(ids) == 0 {
			break
		}

		progressed := 0
		for _, id := range ids {
			changed, err := s.resetOne(ctx, id, period, now)
			if err != nil {
				s.logger.ErrorContext(ctx, "failed to reset monthly limits",
					logger.UserID(id),
					logger.Error(err),
				)
				continue
			}
			if changed {
				progressed++
			}
		}
		total += progressed

		if progressed == 0 || len(ids) < s.resetBatch {
			break
		}
	}

	if total > 0 {
		metrics.MonthlyResets.Add(float64(total))
		s.logger.InfoContext(ctx, "monthly limits reset", logger.Period(period), logger.Count(total))
	}
	return total, nil
}

func (s *Service) resetOne(ctx context.Context, userID, period string, now time.Time) (bool, error) {
	changed := false
	_, err := s.store.Update(ctx, userID, func(cur *Entitlement, found bool) error {
		changed = false
		if !found || cur.LastResetPeriod == period {
			return ErrSkipUpdate
		}
		cur.resetUsage(period, s.freeQuota)
		cur.UpdatedAt = now
		changed = true
		return nil
	})
	return changed, err
}

func (s *Service) retrieveSubscription(ctx context.Context, ref string) (Subscription, error) {
	ctx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()

	sub, err := s.provider.RetrieveSubscription(ctx, ref)
	if errors.Is(err, ErrNotFound) {
		// gone on the provider side
		return Subscription{ID: ref, Status: StatusCanceled}, nil
	}
	if err != nil {
		metrics.ProviderErrors.WithLabelValues("retrieve_subscription").Inc()
		return Subscription{}, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
	return sub, nil
}

// planForPrice maps a price id to a plan. Unknown prices map to the monthly
// plan so that a new price never blocks activation.
func (s *Service) planForPrice(priceRef string) Plan {
	switch {
	case priceRef != "" && priceRef == s.annualPrice:
		return PlanAnnual
	default:
		return PlanMonthly
	}
}

func (s *Service) priceForPlan(plan Plan) (string, error) {
	var price string
	switch plan {
	case PlanMonthly, PlanPro:
		price = s.monthlyPrice
	case PlanAnnual:
		price = s.annualPrice
	}
	if price == "" {
		return "", fmt.Errorf("%w: %s", ErrUnknownPlan, plan)
	}
	return price, nil
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
