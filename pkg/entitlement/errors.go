package entitlement

import "errors"

var (
	ErrNotFound            = errors.New("entitlement: not found")
	ErrTrialAlreadyUsed    = errors.New("entitlement: trial already used")
	ErrTrialNotAvailable   = errors.New("entitlement: trial not available while subscribed")
	ErrAlreadySubscribed   = errors.New("entitlement: user already has an active subscription")
	ErrQuotaExhausted      = errors.New("entitlement: monthly generation quota exhausted")
	ErrInvalidSignature    = errors.New("entitlement: invalid webhook signature")
	ErrProviderUnavailable = errors.New("entitlement: billing provider unavailable")
	ErrUnresolvedEvent     = errors.New("entitlement: billing event could not be matched to a user")
	ErrUnknownPlan         = errors.New("entitlement: plan has no configured price")
	ErrCheckoutIncomplete  = errors.New("entitlement: checkout session is not paid")
	ErrCheckoutMismatch    = errors.New("entitlement: checkout session belongs to another user")
	ErrConflict            = errors.New("entitlement: concurrent update retries exhausted")

	// ErrSkipUpdate is returned by a Mutation to abort Store.Update without writing.
	ErrSkipUpdate = errors.New("entitlement: skip update")
)
