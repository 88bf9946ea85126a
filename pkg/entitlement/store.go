package entitlement

import "context"

// Mutation edits a record inside Store.Update. found is false when the store
// had no record and e holds only the user id. Returning ErrSkipUpdate leaves
// the stored record untouched; any other error aborts the update.
type Mutation func(e *Entitlement, found bool) error

// Store persists entitlements. Implementations must make Update and the
// counter operations atomic per user.
type Store interface {
	// Get returns ErrNotFound when the user has no record.
	Get(ctx context.Context, userID string) (Entitlement, error)
	// FindByCustomerRef returns ErrNotFound when no record links the customer.
	FindByCustomerRef(ctx context.Context, customerRef string) (Entitlement, error)
	// Update applies fn transactionally and returns the stored result.
	// When fn returns ErrSkipUpdate, Update returns the current record and a nil error.
	Update(ctx context.Context, userID string, fn Mutation) (Entitlement, error)
	// DecrementQuota takes one generation from the remaining quota. Unlimited
	// records are left as is. Returns ErrQuotaExhausted at zero and ErrNotFound
	// for unknown users.
	DecrementQuota(ctx context.Context, userID string) (Usage, error)
	// IncrementDownloads adds one download. Returns ErrNotFound for unknown users.
	IncrementDownloads(ctx context.Context, userID string) (Usage, error)
	// ListStale returns up to limit user ids whose LastResetPeriod differs from period.
	ListStale(ctx context.Context, period string, limit int) ([]string, error)
}
