// Package entitlement derives what a printforge user may do (free, trial or pro)
// and keeps that answer consistent with the billing provider.
//
// The Service combines three sources of truth:
//
//   - the locally persisted Entitlement record (Store);
//   - the billing provider's subscription object (BillingProvider);
//   - the wall clock, which expires trials and rolls monthly usage periods.
//
// When the local record and the provider disagree, the provider wins as long as
// it is reachable. Provider failures never fail a read: GetEntitlement falls back
// to the last persisted state and logs the failure.
//
// Trials expire lazily. A record whose trial end date has passed is downgraded
// on the next read or quota check, not by a background job, so a stale record can
// exist until it is accessed. Monthly usage counters are reset in bulk by
// Resetter, which is idempotent within a "YYYY-MM" period.
//
// Quota accounting relies on Store.DecrementQuota being atomic at the storage
// layer. The memory, Firestore and MongoDB stores each satisfy that contract.
//
// Basic wiring:
//
//	store := entitlement.NewMemoryStore()
//	provider := entitlement.NewStripeProvider(stripeCfg)
//	svc := entitlement.NewService(store, provider,
//		entitlement.WithPrices(stripeCfg.MonthlyPriceID, stripeCfg.AnnualPriceID),
//		entitlement.WithLogger(log),
//	)
//
//	view, err := svc.GetEntitlement(ctx, uid)
package entitlement
