package entitlement

import "time"

// Status mirrors the billing provider's subscription state.
type Status string

const (
	StatusNone      Status = "none"
	StatusTrialing  Status = "trialing"
	StatusActive    Status = "active"
	StatusPastDue   Status = "past_due"
	StatusCanceling Status = "canceling"
	StatusCanceled  Status = "canceled"
)

// Entitled reports whether the status grants pro access.
func (s Status) Entitled() bool {
	return s == StatusActive || s == StatusTrialing
}

func (s Status) Valid() bool {
	switch s {
	case StatusNone, StatusTrialing, StatusActive, StatusPastDue, StatusCanceling, StatusCanceled:
		return true
	}
	return false
}

type Plan string

const (
	PlanFree    Plan = "free"
	PlanMonthly Plan = "monthly"
	PlanAnnual  Plan = "annual"
	PlanPro     Plan = "pro" // trial plan
)

// Unlimited marks a quota without a ceiling. -1 keeps the value storable as a plain integer.
const Unlimited int64 = -1

// Entitlement is the persisted per-user billing and usage record.
type Entitlement struct {
	UserID          string     `firestore:"userId" bson:"_id" json:"user_id"`
	Email           string     `firestore:"email" bson:"email" json:"email,omitempty"`
	IsPro           bool       `firestore:"isPro" bson:"isPro" json:"is_pro"`
	Status          Status     `firestore:"subscriptionStatus" bson:"subscriptionStatus" json:"subscription_status"`
	Plan            Plan       `firestore:"subscriptionPlan" bson:"subscriptionPlan" json:"subscription_plan"`
	CustomerRef     string     `firestore:"customerRef" bson:"customerRef" json:"customer_ref,omitempty"`
	SubscriptionRef string     `firestore:"subscriptionRef" bson:"subscriptionRef" json:"subscription_ref,omitempty"`
	PeriodEnd       *time.Time `firestore:"subscriptionPeriodEnd" bson:"subscriptionPeriodEnd" json:"subscription_period_end,omitempty"`

	TrialActive    bool       `firestore:"trialActive" bson:"trialActive" json:"trial_active"`
	TrialStartedAt *time.Time `firestore:"trialStartedAt" bson:"trialStartedAt" json:"trial_started_at,omitempty"`
	TrialEndsAt    *time.Time `firestore:"trialEndsAt" bson:"trialEndsAt" json:"trial_ends_at,omitempty"`
	TrialConsumed  bool       `firestore:"trialConsumed" bson:"trialConsumed" json:"trial_consumed"`

	ModelsRemaining int64  `firestore:"modelsRemainingThisMonth" bson:"modelsRemainingThisMonth" json:"models_remaining"`
	ModelsGenerated int64  `firestore:"modelsGeneratedThisMonth" bson:"modelsGeneratedThisMonth" json:"models_generated"`
	Downloads       int64  `firestore:"downloadsThisMonth" bson:"downloadsThisMonth" json:"downloads"`
	LastResetPeriod string `firestore:"lastMonthlyResetPeriod" bson:"lastMonthlyResetPeriod" json:"last_reset_period"`

	UpdatedAt time.Time `firestore:"updatedAt" bson:"updatedAt" json:"updated_at"`
}

// View is the read model returned to callers of GetEntitlement.
type View struct {
	IsPro               bool       `json:"isPro"`
	ModelsRemaining     int64      `json:"modelsRemainingThisMonth"`
	ModelsGenerated     int64      `json:"modelsGeneratedThisMonth"`
	Downloads           int64      `json:"downloadsThisMonth"`
	Status              Status     `json:"subscriptionStatus"`
	Plan                Plan       `json:"subscriptionPlan"`
	SubscriptionEndDate *time.Time `json:"subscriptionEndDate"`
	TrialActive         bool       `json:"trialActive"`
	TrialEndDate        *time.Time `json:"trialEndDate"`
}

// Usage is the counter snapshot returned by quota operations.
type Usage struct {
	ModelsRemaining int64 `json:"modelsRemainingThisMonth"`
	ModelsGenerated int64 `json:"modelsGeneratedThisMonth"`
	Downloads       int64 `json:"downloadsThisMonth"`
}

// Period formats t as the "YYYY-MM" key of its calendar month in UTC.
func Period(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// newEntitlement is the free-tier record a user starts with.
func newEntitlement(userID string, freeQuota int64, now time.Time) Entitlement {
	return Entitlement{
		UserID:          userID,
		Status:          StatusNone,
		Plan:            PlanFree,
		ModelsRemaining: freeQuota,
		LastResetPeriod: Period(now),
		UpdatedAt:       now,
	}
}

func (e Entitlement) View() View {
	return View{
		IsPro:               e.IsPro,
		ModelsRemaining:     e.ModelsRemaining,
		ModelsGenerated:     e.ModelsGenerated,
		Downloads:           e.Downloads,
		Status:              e.Status,
		Plan:                e.Plan,
		SubscriptionEndDate: e.PeriodEnd,
		TrialActive:         e.TrialActive,
		TrialEndDate:        e.TrialEndsAt,
	}
}

func (e Entitlement) Usage() Usage {
	return Usage{
		ModelsRemaining: e.ModelsRemaining,
		ModelsGenerated: e.ModelsGenerated,
		Downloads:       e.Downloads,
	}
}

// TrialExpired reports whether an active trial has passed its end date.
func (e Entitlement) TrialExpired(now time.Time) bool {
	return e.TrialActive && e.TrialEndsAt != nil && now.After(*e.TrialEndsAt)
}

// The mutators below are the only code that changes Status, so IsPro is kept
// equal to Status.Entitled() in one place.

func (e *Entitlement) setStatus(s Status) {
	e.Status = s
	e.IsPro = s.Entitled()
}

func (e *Entitlement) startTrial(now time.Time, d time.Duration) {
	end := now.Add(d)
	e.TrialActive = true
	e.TrialConsumed = true
	e.TrialStartedAt = &now
	e.TrialEndsAt = &end
	e.setStatus(StatusTrialing)
	e.Plan = PlanPro
	e.ModelsRemaining = Unlimited
}

func (e *Entitlement) expireTrial(freeQuota int64) {
	e.TrialActive = false
	e.setStatus(StatusNone)
	e.Plan = PlanFree
	e.ModelsRemaining = freeQuota
}

// applySubscription mirrors a provider subscription onto the record.
// A paid subscription supersedes any trial.
func (e *Entitlement) applySubscription(sub Subscription, plan Plan, freeQuota int64) {
	if sub.Status == StatusCanceled {
		e.cancel(freeQuota)
		return
	}
	wasUnlimited := e.ModelsRemaining == Unlimited

	e.setStatus(sub.Status)
	e.Plan = plan
	e.SubscriptionRef = sub.ID
	e.PeriodEnd = sub.CurrentPeriodEnd
	e.TrialActive = false
	if sub.CustomerRef != "" {
		e.CustomerRef = sub.CustomerRef
	}

	switch {
	case e.IsPro:
		e.ModelsRemaining = Unlimited
	case wasUnlimited:
		e.ModelsRemaining = freeQuota
	}
}

func (e *Entitlement) cancel(freeQuota int64) {
	e.setStatus(StatusCanceled)
	e.Plan = PlanFree
	e.SubscriptionRef = ""
	e.TrialActive = false
	e.ModelsRemaining = freeQuota
}

// resetUsage restores the monthly counters for period.
func (e *Entitlement) resetUsage(period string, freeQuota int64) {
	e.ModelsGenerated = 0
	e.Downloads = 0
	if e.IsPro {
		e.ModelsRemaining = Unlimited
	} else {
		e.ModelsRemaining = freeQuota
	}
	e.LastResetPeriod = period
}
