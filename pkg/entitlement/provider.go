package entitlement

import (
	"context"
	"time"
)

// BillingProvider is the external subscription service. Implementations
// translate provider statuses into Status and must return ErrInvalidSignature
// from ParseWebhook when verification fails.
type BillingProvider interface {
	CreateCustomer(ctx context.Context, email string, metadata map[string]string) (string, error)
	RetrieveSubscription(ctx context.Context, subscriptionRef string) (Subscription, error)
	ListActiveSubscriptions(ctx context.Context, customerRef string) ([]Subscription, error)
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (CheckoutSession, error)
	RetrieveCheckoutSession(ctx context.Context, sessionID string) (CheckoutDetails, error)
	// CustomerUserID reads the user id stored in the customer's metadata.
	// Returns ErrNotFound when the customer carries none.
	CustomerUserID(ctx context.Context, customerRef string) (string, error)
	ParseWebhook(payload []byte, signature string) (Event, error)
}

// Subscription is the provider's view of one subscription.
type Subscription struct {
	ID                string
	CustomerRef       string
	Status            Status
	PriceRef          string
	CurrentPeriodEnd  *time.Time
	CancelAtPeriodEnd bool
}

type CheckoutParams struct {
	UserID      string
	CustomerRef string
	PriceRef    string
	SuccessURL  string
	CancelURL   string
}

type CheckoutSession struct {
	ID  string `json:"sessionId"`
	URL string `json:"url"`
}

// CheckoutDetails is a retrieved checkout session.
type CheckoutDetails struct {
	ID              string
	Status          string
	PaymentStatus   string
	CustomerRef     string
	SubscriptionRef string
	PriceRef        string
	UserID          string
}

// Paid reports whether the session completed with a settled payment.
func (d CheckoutDetails) Paid() bool {
	return d.Status == "complete" && (d.PaymentStatus == "paid" || d.PaymentStatus == "no_payment_required")
}

type EventType string

const (
	EventCheckoutCompleted   EventType = "checkout.completed"
	EventSubscriptionUpdated EventType = "subscription.updated"
	EventSubscriptionDeleted EventType = "subscription.deleted"
	EventIgnored             EventType = "ignored"
)

// Event is a verified webhook normalized across providers.
type Event struct {
	ID              string
	Type            EventType
	ProviderType    string
	CustomerRef     string
	SubscriptionRef string
	PriceRef        string
	Status          Status
	PeriodEnd       *time.Time
}
