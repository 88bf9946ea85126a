package entitlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeConfig holds the Stripe credentials and the price ids of the paid plans.
type StripeConfig struct {
	SecretKey      string `env:"STRIPE_SECRET_KEY,required"`
	WebhookSecret  string `env:"STRIPE_WEBHOOK_SECRET,required"`
	MonthlyPriceID string `env:"STRIPE_PRICE_MONTHLY,required"`
	AnnualPriceID  string `env:"STRIPE_PRICE_ANNUAL"`
}

// metadata key carrying the printforge user id on Stripe objects
const stripeUserIDKey = "user_id"

// StripeProvider implements BillingProvider on the Stripe API.
// The API calls are function fields so tests can replace them.
type StripeProvider struct {
	webhookSecret string

	newCustomer        func(*stripe.CustomerParams) (*stripe.Customer, error)
	getCustomer        func(string, *stripe.CustomerParams) (*stripe.Customer, error)
	getSubscription    func(string, *stripe.SubscriptionParams) (*stripe.Subscription, error)
	listSubscriptions  func(*stripe.SubscriptionListParams) ([]*stripe.Subscription, error)
	newCheckoutSession func(*stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	getCheckoutSession func(string, *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// NewStripeProvider sets the process-wide Stripe key and returns a provider.
func NewStripeProvider(cfg StripeConfig) (*StripeProvider, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("stripe secret key is required")
	}
	if cfg.WebhookSecret == "" {
		return nil, errors.New("stripe webhook secret is required")
	}

	stripe.Key = cfg.SecretKey

	return &StripeProvider{
		webhookSecret:      cfg.WebhookSecret,
		newCustomer:        customer.New,
		getCustomer:        customer.Get,
		getSubscription:    subscription.Get,
		listSubscriptions:  listStripeSubscriptions,
		newCheckoutSession: session.New,
		getCheckoutSession: session.Get,
	}, nil
}

func listStripeSubscriptions(params *stripe.SubscriptionListParams) ([]*stripe.Subscription, error) {
	it := subscription.List(params)
	var subs []*stripe.Subscription
	for it.Next() {
		subs = append(subs, it.Subscription())
	}
	return subs, it.Err()
}

func (p *StripeProvider) CreateCustomer(ctx context.Context, email string, metadata map[string]string) (string, error) {
	params := &stripe.CustomerParams{}
	if email != "" {
		params.Email = stripe.String(email)
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	c, err := p.newCustomer(params)
	if err != nil {
		return "", fmt.Errorf("stripe: create customer: %w", classifyStripeError(err))
	}
	return c.ID, nil
}

func (p *StripeProvider) RetrieveSubscription(ctx context.Context, subscriptionRef string) (Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	s, err := p.getSubscription(subscriptionRef, params)
	if err != nil {
		return Subscription{}, fmt.Errorf("stripe: get subscription: %w", classifyStripeError(err))
	}
	return fromStripeSubscription(s), nil
}

func (p *StripeProvider) ListActiveSubscriptions(ctx context.Context, customerRef string) ([]Subscription, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerRef),
		Status:   stripe.String(string(stripe.SubscriptionStatusActive)),
	}
	params.Context = ctx

	subs, err := p.listSubscriptions(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: list subscriptions: %w", classifyStripeError(err))
	}

	out := make([]Subscription, 0, len(subs))
	for _, s := range subs {
		out = append(out, fromStripeSubscription(s))
	}
	return out, nil
}

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, cp CheckoutParams) (CheckoutSession, error) {
	if cp.PriceRef == "" {
		return CheckoutSession{}, errors.New("stripe: price is required")
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL: stripe.String(cp.SuccessURL),
		CancelURL:  stripe.String(cp.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(cp.PriceRef),
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{stripeUserIDKey: cp.UserID},
		},
	}
	if cp.CustomerRef != "" {
		params.Customer = stripe.String(cp.CustomerRef)
	}
	if cp.UserID != "" {
		params.ClientReferenceID = stripe.String(cp.UserID)
		params.AddMetadata(stripeUserIDKey, cp.UserID)
	}
	params.AddMetadata("price_id", cp.PriceRef)
	params.Context = ctx

	s, err := p.newCheckoutSession(params)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("stripe: create checkout session: %w", classifyStripeError(err))
	}
	if s.URL == "" {
		return CheckoutSession{}, errors.New("stripe: checkout session has no url")
	}
	return CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

func (p *StripeProvider) RetrieveCheckoutSession(ctx context.Context, sessionID string) (CheckoutDetails, error) {
	params := &stripe.CheckoutSessionParams{}
	params.AddExpand("line_items")
	params.Context = ctx

	s, err := p.getCheckoutSession(sessionID, params)
	if err != nil {
		return CheckoutDetails{}, fmt.Errorf("stripe: get checkout session: %w", classifyStripeError(err))
	}

	d := CheckoutDetails{
		ID:            s.ID,
		Status:        string(s.Status),
		PaymentStatus: string(s.PaymentStatus),
		UserID:        s.ClientReferenceID,
		PriceRef:      s.Metadata["price_id"],
	}
	if d.UserID == "" {
		d.UserID = s.Metadata[stripeUserIDKey]
	}
	if s.Customer != nil {
		d.CustomerRef = s.Customer.ID
	}
	if s.Subscription != nil {
		d.SubscriptionRef = s.Subscription.ID
	}
	if d.PriceRef == "" && s.LineItems != nil && len(s.LineItems.Data) > 0 && s.LineItems.Data[0].Price != nil {
		d.PriceRef = s.LineItems.Data[0].Price.ID
	}
	return d, nil
}

func (p *StripeProvider) CustomerUserID(ctx context.Context, customerRef string) (string, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx

	c, err := p.getCustomer(customerRef, params)
	if err != nil {
		return "", fmt.Errorf("stripe: get customer: %w", classifyStripeError(err))
	}
	if c.Deleted || c.Metadata[stripeUserIDKey] == "" {
		return "", ErrNotFound
	}
	return c.Metadata[stripeUserIDKey], nil
}

// stripeCheckoutSession and stripeSubscription decode only the webhook fields we use.
type stripeCheckoutSession struct {
	ID                string            `json:"id"`
	Mode              string            `json:"mode"`
	Customer          string            `json:"customer"`
	Subscription      string            `json:"subscription"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

type stripeSubscription struct {
	ID                string `json:"id"`
	Customer          string `json:"customer"`
	Status            string `json:"status"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
	Items             struct {
		Data []struct {
			CurrentPeriodEnd int64 `json:"current_period_end"`
			Price            struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

// ParseWebhook verifies the Stripe-Signature header and normalizes the event.
// Unhandled event types come back as EventIgnored.
func (p *StripeProvider) ParseWebhook(payload []byte, signature string) (Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Event{}, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}

	ev := Event{ID: event.ID, ProviderType: string(event.Type), Type: EventIgnored}
	if event.Data == nil {
		return ev, nil
	}

	switch event.Type {
	case "checkout.session.completed":
		var s stripeCheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
			return Event{}, fmt.Errorf("stripe: decode checkout session: %w", err)
		}
		if s.Mode != string(stripe.CheckoutSessionModeSubscription) {
			return ev, nil
		}
		ev.Type = EventCheckoutCompleted
		ev.CustomerRef = s.Customer
		ev.SubscriptionRef = s.Subscription
		ev.PriceRef = s.Metadata["price_id"]

	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var s stripeSubscription
		if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
			return Event{}, fmt.Errorf("stripe: decode subscription: %w", err)
		}
		ev.Type = EventSubscriptionUpdated
		if event.Type == "customer.subscription.deleted" {
			ev.Type = EventSubscriptionDeleted
		}
		ev.CustomerRef = s.Customer
		ev.SubscriptionRef = s.ID
		ev.Status = mapStripeStatus(s.Status)
		if len(s.Items.Data) > 0 {
			ev.PriceRef = s.Items.Data[0].Price.ID
			ev.PeriodEnd = unixTime(s.Items.Data[0].CurrentPeriodEnd)
		}
	}
	return ev, nil
}

func fromStripeSubscription(s *stripe.Subscription) Subscription {
	sub := Subscription{
		ID:                s.ID,
		Status:            mapStripeStatus(string(s.Status)),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
	}
	if s.Customer != nil {
		sub.CustomerRef = s.Customer.ID
	}
	if s.Items != nil && len(s.Items.Data) > 0 {
		item := s.Items.Data[0]
		if item.Price != nil {
			sub.PriceRef = item.Price.ID
		}
		sub.CurrentPeriodEnd = unixTime(item.CurrentPeriodEnd)
	}
	return sub
}

// mapStripeStatus fails closed: statuses that do not grant access map to
// non-entitled values.
func mapStripeStatus(s string) Status {
	switch stripe.SubscriptionStatus(s) {
	case stripe.SubscriptionStatusActive:
		return StatusActive
	case stripe.SubscriptionStatusTrialing:
		return StatusTrialing
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusUnpaid:
		return StatusPastDue
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusIncompleteExpired:
		return StatusCanceled
	default:
		return StatusNone
	}
}

func classifyStripeError(err error) error {
	var serr *stripe.Error
	if errors.As(err, &serr) &&
		(serr.Code == stripe.ErrorCodeResourceMissing || serr.HTTPStatusCode == http.StatusNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, serr.Msg)
	}
	return err
}

func unixTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
