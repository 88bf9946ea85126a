package entitlement_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/printforge/pkg/entitlement"
)

var testNow = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

const (
	monthlyPrice = "price_monthly"
	annualPrice  = "price_annual"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) CreateCustomer(ctx context.Context, email string, metadata map[string]string) (string, error) {
	args := m.Called(ctx, email, metadata)
	return args.String(0), args.Error(1)
}

func (m *mockProvider) RetrieveSubscription(ctx context.Context, ref string) (entitlement.Subscription, error) {
	args := m.Called(ctx, ref)
	return args.Get(0).(entitlement.Subscription), args.Error(1)
}

func (m *mockProvider) ListActiveSubscriptions(ctx context.Context, customerRef string) ([]entitlement.Subscription, error) {
	args := m.Called(ctx, customerRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entitlement.Subscription), args.Error(1)
}

func (m *mockProvider) CreateCheckoutSession(ctx context.Context, p entitlement.CheckoutParams) (entitlement.CheckoutSession, error) {
	args := m.Called(ctx, p)
	return args.Get(0).(entitlement.CheckoutSession), args.Error(1)
}

func (m *mockProvider) RetrieveCheckoutSession(ctx context.Context, id string) (entitlement.CheckoutDetails, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(entitlement.CheckoutDetails), args.Error(1)
}

func (m *mockProvider) CustomerUserID(ctx context.Context, customerRef string) (string, error) {
	args := m.Called(ctx, customerRef)
	return args.String(0), args.Error(1)
}

func (m *mockProvider) ParseWebhook(payload []byte, signature string) (entitlement.Event, error) {
	args := m.Called(payload, signature)
	return args.Get(0).(entitlement.Event), args.Error(1)
}

type sentMail struct {
	to, subject, body string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMail
	ok   bool
}

func (n *recordingNotifier) Send(_ context.Context, to, subject, body string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMail{to, subject, body})
	return n.ok
}

func (n *recordingNotifier) Sent() []sentMail {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentMail(nil), n.sent...)
}

// countingStore counts the mutations that were actually written.
type countingStore struct {
	*entitlement.MemoryStore
	writes atomic.Int64
}

func newCountingStore() *countingStore {
	return &countingStore{MemoryStore: entitlement.NewMemoryStore()}
}

func (s *countingStore) Update(ctx context.Context, userID string, fn entitlement.Mutation) (entitlement.Entitlement, error) {
	return s.MemoryStore.Update(ctx, userID, func(e *entitlement.Entitlement, found bool) error {
		if err := fn(e, found); err != nil {
			return err
		}
		s.writes.Add(1)
		return nil
	})
}

func newTestService(store entitlement.Store, provider entitlement.BillingProvider, opts ...entitlement.ServiceOption) *entitlement.Service {
	base := []entitlement.ServiceOption{
		entitlement.WithClock(func() time.Time { return testNow }),
		entitlement.WithPrices(monthlyPrice, annualPrice),
		entitlement.WithProviderTimeout(time.Second),
	}
	return entitlement.NewService(store, provider, append(base, opts...)...)
}

// seed writes e directly, bypassing any wrapper.
func seed(t *testing.T, store *entitlement.MemoryStore, e entitlement.Entitlement) {
	t.Helper()
	if e.LastResetPeriod == "" {
		e.LastResetPeriod = entitlement.Period(testNow)
	}
	_, err := store.Update(context.Background(), e.UserID, func(cur *entitlement.Entitlement, _ bool) error {
		*cur = e
		return nil
	})
	require.NoError(t, err)
}

func ptr(t time.Time) *time.Time { return &t }

func freeUser(id string, remaining int64) entitlement.Entitlement {
	return entitlement.Entitlement{
		UserID:          id,
		Status:          entitlement.StatusNone,
		Plan:            entitlement.PlanFree,
		ModelsRemaining: remaining,
	}
}

func proUser(id, customerRef, subRef string) entitlement.Entitlement {
	return entitlement.Entitlement{
		UserID:          id,
		IsPro:           true,
		Status:          entitlement.StatusActive,
		Plan:            entitlement.PlanMonthly,
		CustomerRef:     customerRef,
		SubscriptionRef: subRef,
		PeriodEnd:       ptr(testNow.Add(30 * 24 * time.Hour)),
		ModelsRemaining: entitlement.Unlimited,
	}
}

func requireConsistent(t *testing.T, e entitlement.Entitlement) {
	t.Helper()
	require.Equal(t, e.Status.Entitled(), e.IsPro, "isPro must follow status %q", e.Status)
	if e.TrialActive {
		require.True(t, e.TrialConsumed)
		require.NotNil(t, e.TrialEndsAt)
	}
	if e.IsPro {
		require.Equal(t, entitlement.Unlimited, e.ModelsRemaining)
	}
}
