package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/printforge/internal/api"
	"github.com/dmitrymomot/printforge/pkg/blob"
	"github.com/dmitrymomot/printforge/pkg/broadcast"
	"github.com/dmitrymomot/printforge/pkg/entitlement"
	"github.com/dmitrymomot/printforge/pkg/firebase"
	"github.com/dmitrymomot/printforge/pkg/importjob"
)

const (
	aliceToken = "token-alice"
	bobToken   = "token-bob"
)

type staticAuth map[string]firebase.Identity

func (a staticAuth) Verify(_ context.Context, token string) (firebase.Identity, error) {
	if len(token) > 7 && token[:7] == "Bearer " {
		token = token[7:]
	}
	if token == "" {
		return firebase.Identity{}, firebase.ErrMissingToken
	}
	id, ok := a[token]
	if !ok {
		return firebase.Identity{}, firebase.ErrInvalidToken
	}
	return id, nil
}

var testAuth = staticAuth{
	aliceToken: {UserID: "alice", Email: "alice@example.com"},
	bobToken:   {UserID: "bob", Email: "bob@example.com"},
}

type mockEntitlements struct {
	mock.Mock
}

func (m *mockEntitlements) GetEntitlement(ctx context.Context, userID string) (entitlement.View, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(entitlement.View), args.Error(1)
}

func (m *mockEntitlements) StartTrial(ctx context.Context, userID, email string) (entitlement.Entitlement, error) {
	args := m.Called(ctx, userID, email)
	return args.Get(0).(entitlement.Entitlement), args.Error(1)
}

func (m *mockEntitlements) DecrementGenerationQuota(ctx context.Context, userID string) (entitlement.Usage, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(entitlement.Usage), args.Error(1)
}

func (m *mockEntitlements) RecordDownload(ctx context.Context, userID string) (entitlement.Usage, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(entitlement.Usage), args.Error(1)
}

func (m *mockEntitlements) CreateCheckout(ctx context.Context, userID, email string, plan entitlement.Plan, successURL, cancelURL string) (entitlement.CheckoutSession, error) {
	args := m.Called(ctx, userID, email, plan, successURL, cancelURL)
	return args.Get(0).(entitlement.CheckoutSession), args.Error(1)
}

func (m *mockEntitlements) ConfirmCheckout(ctx context.Context, userID, sessionID string) (entitlement.View, error) {
	args := m.Called(ctx, userID, sessionID)
	return args.Get(0).(entitlement.View), args.Error(1)
}

func (m *mockEntitlements) Sync(ctx context.Context, userID string) (entitlement.View, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(entitlement.View), args.Error(1)
}

func (m *mockEntitlements) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	args := m.Called(ctx, payload, signature)
	return args.Error(0)
}

type fixture struct {
	handler http.Handler
	ents    *mockEntitlements
	tracker *importjob.Tracker
}

func newFixture(t *testing.T, cfg api.Config, opts ...api.Option) fixture {
	t.Helper()

	files, err := blob.NewLocal(blob.LocalConfig{Dir: t.TempDir(), BaseURL: "/files/"})
	require.NoError(t, err)
	events := broadcast.NewMemoryBroadcaster[importjob.Event](32)
	tracker := importjob.NewTracker(importjob.NewMemoryStore(), events, files, importjob.WithPrivateNetworks())
	t.Cleanup(func() {
		_ = tracker.Close()
		_ = events.Close()
	})

	if cfg.MaxUploadSize == 0 {
		cfg.MaxUploadSize = 1 << 20
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"https://shop.example.com"}
	}

	ents := &mockEntitlements{}
	t.Cleanup(func() { ents.AssertExpectations(t) })

	srv := api.NewServer(cfg, ents, tracker, testAuth, opts...)
	return fixture{handler: srv.Handler(), ents: ents, tracker: tracker}
}

func (f fixture) do(t *testing.T, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	env := decode(t, rec)
	require.NotNil(t, env.Error, rec.Body.String())
	return env.Error.Code
}

func ptr(t time.Time) *time.Time { return &t }
