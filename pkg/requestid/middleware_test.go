package requestid_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/printforge/pkg/logger"
	"github.com/dmitrymomot/printforge/pkg/requestid"
)

func serve(t *testing.T, inbound string) (ctxID, headerID string) {
	t.Helper()
	handler := requestid.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxID = requestid.FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/entitlement", nil)
	if inbound != "" {
		req.Header.Set(requestid.Header, inbound)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	return ctxID, rec.Header().Get(requestid.Header)
}

func TestMiddleware_GeneratesID(t *testing.T) {
	t.Parallel()

	ctxID, headerID := serve(t, "")
	require.NotEmpty(t, ctxID)
	assert.Equal(t, ctxID, headerID)

	parsed, err := uuid.Parse(ctxID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}

func TestMiddleware_ReusesValidID(t *testing.T) {
	t.Parallel()

	for _, id := range []string{"abc123", "checkout_retry-2", "550e8400-e29b-41d4-a716-446655440000"} {
		ctxID, headerID := serve(t, id)
		assert.Equal(t, id, ctxID)
		assert.Equal(t, id, headerID)
	}
}

func TestMiddleware_ReplacesInvalidID(t *testing.T) {
	t.Parallel()

	invalid := []string{
		"job id with spaces",
		"../../etc/passwd",
		"<script>alert(1)</script>",
		strings.Repeat("a", 129),
	}
	for _, id := range invalid {
		ctxID, headerID := serve(t, id)
		assert.NotEqual(t, id, ctxID)
		assert.Equal(t, ctxID, headerID)
	}
}

func TestFromContext(t *testing.T) {
	t.Parallel()

	assert.Empty(t, requestid.FromContext(context.Background()))
	assert.Equal(t, "req-1", requestid.FromContext(requestid.WithContext(context.Background(), "req-1")))
}

func TestLogExtractor(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := logger.New(
		logger.WithFormat(logger.FormatJSON),
		logger.WithOutput(&buf),
		logger.WithContextExtractors(requestid.LogExtractor()),
	)

	log.InfoContext(requestid.WithContext(context.Background(), "req-42"), "tagged")
	log.InfoContext(context.Background(), "untagged")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var first, second map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &first))
	require.NoError(t, json.Unmarshal(lines[1], &second))
	assert.Equal(t, "req-42", first["request_id"])
	assert.NotContains(t, second, "request_id")
}
