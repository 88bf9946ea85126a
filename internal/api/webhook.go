package api

import (
	"io"
	"net/http"
)

// stripeWebhook passes the raw body through for signature verification.
// Stripe redelivers on any non-2xx answer.
func (s *Server) stripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, webhookMaxBody))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	err = s.entitlements.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}
