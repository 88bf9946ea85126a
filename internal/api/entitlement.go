package api

import (
	"cmp"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/dmitrymomot/printforge/pkg/entitlement"
)

func (s *Server) getEntitlement(w http.ResponseWriter, r *http.Request) {
	view, err := s.entitlements.GetEntitlement(r.Context(), identityFrom(r.Context()).UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) startTrial(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	e, err := s.entitlements.StartTrial(r.Context(), id.UserID, id.Email)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, e.View())
}

func (s *Server) recordGeneration(w http.ResponseWriter, r *http.Request) {
	u, err := s.entitlements.DecrementGenerationQuota(r.Context(), identityFrom(r.Context()).UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) recordDownload(w http.ResponseWriter, r *http.Request) {
	u, err := s.entitlements.RecordDownload(r.Context(), identityFrom(r.Context()).UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

type checkoutRequest struct {
	Plan       string `json:"plan"`
	SuccessURL string `json:"successUrl,omitempty"`
	CancelURL  string `json:"cancelUrl,omitempty"`
}

func (s *Server) createCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	plan := entitlement.Plan(strings.ToLower(strings.TrimSpace(req.Plan)))
	if plan != entitlement.PlanMonthly && plan != entitlement.PlanAnnual {
		s.writeError(w, r, fmt.Errorf("%w: plan must be monthly or annual", ErrInvalidRequest))
		return
	}

	if !s.redirectAllowed(req.SuccessURL) {
		s.writeError(w, r, fmt.Errorf("%w: successUrl must point to an allowed origin", ErrInvalidRequest))
		return
	}
	if !s.redirectAllowed(req.CancelURL) {
		s.writeError(w, r, fmt.Errorf("%w: cancelUrl must point to an allowed origin", ErrInvalidRequest))
		return
	}
	successURL := cmp.Or(req.SuccessURL, s.cfg.CheckoutSuccessURL)
	cancelURL := cmp.Or(req.CancelURL, s.cfg.CheckoutCancelURL)

	id := identityFrom(r.Context())
	session, err := s.entitlements.CreateCheckout(r.Context(), id.UserID, id.Email, plan, successURL, cancelURL)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

// redirectAllowed accepts an empty URL or one whose origin matches a
// configured checkout URL or an explicit CORS origin. Wildcard origins
// never qualify.
func (s *Server) redirectAllowed(raw string) bool {
	if raw == "" {
		return true
	}
	target, ok := origin(raw)
	if !ok {
		return false
	}
	allowed := append([]string{s.cfg.CheckoutSuccessURL, s.cfg.CheckoutCancelURL}, s.cfg.AllowedOrigins...)
	for _, candidate := range allowed {
		if strings.Contains(candidate, "*") {
			continue
		}
		if o, ok := origin(candidate); ok && o == target {
			return true
		}
	}
	return false
}

func origin(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" || u.User != nil {
		return "", false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", false
	}
	return scheme + "://" + strings.ToLower(u.Host), true
}

type confirmRequest struct {
	SessionID string `json:"sessionId"`
}

func (s *Server) confirmCheckout(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		s.writeError(w, r, fmt.Errorf("%w: sessionId is required", ErrInvalidRequest))
		return
	}

	view, err := s.entitlements.ConfirmCheckout(r.Context(), identityFrom(r.Context()).UserID, req.SessionID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) syncSubscription(w http.ResponseWriter, r *http.Request) {
	view, err := s.entitlements.Sync(r.Context(), identityFrom(r.Context()).UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
