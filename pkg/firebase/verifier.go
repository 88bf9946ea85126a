package firebase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
)

// Identity is the authenticated caller.
type Identity struct {
	UserID        string
	Email         string
	EmailVerified bool
}

// TokenVerifier validates Firebase ID tokens.
type TokenVerifier struct {
	verify func(ctx context.Context, idToken string) (*auth.Token, error)
}

// NewTokenVerifier obtains the Auth client from app. With checkRevoked the
// verifier also rejects tokens of revoked sessions and disabled users.
func NewTokenVerifier(ctx context.Context, app *firebase.App, checkRevoked bool) (*TokenVerifier, error) {
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, errors.Join(ErrInitFailed, err)
	}
	if checkRevoked {
		return NewTokenVerifierFunc(client.VerifyIDTokenAndCheckRevoked), nil
	}
	return NewTokenVerifierFunc(client.VerifyIDToken), nil
}

// NewTokenVerifierFunc wraps any function with the auth.Client signature.
func NewTokenVerifierFunc(fn func(ctx context.Context, idToken string) (*auth.Token, error)) *TokenVerifier {
	if fn == nil {
		panic("firebase: verify func is required")
	}
	return &TokenVerifier{verify: fn}
}

// Verify accepts either a bare token or an "Authorization: Bearer" value.
func (v *TokenVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if len(token) >= 6 && strings.EqualFold(token[:6], "bearer") {
		rest := token[6:]
		// "Bearer" alone once trailing spaces are trimmed
		if rest == "" || rest[0] == ' ' || rest[0] == '\t' {
			token = strings.TrimSpace(rest)
		}
	}
	if token == "" {
		return Identity{}, ErrMissingToken
	}

	tok, err := v.verify(ctx, token)
	if err != nil {
		return Identity{}, classifyAuthError(ctx, err)
	}
	if tok == nil || tok.UID == "" {
		return Identity{}, ErrInvalidToken
	}

	id := Identity{UserID: tok.UID}
	if email, ok := tok.Claims["email"].(string); ok {
		id.Email = email
	}
	if verified, ok := tok.Claims["email_verified"].(bool); ok {
		id.EmailVerified = verified
	}
	return id, nil
}

func classifyAuthError(ctx context.Context, err error) error {
	switch {
	case auth.IsIDTokenRevoked(err):
		return errors.Join(ErrTokenRevoked, err)
	case auth.IsUserDisabled(err):
		return errors.Join(ErrUserDisabled, err)
	case ctx.Err() != nil:
		return errors.Join(ErrVerifierTimeout, ctx.Err())
	default:
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
}
