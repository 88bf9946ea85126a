package firebase

import "errors"

var (
	ErrInvalidConfig   = errors.New("firebase: invalid config")
	ErrInitFailed      = errors.New("firebase: failed to initialize")
	ErrMissingToken    = errors.New("firebase: missing id token")
	ErrInvalidToken    = errors.New("firebase: invalid id token")
	ErrTokenRevoked    = errors.New("firebase: id token revoked")
	ErrUserDisabled    = errors.New("firebase: user disabled")
	ErrVerifierTimeout = errors.New("firebase: token verification timed out")
)
