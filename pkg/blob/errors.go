package blob

import "errors"

var (
	ErrInvalidPath   = errors.New("invalid path")
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrNotFound      = errors.New("object not found")

	ErrFailedToWriteObject = errors.New("failed to write object")
	ErrFailedToSignURL     = errors.New("failed to sign url")
	ErrFailedToLoadConfig  = errors.New("failed to load storage config")

	ErrAccessDenied       = errors.New("access denied")
	ErrBucketNotFound     = errors.New("bucket not found")
	ErrServiceUnavailable = errors.New("service temporarily unavailable")
	ErrOperationTimeout   = errors.New("operation timed out")
	ErrOperationCanceled  = errors.New("operation canceled")
)
