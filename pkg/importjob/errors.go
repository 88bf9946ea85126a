package importjob

import "errors"

var (
	ErrJobNotFound       = errors.New("import job not found")
	ErrJobExists         = errors.New("import job already exists")
	ErrInvalidTransition = errors.New("invalid job status transition")
	ErrInvalidSource     = errors.New("invalid import source")
	ErrEmptyUpload       = errors.New("upload is empty")
	ErrDownloadFailed    = errors.New("download failed")
	ErrForbiddenAddress  = errors.New("source address is not public")
	ErrConflict          = errors.New("concurrent job update")
)
