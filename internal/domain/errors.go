package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrUnrecognizedKeys = errors.New("provided one or more unrecognized keys")
	ErrMissingKeys      = errors.New("missing one or more required keys")
	ErrMissingRefImage  = errors.New("missing reference image")
	ErrMissingMaskImage = errors.New("missing mask image")
	ErrUnsupportedLang  = errors.New("unsupported language")
	ErrBadParams        = errors.New("invalid generation parameters")
	ErrQuotaExceeded    = errors.New("too many jobs in queue")
	ErrInvalidState     = errors.New("job is not in pending state")
	ErrStorage          = errors.New("storage failure")
)
