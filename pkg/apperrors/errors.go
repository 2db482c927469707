package apperrors

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrInjectionDetected    = errors.New("sql injection pattern detected")
	ErrCacheEntryCorrupted  = errors.New("cache entry corrupted")
	ErrKernelUnavailable    = errors.New("analysis kernel unavailable")
	ErrUnsupportedAlgorithm = errors.New("unsupported analysis algorithm")
)
