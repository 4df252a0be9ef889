package domain

import "errors"

// Provider failure kinds. None of them escape the resolution pipeline; they
// are used to classify fallbacks and dropped routes.
var (
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrNoResultFound       = errors.New("no result found")
	ErrOutOfRegion         = errors.New("coordinate outside operational region")
	ErrMalformedResponse   = errors.New("malformed provider response")
)

var (
	// ErrCycleSuperseded is returned when a newer cycle started before this
	// one could publish its scene.
	ErrCycleSuperseded = errors.New("resolution cycle superseded")

	ErrNotFound = errors.New("not found")
)

// FailureKind maps an error onto a short label for logs and metrics.
func FailureKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrProviderUnavailable):
		return "provider_unavailable"
	case errors.Is(err, ErrNoResultFound):
		return "no_result"
	case errors.Is(err, ErrOutOfRegion):
		return "out_of_region"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed_response"
	default:
		return "unknown"
	}
}
