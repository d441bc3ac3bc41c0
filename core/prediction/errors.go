package prediction

import (
	"errors"
	"fmt"

	"github.com/kilianp07/freightmatch/core/region"
)

// Validation reasons.
var (
	ErrMissingParameter    = errors.New("missing parameter")
	ErrInvalidNumber       = errors.New("invalid number")
	ErrRegionNotGeocodable = errors.New("region not geocodable")
	ErrUnknownRegion       = region.ErrUnknownRegion
)

// ErrUpstreamUnavailable matches every UpstreamError.
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// Upstream services.
const (
	ServiceGeocoder = "geocoder"
	ServiceDatabase = "database"
)

// ValidationError is a client error. Reason is one of the validation
// sentinels; Detail names the offending input.
type ValidationError struct {
	Reason error
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return e.Reason.Error()
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

func (e *ValidationError) Unwrap() error { return e.Reason }

func invalid(reason error, format string, args ...any) error {
	return &ValidationError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// UpstreamError reports that a collaborator could not be reached.
type UpstreamError struct {
	Service string
	Err     error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() []error { return []error{ErrUpstreamUnavailable, e.Err} }

func upstream(service string, err error) error {
	return &UpstreamError{Service: service, Err: err}
}

// IsValidation reports whether err is a client error.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
