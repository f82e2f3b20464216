package quota

import (
	"errors"
	"fmt"

	"github.com/rpattn/pawlog/internal/domain"
)

var (
	// ErrTierLookupFailed means the principal's plan could not be read.
	ErrTierLookupFailed = errors.New("subscription verification failed")
	// ErrCountLookupFailed means the principal's pet count could not be read.
	ErrCountLookupFailed = errors.New("limit check failed")
	// ErrQuotaExceeded is an expected business outcome, not an operational failure.
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrFeatureUnavailable is returned when a feature needs a higher tier.
	ErrFeatureUnavailable = errors.New("feature not available on current plan")
)

// ExceededError carries the numbers behind a quota rejection so callers can
// build an upgrade prompt.
type ExceededError struct {
	Tier  domain.Tier
	Limit int
	Count int
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: %s plan allows %d pet(s), %d owned", e.Tier, e.Limit, e.Count)
}

// Is makes errors.Is(err, ErrQuotaExceeded) hold.
func (e *ExceededError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

// lookupError wraps an upstream failure under one of the lookup sentinels.
type lookupError struct {
	kind  error
	cause error
}

func (e *lookupError) Error() string {
	return fmt.Sprintf("%s: %v", e.kind, e.cause)
}

func (e *lookupError) Is(target error) bool { return target == e.kind }

func (e *lookupError) Unwrap() error { return e.cause }
