package job

import (
	"errors"
	"math"
	"time"
)

// ErrInvalidDefaultLease indicates the configured default lease duration is not positive.
var ErrInvalidDefaultLease = errors.New("default lease must be positive")

// LeaseSource identifies how a lease duration was resolved.
type LeaseSource string

const (
	// LeaseSourceExplicit indicates the worker configuration supplied a positive duration.
	LeaseSourceExplicit LeaseSource = "explicit"
	// LeaseSourceDefault indicates the policy's default duration was used.
	LeaseSourceDefault LeaseSource = "default"
	// LeaseSourceClamped indicates the requested duration was clamped into the supported range.
	LeaseSourceClamped LeaseSource = "clamped"
)

// LeasePolicy normalises how long a worker may hold a reserved distribution
// or research job. Leases are stored as whole seconds; anything shorter than
// a second would expire before the delivery attempt even starts, so requests
// below that are clamped up rather than rejected.
type LeasePolicy struct {
	defaultLease time.Duration
}

// NewLeasePolicy constructs a LeasePolicy with the provided default lease duration.
func NewLeasePolicy(defaultLease time.Duration) (*LeasePolicy, error) {
	if defaultLease <= 0 {
		return nil, ErrInvalidDefaultLease
	}
	return &LeasePolicy{defaultLease: defaultLease}, nil
}

// Default returns the configured default lease duration.
func (p *LeasePolicy) Default() time.Duration {
	if p == nil {
		return 0
	}
	return p.defaultLease
}

// LeaseDecision captures the outcome of resolving a lease request.
type LeaseDecision struct {
	Seconds   int
	Source    LeaseSource
	Requested time.Duration
}

// UsedDefault reports whether the policy fell back to the default lease.
func (d LeaseDecision) UsedDefault() bool {
	return d.Source == LeaseSourceDefault
}

// Clamped reports whether the requested value was adjusted to fit the supported range.
func (d LeaseDecision) Clamped() bool {
	return d.Source == LeaseSourceClamped
}

// Resolve turns a requested duration into the lease a reservation will
// carry. Zero means "use the default"; negative requests are treated as the
// minimum one-second lease.
func (p *LeasePolicy) Resolve(request time.Duration) LeaseDecision {
	if p == nil {
		return LeaseDecision{Source: LeaseSourceDefault, Requested: request}
	}

	decision := LeaseDecision{Requested: request}
	switch {
	case request > 0:
		decision.Seconds, decision.Source = clampToSeconds(request), LeaseSourceExplicit
		if time.Duration(decision.Seconds)*time.Second != request.Truncate(time.Second) ||
			request < time.Second {
			decision.Source = LeaseSourceClamped
		}
	case request == 0:
		decision.Seconds = clampToSeconds(p.defaultLease)
		decision.Source = LeaseSourceDefault
	default:
		decision.Seconds = 1
		decision.Source = LeaseSourceClamped
	}
	return decision
}

// clampToSeconds converts a positive duration to whole seconds within [1, MaxInt].
func clampToSeconds(d time.Duration) int {
	seconds := int64(d / time.Second)
	if seconds <= 0 {
		return 1
	}
	if seconds > int64(math.MaxInt) {
		return math.MaxInt
	}
	return int(seconds)
}
