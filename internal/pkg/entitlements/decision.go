package entitlements

import (
	"fmt"
	"time"
)

// DenialReason classifies why an action was refused. Denials are routine,
// expected outcomes: they travel as values, not errors, so the route layer
// can map each reason to a structured 4xx response.
type DenialReason string

const (
	DenyNoActiveSubscription DenialReason = "NO_ACTIVE_SUBSCRIPTION"
	DenyQuotaExceeded        DenialReason = "QUOTA_EXCEEDED"
	DenyIPLimitExceeded      DenialReason = "IP_LIMIT_EXCEEDED"
	DenyCooldownActive       DenialReason = "COOLDOWN_ACTIVE"
	DenyFloorViolation       DenialReason = "FLOOR_VIOLATION"
)

// Decision is the outcome of an entitlement evaluation. When denied, Message
// carries the user-facing explanation including, where applicable, the
// earliest condition under which the action would succeed.
type Decision struct {
	Allowed bool
	Reason  DenialReason
	Message string

	// Current and Limit are filled for count-based denials.
	Current int
	Limit   int

	// RetryAt is filled for cooldown denials: the moment the action
	// becomes free again.
	RetryAt *time.Time
}

func Allowed() Decision {
	return Decision{Allowed: true}
}

func Denied(reason DenialReason, format string, args ...any) Decision {
	return Decision{
		Allowed: false,
		Reason:  reason,
		Message: fmt.Sprintf(format, args...),
	}
}
