package subscriptions

import (
	"github.com/denthubhq/denthub-backend/pkg/enums"
	pkgerrors "github.com/denthubhq/denthub-backend/pkg/errors"
)

// allowedTransitions is the full lifecycle graph. Expired and cancelled are
// terminal. Reactivation after expiry means creating a new subscription.
var allowedTransitions = map[enums.SubscriptionStatus][]enums.SubscriptionStatus{
	enums.SubscriptionStatusTrial: {
		enums.SubscriptionStatusActive,
		enums.SubscriptionStatusCancelled,
		enums.SubscriptionStatusExpired,
	},
	enums.SubscriptionStatusActive: {
		enums.SubscriptionStatusSuspended,
		enums.SubscriptionStatusCancelled,
	},
	enums.SubscriptionStatusSuspended: {
		enums.SubscriptionStatusActive,
		enums.SubscriptionStatusCancelled,
		enums.SubscriptionStatusExpired,
	},
	enums.SubscriptionStatusExpired:   {},
	enums.SubscriptionStatusCancelled: {},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to enums.SubscriptionStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the statuses reachable from the given one.
func AllowedTransitions(from enums.SubscriptionStatus) []enums.SubscriptionStatus {
	targets := allowedTransitions[from]
	out := make([]enums.SubscriptionStatus, len(targets))
	copy(out, targets)
	return out
}

// IsTerminal reports whether the status has no outgoing transitions.
func IsTerminal(status enums.SubscriptionStatus) bool {
	return len(allowedTransitions[status]) == 0
}

// transitionError builds the STATE_CONFLICT error every disallowed
// transition surfaces, including the reachable statuses in the details.
func transitionError(from, to enums.SubscriptionStatus) *pkgerrors.Error {
	allowed := AllowedTransitions(from)
	codes := make([]string, len(allowed))
	for i, status := range allowed {
		codes[i] = status.String()
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict, "subscription status transition disallowed").
		WithDetails(map[string]any{
			"from":    from.String(),
			"to":      to.String(),
			"allowed": codes,
		})
}

// ensureTransition validates the move and returns a typed error when illegal.
func ensureTransition(from, to enums.SubscriptionStatus) error {
	if !to.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid subscription status").
			WithDetails(map[string]any{"status": to.String()})
	}
	if !CanTransition(from, to) {
		return transitionError(from, to)
	}
	return nil
}
