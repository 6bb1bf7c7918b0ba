package gokea

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/lovi-cloud/keagw/kea"
	"github.com/lovi-cloud/keagw/types"
)

// conflictDecision is the outcome of classifying a requested (ip, mac)
// pair against the existing reservation set. Exactly one of the cases
// applies: existing is set for an idempotent duplicate, victims lists the
// reservations a forced create must remove first, or both are empty and
// the create proceeds untouched.
type conflictDecision struct {
	existing *kea.Reservation
	victims  []kea.Reservation
}

// evaluateConflicts centralizes the reservation conflict contract: the
// backend's own duplicate handling differs between command variants, so
// the decision is made here once, independent of which tier performs the
// write. Returns a *kea.ConflictError for a rejection.
func evaluateConflicts(existing []kea.Reservation, req kea.CreateReservationRequest, logger *zap.Logger) (*conflictDecision, error) {
	decision := &conflictDecision{}

	for i := range existing {
		r := existing[i]
		if r.IPAddress != req.IPAddress {
			continue
		}
		if types.EqualMAC(r.HWAddress, req.HWAddress) {
			decision.existing = &existing[i]
			return decision, nil
		}
		if !req.Force {
			return nil, &kea.ConflictError{
				Reason: fmt.Sprintf(
					"ip address %s is already reserved for %s", req.IPAddress, r.HWAddress),
				Existing: &existing[i],
			}
		}
		logger.Warn("force overwriting reservation with conflicting mac",
			zap.String("ip", req.IPAddress),
			zap.String("existing_mac", r.HWAddress),
			zap.String("new_mac", req.HWAddress))
		decision.victims = append(decision.victims, r)
	}

	for i := range existing {
		r := existing[i]
		if r.IPAddress == req.IPAddress || !types.EqualMAC(r.HWAddress, req.HWAddress) {
			continue
		}
		if !req.Force {
			return nil, &kea.ConflictError{
				Reason: fmt.Sprintf(
					"hardware address %s is already reserved for %s", req.HWAddress, r.IPAddress),
				Existing: &existing[i],
			}
		}
		logger.Warn("force overwriting reservation with conflicting ip",
			zap.String("mac", req.HWAddress),
			zap.String("existing_ip", r.IPAddress),
			zap.String("new_ip", req.IPAddress))
		decision.victims = append(decision.victims, r)
	}

	return decision, nil
}
