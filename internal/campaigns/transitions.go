package campaigns

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned when an action is not allowed from the
// campaign's current status.
var ErrInvalidTransition = errors.New("campaigns: invalid status transition")

// Action is something that moves a campaign between statuses.
type Action string

const (
	// ActionRespond is an admin reply carrying a requested status.
	ActionRespond Action = "respond"
	// ActionBook is a patient booking against a re-engaged campaign.
	ActionBook Action = "book"
	// ActionComplete is completion of the campaign's appointment.
	ActionComplete Action = "complete"
)

// respondTargets lists the statuses an admin reply may request, per current
// status. Only completion reaches recovered.
var respondTargets = map[Status][]Status{
	StatusAttemptingRecovery: {StatusAttemptingRecovery, StatusReEngaged, StatusHandoffRequired},
	StatusReEngaged:          {StatusAttemptingRecovery, StatusReEngaged, StatusHandoffRequired},
	StatusBookingInitiated:   {StatusReEngaged, StatusBookingInitiated, StatusHandoffRequired},
	StatusHandoffRequired:    {StatusAttemptingRecovery, StatusReEngaged, StatusHandoffRequired},
	StatusRecovered:          {StatusRecovered},
}

// NextStatus returns the status a campaign in current moves to when action
// is applied. requested is only consulted for ActionRespond.
func NextStatus(current Status, action Action, requested Status) (Status, error) {
	if _, ok := ParseStatus(string(current)); !ok {
		return "", fmt.Errorf("%w: unknown current status %q", ErrInvalidTransition, current)
	}
	switch action {
	case ActionComplete:
		return StatusRecovered, nil
	case ActionBook:
		if current != StatusReEngaged {
			return "", fmt.Errorf("%w: cannot book from %s", ErrInvalidTransition, current)
		}
		return StatusBookingInitiated, nil
	case ActionRespond:
		for _, allowed := range respondTargets[current] {
			if requested == allowed {
				return requested, nil
			}
		}
		return "", fmt.Errorf("%w: cannot move from %s to %q", ErrInvalidTransition, current, requested)
	default:
		return "", fmt.Errorf("%w: unknown action %q", ErrInvalidTransition, action)
	}
}
