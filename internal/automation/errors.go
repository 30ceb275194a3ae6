package automation

import "errors"

// Domain errors for the automation package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, automation.ErrInvalidTrigger) {
//	    // keep the previous rule set
//	}
var (
	// ErrInvalidTrigger is returned when a rule's filters or predicate are invalid.
	ErrInvalidTrigger = errors.New("automation: invalid trigger")

	// ErrInvalidAction is returned when a rule's action is missing or ambiguous.
	ErrInvalidAction = errors.New("automation: invalid action")

	// ErrActionFailed wraps any failure while running an action.
	ErrActionFailed = errors.New("automation: action failed")

	// ErrNotificationsDisabled is returned when a notification is suppressed by configuration.
	ErrNotificationsDisabled = errors.New("automation: notifications disabled")
)
