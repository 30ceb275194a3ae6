package automation

import (
	"fmt"
	"strings"

	"github.com/nerrad567/obsgate/internal/infrastructure/mqtt"
)

// Validation constants.
const (
	maxNameLength    = 100
	maxCommandLength = 1024
	maxArgs          = 32
)

// ValidateStateRule checks a state_changes entry apart from its action.
func ValidateStateRule(r StateRule) error {
	if len(r.Name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidTrigger, maxNameLength)
	}
	if r.Mask == 0 {
		return fmt.Errorf("%w: mask is required", ErrInvalidTrigger)
	}
	if r.Value&^r.Mask != 0 {
		return fmt.Errorf("%w: value 0x%x has bits outside mask 0x%x and can never match", ErrInvalidTrigger, r.Value, r.Mask)
	}
	return nil
}

// ValidateValueRule checks a value_changes entry apart from its action.
func ValidateValueRule(r ValueRule) error {
	if len(r.Name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidTrigger, maxNameLength)
	}
	if r.Cadency < 0 {
		return fmt.Errorf("%w: cadency must not be negative", ErrInvalidTrigger)
	}
	return nil
}

// buildAction turns an ActionRule into exactly one Action.
// Record actions only make sense with a value to record.
func buildAction(a ActionRule, valueTrigger bool) (Action, error) {
	var actions []Action

	if a.Command != "" {
		if len(a.Command) > maxCommandLength {
			return nil, fmt.Errorf("%w: command exceeds %d characters", ErrInvalidAction, maxCommandLength)
		}
		if strings.ContainsAny(a.Command, "\r\n") {
			return nil, fmt.Errorf("%w: command must be a single line", ErrInvalidAction)
		}
		actions = append(actions, RequeueCommand{Text: a.Command, Device: a.Device})
	} else if a.Device != "" {
		return nil, fmt.Errorf("%w: device is only valid with command", ErrInvalidAction)
	}

	if a.Spawn != "" {
		if len(a.Args) > maxArgs {
			return nil, fmt.Errorf("%w: more than %d args", ErrInvalidAction, maxArgs)
		}
		actions = append(actions, SpawnProcess{Program: a.Spawn, Args: append([]string(nil), a.Args...)})
	} else if len(a.Args) > 0 {
		return nil, fmt.Errorf("%w: args are only valid with spawn", ErrInvalidAction)
	}

	if a.Notify != "" {
		if !mqtt.ValidSegment(a.Notify) {
			return nil, fmt.Errorf("%w: recipient %q must not contain '/', '+' or '#'", ErrInvalidAction, a.Notify)
		}
		actions = append(actions, SendNotification{Recipient: a.Notify, Subject: a.Subject})
	} else if a.Subject != "" {
		return nil, fmt.Errorf("%w: subject is only valid with notify", ErrInvalidAction)
	}

	if a.Record {
		if !valueTrigger {
			return nil, fmt.Errorf("%w: record is only valid on value_changes", ErrInvalidAction)
		}
		actions = append(actions, RecordValue{})
	}

	switch len(actions) {
	case 0:
		return nil, fmt.Errorf("%w: one of command, spawn, notify or record is required", ErrInvalidAction)
	case 1:
		return actions[0], nil
	default:
		return nil, fmt.Errorf("%w: exactly one of command, spawn, notify or record is allowed", ErrInvalidAction)
	}
}
