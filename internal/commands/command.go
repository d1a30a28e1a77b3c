package commands

import (
	"fmt"
	"strings"
)

type Type string

const (
	TypeTrigger    Type = "trigger"
	TypeSnooze     Type = "snooze"
	TypeDismiss    Type = "dismiss"
	TypeReschedule Type = "reschedule"
	TypeStart      Type = "start"
	TypeComplete   Type = "complete"
	TypeCancel     Type = "cancel"
	TypeRemind     Type = "remind"
)

type ErrorCode string

const (
	ErrCodeEmptyInput      ErrorCode = "empty_input"
	ErrCodeUnknownCommand  ErrorCode = "unknown_command"
	ErrCodeInvalidArgument ErrorCode = "invalid_argument"
	ErrCodeHandlerMissing  ErrorCode = "handler_missing"
	ErrCodeNotFound        ErrorCode = "not_found"
	ErrCodeRejected        ErrorCode = "rejected"
)

type CommandError struct {
	Code    ErrorCode
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

type AlertArgs struct {
	InstanceID string
	AlertID    string
}

// SnoozeArgs leaves When empty for the instance's default snooze interval.
type SnoozeArgs struct {
	InstanceID string
	AlertID    string
	When       string
	Reason     string
}

type InstanceArgs struct {
	InstanceID string
}

type RescheduleArgs struct {
	InstanceID string
	When       string
}

type RemindArgs struct {
	InstanceID string
	Enabled    bool
}

type Command struct {
	Type       Type
	Raw        string
	Alert      *AlertArgs
	Snooze     *SnoozeArgs
	Instance   *InstanceArgs
	Reschedule *RescheduleArgs
	Remind     *RemindArgs
}

// Parse reads one command line:
//
//	trigger <instance> <alert>
//	snooze <instance> <alert> [<duration>|until <time>] [-- <reason>]
//	dismiss <instance> <alert>
//	reschedule <instance> <time>
//	start|complete|cancel <instance>
//	remind <instance> on|off
func Parse(input string) (Command, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return Command{}, &CommandError{Code: ErrCodeEmptyInput, Message: "command is empty"}
	}
	if strings.HasPrefix(raw, "/") {
		raw = strings.TrimSpace(strings.TrimPrefix(raw, "/"))
	}
	if raw == "" {
		return Command{}, &CommandError{Code: ErrCodeEmptyInput, Message: "command is empty"}
	}

	parts := strings.Fields(raw)
	head := strings.ToLower(parts[0])
	args := parts[1:]

	switch Type(head) {
	case TypeTrigger, TypeDismiss:
		return parseAlert(input, Type(head), args)
	case TypeSnooze:
		return parseSnooze(input, args)
	case TypeReschedule:
		return parseReschedule(input, args)
	case TypeStart, TypeComplete, TypeCancel:
		return parseInstance(input, Type(head), args)
	case TypeRemind:
		return parseRemind(input, args)
	default:
		return Command{}, &CommandError{Code: ErrCodeUnknownCommand, Message: fmt.Sprintf("unsupported command: %s", head)}
	}
}

func parseAlert(raw string, typ Type, args []string) (Command, error) {
	if len(args) != 2 {
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: fmt.Sprintf("%s requires instance and alert", typ)}
	}
	return Command{Type: typ, Raw: raw, Alert: &AlertArgs{InstanceID: args[0], AlertID: args[1]}}, nil
}

func parseSnooze(raw string, args []string) (Command, error) {
	if len(args) < 2 {
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: "snooze requires instance and alert"}
	}
	out := &SnoozeArgs{InstanceID: args[0], AlertID: args[1]}
	rest := args[2:]
	for i, arg := range rest {
		if arg == "--" {
			out.Reason = strings.Join(rest[i+1:], " ")
			rest = rest[:i]
			break
		}
	}
	if len(rest) > 0 && strings.EqualFold(rest[0], "for") {
		rest = rest[1:]
	}
	out.When = strings.Join(rest, " ")
	if strings.EqualFold(out.When, "until") {
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: "snooze until requires a time"}
	}
	return Command{Type: TypeSnooze, Raw: raw, Snooze: out}, nil
}

func parseReschedule(raw string, args []string) (Command, error) {
	if len(args) < 2 {
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: "reschedule requires instance and time"}
	}
	return Command{Type: TypeReschedule, Raw: raw, Reschedule: &RescheduleArgs{InstanceID: args[0], When: strings.Join(args[1:], " ")}}, nil
}

func parseInstance(raw string, typ Type, args []string) (Command, error) {
	if len(args) != 1 {
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: fmt.Sprintf("%s requires exactly one instance", typ)}
	}
	return Command{Type: typ, Raw: raw, Instance: &InstanceArgs{InstanceID: args[0]}}, nil
}

func parseRemind(raw string, args []string) (Command, error) {
	if len(args) != 2 {
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: "remind requires instance and on|off"}
	}
	var enabled bool
	switch strings.ToLower(args[1]) {
	case "on", "yes", "true":
		enabled = true
	case "off", "no", "false":
	default:
		return Command{}, &CommandError{Code: ErrCodeInvalidArgument, Message: fmt.Sprintf("remind expects on|off, got %q", args[1])}
	}
	return Command{Type: TypeRemind, Raw: raw, Remind: &RemindArgs{InstanceID: args[0], Enabled: enabled}}, nil
}
