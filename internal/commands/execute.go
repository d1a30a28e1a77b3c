package commands

import "fmt"

type Result struct {
	Message string
}

type Handlers struct {
	Trigger    func(AlertArgs) (Result, error)
	Snooze     func(SnoozeArgs) (Result, error)
	Dismiss    func(AlertArgs) (Result, error)
	Reschedule func(RescheduleArgs) (Result, error)
	Start      func(InstanceArgs) (Result, error)
	Complete   func(InstanceArgs) (Result, error)
	Cancel     func(InstanceArgs) (Result, error)
	Remind     func(RemindArgs) (Result, error)
}

func Execute(cmd Command, handlers Handlers) (Result, error) {
	switch cmd.Type {
	case TypeTrigger:
		if handlers.Trigger == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Trigger(*cmd.Alert)
	case TypeSnooze:
		if handlers.Snooze == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Snooze(*cmd.Snooze)
	case TypeDismiss:
		if handlers.Dismiss == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Dismiss(*cmd.Alert)
	case TypeReschedule:
		if handlers.Reschedule == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Reschedule(*cmd.Reschedule)
	case TypeStart, TypeComplete, TypeCancel:
		h := map[Type]func(InstanceArgs) (Result, error){
			TypeStart:    handlers.Start,
			TypeComplete: handlers.Complete,
			TypeCancel:   handlers.Cancel,
		}[cmd.Type]
		if h == nil {
			return Result{}, missing(cmd.Type)
		}
		return h(*cmd.Instance)
	case TypeRemind:
		if handlers.Remind == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Remind(*cmd.Remind)
	default:
		return Result{}, &CommandError{Code: ErrCodeUnknownCommand, Message: fmt.Sprintf("unknown command type: %s", cmd.Type)}
	}
}

func missing(t Type) error {
	return &CommandError{Code: ErrCodeHandlerMissing, Message: fmt.Sprintf("%s handler not configured", t)}
}
