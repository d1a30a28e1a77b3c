// Package notify delivers fired reminders to the user.
package notify

import (
	"context"
	"errors"
	"strings"

	"github.com/sandeepkv93/taskd/internal/logx"
)

var ErrEmptyMessage = errors.New("notify: empty title and body")

// Notifier hands one fired alert to the outside world. Implementations
// report failures; they do not retry.
type Notifier interface {
	Notify(ctx context.Context, alertID, title, body string) error
}

type Func func(ctx context.Context, alertID, title, body string) error

func (f Func) Notify(ctx context.Context, alertID, title, body string) error {
	return f(ctx, alertID, title, body)
}

// LogNotifier writes every notification to the log.
type LogNotifier struct {
	log logx.Logger
}

func NewLogNotifier(log logx.Logger) *LogNotifier {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &LogNotifier{log: log.With(logx.String("component", "notify"))}
}

func (n *LogNotifier) Notify(_ context.Context, alertID, title, body string) error {
	if strings.TrimSpace(title) == "" && strings.TrimSpace(body) == "" {
		return ErrEmptyMessage
	}
	n.log.Info("reminder", logx.String("alert_id", alertID), logx.String("title", title), logx.String("body", body))
	return nil
}

// Multi fans a notification out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, alertID, title, body string) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, alertID, title, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
