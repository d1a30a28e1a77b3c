package notify

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const defaultCommandTimeout = 10 * time.Second

// CommandNotifier runs an external program, such as notify-send, with the
// title and body appended as the last two arguments.
type CommandNotifier struct {
	name    string
	args    []string
	timeout time.Duration
}

// NewCommandNotifier splits command on whitespace. The first field is the
// program.
func NewCommandNotifier(command string, timeout time.Duration) (*CommandNotifier, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, fmt.Errorf("notify: empty command")
	}
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	return &CommandNotifier{name: fields[0], args: fields[1:], timeout: timeout}, nil
}

func (n *CommandNotifier) Notify(ctx context.Context, _ string, title, body string) error {
	if strings.TrimSpace(title) == "" && strings.TrimSpace(body) == "" {
		return ErrEmptyMessage
	}
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	args := append(append([]string(nil), n.args...), title, body)
	out, err := exec.CommandContext(ctx, n.name, args...).CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg != "" {
			return fmt.Errorf("notify: %s: %w: %s", n.name, err, msg)
		}
		return fmt.Errorf("notify: %s: %w", n.name, err)
	}
	return nil
}
