package notify

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sandeepkv93/taskd/internal/logx"
)

func TestLogNotifierWritesStructuredLine(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(logx.NewWriter(&buf, "debug"))

	if err := n.Notify(context.Background(), "a1", "Standup", "in 15 minutes"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"alert_id":"a1"`) || !strings.Contains(out, `"title":"Standup"`) {
		t.Fatalf("unexpected log output: %s", out)
	}
	if err := n.Notify(context.Background(), "a1", " ", ""); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
}

func TestMultiJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	var calls int32
	m := Multi{
		Func(func(context.Context, string, string, string) error { atomic.AddInt32(&calls, 1); return boom }),
		nil,
		Func(func(context.Context, string, string, string) error { atomic.AddInt32(&calls, 1); return nil }),
	}
	err := m.Notify(context.Background(), "a1", "t", "b")
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected both notifiers to run, got %d", calls)
	}
}

func TestLimitedThrottlesBurst(t *testing.T) {
	var calls int32
	inner := Func(func(context.Context, string, string, string) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	l := NewLimited(inner, 20, 1)

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := l.Notify(context.Background(), "a", "t", "b"); err != nil {
			t.Fatalf("notify %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Fatalf("expected throttling, finished in %s", elapsed)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestLimitedHonorsContext(t *testing.T) {
	l := NewLimited(Func(func(context.Context, string, string, string) error { return nil }), 0.001, 1)
	_ = l.Notify(context.Background(), "a", "t", "b")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Notify(ctx, "a", "t", "b"); err == nil {
		t.Fatal("expected wait to fail once the context cannot cover the delay")
	}
}

func TestCommandNotifier(t *testing.T) {
	if _, err := NewCommandNotifier("   ", 0); err == nil {
		t.Fatal("expected error for empty command")
	}
	if _, err := exec.LookPath("true"); err != nil {
		t.Skip("true not available")
	}
	n, err := NewCommandNotifier("true --ignored", time.Second)
	if err != nil {
		t.Fatalf("new command notifier: %v", err)
	}
	if err := n.Notify(context.Background(), "a1", "title", "body"); err != nil {
		t.Fatalf("notify: %v", err)
	}

	if _, err := exec.LookPath("false"); err != nil {
		t.Skip("false not available")
	}
	failing, _ := NewCommandNotifier("false", time.Second)
	if err := failing.Notify(context.Background(), "a1", "title", "body"); err == nil {
		t.Fatal("expected failing command to report an error")
	}
}
