package oracle

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestRunPassing(t *testing.T) {
	r := NewRunner([]string{"sh", "-c", "echo ok; exit 0"}, t.TempDir(), 5*time.Second, zap.NewNop())
	v := r.Run(context.Background(), "ignored")
	if !v.Passed {
		t.Errorf("expected passed verdict, got %+v", v)
	}
	if v.TimedOut {
		t.Error("unexpected timeout flag")
	}
	if !strings.Contains(v.Output, "ok") {
		t.Errorf("expected captured output, got %q", v.Output)
	}
}

func TestRunFailing(t *testing.T) {
	r := NewRunner([]string{"sh", "-c", "echo boom >&2; exit 1"}, t.TempDir(), 5*time.Second, zap.NewNop())
	v := r.Run(context.Background(), "ignored")
	if v.Passed {
		t.Error("expected failed verdict")
	}
	if v.TimedOut {
		t.Error("unexpected timeout flag")
	}
	if !strings.Contains(v.Output, "boom") {
		t.Errorf("expected stderr captured, got %q", v.Output)
	}
}

func TestRunTimeout(t *testing.T) {
	r := NewRunner([]string{"sh", "-c", "sleep 10"}, t.TempDir(), 100*time.Millisecond, zap.NewNop())
	v := r.Run(context.Background(), "ignored")
	if v.Passed {
		t.Error("expected failed verdict on timeout")
	}
	if !v.TimedOut {
		t.Error("expected timed_out flag")
	}
	if v.Output != "Timeout after 100ms" {
		t.Errorf("expected the configured timeout in the message, got %q", v.Output)
	}
}

func TestRunTimeoutKillsBackgroundChildren(t *testing.T) {
	// A backgrounded child inherits the output pipe; killing only the
	// direct shell would leave Run blocked on the pipe for the child's
	// full lifetime.
	r := NewRunner([]string{"sh", "-c", "sleep 30 & sleep 30"}, t.TempDir(), 200*time.Millisecond, zap.NewNop())

	start := time.Now()
	v := r.Run(context.Background(), "ignored")
	elapsed := time.Since(start)

	if !v.TimedOut {
		t.Errorf("expected timed_out verdict, got %+v", v)
	}
	if v.Passed {
		t.Error("expected failed verdict on timeout")
	}
	if elapsed > pipeWaitDelay+2*time.Second {
		t.Errorf("Run blocked for %s after a 200ms timeout", elapsed)
	}
}

func TestRunMissingRunner(t *testing.T) {
	r := NewRunner([]string{"definitely-not-a-real-binary-9f2c"}, t.TempDir(), 5*time.Second, zap.NewNop())
	v := r.Run(context.Background(), "ignored")
	if v.Passed {
		t.Error("expected failed verdict for missing runner")
	}
	if v.TimedOut {
		t.Error("unexpected timeout flag")
	}
	if !strings.Contains(v.Output, "unavailable") {
		t.Errorf("expected diagnostic output, got %q", v.Output)
	}
}

func TestRunNoCommand(t *testing.T) {
	r := NewRunner(nil, t.TempDir(), time.Second, nil)
	v := r.Run(context.Background(), "ignored")
	if v.Passed {
		t.Error("expected failed verdict with no command")
	}
}
