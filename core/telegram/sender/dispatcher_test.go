package sender

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"
)

func TestDispatcherRunsJobs(t *testing.T) {
	d := NewDispatcher(Options{Workers: 2, QueueSize: 8})
	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		if err := d.Enqueue(context.Background(), "delete", "deleteMessage", func() error {
			ran.Add(1)
			return nil
		}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	d.Close()
	if got := ran.Load(); got != 5 {
		t.Fatalf("ran = %d, want 5", got)
	}
	if err := d.Enqueue(context.Background(), "delete", "", func() error { return nil }); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("Enqueue after Close = %v", err)
	}
}

func TestDispatcherRetriesTransientErrors(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 2, RetryBackoff: time.Millisecond})
	var calls atomic.Int32
	err := d.Enqueue(context.Background(), "delete", "deleteMessage", func() error {
		if calls.Add(1) < 3 {
			return &net.OpError{Op: "dial", Err: errors.New("refused")}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	d.Close()
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
	if d.ErrorCount() != 0 {
		t.Fatalf("ErrorCount = %d", d.ErrorCount())
	}
}

func TestDispatcherCountsPermanentFailures(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 3, RetryBackoff: time.Millisecond})
	var calls atomic.Int32
	_ = d.Enqueue(context.Background(), "delete", "deleteMessage", func() error {
		calls.Add(1)
		return errors.New("telegram: message to delete not found (400)")
	})
	d.Close()
	if calls.Load() != 1 {
		t.Fatalf("permanent error retried: calls = %d", calls.Load())
	}
	if d.ErrorCount() != 1 {
		t.Fatalf("ErrorCount = %d", d.ErrorCount())
	}
}

func TestClassifyError(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{context.DeadlineExceeded, "timeout"},
		{&net.OpError{Op: "dial", Err: errors.New("refused")}, "dial"},
		{&net.DNSError{Err: "no such host", Name: "api.telegram.org"}, "dns"},
		{errors.New("telegram: Bad Request: message can't be deleted (400)"), "http_4xx"},
		{errors.New("telegram: internal (502)"), "http_5xx"},
		{errors.New("boom"), "unknown"},
	}
	for _, c := range cases {
		if got := classifyError(c.err); got != c.want {
			t.Fatalf("classifyError(%v) = %q, want %q", c.err, got, c.want)
		}
	}
}

func TestSanitizeErrorMessageRedactsToken(t *testing.T) {
	err := errors.New(`Post "https://api.telegram.org/bot123456:ABC-def_ghi/deleteMessage": dial tcp: timeout`)
	got := sanitizeErrorMessage(err)
	if want := `Post "https://api.telegram.org/bot<redacted>/deleteMessage": dial tcp: timeout`; got != want {
		t.Fatalf("sanitizeErrorMessage = %q", got)
	}
}

func TestDispatcherGivesUpWhenDelayExceedsBudget(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 3, RetryBackoff: time.Hour, MaxDuration: 50 * time.Millisecond})
	var calls atomic.Int32
	_ = d.Enqueue(context.Background(), "delete", "deleteMessage", func() error {
		calls.Add(1)
		return &net.OpError{Op: "dial", Err: errors.New("refused")}
	})
	done := make(chan struct{})
	go func() {
		d.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher slept through a retry delay longer than the job budget")
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
	if got := d.Failures()["delete"]; got != 1 {
		t.Fatalf("Failures[delete] = %d", got)
	}
}

func TestDispatcherIgnoresCallerCancellation(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var ran atomic.Bool
	if err := d.Enqueue(ctx, "delete", "deleteMessage", func() error {
		ran.Store(true)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	d.Close()
	if !ran.Load() {
		t.Fatal("job skipped after the enqueuing context was canceled")
	}
}
