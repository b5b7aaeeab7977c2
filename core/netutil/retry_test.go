package netutil

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestShouldRetry(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), false},
		{"dial", &net.OpError{Op: "dial", Err: errors.New("refused")}, true},
		{"read_timeout", &net.OpError{Op: "read", Err: timeoutErr{}}, true},
		{"url_timeout", &url.Error{Op: "Post", URL: "x", Err: timeoutErr{}}, true},
		{"url_dial", &url.Error{Op: "Post", URL: "x", Err: &net.OpError{Op: "dial", Err: errors.New("refused")}}, true},
		{"url_plain", &url.Error{Op: "Post", URL: "x", Err: errors.New("tls: bad certificate")}, false},
		{"canceled", context.Canceled, false},
	}
	for _, c := range cases {
		if got := ShouldRetry(c.err); got != c.want {
			t.Fatalf("%s: ShouldRetry = %v, want %v", c.name, got, c.want)
		}
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestRetryTransportRetriesDialErrors(t *testing.T) {
	calls := 0
	var bodies []string
	rt := &RetryTransport{
		MaxRetries: 2,
		Backoff:    time.Millisecond,
		Base: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			calls++
			b, _ := io.ReadAll(r.Body)
			bodies = append(bodies, string(b))
			if calls < 3 {
				return nil, &net.OpError{Op: "dial", Err: errors.New("refused")}
			}
			return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
		}),
	}
	req, _ := http.NewRequest(http.MethodPost, "http://example.invalid", strings.NewReader("payload"))
	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip: %v", err)
	}
	resp.Body.Close()
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	for i, b := range bodies {
		if b != "payload" {
			t.Fatalf("attempt %d body = %q", i+1, b)
		}
	}
}

func TestRetryTransportStopsOnPermanentError(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	rt := &RetryTransport{
		MaxRetries: 3,
		Backoff:    time.Millisecond,
		Base: roundTripFunc(func(*http.Request) (*http.Response, error) {
			calls++
			return nil, boom
		}),
	}
	req, _ := http.NewRequest(http.MethodGet, "http://example.invalid", nil)
	if _, err := rt.RoundTrip(req); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}
