package telegram

import (
	"net/http"
	"time"

	"github.com/m3rciful/voxbot/core/netutil"
)

const (
	longPollSlack  = 10 * time.Second
	minHTTPTimeout = 30 * time.Second
)

// BuildHTTPClient returns an HTTP client tuned for Telegram API calls.
// getUpdates holds the response until the poll ends, so both timeouts
// outlast longPollTimeout.
func BuildHTTPClient(longPollTimeout time.Duration) *http.Client {
	opts := netutil.ClientOptions{}
	if longPollTimeout > 0 {
		floor := longPollTimeout + longPollSlack
		opts.ResponseHeaderTimeout = floor
		if floor > minHTTPTimeout {
			opts.Timeout = floor
		}
	}
	return netutil.NewClient(opts)
}
