package telegram

import (
	"context"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/voxbot/core/config"

	tele "gopkg.in/telebot.v4"
)

const (
	defaultLongPollTimeout = 10 * time.Second
	defaultQueueSize       = 128
)

// PollerOptions configures BuildPoller.
type PollerOptions struct {
	RunMode                string
	LongPollTimeoutSeconds int
	QueueSize              int
}

// LongPollTimeout resolves the configured long-poll timeout.
func (o PollerOptions) LongPollTimeout() time.Duration {
	if o.LongPollTimeoutSeconds <= 0 {
		return defaultLongPollTimeout
	}
	return time.Duration(o.LongPollTimeoutSeconds) * time.Second
}

// BuildPoller returns a long poller, or an UpdateQueue fed by the webhook
// endpoint in webhook mode.
func BuildPoller(opts PollerOptions) tele.Poller {
	if strings.EqualFold(strings.TrimSpace(opts.RunMode), coreconfig.RunModeWebhook) {
		return NewUpdateQueue(opts.QueueSize)
	}
	return &tele.LongPoller{Timeout: opts.LongPollTimeout()}
}

// UpdateQueue is a poller that hands over updates pushed by an HTTP handler.
type UpdateQueue struct {
	updates chan tele.Update
}

// NewUpdateQueue creates a queue buffering up to size updates.
func NewUpdateQueue(size int) *UpdateQueue {
	if size <= 0 {
		size = defaultQueueSize
	}
	return &UpdateQueue{updates: make(chan tele.Update, size)}
}

// Push enqueues an update, waiting until there is room or ctx is done.
func (q *UpdateQueue) Push(ctx context.Context, upd tele.Update) error {
	select {
	case q.updates <- upd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Poll implements tele.Poller.
func (q *UpdateQueue) Poll(_ *tele.Bot, dest chan tele.Update, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case upd := <-q.updates:
			select {
			case dest <- upd:
			case <-stop:
				return
			}
		}
	}
}
