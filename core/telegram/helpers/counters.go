package helpers

import (
	"context"
	"sync/atomic"

	tele "gopkg.in/telebot.v4"
)

const countersKey = "counters"

// Counters tracks outbound operations made while handling one update.
type Counters struct {
	messages atomic.Int32
	voices   atomic.Int32
	deletes  atomic.Int32
}

func (c *Counters) AddMessage() {
	if c != nil {
		c.messages.Add(1)
	}
}

func (c *Counters) AddVoice() {
	if c != nil {
		c.voices.Add(1)
	}
}

func (c *Counters) AddDelete() {
	if c != nil {
		c.deletes.Add(1)
	}
}

// Snapshot returns messages, voices and deletes so far.
func (c *Counters) Snapshot() (messages, voices, deletes int) {
	if c == nil {
		return 0, 0, 0
	}
	return int(c.messages.Load()), int(c.voices.Load()), int(c.deletes.Load())
}

// AttachCounters stores fresh counters on the update context.
func AttachCounters(c tele.Context) *Counters {
	counters := &Counters{}
	c.Set(countersKey, counters)
	return counters
}

// CountersOf returns the update's counters, or nil.
func CountersOf(c tele.Context) *Counters {
	if c == nil {
		return nil
	}
	counters, _ := c.Get(countersKey).(*Counters)
	return counters
}

type countersCtxKey struct{}

// WithCounters carries counters into service code.
func WithCounters(ctx context.Context, counters *Counters) context.Context {
	return context.WithValue(ctx, countersCtxKey{}, counters)
}

// CountersFrom returns counters carried by ctx, or nil. Methods on a nil
// *Counters are no-ops.
func CountersFrom(ctx context.Context) *Counters {
	if ctx == nil {
		return nil
	}
	counters, _ := ctx.Value(countersCtxKey{}).(*Counters)
	return counters
}
