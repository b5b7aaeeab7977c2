package middleware

import (
	tghelpers "github.com/m3rciful/voxbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// MessageMetricsMiddleware attaches per-update counters of outbound
// operations. The messenger increments them; handler summaries report them.
func MessageMetricsMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		counters := tghelpers.AttachCounters(c)
		if ctx, ok := tghelpers.ContextFrom(c); ok {
			tghelpers.StoreContext(c, tghelpers.WithCounters(ctx, counters))
		}
		return next(c)
	}
}

// GetCounters reads the update's counters: messages, voices and deletes.
func GetCounters(c tele.Context) (int, int, int) {
	return tghelpers.CountersOf(c).Snapshot()
}
