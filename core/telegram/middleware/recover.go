package middleware

import (
	"log/slog"
	"runtime/debug"

	"github.com/m3rciful/voxbot/core/logger"
	tghelpers "github.com/m3rciful/voxbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// RecoverMiddleware catches panics in handlers and prevents the bot from crashing.
func RecoverMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				ctx := tghelpers.BuildContext(c)
				logger.TG.LogAttrs(ctx, slog.LevelError, "",
					slog.String("event", "tg.panic"),
					slog.String("status", "fail"),
					slog.Any("err", r),
					slog.String("stack", string(debug.Stack())),
				)
				err = nil
			}
		}()
		return next(c)
	}
}
