package router

import (
	"context"
	"time"

	"log/slog"

	"github.com/m3rciful/voxbot/core/chat"
	"github.com/m3rciful/voxbot/core/relay"
	tg "github.com/m3rciful/voxbot/core/telegram"
	tghelpers "github.com/m3rciful/voxbot/core/telegram/helpers"
	"github.com/m3rciful/voxbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// Pipeline handles one chat event; *relay.Pipeline satisfies it.
type Pipeline interface {
	Handle(ctx context.Context, ev chat.Event) (relay.Decision, error)
}

// TextRoutes routes every text message, commands included, through the
// pipeline. Telebot delivers unregistered "/verb" messages to OnText.
func TextRoutes(p Pipeline) []tg.Route {
	handler := func(c tele.Context) error {
		start := time.Now()
		ev, ok := tg.EventFromContext(c)
		if !ok {
			logHandlerSummary(c, "unknown_text", start, "skip", "ok", nil)
			return nil
		}

		ctx := tghelpers.WithHandler(c, "relay")
		d, err := p.Handle(ctx, ev)
		name := "relay"
		if cmd, isCmd := d.(relay.DecisionCommand); isCmd {
			name = "command." + normalizeHandlerName(cmd.Verb)
		}
		status := ""
		if _, ignored := d.(relay.DecisionIgnored); ignored {
			status = "skip"
		}
		kind := "failed"
		if d != nil {
			kind = d.Kind()
		}
		logHandlerSummary(c, name, start, status, "", err, slog.String("decision", kind))
		// The user has been told already; the error is logged above.
		return nil
	}

	return []tg.Route{
		{
			Endpoint: tele.OnText,
			Handler:  middleware.RecoverMiddleware(handler),
		},
	}
}
