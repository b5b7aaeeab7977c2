package telegram

import (
	"context"
	"log/slog"

	"github.com/m3rciful/voxbot/core/commands"
	"github.com/m3rciful/voxbot/core/logger"

	tele "gopkg.in/telebot.v4"
)

// MenuCommands maps the public verb list to Bot API commands.
func MenuCommands(reg *commands.Registry) []tele.Command {
	entries := reg.List(true)
	out := make([]tele.Command, 0, len(entries))
	for _, e := range entries {
		out = append(out, tele.Command{Text: e.Verb, Description: e.Description})
	}
	return out
}

// PublishCommands sets the command menu shown by Telegram clients.
// Admin-only and hidden verbs are left out.
func PublishCommands(bot *tele.Bot, reg *commands.Registry) {
	if reg == nil {
		return
	}
	cmds := MenuCommands(reg)
	if err := bot.SetCommands(cmds); err != nil {
		logger.TWire.LogAttrs(context.Background(), slog.LevelError, "",
			slog.String("event", "register.commands.set_failed"),
			slog.String("status", "fail"),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
		return
	}
	logger.TWire.LogAttrs(context.Background(), slog.LevelInfo, "",
		slog.String("event", "register.commands.set"),
		slog.String("status", "ok"),
		slog.Int("count", len(cmds)),
	)
}
