package commands

import (
	"context"
	"log/slog"
	"time"

	"github.com/m3rciful/voxbot/core/chat"
	"github.com/m3rciful/voxbot/core/logger"
	"github.com/m3rciful/voxbot/core/state"
)

// Request is what a command handler receives.
type Request struct {
	Invocation Invocation
	Event      chat.Event
	State      *state.Store
	Chat       chat.Messenger
	Registry   *Registry
}

// Reply sends an HTML text to the originating conversation.
func (r Request) Reply(ctx context.Context, text string) error {
	_, err := r.Chat.SendText(ctx, r.Event.ChatID, text)
	return err
}

// IsAdmin reports whether the sender is an admin.
func (r Request) IsAdmin() bool {
	return r.State != nil && r.State.IsAdmin(r.Event.SenderID)
}

// Router delegates recognized commands to the registry.
type Router struct {
	reg     *Registry
	botName string
}

// NewRouter returns a router over reg. Commands addressed to another bot
// (/verb@other) are ignored when botName is set.
func NewRouter(reg *Registry, botName string) *Router {
	return &Router{reg: reg, botName: botName}
}

// SetBotName updates the name used to filter /verb@bot invocations.
func (rt *Router) SetBotName(name string) {
	rt.botName = name
}

// Dispatch runs the handler registered for req.Invocation.
func (rt *Router) Dispatch(ctx context.Context, req Request) error {
	start := time.Now()
	inv := req.Invocation
	if !inv.AddressedTo(rt.botName) {
		logSummary(ctx, inv.Verb, start, "skip", "ignored", nil, slog.String("target", inv.Target))
		return nil
	}

	req.Registry = rt.reg
	verb, cmd, ok := rt.reg.Lookup(inv.Verb)
	if !ok {
		fallback := rt.reg.NotFound()
		if fallback == nil {
			logSummary(ctx, inv.Verb, start, "skip", "ignored", nil, slog.String("reason", "not_found"))
			return nil
		}
		err := fallback(ctx, req)
		logSummary(ctx, inv.Verb, start, "", "", err, slog.String("reason", "not_found"))
		return err
	}

	ctx = logger.WithHandler(ctx, "command."+verb)
	err := cmd.Handler(ctx, req)
	logSummary(ctx, verb, start, "", "", err)
	return err
}

func logSummary(ctx context.Context, verb string, start time.Time, status, outcome string, err error, extras ...slog.Attr) {
	if status == "" {
		status = logger.Status(err)
	}
	if outcome == "" {
		outcome = "ok"
		if err != nil {
			outcome = "fail"
		}
	}
	attrs := []slog.Attr{
		slog.String("status", status),
		slog.String("verb", verb),
		slog.String("outcome", outcome),
		slog.Duration("duration", logger.Took(start)),
	}
	if err != nil {
		attrs = append(attrs, slog.String("err", logger.SanitizeLimit(err.Error(), 256)))
	}
	attrs = append(attrs, extras...)
	logger.LogEvent(ctx, logger.CMD, slog.LevelInfo, "command.handled", attrs...)
}
