package commands

import (
	"context"
	"log/slog"

	"github.com/m3rciful/voxbot/core/logger"
)

// NoticeAdminOnly is sent to non-admins invoking an admin command.
const NoticeAdminOnly = "⛔ This command is available to administrators only."

// RequireAdmin wraps next so that only admins reach it.
func RequireAdmin(next Handler) Handler {
	return func(ctx context.Context, req Request) error {
		if req.IsAdmin() {
			return next(ctx, req)
		}
		logger.CMD.LogAttrs(ctx, slog.LevelWarn, "",
			slog.String("event", "command.admin.reject"),
			slog.String("verb", req.Invocation.Verb),
			slog.Int64("user_id", req.Event.SenderID),
		)
		if err := req.Reply(ctx, NoticeAdminOnly); err != nil {
			logger.CMD.LogAttrs(ctx, slog.LevelWarn, "",
				slog.String("event", "command.admin.reject_notice"),
				slog.String("status", "fail"),
				slog.String("err", err.Error()),
			)
		}
		return nil
	}
}
