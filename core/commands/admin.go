package commands

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/m3rciful/voxbot/core/buildinfo"
	"github.com/m3rciful/voxbot/core/logger"
	"github.com/m3rciful/voxbot/core/state"
)

// Options parameterize the built-in verb table.
type Options struct {
	DirectPrefix     string
	AttributedPrefix string
	MaxTextLength    int
	Started          time.Time
}

type builtins struct {
	opts Options
}

// RegisterBuiltins installs the standard verb table into reg.
func RegisterBuiltins(reg *Registry, opts Options) {
	if opts.Started.IsZero() {
		opts.Started = time.Now()
	}
	b := &builtins{opts: opts}

	reg.Register("start", Command{Handler: b.start, Description: "Introduction"})
	reg.Register("help", Command{Handler: b.help, Description: "How to use the bot", Aliases: []string{"h"}})
	reg.Register("myvoice", Command{Handler: b.myVoice, Description: "Show your voice"})

	admin := func(name, desc string, h Handler, aliases ...string) {
		reg.Register(name, Command{
			Handler:     RequireAdmin(h),
			Description: desc,
			AdminOnly:   true,
			Aliases:     aliases,
		})
	}
	admin("status", "Bot status", b.status)
	// The trigger carries the secret, so it goes whoever sent it.
	reg.Register("addkey", Command{
		Handler:     scrubTrigger(RequireAdmin(b.addKey)),
		Description: "Add an API key",
		AdminOnly:   true,
	})
	admin("delkey", "Remove an API key by position or value", b.delKey, "removekey")
	admin("keys", "List API keys", b.keys)
	admin("maintenance", "Toggle maintenance mode: on|off", b.maintenance)
	admin("setvoice", "Assign a voice: <user_id> <voice_id>", b.setVoice)
	admin("resetvoice", "Reset a user's voice: <user_id>", b.resetVoice)
	admin("addadmin", "Grant admin rights: <user_id>", b.addAdmin)
	admin("deladmin", "Revoke admin rights: <user_id>", b.delAdmin)
	admin("admins", "List admins", b.admins)
}

func (b *builtins) usage() string {
	return fmt.Sprintf("<b>%s</b> &lt;text&gt; - I say the text\n<b>%s</b> &lt;text&gt; - in groups, I say it for you and remove your message\n\nUp to %d characters.",
		html.EscapeString(b.opts.DirectPrefix),
		html.EscapeString(b.opts.AttributedPrefix),
		b.opts.MaxTextLength,
	)
}

func (b *builtins) start(ctx context.Context, req Request) error {
	return req.Reply(ctx, "👋 I turn text into voice messages.\n\n"+b.usage())
}

func (b *builtins) help(ctx context.Context, req Request) error {
	var sb strings.Builder
	sb.WriteString(b.usage())
	sb.WriteString("\n\n<b>Commands</b>\n")
	for _, e := range req.Registry.List(!req.IsAdmin()) {
		fmt.Fprintf(&sb, "/%s - %s\n", e.Verb, html.EscapeString(e.Description))
	}
	return req.Reply(ctx, strings.TrimRight(sb.String(), "\n"))
}

func (b *builtins) myVoice(ctx context.Context, req Request) error {
	voice := req.State.VoiceFor(req.Event.SenderID)
	suffix := ""
	if voice == req.State.DefaultVoice() {
		suffix = " (default)"
	}
	return req.Reply(ctx, fmt.Sprintf("🎤 Your voice: <code>%s</code>%s", html.EscapeString(voice), suffix))
}

func (b *builtins) status(ctx context.Context, req Request) error {
	st := req.State.Stats()
	mode := "off"
	if st.Maintenance {
		mode = "on"
	}
	text := fmt.Sprintf("📊 <b>Status</b>\nVersion: %s\nUptime: %s\nKeys: %d\nNext key: #%d\nAdmins: %d root, %d granted\nVoice overrides: %d\nMaintenance: %s",
		html.EscapeString(buildinfo.Version),
		time.Since(b.opts.Started).Round(time.Second),
		st.Credentials,
		st.Cursor+1,
		st.RootAdmins, st.GrantedAdmins,
		st.VoiceOverrides,
		mode,
	)
	return req.Reply(ctx, text)
}

func (b *builtins) addKey(ctx context.Context, req Request) error {
	key := req.Invocation.Args
	if key == "" || len(req.Invocation.Fields()) != 1 {
		return req.Reply(ctx, "Usage: /addkey &lt;api_key&gt;")
	}
	if err := req.State.AddCredential(ctx, key); err != nil {
		return replyError(ctx, req, err)
	}
	return req.Reply(ctx, fmt.Sprintf("✅ Key <code>%s</code> added. Keys in pool: %d.",
		html.EscapeString(logger.MaskSecret(key)), req.State.Stats().Credentials))
}

// scrubTrigger deletes the invoking message before next runs when it
// carries arguments.
func scrubTrigger(next Handler) Handler {
	return func(ctx context.Context, req Request) error {
		if req.Invocation.Args != "" {
			if err := req.Chat.Delete(ctx, req.Event.Ref()); err != nil {
				logger.CMD.LogAttrs(ctx, slog.LevelWarn, "",
					slog.String("event", "command."+req.Invocation.Verb+".delete_trigger"),
					slog.String("status", "fail"),
					slog.String("err", err.Error()),
				)
			}
		}
		return next(ctx, req)
	}
}

func (b *builtins) delKey(ctx context.Context, req Request) error {
	arg := req.Invocation.Args
	if arg == "" {
		return req.Reply(ctx, "Usage: /delkey &lt;position|api_key&gt;")
	}
	removed := arg
	var err error
	if pos, convErr := strconv.Atoi(arg); convErr == nil {
		removed, err = req.State.RemoveCredentialAt(ctx, pos)
	} else {
		err = req.State.RemoveCredential(ctx, arg)
	}
	if err != nil {
		return replyError(ctx, req, err)
	}
	return req.Reply(ctx, fmt.Sprintf("🗑 Key <code>%s</code> removed. Keys in pool: %d.",
		html.EscapeString(logger.MaskSecret(removed)), req.State.Stats().Credentials))
}

func (b *builtins) keys(ctx context.Context, req Request) error {
	creds := req.State.Credentials()
	if len(creds) == 0 {
		return req.Reply(ctx, "🔑 No keys configured. Add one with /addkey.")
	}
	next := req.State.Stats().Cursor
	var sb strings.Builder
	fmt.Fprintf(&sb, "🔑 <b>Keys</b> (%d)\n", len(creds))
	for i, k := range creds {
		marker := ""
		if i == next {
			marker = " ← next"
		}
		fmt.Fprintf(&sb, "%d. <code>%s</code>%s\n", i+1, html.EscapeString(logger.MaskSecret(k)), marker)
	}
	return req.Reply(ctx, strings.TrimRight(sb.String(), "\n"))
}

func (b *builtins) maintenance(ctx context.Context, req Request) error {
	var on bool
	switch strings.ToLower(req.Invocation.Args) {
	case "on", "1", "true", "enable":
		on = true
	case "off", "0", "false", "disable":
		on = false
	case "":
		mode := "off"
		if req.State.Maintenance() {
			mode = "on"
		}
		return req.Reply(ctx, "🛠 Maintenance is "+mode+". Usage: /maintenance on|off")
	default:
		return req.Reply(ctx, "Usage: /maintenance on|off")
	}
	if err := req.State.SetMaintenance(ctx, on); err != nil {
		return replyError(ctx, req, err)
	}
	if on {
		return req.Reply(ctx, "🛠 Maintenance mode enabled.")
	}
	return req.Reply(ctx, "✅ Maintenance mode disabled.")
}

func (b *builtins) setVoice(ctx context.Context, req Request) error {
	fields := req.Invocation.Fields()
	if len(fields) != 2 {
		return req.Reply(ctx, "Usage: /setvoice &lt;user_id&gt; &lt;voice_id&gt;")
	}
	userID, ok := parseUserID(fields[0])
	if !ok {
		return req.Reply(ctx, "⚠️ User id must be a positive number.")
	}
	if err := req.State.SetUserVoice(ctx, userID, fields[1]); err != nil {
		return replyError(ctx, req, err)
	}
	return req.Reply(ctx, fmt.Sprintf("✅ Voice <code>%s</code> assigned to <code>%d</code>.", html.EscapeString(fields[1]), userID))
}

func (b *builtins) resetVoice(ctx context.Context, req Request) error {
	userID, ok := parseUserID(req.Invocation.Args)
	if !ok {
		return req.Reply(ctx, "Usage: /resetvoice &lt;user_id&gt;")
	}
	if err := req.State.ResetUserVoice(ctx, userID); err != nil {
		return replyError(ctx, req, err)
	}
	return req.Reply(ctx, fmt.Sprintf("✅ <code>%d</code> uses the default voice again.", userID))
}

func (b *builtins) addAdmin(ctx context.Context, req Request) error {
	userID, ok := parseUserID(req.Invocation.Args)
	if !ok {
		return req.Reply(ctx, "Usage: /addadmin &lt;user_id&gt;")
	}
	if err := req.State.AddAdmin(ctx, userID); err != nil {
		return replyError(ctx, req, err)
	}
	return req.Reply(ctx, fmt.Sprintf("✅ <code>%d</code> is now an admin.", userID))
}

func (b *builtins) delAdmin(ctx context.Context, req Request) error {
	userID, ok := parseUserID(req.Invocation.Args)
	if !ok {
		return req.Reply(ctx, "Usage: /deladmin &lt;user_id&gt;")
	}
	if req.State.IsRootAdmin(userID) {
		return req.Reply(ctx, "⚠️ Root admins come from configuration and cannot be removed here.")
	}
	if err := req.State.RemoveAdmin(ctx, userID); err != nil {
		return replyError(ctx, req, err)
	}
	return req.Reply(ctx, fmt.Sprintf("🗑 <code>%d</code> is no longer an admin.", userID))
}

func (b *builtins) admins(ctx context.Context, req Request) error {
	var sb strings.Builder
	sb.WriteString("👮 <b>Admins</b>\n")
	for _, id := range req.State.Admins() {
		if req.State.IsRootAdmin(id) {
			fmt.Fprintf(&sb, "<code>%d</code> (root)\n", id)
			continue
		}
		fmt.Fprintf(&sb, "<code>%d</code>\n", id)
	}
	return req.Reply(ctx, strings.TrimRight(sb.String(), "\n"))
}

// replyError reports validation errors to the admin. Other errors are
// reported generically and returned for logging.
func replyError(ctx context.Context, req Request, err error) error {
	switch {
	case errors.Is(err, state.ErrNotFound):
		return req.Reply(ctx, "❓ Not found.")
	case errors.Is(err, state.ErrInvalidInput):
		return req.Reply(ctx, "⚠️ Invalid input.")
	}
	if replyErr := req.Reply(ctx, "❌ Could not save the change. Try again later."); replyErr != nil {
		return errors.Join(err, replyErr)
	}
	return err
}

func parseUserID(s string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
