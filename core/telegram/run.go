package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/m3rciful/voxbot/core/chat"
	"github.com/m3rciful/voxbot/core/commands"
	coreconfig "github.com/m3rciful/voxbot/core/config"
	"github.com/m3rciful/voxbot/core/logger"
	tghelpers "github.com/m3rciful/voxbot/core/telegram/helpers"
	tgsender "github.com/m3rciful/voxbot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

const shutdownTimeout = 5 * time.Second

// Middleware describes a global bot middleware to be registered via bot.Use.
type Middleware struct {
	Name string
	Use  func(next tele.HandlerFunc) tele.HandlerFunc
}

// Route declares a single bot handler bound to an arbitrary endpoint.
// Endpoint values are passed directly to tele.Bot.Handle.
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// RunOptions controls the behaviour of RunTelegram.
type RunOptions struct {
	Config   *coreconfig.Config
	Registry *commands.Registry

	DispatcherOptions tgsender.Options
	Dispatcher        *tgsender.Dispatcher

	Middlewares []Middleware
	// Routes is called once the bot and messenger exist.
	Routes func(rt Runtime) []Route
	// HTTP lists extra routes for the front door, such as health.
	HTTP []Registrar

	// Drain waits for in-flight handlers after the bot stops polling and
	// before OnStop releases storage. It is bounded by the shutdown timeout.
	Drain func(ctx context.Context) error

	DisableWebhookCleanup   bool
	DisableHelperDispatcher bool

	OnStart func(ctx context.Context, rt Runtime) error
	OnStop  func(ctx context.Context, rt Runtime) error
}

// Runtime exposes runtime components to lifecycle hooks.
type Runtime struct {
	Bot        *tele.Bot
	Messenger  chat.Messenger
	Dispatcher *tgsender.Dispatcher
	Registry   *commands.Registry
}

// RunTelegram composes and runs a Telegram bot until the provided context is done.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Config == nil {
		return fmt.Errorf("telegram: nil config provided")
	}

	cfg := opts.Config
	webhookMode := strings.EqualFold(cfg.Telegram.RunMode, coreconfig.RunModeWebhook)
	pollOpts := PollerOptions{
		RunMode:                cfg.Telegram.RunMode,
		LongPollTimeoutSeconds: cfg.Telegram.LongPollTimeoutSeconds,
	}
	poller := BuildPoller(pollOpts)
	client := BuildHTTPClient(pollOpts.LongPollTimeout())

	buildStart := time.Now()
	bot, err := tele.NewBot(tele.Settings{
		Token:  cfg.Telegram.Token,
		Poller: poller,
		Client: client,
		OnError: func(err error, c tele.Context) {
			ctx := context.Background()
			if c != nil {
				ctx = tghelpers.BuildContext(c)
			}
			logger.TG.LogAttrs(ctx, slog.LevelError, "",
				slog.String("event", "tg.handler_error"),
				slog.String("status", "fail"),
				slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			)
		},
	})
	if err != nil {
		return fmt.Errorf("telegram: bot initialization failed: %w", err)
	}
	buildTook := time.Since(buildStart)

	dispatcher := opts.Dispatcher
	if dispatcher == nil {
		dispatcher = tgsender.NewDispatcher(opts.DispatcherOptions)
	}
	useHelperDispatcher := !opts.DisableHelperDispatcher
	if useHelperDispatcher {
		tghelpers.SetDispatcher(dispatcher)
	}
	release := func() {
		dispatcher.Close()
		if useHelperDispatcher {
			tghelpers.SetDispatcher(nil)
		}
	}

	rt := Runtime{
		Bot:        bot,
		Messenger:  NewMessenger(bot),
		Dispatcher: dispatcher,
		Registry:   opts.Registry,
	}

	httpRoutes := append([]Registrar(nil), opts.HTTP...)
	if webhookMode {
		queue := poller.(*UpdateQueue)
		httpRoutes = append(httpRoutes, NewWebhookHandler(queue, cfg.Webhook.URL, cfg.Webhook.SecretToken))
		hook := &tele.Webhook{
			Endpoint:    &tele.WebhookEndpoint{PublicURL: cfg.Webhook.URL},
			SecretToken: cfg.Webhook.SecretToken,
		}
		if err := bot.SetWebhook(hook); err != nil {
			release()
			return fmt.Errorf("telegram: set webhook: %w", err)
		}
		logger.TG.LogAttrs(ctx, slog.LevelInfo, "",
			slog.String("event", "mode"),
			slog.String("mode", coreconfig.RunModeWebhook),
			slog.String("path", WebhookPath(cfg.Webhook.URL)),
			slog.Bool("secret", cfg.Webhook.SecretToken != ""),
			slog.Duration("duration", logger.RoundMS(buildTook)),
		)
	} else {
		logger.TG.LogAttrs(ctx, slog.LevelInfo, "",
			slog.String("event", "mode"),
			slog.String("mode", "polling"),
			slog.Int("timeout_seconds", int(pollOpts.LongPollTimeout()/time.Second)),
			slog.Duration("duration", logger.RoundMS(buildTook)),
		)
		if !opts.DisableWebhookCleanup {
			logWebhookCleanup(ctx, "polling", deleteWebhook(ctx, client, cfg.Telegram.Token, false))
		}
	}

	for _, mw := range opts.Middlewares {
		if mw.Use == nil {
			continue
		}
		bot.Use(mw.Use)
	}

	if opts.Routes != nil {
		for _, route := range opts.Routes(rt) {
			if route.Endpoint == nil || route.Handler == nil {
				continue
			}
			bot.Handle(route.Endpoint, route.Handler)
		}
	}

	PublishCommands(bot, opts.Registry)

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			release()
			return err
		}
	}

	var (
		server    *Server
		serverErr <-chan error
	)
	if webhookMode || cfg.Webhook.Port > 0 {
		server = NewServer(fmt.Sprintf("%s:%d", cfg.Webhook.Listen, cfg.Webhook.Port), httpRoutes...)
		serverErr = server.Start()
	}

	runDone := make(chan struct{})
	go func() {
		bot.Start()
		close(runDone)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		runErr = ctx.Err()
	case err := <-serverErr:
		if err != nil {
			runErr = fmt.Errorf("telegram: http server: %w", err)
		}
	case <-runDone:
	}
	select {
	case <-runDone:
	default:
		bot.Stop()
		<-runDone
	}

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if opts.Drain != nil {
		drainStart := time.Now()
		err := opts.Drain(stopCtx)
		level, status := slog.LevelInfo, "ok"
		attrs := []slog.Attr{slog.Duration("duration", logger.RoundMS(time.Since(drainStart)))}
		if err != nil {
			level, status = slog.LevelWarn, "fail"
			attrs = append(attrs, slog.String("err", err.Error()))
		}
		logger.TG.LogAttrs(stopCtx, level, "", append([]slog.Attr{
			slog.String("event", "tg.drain"),
			slog.String("status", status),
		}, attrs...)...)
	}
	if server != nil {
		if err := server.Shutdown(stopCtx); err != nil {
			logger.HTTP.LogAttrs(stopCtx, slog.LevelWarn, "",
				slog.String("event", "http.shutdown"),
				slog.String("status", "fail"),
				slog.String("err", err.Error()),
			)
		}
	}
	if webhookMode && !opts.DisableWebhookCleanup {
		logWebhookCleanup(stopCtx, coreconfig.RunModeWebhook, deleteWebhook(stopCtx, client, cfg.Telegram.Token, false))
	}

	var stopErr error
	if opts.OnStop != nil {
		stopErr = opts.OnStop(stopCtx, rt)
	}

	release()

	if stopErr != nil {
		return stopErr
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

func logWebhookCleanup(ctx context.Context, mode string, err error) {
	if err != nil {
		logger.TG.LogAttrs(ctx, slog.LevelWarn, "",
			slog.String("event", "delete_webhook"),
			slog.String("status", "fail"),
			slog.String("mode", mode),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
		return
	}
	logger.TG.LogAttrs(ctx, slog.LevelInfo, "",
		slog.String("event", "delete_webhook"),
		slog.String("status", "ok"),
		slog.String("mode", mode),
	)
}

func deleteWebhook(ctx context.Context, client *http.Client, token string, dropPending bool) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("empty token")
	}
	endpoint := fmt.Sprintf("https://api.telegram.org/bot%s/deleteWebhook", token)
	body := "drop_pending_updates=false"
	if dropPending {
		body = "drop_pending_updates=true"
	}
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := client.Do(req)
	if err != nil {
		// The request URL embeds the token.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			return fmt.Errorf("deleteWebhook: %w", urlErr.Err)
		}
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("deleteWebhook status: %s", resp.Status)
	}
	return nil
}
