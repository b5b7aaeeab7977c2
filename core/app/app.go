// Package app assembles the voice relay bot from configuration and the
// bootstrapped state store.
package app

import (
	"context"
	"fmt"
	"time"

	coreconfig "github.com/m3rciful/voxbot/core/config"
	"github.com/m3rciful/voxbot/core/commands"
	"github.com/m3rciful/voxbot/core/health"
	"github.com/m3rciful/voxbot/core/relay"
	"github.com/m3rciful/voxbot/core/speech"
	"github.com/m3rciful/voxbot/core/state"
	coretelegram "github.com/m3rciful/voxbot/core/telegram"
	tgrouter "github.com/m3rciful/voxbot/core/telegram/router"
	tgsender "github.com/m3rciful/voxbot/core/telegram/sender"
)

// App holds the long-lived components shared by every update.
type App struct {
	cfg      *coreconfig.Config
	store    *state.Store
	registry *commands.Registry
	router   *commands.Router
	synth    speech.Synthesizer
	pipeline *relay.Pipeline
	started  time.Time
	closers  []func() error
}

// Option customizes New.
type Option func(*App)

// WithSynthesizer replaces the configured speech provider.
func WithSynthesizer(s speech.Synthesizer) Option {
	return func(a *App) { a.synth = s }
}

// WithCloser registers cleanup run after the bot stops.
func WithCloser(fn func() error) Option {
	return func(a *App) { a.closers = append(a.closers, fn) }
}

// New builds the command table and the speech client.
func New(cfg *coreconfig.Config, store *state.Store, opts ...Option) *App {
	a := &App{
		cfg:      cfg,
		store:    store,
		registry: commands.NewRegistry(),
		started:  time.Now(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.synth == nil {
		a.synth = speech.FromConfig(cfg.Speech)
	}
	commands.RegisterBuiltins(a.registry, commands.Options{
		DirectPrefix:     cfg.Relay.DirectPrefix,
		AttributedPrefix: cfg.Relay.AttributedPrefix,
		MaxTextLength:    cfg.Relay.MaxTextLength,
		Started:          a.started,
	})
	a.router = commands.NewRouter(a.registry, "")
	return a
}

// Registry exposes the command table.
func (a *App) Registry() *commands.Registry {
	return a.registry
}

// Pipeline wires the relay to the running bot's messenger.
func (a *App) Pipeline(rt coretelegram.Runtime) *relay.Pipeline {
	return relay.New(a.store, a.router, rt.Messenger, a.synth, relay.OptionsFromConfig(a.cfg.Relay))
}

// TelegramRunOptions implements cmd.TelegramApp.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	return coretelegram.RunOptions{
		Config:   a.cfg,
		Registry: a.registry,
		DispatcherOptions: tgsender.Options{
			MaxRetries:   2,
			RetryBackoff: time.Second,
		},
		Middlewares: coretelegram.DefaultMiddlewares(a.cfg, nil),
		Routes: func(rt coretelegram.Runtime) []coretelegram.Route {
			a.pipeline = a.Pipeline(rt)
			return tgrouter.TextRoutes(a.pipeline)
		},
		Drain: a.Drain,
		HTTP: []coretelegram.Registrar{health.NewHandler(a.started)},
		OnStart: func(_ context.Context, rt coretelegram.Runtime) error {
			if rt.Bot != nil && rt.Bot.Me != nil {
				a.router.SetBotName(rt.Bot.Me.Username)
			}
			return nil
		},
		OnStop: func(context.Context, coretelegram.Runtime) error {
			return a.Close()
		},
	}, nil
}

// Drain waits for events still being relayed so their state writes and
// temp files are settled before Close releases storage.
func (a *App) Drain(ctx context.Context) error {
	if a.pipeline == nil {
		return nil
	}
	if err := a.pipeline.Wait(ctx); err != nil {
		return fmt.Errorf("app: %d events still running: %w", a.pipeline.Active(), err)
	}
	return nil
}

// Close runs registered cleanup in reverse order.
func (a *App) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}
