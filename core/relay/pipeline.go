// Package relay routes inbound chat events to the command router or to
// speech synthesis and manages the transient messages and audio files each
// request creates.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/m3rciful/voxbot/core/chat"
	"github.com/m3rciful/voxbot/core/commands"
	"github.com/m3rciful/voxbot/core/config"
	"github.com/m3rciful/voxbot/core/logger"
	"github.com/m3rciful/voxbot/core/speech"
	"github.com/m3rciful/voxbot/core/state"
)

var (
	// ErrNoCredential means the credential pool is empty.
	ErrNoCredential = errors.New("relay: no credential available")
	// ErrUnhandled wraps panics recovered while handling an event.
	ErrUnhandled = errors.New("relay: unhandled pipeline error")
)

// Options configure a Pipeline.
type Options struct {
	DirectPrefix     string
	AttributedPrefix string
	MaxTextLength    int
	Pacer            Pacer
}

// OptionsFromConfig maps the relay config section.
func OptionsFromConfig(cfg config.RelayConfig) Options {
	minDelay, maxDelay := cfg.PacingRange()
	return Options{
		DirectPrefix:     cfg.DirectPrefix,
		AttributedPrefix: cfg.AttributedPrefix,
		MaxTextLength:    cfg.MaxTextLength,
		Pacer:            RandomPacer{Min: minDelay, Max: maxDelay},
	}
}

// Pipeline handles one inbound event at a time per call; calls may run
// concurrently.
type Pipeline struct {
	store  *state.Store
	router *commands.Router
	chat   chat.Messenger
	synth  speech.Synthesizer
	opts   Options

	mu     sync.Mutex
	active int
	idle   chan struct{}
}

// New wires a pipeline. Zero options fall back to the configured defaults.
func New(store *state.Store, router *commands.Router, messenger chat.Messenger, synth speech.Synthesizer, opts Options) *Pipeline {
	if opts.DirectPrefix == "" {
		opts.DirectPrefix = config.DefaultDirectPrefix
	}
	if opts.AttributedPrefix == "" {
		opts.AttributedPrefix = config.DefaultAttrPrefix
	}
	if opts.MaxTextLength <= 0 {
		opts.MaxTextLength = config.DefaultMaxTextLength
	}
	if opts.Pacer == nil {
		opts.Pacer = NoPacer{}
	}
	return &Pipeline{store: store, router: router, chat: messenger, synth: synth, opts: opts}
}

// Handle processes one event. It never panics; the returned error is for
// logging only; the user has already been told what happened.
func (p *Pipeline) Handle(ctx context.Context, ev chat.Event) (d Decision, err error) {
	p.enter()
	defer p.leave()
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrUnhandled, r)
			d = DecisionFailed{}
			logger.Relay.LogAttrs(ctx, slog.LevelError, "",
				slog.String("event", "relay.panic"),
				slog.String("status", "fail"),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			p.notify(ctx, ev.ChatID, NoticeFailure)
		}
		p.logDecision(ctx, ev, d, err, start)
	}()
	return p.handle(ctx, ev)
}

// Wait blocks until no Handle call is running or ctx is done. Callers stop
// feeding events first; Wait does not reject new ones.
func (p *Pipeline) Wait(ctx context.Context) error {
	for {
		p.mu.Lock()
		if p.active == 0 {
			p.mu.Unlock()
			return nil
		}
		idle := p.idle
		p.mu.Unlock()
		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Active reports how many events are being handled.
func (p *Pipeline) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

func (p *Pipeline) enter() {
	p.mu.Lock()
	if p.active == 0 {
		p.idle = make(chan struct{})
	}
	p.active++
	p.mu.Unlock()
}

func (p *Pipeline) leave() {
	p.mu.Lock()
	p.active--
	if p.active == 0 {
		close(p.idle)
	}
	p.mu.Unlock()
}

func (p *Pipeline) handle(ctx context.Context, ev chat.Event) (Decision, error) {
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return DecisionIgnored{}, nil
	}

	if inv, ok := commands.Classify(text); ok {
		err := p.router.Dispatch(ctx, commands.Request{
			Invocation: inv,
			Event:      ev,
			State:      p.store,
			Chat:       p.chat,
		})
		return DecisionCommand{Verb: inv.Verb, Args: inv.Args}, err
	}

	// Unrelated chat traffic stays silent and does not rotate credentials.
	form, body := p.match(ev, text)
	if form == FormNone {
		return DecisionIgnored{}, nil
	}

	if p.store.Maintenance() {
		p.notify(ctx, ev.ChatID, NoticeMaintenance)
		return DecisionMaintenance{}, nil
	}

	credential, ok := p.store.NextCredential(ctx)
	if !ok {
		p.notify(ctx, ev.ChatID, NoticeNoCredential)
		return DecisionNoCredential{}, nil
	}

	voice := p.store.VoiceFor(ev.SenderID)
	attributed := form == FormAttributed
	if attributed {
		p.deleteMessage(ctx, ev.Ref(), "trigger")
	}

	if body == "" {
		prefix := p.opts.DirectPrefix
		if attributed {
			prefix = p.opts.AttributedPrefix
		}
		p.notify(ctx, ev.ChatID, usageNotice(prefix))
		return DecisionUsage{Form: form}, nil
	}
	if n := utf8.RuneCountInString(body); n > p.opts.MaxTextLength {
		p.notify(ctx, ev.ChatID, tooLongNotice(n, p.opts.MaxTextLength))
		return DecisionTooLong{Length: n, Limit: p.opts.MaxTextLength}, nil
	}

	d := DecisionSpeech{Text: body, VoiceID: voice, DeleteOriginal: attributed, Announce: attributed}
	return d, p.speak(ctx, ev, d, credential)
}

// match resolves the request form; the attributed form only counts in groups.
func (p *Pipeline) match(ev chat.Event, text string) (Form, string) {
	if body, ok := cutPrefixFold(text, p.opts.AttributedPrefix); ok {
		if ev.IsGroup() {
			return FormAttributed, body
		}
		return FormNone, ""
	}
	if body, ok := cutPrefixFold(text, p.opts.DirectPrefix); ok {
		return FormDirect, body
	}
	return FormNone, ""
}

// speak runs steps that hold transient resources. The status message and the
// audio file are released on every exit path.
func (p *Pipeline) speak(ctx context.Context, ev chat.Event, d DecisionSpeech, credential string) error {
	if err := p.chat.Typing(ctx, ev.ChatID); err != nil {
		p.warn(ctx, "relay.typing", err)
	}
	if err := p.opts.Pacer.Pace(ctx); err != nil {
		// Usually shutdown; the requester still gets an answer.
		p.notify(context.WithoutCancel(ctx), ev.ChatID, NoticeFailure)
		return fmt.Errorf("relay: pacing: %w", err)
	}

	var (
		status   chat.MessageRef
		artifact speech.Artifact
	)
	defer func() {
		p.deleteMessage(ctx, status, "status")
		if err := artifact.Remove(); err != nil {
			p.warn(ctx, "relay.artifact.remove", err)
		}
	}()

	mention := ""
	statusText := NoticeGenerating
	if d.Announce {
		mention = chat.Mention(ev)
		statusText = announceNotice(mention)
	}
	ref, err := p.chat.SendText(ctx, ev.ChatID, statusText)
	if err != nil {
		p.warn(ctx, "relay.status.send", err)
	} else {
		status = ref
	}

	artifact, err = p.synth.Synthesize(ctx, speech.Request{Text: d.Text, VoiceID: d.VoiceID, Credential: credential})
	p.deleteMessage(ctx, status, "status")
	status = chat.MessageRef{}

	if err != nil {
		reason := failureReason(err)
		if d.Announce {
			p.notify(ctx, ev.ChatID, attributedFailedNotice(mention, reason))
		} else {
			p.notify(ctx, ev.ChatID, synthesisFailedNotice(reason))
		}
		return fmt.Errorf("relay: synthesis: %w", err)
	}

	caption := ""
	if d.Announce {
		caption = attributionCaption(mention)
	}
	if err := p.chat.SendVoice(ctx, ev.ChatID, artifact.Path, caption); err != nil {
		return fmt.Errorf("relay: send voice: %w", err)
	}
	return nil
}

func failureReason(err error) string {
	var perr *speech.ProviderError
	if errors.As(err, &perr) {
		return perr.Reason()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "the voice service timed out"
	}
	return logger.SanitizeLimit(err.Error(), 200)
}

func (p *Pipeline) notify(ctx context.Context, chatID int64, text string) {
	if _, err := p.chat.SendText(ctx, chatID, text); err != nil {
		p.warn(ctx, "relay.notify", err)
	}
}

// deleteMessage is best-effort and runs even when ctx is already canceled.
func (p *Pipeline) deleteMessage(ctx context.Context, ref chat.MessageRef, what string) {
	if ref.IsZero() {
		return
	}
	if err := p.chat.Delete(context.WithoutCancel(ctx), ref); err != nil {
		p.warn(ctx, "relay."+what+".delete", err, slog.Int("message_id", ref.MessageID))
	}
}

func (p *Pipeline) warn(ctx context.Context, event string, err error, extras ...slog.Attr) {
	attrs := append([]slog.Attr{
		slog.String("event", event),
		slog.String("status", "fail"),
		slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
	}, extras...)
	logger.Relay.LogAttrs(ctx, slog.LevelWarn, "", attrs...)
}

func (p *Pipeline) logDecision(ctx context.Context, ev chat.Event, d Decision, err error, start time.Time) {
	if d == nil {
		d = DecisionFailed{}
	}
	attrs := []slog.Attr{
		slog.String("event", "relay.decision"),
		slog.String("status", logger.Status(err)),
		slog.String("decision", d.Kind()),
		slog.Int("text_len", utf8.RuneCountInString(ev.Text)),
		slog.Duration("duration", logger.Took(start)),
	}
	level := slog.LevelInfo
	switch v := d.(type) {
	case DecisionIgnored:
		level = slog.LevelDebug
		if !logger.ShouldSampleDebug() {
			return
		}
	case DecisionCommand:
		attrs = append(attrs, slog.String("verb", v.Verb))
	case DecisionNoCredential:
		attrs[1] = slog.String("status", "degraded")
		attrs = append(attrs, slog.String("cause", ErrNoCredential.Error()))
	case DecisionUsage:
		attrs = append(attrs, slog.String("form", v.Form.String()))
	case DecisionSpeech:
		form := FormDirect
		if v.Announce {
			form = FormAttributed
		}
		attrs = append(attrs, slog.String("form", form.String()), slog.String("voice_id", v.VoiceID))
	}
	if err != nil {
		level = slog.LevelWarn
		attrs = append(attrs, slog.String("err", logger.SanitizeLimit(err.Error(), 256)))
	}
	logger.Relay.LogAttrs(ctx, level, "", attrs...)
}
