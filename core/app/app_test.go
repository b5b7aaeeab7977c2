package app

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/m3rciful/voxbot/core/chat"
	coreconfig "github.com/m3rciful/voxbot/core/config"
	"github.com/m3rciful/voxbot/core/relay"
	"github.com/m3rciful/voxbot/core/speech"
	"github.com/m3rciful/voxbot/core/state"
	coretelegram "github.com/m3rciful/voxbot/core/telegram"
)

type recordingMessenger struct {
	texts []string
}

func (m *recordingMessenger) SendText(_ context.Context, chatID int64, text string) (chat.MessageRef, error) {
	m.texts = append(m.texts, text)
	return chat.MessageRef{ChatID: chatID, MessageID: len(m.texts)}, nil
}
func (m *recordingMessenger) Delete(context.Context, chat.MessageRef) error { return nil }
func (m *recordingMessenger) SendVoice(context.Context, int64, string, string) error {
	return nil
}
func (m *recordingMessenger) Typing(context.Context, int64) error { return nil }

type nopSynth struct{}

func (nopSynth) Synthesize(context.Context, speech.Request) (speech.Artifact, error) {
	return speech.Artifact{}, errors.New("not used")
}

func newApp(t *testing.T, opts ...Option) *App {
	t.Helper()
	cfg := &coreconfig.Config{}
	cfg.Telegram.Token = "x"
	cfg.State.Path = filepath.Join(t.TempDir(), "state.json")
	if err := coreconfig.Normalize(cfg); err != nil {
		t.Fatal(err)
	}
	store := state.New(state.NewFileBackend(cfg.State.Path), state.Options{DefaultVoiceID: cfg.Speech.DefaultVoiceID})
	return New(cfg, store, append([]Option{WithSynthesizer(nopSynth{})}, opts...)...)
}

func TestPipelineAnswersCommands(t *testing.T) {
	a := newApp(t)
	msgr := &recordingMessenger{}
	p := a.Pipeline(coretelegram.Runtime{Messenger: msgr})

	ev := chat.Event{ChatID: 9, ChatType: chat.TypePrivate, SenderID: 5, MessageID: 1, Text: "/help"}
	d, err := p.Handle(context.Background(), ev)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := d.(relay.DecisionCommand); !ok {
		t.Fatalf("decision = %#v", d)
	}
	if len(msgr.texts) != 1 || !strings.Contains(msgr.texts[0], "tts") {
		t.Fatalf("replies = %v", msgr.texts)
	}
}

func TestRunOptions(t *testing.T) {
	a := newApp(t)
	opts, err := a.TelegramRunOptions()
	if err != nil {
		t.Fatal(err)
	}
	if opts.Registry != a.Registry() || opts.Routes == nil || len(opts.HTTP) != 1 || len(opts.Middlewares) == 0 {
		t.Fatalf("options = %+v", opts)
	}
	routes := opts.Routes(coretelegram.Runtime{Messenger: &recordingMessenger{}})
	if len(routes) == 0 {
		t.Fatal("no routes")
	}
}

func TestCloseRunsClosersOnce(t *testing.T) {
	var calls []int
	a := newApp(t,
		WithCloser(func() error { calls = append(calls, 1); return nil }),
		WithCloser(func() error { calls = append(calls, 2); return errors.New("second") }),
	)
	opts, _ := a.TelegramRunOptions()
	if err := opts.OnStop(context.Background(), coretelegram.Runtime{}); err == nil {
		t.Fatal("expected closer error")
	}
	if len(calls) != 2 || calls[0] != 2 || calls[1] != 1 {
		t.Fatalf("calls = %v", calls)
	}
	if err := a.Close(); err != nil || len(calls) != 2 {
		t.Fatalf("second close: %v %v", err, calls)
	}
}

func TestDrainWaitsForRoutedPipeline(t *testing.T) {
	a := newApp(t)
	opts, err := a.TelegramRunOptions()
	if err != nil {
		t.Fatal(err)
	}
	if opts.Drain == nil {
		t.Fatal("Drain not wired")
	}
	if err := opts.Drain(context.Background()); err != nil {
		t.Fatalf("Drain before routes: %v", err)
	}

	opts.Routes(coretelegram.Runtime{Messenger: &recordingMessenger{}})
	if a.pipeline == nil {
		t.Fatal("Routes did not keep the pipeline")
	}
	if _, err := a.pipeline.Handle(context.Background(), chat.Event{ChatID: 9, ChatType: chat.TypePrivate, SenderID: 5, MessageID: 1, Text: "/help"}); err != nil {
		t.Fatal(err)
	}
	if err := opts.Drain(context.Background()); err != nil {
		t.Fatalf("Drain when idle: %v", err)
	}
}
