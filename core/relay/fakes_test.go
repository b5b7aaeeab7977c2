package relay

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/m3rciful/voxbot/core/chat"
	"github.com/m3rciful/voxbot/core/commands"
	"github.com/m3rciful/voxbot/core/speech"
	"github.com/m3rciful/voxbot/core/state"
)

type memBackend struct {
	mu   sync.Mutex
	data []byte
}

func (m *memBackend) Read(context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, state.ErrNoSnapshot
	}
	return m.data, nil
}

func (m *memBackend) Write(_ context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append([]byte(nil), data...)
	return nil
}

// fakeMessenger records every outbound operation in order. The *Err fields
// make the matching call fail after it has been recorded.
type fakeMessenger struct {
	mu     sync.Mutex
	nextID int
	ops    []string
	texts  []string
	voices []sentVoice

	textErr   error
	deleteErr error
	voiceErr  error
	typingErr error
}

type sentVoice struct {
	path    string
	caption string
	existed bool
}

func (f *fakeMessenger) SendText(_ context.Context, chatID int64, text string) (chat.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.textErr != nil {
		f.ops = append(f.ops, "text:fail")
		return chat.MessageRef{}, f.textErr
	}
	f.nextID++
	id := 1000 + f.nextID
	f.ops = append(f.ops, fmt.Sprintf("text:%d", id))
	f.texts = append(f.texts, text)
	return chat.MessageRef{ChatID: chatID, MessageID: id}, nil
}

func (f *fakeMessenger) Delete(_ context.Context, ref chat.MessageRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, fmt.Sprintf("delete:%d", ref.MessageID))
	return f.deleteErr
}

func (f *fakeMessenger) SendVoice(_ context.Context, _ int64, path, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := os.Stat(path)
	f.ops = append(f.ops, "voice")
	f.voices = append(f.voices, sentVoice{path: path, caption: caption, existed: err == nil})
	return f.voiceErr
}

func (f *fakeMessenger) Typing(context.Context, int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "typing")
	return f.typingErr
}

// fakeSynth writes a real file so artifact cleanup can be observed.
type fakeSynth struct {
	mu       sync.Mutex
	dir      string
	calls    []speech.Request
	artifact string
	err      error
	panicMsg string
}

func (f *fakeSynth) Synthesize(_ context.Context, req speech.Request) (speech.Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.err != nil {
		return speech.Artifact{}, f.err
	}
	f.artifact = filepath.Join(f.dir, fmt.Sprintf("audio-%d.mp3", len(f.calls)))
	if err := os.WriteFile(f.artifact, []byte("mp3"), 0o600); err != nil {
		return speech.Artifact{}, err
	}
	return speech.Artifact{Path: f.artifact}, nil
}

type countingPacer struct {
	calls int
	err   error
	// gate, when set, blocks Pace until it is closed.
	gate    chan struct{}
	entered chan struct{}
}

func (p *countingPacer) Pace(context.Context) error {
	p.calls++
	if p.entered != nil {
		close(p.entered)
	}
	if p.gate != nil {
		<-p.gate
	}
	return p.err
}

type harness struct {
	store *state.Store
	chat  *fakeMessenger
	synth *fakeSynth
	pacer *countingPacer
	pipe  *Pipeline
	reg   *commands.Registry
}

func newHarness(t *testing.T, keys ...string) *harness {
	t.Helper()
	ctx := context.Background()
	st, err := state.Open(ctx, &memBackend{}, state.Options{RootAdmins: []int64{1}, DefaultVoiceID: "default-voice"})
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) > 0 {
		if _, err := st.SeedCredentials(ctx, keys); err != nil {
			t.Fatal(err)
		}
	}
	h := &harness{
		store: st,
		chat:  &fakeMessenger{},
		synth: &fakeSynth{dir: t.TempDir()},
		pacer: &countingPacer{},
		reg:   commands.NewRegistry(),
	}
	h.pipe = New(st, commands.NewRouter(h.reg, "voxbot"), h.chat, h.synth, Options{
		DirectPrefix:     "tts",
		AttributedPrefix: "voiceme",
		MaxTextLength:    1000,
		Pacer:            h.pacer,
	})
	return h
}

func privateEvent(text string) chat.Event {
	return chat.Event{UpdateID: 1, MessageID: 10, ChatID: 500, ChatType: chat.TypePrivate, SenderID: 42, SenderName: "Ann", Text: text}
}

func groupEvent(text string) chat.Event {
	ev := privateEvent(text)
	ev.ChatID = -100500
	ev.ChatType = chat.TypeSupergroup
	return ev
}

var errProvider = errors.New("provider exploded")
