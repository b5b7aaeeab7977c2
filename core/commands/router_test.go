package commands

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/m3rciful/voxbot/core/chat"
	"github.com/m3rciful/voxbot/core/state"
)

type memBackend struct {
	mu   sync.Mutex
	data []byte
	fail error
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
	if m.fail != nil {
		return m.fail
	}
	m.data = append([]byte(nil), data...)
	return nil
}

type fakeMessenger struct {
	mu      sync.Mutex
	texts   []string
	deleted []chat.MessageRef
}

func (f *fakeMessenger) SendText(_ context.Context, chatID int64, text string) (chat.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return chat.MessageRef{ChatID: chatID, MessageID: 100 + len(f.texts)}, nil
}

func (f *fakeMessenger) Delete(_ context.Context, ref chat.MessageRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ref)
	return nil
}

func (f *fakeMessenger) SendVoice(context.Context, int64, string, string) error { return nil }
func (f *fakeMessenger) Typing(context.Context, int64) error                      { return nil }

func (f *fakeMessenger) last(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.texts) == 0 {
		t.Fatal("no message sent")
	}
	return f.texts[len(f.texts)-1]
}

const rootAdmin = int64(1)

func newStore(t *testing.T) (*state.Store, *memBackend) {
	t.Helper()
	backend := &memBackend{}
	s, err := state.Open(context.Background(), backend, state.Options{
		RootAdmins:     []int64{rootAdmin},
		DefaultVoiceID: "default-voice",
	})
	if err != nil {
		t.Fatal(err)
	}
	return s, backend
}

func request(text string, sender int64, st *state.Store, m *fakeMessenger) Request {
	inv, _ := Classify(text)
	return Request{
		Invocation: inv,
		Event:      chat.Event{MessageID: 10, ChatID: 500, ChatType: chat.TypePrivate, SenderID: sender, Text: text},
		State:      st,
		Chat:       m,
	}
}

func TestRouterDispatch(t *testing.T) {
	reg := NewRegistry()
	var got []string
	reg.Register("/ping", Command{
		Description: "ping",
		Aliases:     []string{"p"},
		Handler: func(_ context.Context, req Request) error {
			got = append(got, req.Invocation.Verb+":"+req.Invocation.Args)
			return nil
		},
	})
	rt := NewRouter(reg, "voxbot")
	st, _ := newStore(t)
	m := &fakeMessenger{}
	ctx := context.Background()

	for _, text := range []string{"/ping a", "/P b", "/ping@voxbot c", "/ping@other d", "/unknown"} {
		if err := rt.Dispatch(ctx, request(text, 5, st, m)); err != nil {
			t.Fatalf("Dispatch(%q): %v", text, err)
		}
	}
	want := []string{"ping:a", "p:b", "ping:c"}
	if len(got) != len(want) {
		t.Fatalf("handled = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("handled = %v, want %v", got, want)
		}
	}
	if len(m.texts) != 0 {
		t.Fatalf("unknown verb must be silent, sent %v", m.texts)
	}
}

func TestRouterNotFoundHandler(t *testing.T) {
	reg := NewRegistry()
	reg.SetNotFound(func(ctx context.Context, req Request) error {
		return req.Reply(ctx, "unknown "+req.Invocation.Verb)
	})
	st, _ := newStore(t)
	m := &fakeMessenger{}
	if err := NewRouter(reg, "").Dispatch(context.Background(), request("/nope", 5, st, m)); err != nil {
		t.Fatal(err)
	}
	if got := m.last(t); got != "unknown nope" {
		t.Fatalf("reply = %q", got)
	}
}

func TestRouterPropagatesHandlerError(t *testing.T) {
	reg := NewRegistry()
	boom := errors.New("boom")
	reg.Register("fail", Command{Description: "x", Handler: func(context.Context, Request) error { return boom }})
	st, _ := newStore(t)
	err := NewRouter(reg, "").Dispatch(context.Background(), request("/fail", 5, st, &fakeMessenger{}))
	if !errors.Is(err, boom) {
		t.Fatalf("Dispatch error = %v", err)
	}
}

func TestRegistrySkipsInvalidAndDuplicates(t *testing.T) {
	reg := NewRegistry()
	h := func(context.Context, Request) error { return nil }
	reg.Register("", Command{Handler: h, Description: "x"})
	reg.Register("nodesc", Command{Handler: h})
	reg.Register("nohandler", Command{Description: "x"})
	reg.Register("a", Command{Handler: h, Description: "first"})
	reg.Register("/a", Command{Handler: h, Description: "second"})
	reg.Register("b", Command{Handler: h, Description: "admin", AdminOnly: true})
	reg.Register("c", Command{Handler: h, Description: "hidden", Hidden: true})

	if reg.Len() != 3 {
		t.Fatalf("Len = %d, want 3", reg.Len())
	}
	if _, cmd, _ := reg.Lookup("a"); cmd.Description != "first" {
		t.Fatalf("duplicate replaced the original: %q", cmd.Description)
	}
	if got := reg.List(true); len(got) != 1 || got[0].Verb != "a" {
		t.Fatalf("List(true) = %v", got)
	}
	if got := reg.List(false); len(got) != 2 || got[1].Verb != "b" {
		t.Fatalf("List(false) = %v", got)
	}
}

func TestRequireAdmin(t *testing.T) {
	st, _ := newStore(t)
	m := &fakeMessenger{}
	called := 0
	h := RequireAdmin(func(context.Context, Request) error {
		called++
		return nil
	})
	ctx := context.Background()

	if err := h(ctx, request("/x", 5, st, m)); err != nil {
		t.Fatal(err)
	}
	if called != 0 || m.last(t) != NoticeAdminOnly {
		t.Fatalf("non-admin reached handler (called=%d, texts=%v)", called, m.texts)
	}
	if err := h(ctx, request("/x", rootAdmin, st, m)); err != nil {
		t.Fatal(err)
	}
	if called != 1 {
		t.Fatal("admin was rejected")
	}
}
