package router

import (
	"context"
	"errors"
	"testing"

	"github.com/m3rciful/voxbot/core/chat"
	"github.com/m3rciful/voxbot/core/relay"

	tele "gopkg.in/telebot.v4"
)

type stubPipeline struct {
	got      []chat.Event
	decision relay.Decision
	err      error
}

func (s *stubPipeline) Handle(_ context.Context, ev chat.Event) (relay.Decision, error) {
	s.got = append(s.got, ev)
	return s.decision, s.err
}

func newContext(t *testing.T, upd tele.Update) tele.Context {
	t.Helper()
	b, err := tele.NewBot(tele.Settings{Token: "test", Offline: true})
	if err != nil {
		t.Fatal(err)
	}
	return b.NewContext(upd)
}

func TestTextRoutesForwardEvents(t *testing.T) {
	p := &stubPipeline{decision: relay.DecisionCommand{Verb: "help"}}
	routes := TextRoutes(p)
	if len(routes) != 1 || routes[0].Endpoint != tele.OnText {
		t.Fatalf("routes = %+v", routes)
	}

	c := newContext(t, tele.Update{ID: 4, Message: &tele.Message{
		ID:     11,
		Text:   "/help",
		Sender: &tele.User{ID: 3, FirstName: "Bo"},
		Chat:   &tele.Chat{ID: 3, Type: tele.ChatPrivate},
	}})
	if err := routes[0].Handler(c); err != nil {
		t.Fatal(err)
	}
	if len(p.got) != 1 {
		t.Fatalf("events = %v", p.got)
	}
	ev := p.got[0]
	if ev.UpdateID != 4 || ev.MessageID != 11 || ev.SenderID != 3 || ev.Text != "/help" {
		t.Fatalf("event = %+v", ev)
	}
}

func TestTextRoutesSwallowPipelineErrors(t *testing.T) {
	p := &stubPipeline{decision: relay.DecisionFailed{}, err: errors.New("synthesis")}
	c := newContext(t, tele.Update{ID: 1, Message: &tele.Message{
		Text: "tts hi", Chat: &tele.Chat{ID: 1, Type: tele.ChatPrivate}, Sender: &tele.User{ID: 1},
	}})
	if err := TextRoutes(p)[0].Handler(c); err != nil {
		t.Fatalf("err = %v", err)
	}
}

func TestTextRoutesSkipWithoutMessage(t *testing.T) {
	p := &stubPipeline{}
	c := newContext(t, tele.Update{ID: 1})
	if err := TextRoutes(p)[0].Handler(c); err != nil {
		t.Fatal(err)
	}
	if len(p.got) != 0 {
		t.Fatal("pipeline called without a message")
	}
}

type codedErr struct{}

func (codedErr) Error() string { return "x" }
func (codedErr) Code() string  { return "speech http 401" }

func TestDeriveErrorCode(t *testing.T) {
	if got := deriveErrorCode(codedErr{}); got != "SPEECH_HTTP_401" {
		t.Fatalf("coded = %q", got)
	}
	if got := deriveErrorCode(&wrapErr{codedErr{}}); got != "SPEECH_HTTP_401" {
		t.Fatalf("wrapped = %q", got)
	}
	if got := deriveErrorCode(errors.New("plain")); got != "ERRORSTRING" {
		t.Fatalf("plain = %q", got)
	}
}

type wrapErr struct{ inner error }

func (w *wrapErr) Error() string { return "wrap: " + w.inner.Error() }
func (w *wrapErr) Unwrap() error { return w.inner }
