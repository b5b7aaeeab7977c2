package telegram

import (
	"testing"

	"github.com/m3rciful/voxbot/core/chat"
	"github.com/m3rciful/voxbot/core/commands"

	tele "gopkg.in/telebot.v4"
)

func TestEventFromMessage(t *testing.T) {
	msg := &tele.Message{
		ID:     12,
		Text:   "voiceme hello",
		Chat:   &tele.Chat{ID: -100, Type: tele.ChatSuperGroup},
		Sender: &tele.User{ID: 42, FirstName: "Ann", LastName: "Lee", Username: "ann"},
	}
	ev, ok := EventFromMessage(7, msg)
	if !ok {
		t.Fatal("expected event")
	}
	want := chat.Event{
		UpdateID: 7, MessageID: 12, ChatID: -100, ChatType: chat.TypeSupergroup,
		SenderID: 42, SenderName: "Ann Lee", SenderUsername: "ann", Text: "voiceme hello",
	}
	if ev != want {
		t.Fatalf("event = %+v", ev)
	}
	if !ev.IsGroup() {
		t.Fatal("supergroup should count as group")
	}
}

func TestEventFromMessageMissing(t *testing.T) {
	if _, ok := EventFromMessage(1, nil); ok {
		t.Fatal("nil message should be rejected")
	}
	if _, ok := EventFromMessage(1, &tele.Message{}); ok {
		t.Fatal("message without chat should be rejected")
	}
	ev, ok := EventFromMessage(1, &tele.Message{Chat: &tele.Chat{ID: 1, Type: tele.ChatChannel}, Text: "x"})
	if !ok || ev.SenderID != 0 || ev.SenderName != "" {
		t.Fatalf("channel post = %+v", ev)
	}
}

func TestMenuCommandsHidesAdminVerbs(t *testing.T) {
	reg := commands.NewRegistry()
	commands.RegisterBuiltins(reg, commands.Options{DirectPrefix: "tts", AttributedPrefix: "voiceme", MaxTextLength: 10})
	cmds := MenuCommands(reg)
	if len(cmds) == 0 {
		t.Fatal("expected public commands")
	}
	for _, c := range cmds {
		if c.Text == "addkey" || c.Text == "status" {
			t.Fatalf("admin verb %q in menu", c.Text)
		}
		if c.Description == "" {
			t.Fatalf("verb %q without description", c.Text)
		}
	}
}
