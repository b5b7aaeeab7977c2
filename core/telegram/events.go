package telegram

import (
	"strings"

	"github.com/m3rciful/voxbot/core/chat"

	tele "gopkg.in/telebot.v4"
)

// EventFromContext converts an incoming text message to a chat.Event.
// It reports false for updates without a message.
func EventFromContext(c tele.Context) (chat.Event, bool) {
	return EventFromMessage(c.Update().ID, c.Message())
}

// EventFromMessage converts a message; updateID is informational.
func EventFromMessage(updateID int, msg *tele.Message) (chat.Event, bool) {
	if msg == nil || msg.Chat == nil {
		return chat.Event{}, false
	}
	ev := chat.Event{
		UpdateID:  updateID,
		MessageID: msg.ID,
		ChatID:    msg.Chat.ID,
		ChatType:  string(msg.Chat.Type),
		Text:      msg.Text,
	}
	if u := msg.Sender; u != nil {
		ev.SenderID = u.ID
		ev.SenderName = strings.TrimSpace(u.FirstName + " " + u.LastName)
		ev.SenderUsername = u.Username
	}
	return ev, true
}
