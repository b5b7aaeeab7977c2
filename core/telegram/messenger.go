package telegram

import (
	"context"
	"strconv"

	"github.com/m3rciful/voxbot/core/chat"
	tghelpers "github.com/m3rciful/voxbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// API is the subset of *tele.Bot the messenger needs.
type API interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	Delete(msg tele.Editable) error
	Notify(to tele.Recipient, action tele.ChatAction, threadID ...int) error
}

// Messenger implements chat.Messenger on top of the Bot API. Text is sent
// as HTML; deletes go through the async dispatcher.
type Messenger struct {
	api API
}

var _ chat.Messenger = (*Messenger)(nil)

// NewMessenger wraps a bot.
func NewMessenger(api API) *Messenger {
	return &Messenger{api: api}
}

func (m *Messenger) SendText(ctx context.Context, chatID int64, text string) (chat.MessageRef, error) {
	msg, err := m.api.Send(tele.ChatID(chatID), text, tele.ModeHTML)
	if err != nil {
		return chat.MessageRef{}, err
	}
	tghelpers.CountersFrom(ctx).AddMessage()
	ref := chat.MessageRef{ChatID: chatID, MessageID: msg.ID}
	if msg.Chat != nil {
		ref.ChatID = msg.Chat.ID
	}
	return ref, nil
}

func (m *Messenger) Delete(ctx context.Context, ref chat.MessageRef) error {
	if ref.IsZero() {
		return nil
	}
	stored := tele.StoredMessage{MessageID: strconv.Itoa(ref.MessageID), ChatID: ref.ChatID}
	counters := tghelpers.CountersFrom(ctx)
	return tghelpers.Async(ctx, "delete", "deleteMessage", func() error {
		if err := m.api.Delete(stored); err != nil {
			return err
		}
		counters.AddDelete()
		return nil
	})
}

func (m *Messenger) SendVoice(ctx context.Context, chatID int64, path, caption string) error {
	voice := &tele.Voice{File: tele.FromDisk(path), Caption: caption}
	if _, err := m.api.Send(tele.ChatID(chatID), voice, tele.ModeHTML); err != nil {
		return err
	}
	tghelpers.CountersFrom(ctx).AddVoice()
	return nil
}

func (m *Messenger) Typing(_ context.Context, chatID int64) error {
	return m.api.Notify(tele.ChatID(chatID), tele.RecordingAudio)
}
