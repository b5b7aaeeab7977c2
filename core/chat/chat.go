// Package chat describes inbound chat events and the outbound operations the
// relay needs from a chat platform. It has no platform dependencies so the
// pipeline and the command table can be tested with fakes.
package chat

import "context"

// Conversation types as reported by the platform.
const (
	TypePrivate    = "private"
	TypeGroup      = "group"
	TypeSupergroup = "supergroup"
	TypeChannel    = "channel"
)

// Event is one inbound text message.
type Event struct {
	UpdateID       int
	MessageID      int
	ChatID         int64
	ChatType       string
	SenderID       int64
	SenderName     string
	SenderUsername string
	Text           string
}

// IsGroup reports whether the event came from a group conversation.
func (e Event) IsGroup() bool {
	return e.ChatType == TypeGroup || e.ChatType == TypeSupergroup
}

// Ref points at the triggering message.
func (e Event) Ref() MessageRef {
	return MessageRef{ChatID: e.ChatID, MessageID: e.MessageID}
}

// MessageRef identifies a sent or received message.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// IsZero reports whether the reference is unset.
func (r MessageRef) IsZero() bool {
	return r.MessageID == 0
}

// Messenger is the outbound side of the chat platform. Text and captions are
// HTML formatted.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string) (MessageRef, error)
	Delete(ctx context.Context, ref MessageRef) error
	SendVoice(ctx context.Context, chatID int64, path, caption string) error
	Typing(ctx context.Context, chatID int64) error
}
