package chat

import (
	"fmt"
	"html"
	"strings"
)

// Mention renders an HTML link to the sender that notifies them in groups.
func Mention(e Event) string {
	name := strings.TrimSpace(e.SenderName)
	if name == "" && e.SenderUsername != "" {
		name = "@" + e.SenderUsername
	}
	if name == "" {
		name = fmt.Sprintf("user %d", e.SenderID)
	}
	return fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, e.SenderID, html.EscapeString(name))
}
