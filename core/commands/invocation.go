// Package commands recognizes slash commands and dispatches them to an
// injected verb table. The router performs no authorization; handlers that
// need it are wrapped with RequireAdmin.
package commands

import (
	"strings"
	"unicode"
)

// Invocation is a recognized command: "/verb[@target] args".
type Invocation struct {
	Verb   string
	Args   string
	Target string
}

// Fields splits the arguments on whitespace.
func (inv Invocation) Fields() []string {
	return strings.Fields(inv.Args)
}

// Classify reports whether text is a command and extracts its parts. The verb
// is lowercased; Args is the trimmed remainder.
func Classify(text string) (Invocation, bool) {
	text = strings.TrimLeftFunc(text, unicode.IsSpace)
	if !strings.HasPrefix(text, "/") {
		return Invocation{}, false
	}
	head, rest := text[1:], ""
	if i := strings.IndexFunc(head, unicode.IsSpace); i >= 0 {
		head, rest = head[:i], head[i:]
	}
	verb, target, _ := strings.Cut(head, "@")
	if verb == "" {
		return Invocation{}, false
	}
	return Invocation{
		Verb:   strings.ToLower(verb),
		Args:   strings.TrimSpace(rest),
		Target: target,
	}, true
}

// AddressedTo reports whether the invocation targets botName. Commands
// without an explicit @target address every bot in the chat.
func (inv Invocation) AddressedTo(botName string) bool {
	if inv.Target == "" || botName == "" {
		return true
	}
	return strings.EqualFold(inv.Target, strings.TrimPrefix(botName, "@"))
}
