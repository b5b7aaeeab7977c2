package commands

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/m3rciful/voxbot/core/logger"
)

// Handler executes one command invocation.
type Handler func(ctx context.Context, req Request) error

// Command represents a bot command with its handler, description, and metadata.
type Command struct {
	Handler     Handler
	Description string
	AdminOnly   bool
	Hidden      bool
	Aliases     []string
}

// MenuEntry is a command as published in the platform's command menu.
type MenuEntry struct {
	Verb        string
	Description string
}

// Registry holds the verb table.
type Registry struct {
	commands map[string]Command
	aliases  map[string]string
	notFound Handler
}

// NewRegistry creates an empty Registry. Unknown verbs are ignored until
// SetNotFound installs a handler.
func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[string]Command),
		aliases:  make(map[string]string),
	}
}

// Register adds a command under name ("status" or "/status"). Invalid and
// duplicate registrations are logged and skipped.
func (r *Registry) Register(name string, cmd Command) {
	verb := normalizeVerb(name)
	if r == nil || verb == "" || cmd.Handler == nil || cmd.Description == "" {
		logger.TWire.LogAttrs(context.Background(), slog.LevelWarn, "",
			slog.String("event", "register.command.skip"),
			slog.String("name", name),
			slog.String("reason", "invalid"),
		)
		return
	}
	if _, exists := r.commands[verb]; exists {
		logger.TWire.LogAttrs(context.Background(), slog.LevelWarn, "",
			slog.String("event", "register.command.duplicate"),
			slog.String("name", verb),
		)
		return
	}
	r.commands[verb] = cmd
	for _, alias := range cmd.Aliases {
		if a := normalizeVerb(alias); a != "" && a != verb {
			r.aliases[a] = verb
		}
	}
}

// Lookup resolves a verb or alias to its canonical name and command.
func (r *Registry) Lookup(verb string) (string, Command, bool) {
	verb = normalizeVerb(verb)
	if cmd, ok := r.commands[verb]; ok {
		return verb, cmd, true
	}
	if canonical, ok := r.aliases[verb]; ok {
		return canonical, r.commands[canonical], true
	}
	return "", Command{}, false
}

// List returns non-hidden commands sorted by verb. visibleOnly also drops
// admin-only commands.
func (r *Registry) List(visibleOnly bool) []MenuEntry {
	list := make([]MenuEntry, 0, len(r.commands))
	for verb, meta := range r.commands {
		if meta.Hidden || (visibleOnly && meta.AdminOnly) {
			continue
		}
		list = append(list, MenuEntry{Verb: verb, Description: meta.Description})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Verb < list[j].Verb })
	return list
}

// Len returns the number of registered commands.
func (r *Registry) Len() int {
	return len(r.commands)
}

// SetNotFound installs the handler for unknown verbs.
func (r *Registry) SetNotFound(h Handler) {
	r.notFound = h
}

// NotFound returns the handler for unknown verbs, or nil.
func (r *Registry) NotFound() Handler {
	return r.notFound
}

func normalizeVerb(name string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "/"))
}
