package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/m3rciful/voxbot/core/logger"
)

// Backend stores the encoded snapshot. Write must replace the previous
// snapshot atomically; Read returns ErrNoSnapshot when nothing was written.
type Backend interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
}

// Options configure a Store.
type Options struct {
	// RootAdmins are seeded from configuration on every boot. They are
	// always admins, are never persisted and cannot be removed at runtime.
	RootAdmins []int64
	// DefaultVoiceID is reported for users without an override.
	DefaultVoiceID string
}

// Stats summarizes the store for status reports.
type Stats struct {
	Credentials    int
	Cursor         int
	RootAdmins     int
	GrantedAdmins  int
	VoiceOverrides int
	Maintenance    bool
}

// Store is the process-wide bot state. It is safe for concurrent use.
type Store struct {
	backend      Backend
	defaultVoice string
	rootAdmins   map[int64]struct{}

	mu          sync.Mutex
	admins      map[int64]struct{}
	credentials []string
	cursor      int
	userVoice   map[int64]string
	maintenance bool
}

// New returns an empty store. Call Load before serving traffic.
func New(backend Backend, opts Options) *Store {
	roots := make(map[int64]struct{}, len(opts.RootAdmins))
	for _, id := range opts.RootAdmins {
		if id != 0 {
			roots[id] = struct{}{}
		}
	}
	return &Store{
		backend:      backend,
		defaultVoice: opts.DefaultVoiceID,
		rootAdmins:   roots,
		admins:       make(map[int64]struct{}),
		userVoice:    make(map[int64]string),
	}
}

// Open builds a store and hydrates it from the backend.
func Open(ctx context.Context, backend Backend, opts Options) (*Store, error) {
	s := New(backend, opts)
	if err := s.Load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Load replaces in-memory state with the persisted snapshot. A missing
// snapshot leaves defaults in place; an unreadable one yields ErrCorrupt.
func (s *Store) Load(ctx context.Context) error {
	start := time.Now()
	data, err := s.backend.Read(ctx)
	if errors.Is(err, ErrNoSnapshot) {
		logger.State.LogAttrs(ctx, slog.LevelInfo, "",
			slog.String("event", "state.load"),
			slog.String("status", "skip"),
			slog.String("cause", "no_snapshot"),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("state: read snapshot: %w", err)
	}
	snap, err := decodeSnapshot(data)
	if err != nil {
		logger.State.LogAttrs(ctx, slog.LevelError, "",
			slog.String("event", "state.load"),
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return err
	}

	s.mu.Lock()
	s.apply(snap)
	stats := s.statsLocked()
	s.mu.Unlock()

	logger.State.LogAttrs(ctx, slog.LevelInfo, "",
		slog.String("event", "state.load"),
		slog.String("status", "ok"),
		slog.Int("credentials", stats.Credentials),
		slog.Int("admins", stats.GrantedAdmins),
		slog.Int("voices", stats.VoiceOverrides),
		slog.Bool("maintenance", stats.Maintenance),
		slog.Duration("duration", logger.Took(start)),
	)
	return nil
}

// Persist writes the full current state. Calling it twice without an
// intervening mutation writes identical bytes.
func (s *Store) Persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked(ctx)
}

func (s *Store) persistLocked(ctx context.Context) error {
	data, err := s.snapshotLocked().encode()
	if err != nil {
		return err
	}
	if err := s.backend.Write(ctx, data); err != nil {
		return fmt.Errorf("state: write snapshot: %w", err)
	}
	return nil
}

// mutate applies fn and persists. When either step fails the previous
// state is restored.
func (s *Store) mutate(ctx context.Context, op string, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.snapshotLocked()
	if err := fn(); err != nil {
		s.apply(prev)
		return err
	}
	if err := s.persistLocked(ctx); err != nil {
		s.apply(prev)
		logger.State.LogAttrs(ctx, slog.LevelError, "",
			slog.String("event", "state.persist"),
			slog.String("status", "fail"),
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return err
	}
	logger.State.LogAttrs(ctx, slog.LevelDebug, "",
		slog.String("event", "state.persist"),
		slog.String("status", "ok"),
		slog.String("op", op),
	)
	return nil
}

// snapshotLocked deep-copies the persisted part of the state.
func (s *Store) snapshotLocked() snapshot {
	admins := slices.Sorted(maps.Keys(s.admins))
	return snapshot{
		Version:        snapshotVersion,
		Credentials:    slices.Clone(s.credentials),
		RotationCursor: s.cursor,
		UserVoice:      maps.Clone(s.userVoice),
		Maintenance:    s.maintenance,
		Admins:         admins,
	}
}

func (s *Store) apply(snap snapshot) {
	s.credentials = slices.Clone(snap.Credentials)
	s.cursor = snap.RotationCursor
	s.userVoice = maps.Clone(snap.UserVoice)
	if s.userVoice == nil {
		s.userVoice = make(map[int64]string)
	}
	s.maintenance = snap.Maintenance
	s.admins = make(map[int64]struct{}, len(snap.Admins))
	for _, id := range snap.Admins {
		s.admins[id] = struct{}{}
	}
}

// NextCredential hands out credentials round-robin. It returns false when
// the pool is empty. Reading and advancing the cursor happen under one
// lock; a failed cursor write is logged and does not fail the allocation.
func (s *Store) NextCredential(ctx context.Context) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.credentials) == 0 {
		s.cursor = 0
		return "", false
	}
	if s.cursor >= len(s.credentials) {
		s.cursor = 0
	}
	key := s.credentials[s.cursor]
	s.cursor = (s.cursor + 1) % len(s.credentials)

	if err := s.persistLocked(ctx); err != nil {
		logger.State.LogAttrs(ctx, slog.LevelWarn, "",
			slog.String("event", "state.cursor.persist"),
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	}
	return key, true
}

// AddCredential appends a credential to the end of the rotation.
func (s *Store) AddCredential(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("%w: empty credential", ErrInvalidInput)
	}
	return s.mutate(ctx, "add_credential", func() error {
		s.credentials = append(s.credentials, key)
		return nil
	})
}

// SeedCredentials adds keys that are not in the pool yet and reports how
// many were added.
func (s *Store) SeedCredentials(ctx context.Context, keys []string) (int, error) {
	added := 0
	err := s.mutate(ctx, "seed_credentials", func() error {
		for _, k := range keys {
			k = strings.TrimSpace(k)
			if k == "" || slices.Contains(s.credentials, k) {
				continue
			}
			s.credentials = append(s.credentials, k)
			added++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

// RemoveCredential removes the first occurrence of key. The cursor keeps
// pointing at the credential that would have been handed out next.
func (s *Store) RemoveCredential(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("%w: empty credential", ErrInvalidInput)
	}
	return s.mutate(ctx, "remove_credential", func() error {
		idx := slices.Index(s.credentials, key)
		if idx < 0 {
			return fmt.Errorf("%w: credential", ErrNotFound)
		}
		s.removeCredentialLocked(idx)
		return nil
	})
}

// RemoveCredentialAt removes the credential at a 1-based position as shown
// by Credentials listings. Duplicates elsewhere in the pool are untouched.
func (s *Store) RemoveCredentialAt(ctx context.Context, position int) (string, error) {
	var removed string
	err := s.mutate(ctx, "remove_credential", func() error {
		if position < 1 || position > len(s.credentials) {
			return fmt.Errorf("%w: position %d", ErrNotFound, position)
		}
		removed = s.credentials[position-1]
		s.removeCredentialLocked(position - 1)
		return nil
	})
	if err != nil {
		return "", err
	}
	return removed, nil
}

// removeCredentialLocked drops credentials[idx] and shifts the cursor so
// the rotation continues with the same next credential.
func (s *Store) removeCredentialLocked(idx int) {
	s.credentials = slices.Delete(s.credentials, idx, idx+1)
	if idx < s.cursor {
		s.cursor--
	}
	if s.cursor >= len(s.credentials) {
		s.cursor = 0
	}
}

// SetUserVoice assigns a voice to a user.
func (s *Store) SetUserVoice(ctx context.Context, userID int64, voiceID string) error {
	voiceID = strings.TrimSpace(voiceID)
	if userID == 0 || voiceID == "" {
		return fmt.Errorf("%w: user and voice are required", ErrInvalidInput)
	}
	return s.mutate(ctx, "set_user_voice", func() error {
		s.userVoice[userID] = voiceID
		return nil
	})
}

// ResetUserVoice drops a user's override so the default voice applies again.
func (s *Store) ResetUserVoice(ctx context.Context, userID int64) error {
	return s.mutate(ctx, "reset_user_voice", func() error {
		if _, ok := s.userVoice[userID]; !ok {
			return fmt.Errorf("%w: voice override for %d", ErrNotFound, userID)
		}
		delete(s.userVoice, userID)
		return nil
	})
}

// SetMaintenance toggles maintenance mode.
func (s *Store) SetMaintenance(ctx context.Context, on bool) error {
	return s.mutate(ctx, "set_maintenance", func() error {
		s.maintenance = on
		return nil
	})
}

// AddAdmin grants admin rights to a user.
func (s *Store) AddAdmin(ctx context.Context, userID int64) error {
	if userID == 0 {
		return fmt.Errorf("%w: empty user id", ErrInvalidInput)
	}
	return s.mutate(ctx, "add_admin", func() error {
		s.admins[userID] = struct{}{}
		return nil
	})
}

// RemoveAdmin revokes admin rights granted at runtime. Root admins cannot be removed.
func (s *Store) RemoveAdmin(ctx context.Context, userID int64) error {
	if _, root := s.rootAdmins[userID]; root {
		return fmt.Errorf("%w: %d is configured as a root admin", ErrInvalidInput, userID)
	}
	return s.mutate(ctx, "remove_admin", func() error {
		if _, ok := s.admins[userID]; !ok {
			return fmt.Errorf("%w: admin %d", ErrNotFound, userID)
		}
		delete(s.admins, userID)
		return nil
	})
}

// IsAdmin reports whether userID is a root or granted admin.
func (s *Store) IsAdmin(userID int64) bool {
	if _, ok := s.rootAdmins[userID]; ok {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.admins[userID]
	return ok
}

// Admins returns root and granted admins, sorted and deduplicated.
func (s *Store) Admins() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := maps.Clone(s.admins)
	maps.Copy(set, s.rootAdmins)
	return slices.Sorted(maps.Keys(set))
}

// IsRootAdmin reports whether userID was seeded from configuration.
func (s *Store) IsRootAdmin(userID int64) bool {
	_, ok := s.rootAdmins[userID]
	return ok
}

// Maintenance reports whether maintenance mode is on.
func (s *Store) Maintenance() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maintenance
}

// VoiceFor returns the user's voice, falling back to the default voice.
func (s *Store) VoiceFor(userID int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.userVoice[userID]; ok {
		return v
	}
	return s.defaultVoice
}

// DefaultVoice returns the voice used for users without an override.
func (s *Store) DefaultVoice() string {
	return s.defaultVoice
}

// Credentials returns a copy of the pool in rotation order.
func (s *Store) Credentials() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.credentials)
}

// Stats returns a summary of the current state.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statsLocked()
}

func (s *Store) statsLocked() Stats {
	return Stats{
		Credentials:    len(s.credentials),
		Cursor:         s.cursor,
		RootAdmins:     len(s.rootAdmins),
		GrantedAdmins:  len(s.admins),
		VoiceOverrides: len(s.userVoice),
		Maintenance:    s.maintenance,
	}
}
