package commands

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func newBuiltinRouter() *Router {
	reg := NewRegistry()
	RegisterBuiltins(reg, Options{DirectPrefix: "tts", AttributedPrefix: "voiceme", MaxTextLength: 1000})
	return NewRouter(reg, "voxbot")
}

func TestBuiltinsKeyManagement(t *testing.T) {
	rt := newBuiltinRouter()
	st, _ := newStore(t)
	m := &fakeMessenger{}
	ctx := context.Background()
	do := func(text string) string {
		t.Helper()
		if err := rt.Dispatch(ctx, request(text, rootAdmin, st, m)); err != nil {
			t.Fatalf("Dispatch(%q): %v", text, err)
		}
		return m.last(t)
	}

	if got := do("/addkey sk-secret-1234"); !strings.Contains(got, "…1234") || strings.Contains(got, "sk-secret") {
		t.Fatalf("addkey reply leaks or misses mask: %q", got)
	}
	if len(m.deleted) != 1 || m.deleted[0].MessageID != 10 {
		t.Fatalf("addkey should delete the trigger, deleted = %v", m.deleted)
	}
	do("/addkey sk-other-5678")
	if got := do("/keys"); !strings.Contains(got, "1. <code>…1234</code> ← next") || !strings.Contains(got, "2. <code>…5678</code>") {
		t.Fatalf("keys listing = %q", got)
	}
	if got := do("/delkey 1"); !strings.Contains(got, "…1234") {
		t.Fatalf("delkey reply = %q", got)
	}
	if got := do("/delkey sk-missing"); got != "❓ Not found." {
		t.Fatalf("delkey missing reply = %q", got)
	}
	if got := do("/delkey sk-other-5678"); !strings.Contains(got, "Keys in pool: 0") {
		t.Fatalf("delkey by value reply = %q", got)
	}
	if got := do("/keys"); !strings.Contains(got, "No keys") {
		t.Fatalf("empty keys listing = %q", got)
	}
}

func TestAddKeyFromNonAdminIsScrubbed(t *testing.T) {
	rt := newBuiltinRouter()
	st, _ := newStore(t)
	m := &fakeMessenger{}
	ctx := context.Background()

	if err := rt.Dispatch(ctx, request("/addkey sk-leaked-9999", 77, st, m)); err != nil {
		t.Fatal(err)
	}
	if len(m.deleted) != 1 || m.deleted[0].MessageID != 10 {
		t.Fatalf("trigger with a secret left in chat, deleted = %v", m.deleted)
	}
	if got := m.last(t); got != NoticeAdminOnly {
		t.Fatalf("reply = %q", got)
	}
	if n := st.Stats().Credentials; n != 0 {
		t.Fatalf("non-admin added a key, pool = %d", n)
	}

	if err := rt.Dispatch(ctx, request("/addkey", 77, st, m)); err != nil {
		t.Fatal(err)
	}
	if len(m.deleted) != 1 {
		t.Fatalf("bare /addkey should not be deleted, deleted = %v", m.deleted)
	}
}

func TestBuiltinsMaintenance(t *testing.T) {
	rt := newBuiltinRouter()
	st, _ := newStore(t)
	m := &fakeMessenger{}
	ctx := context.Background()

	if err := rt.Dispatch(ctx, request("/maintenance on", rootAdmin, st, m)); err != nil {
		t.Fatal(err)
	}
	if !st.Maintenance() {
		t.Fatal("maintenance not enabled")
	}
	if err := rt.Dispatch(ctx, request("/maintenance off", 77, st, m)); err != nil {
		t.Fatal(err)
	}
	if !st.Maintenance() || m.last(t) != NoticeAdminOnly {
		t.Fatal("non-admin toggled maintenance")
	}
	if err := rt.Dispatch(ctx, request("/maintenance maybe", rootAdmin, st, m)); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(m.last(t), "Usage") {
		t.Fatalf("bad argument reply = %q", m.last(t))
	}
}

func TestBuiltinsVoices(t *testing.T) {
	rt := newBuiltinRouter()
	st, _ := newStore(t)
	m := &fakeMessenger{}
	ctx := context.Background()

	if err := rt.Dispatch(ctx, request("/setvoice 42 voice-x", rootAdmin, st, m)); err != nil {
		t.Fatal(err)
	}
	if st.VoiceFor(42) != "voice-x" {
		t.Fatalf("VoiceFor(42) = %q", st.VoiceFor(42))
	}
	if err := rt.Dispatch(ctx, request("/myvoice", 42, st, m)); err != nil {
		t.Fatal(err)
	}
	if got := m.last(t); !strings.Contains(got, "voice-x") || strings.Contains(got, "default") {
		t.Fatalf("myvoice reply = %q", got)
	}
	if err := rt.Dispatch(ctx, request("/setvoice abc voice-x", rootAdmin, st, m)); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(m.last(t), "positive number") {
		t.Fatalf("bad user id reply = %q", m.last(t))
	}
	if err := rt.Dispatch(ctx, request("/resetvoice 42", rootAdmin, st, m)); err != nil {
		t.Fatal(err)
	}
	if err := rt.Dispatch(ctx, request("/myvoice", 42, st, m)); err != nil {
		t.Fatal(err)
	}
	if got := m.last(t); !strings.Contains(got, "default-voice") || !strings.Contains(got, "(default)") {
		t.Fatalf("myvoice after reset = %q", got)
	}
}

func TestBuiltinsAdmins(t *testing.T) {
	rt := newBuiltinRouter()
	st, _ := newStore(t)
	m := &fakeMessenger{}
	ctx := context.Background()

	if err := rt.Dispatch(ctx, request("/addadmin 9", rootAdmin, st, m)); err != nil {
		t.Fatal(err)
	}
	if !st.IsAdmin(9) {
		t.Fatal("admin 9 not granted")
	}
	if err := rt.Dispatch(ctx, request("/admins", 9, st, m)); err != nil {
		t.Fatal(err)
	}
	if got := m.last(t); !strings.Contains(got, "<code>1</code> (root)") || !strings.Contains(got, "<code>9</code>") {
		t.Fatalf("admins listing = %q", got)
	}
	if err := rt.Dispatch(ctx, request("/deladmin 1", 9, st, m)); err != nil {
		t.Fatal(err)
	}
	if !st.IsAdmin(rootAdmin) || !strings.Contains(m.last(t), "cannot be removed") {
		t.Fatalf("root admin removal reply = %q", m.last(t))
	}
	if err := rt.Dispatch(ctx, request("/deladmin 9", rootAdmin, st, m)); err != nil {
		t.Fatal(err)
	}
	if st.IsAdmin(9) {
		t.Fatal("admin 9 not revoked")
	}
}

func TestBuiltinsPersistFailure(t *testing.T) {
	rt := newBuiltinRouter()
	st, backend := newStore(t)
	backend.fail = errors.New("disk full")
	m := &fakeMessenger{}

	err := rt.Dispatch(context.Background(), request("/maintenance on", rootAdmin, st, m))
	if err == nil {
		t.Fatal("persist failure should surface to the caller")
	}
	if st.Maintenance() {
		t.Fatal("maintenance should be rolled back")
	}
	if !strings.Contains(m.last(t), "Could not save") {
		t.Fatalf("reply = %q", m.last(t))
	}
}

func TestHelpHidesAdminCommandsFromUsers(t *testing.T) {
	rt := newBuiltinRouter()
	st, _ := newStore(t)
	m := &fakeMessenger{}
	ctx := context.Background()

	if err := rt.Dispatch(ctx, request("/help", 77, st, m)); err != nil {
		t.Fatal(err)
	}
	user := m.last(t)
	if strings.Contains(user, "/addkey") || !strings.Contains(user, "/myvoice") || !strings.Contains(user, "<b>tts</b>") {
		t.Fatalf("user help = %q", user)
	}
	if err := rt.Dispatch(ctx, request("/help", rootAdmin, st, m)); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(m.last(t), "/addkey") {
		t.Fatalf("admin help = %q", m.last(t))
	}
}
