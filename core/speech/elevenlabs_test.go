package speech

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestClient(t *testing.T, h http.HandlerFunc) (*ElevenLabs, string) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	dir := t.TempDir()
	return NewElevenLabs(ElevenLabsOptions{
		BaseURL: srv.URL + "/",
		ModelID: "test-model",
		TempDir: dir,
		Client:  srv.Client(),
	}), dir
}

func TestSynthesizeWritesArtifact(t *testing.T) {
	var (
		gotPath string
		gotKey  string
		gotBody synthesisBody
	)
	c, dir := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("xi-api-key")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("ID3fake-mp3"))
	})

	art, err := c.Synthesize(context.Background(), Request{Text: "hello", VoiceID: "voice-1", Credential: "k1"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if gotPath != "/v1/text-to-speech/voice-1" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotKey != "k1" {
		t.Fatalf("xi-api-key = %q", gotKey)
	}
	if gotBody.Text != "hello" || gotBody.ModelID != "test-model" {
		t.Fatalf("body = %+v", gotBody)
	}
	if filepath.Dir(art.Path) != dir || !strings.HasSuffix(art.Path, ".mp3") {
		t.Fatalf("artifact path = %q", art.Path)
	}
	data, err := os.ReadFile(art.Path)
	if err != nil || string(data) != "ID3fake-mp3" {
		t.Fatalf("artifact content = %q, %v", data, err)
	}

	if err := art.Remove(); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(art.Path); !os.IsNotExist(err) {
		t.Fatalf("artifact still exists: %v", err)
	}
	if err := art.Remove(); err != nil {
		t.Fatalf("second Remove: %v", err)
	}
}

func TestSynthesizeProviderError(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"detail_object", `{"detail":{"status":"quota_exceeded","message":"Quota exceeded"}}`, "Quota exceeded"},
		{"detail_string", `{"detail":"Invalid API key"}`, "Invalid API key"},
		{"plain", "upstream down", "upstream down"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, dir := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(tc.body))
			})
			_, err := c.Synthesize(context.Background(), Request{Text: "hi", VoiceID: "v", Credential: "k"})
			var perr *ProviderError
			if !errors.As(err, &perr) {
				t.Fatalf("err = %v, want ProviderError", err)
			}
			if perr.StatusCode != http.StatusUnauthorized || perr.Reason() != tc.want {
				t.Fatalf("ProviderError = %+v", perr)
			}
			if perr.Code() != "speech_http_401" {
				t.Fatalf("Code = %q", perr.Code())
			}
			entries, _ := os.ReadDir(dir)
			if len(entries) != 0 {
				t.Fatalf("failed call left files: %v", entries)
			}
		})
	}
}

func TestSynthesizeEmptyAudio(t *testing.T) {
	c, dir := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if _, err := c.Synthesize(context.Background(), Request{Text: "hi", VoiceID: "v", Credential: "k"}); err == nil {
		t.Fatal("expected error for empty audio")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("empty response left files: %v", entries)
	}
}

func TestSynthesizeValidatesRequest(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("provider must not be called")
	})
	for _, req := range []Request{
		{VoiceID: "v", Credential: "k"},
		{Text: "hi", Credential: "k"},
		{Text: "hi", VoiceID: "v"},
	} {
		if _, err := c.Synthesize(context.Background(), req); err == nil {
			t.Fatalf("Synthesize(%+v) should fail", req)
		}
	}
}
