package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/voxbot/core/config"
	"github.com/m3rciful/voxbot/core/logger"
	"github.com/m3rciful/voxbot/core/netutil"
)

const (
	outputFormat   = "mp3_44100_128"
	maxErrorBody   = 4 << 10
	artifactSuffix = ".mp3"
)

// ElevenLabsOptions configure the client.
type ElevenLabsOptions struct {
	BaseURL string
	ModelID string
	TempDir string
	Client  *http.Client
}

// ElevenLabs calls POST {base}/v1/text-to-speech/{voice} and stores the
// returned mp3 in TempDir.
type ElevenLabs struct {
	baseURL string
	modelID string
	tempDir string
	client  *http.Client
}

// NewElevenLabs builds a client; missing options fall back to defaults.
func NewElevenLabs(opts ElevenLabsOptions) *ElevenLabs {
	if opts.BaseURL == "" {
		opts.BaseURL = config.DefaultSpeechBaseURL
	}
	if opts.ModelID == "" {
		opts.ModelID = config.DefaultSpeechModelID
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	if opts.Client == nil {
		opts.Client = netutil.NewClient(netutil.ClientOptions{})
	}
	return &ElevenLabs{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		modelID: opts.ModelID,
		tempDir: opts.TempDir,
		client:  opts.Client,
	}
}

// FromConfig builds the client from the speech config section. Synthesis
// can take a while, so the response-header timeout matches the overall one.
func FromConfig(cfg config.SpeechConfig) *ElevenLabs {
	timeout := cfg.SpeechTimeout()
	return NewElevenLabs(ElevenLabsOptions{
		BaseURL: cfg.BaseURL,
		ModelID: cfg.ModelID,
		TempDir: cfg.TempDir,
		Client: netutil.NewClient(netutil.ClientOptions{
			Timeout:               timeout,
			ResponseHeaderTimeout: timeout,
		}),
	})
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type synthesisBody struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// Synthesize implements Synthesizer.
func (c *ElevenLabs) Synthesize(ctx context.Context, req Request) (Artifact, error) {
	if strings.TrimSpace(req.Text) == "" || req.VoiceID == "" || req.Credential == "" {
		return Artifact{}, errors.New("speech: text, voice and credential are required")
	}
	start := time.Now()
	callID := uuid.NewString()

	payload, err := json.Marshal(synthesisBody{
		Text:          req.Text,
		ModelID:       c.modelID,
		VoiceSettings: voiceSettings{Stability: 0.5, SimilarityBoost: 0.75},
	})
	if err != nil {
		return Artifact{}, fmt.Errorf("speech: encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s", c.baseURL, url.PathEscape(req.VoiceID), outputFormat)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return Artifact{}, fmt.Errorf("speech: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")
	httpReq.Header.Set("xi-api-key", req.Credential)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		c.logCall(ctx, callID, req, start, 0, err)
		return Artifact{}, fmt.Errorf("speech: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		perr := &ProviderError{StatusCode: resp.StatusCode, Message: readErrorMessage(resp.Body)}
		c.logCall(ctx, callID, req, start, resp.StatusCode, perr)
		return Artifact{}, perr
	}

	art, size, err := c.store(callID, resp.Body)
	if err != nil {
		c.logCall(ctx, callID, req, start, resp.StatusCode, err)
		return Artifact{}, err
	}
	c.logCall(ctx, callID, req, start, resp.StatusCode, nil, slog.Int64("bytes", size))
	return art, nil
}

func (c *ElevenLabs) store(callID string, body io.Reader) (Artifact, int64, error) {
	if err := os.MkdirAll(c.tempDir, 0o700); err != nil {
		return Artifact{}, 0, fmt.Errorf("speech: create temp dir: %w", err)
	}
	path := filepath.Join(c.tempDir, callID+artifactSuffix)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return Artifact{}, 0, fmt.Errorf("speech: create artifact: %w", err)
	}
	n, copyErr := io.Copy(f, body)
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		os.Remove(path)
		return Artifact{}, 0, fmt.Errorf("speech: write artifact: %w", err)
	}
	if n == 0 {
		os.Remove(path)
		return Artifact{}, 0, errors.New("speech: provider returned empty audio")
	}
	return Artifact{Path: path}, n, nil
}

func (c *ElevenLabs) logCall(ctx context.Context, callID string, req Request, start time.Time, status int, err error, extras ...slog.Attr) {
	attrs := []slog.Attr{
		slog.String("event", "speech.synthesize"),
		slog.String("status", logger.Status(err)),
		slog.String("call_id", callID),
		slog.String("voice_id", req.VoiceID),
		slog.String("credential", logger.MaskSecret(req.Credential)),
		slog.Int("text_len", len([]rune(req.Text))),
		slog.Int("http_status", status),
		slog.Duration("duration", logger.Took(start)),
	}
	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelWarn
		attrs = append(attrs, slog.String("err", logger.SanitizeLimit(err.Error(), 256)))
	}
	attrs = append(attrs, extras...)
	logger.Speech.LogAttrs(ctx, level, "", attrs...)
}

// readErrorMessage extracts detail.message or a plain detail string from an
// error body, falling back to the raw text.
func readErrorMessage(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if json.Unmarshal(raw, &body) == nil && len(body.Detail) > 0 {
		var detail struct {
			Status  string `json:"status"`
			Message string `json:"message"`
		}
		if json.Unmarshal(body.Detail, &detail) == nil && detail.Message != "" {
			return detail.Message
		}
		var text string
		if json.Unmarshal(body.Detail, &text) == nil && text != "" {
			return text
		}
	}
	return logger.SanitizeLimit(strings.TrimSpace(string(raw)), 200)
}
