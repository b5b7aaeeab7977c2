// Package speech turns text into audio files through a voice-generation
// provider.
package speech

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// Request is one synthesis call.
type Request struct {
	Text       string
	VoiceID    string
	Credential string
}

// Artifact is a generated audio file owned by the caller.
type Artifact struct {
	Path string
}

// Remove deletes the file. A missing file is not an error.
func (a Artifact) Remove() error {
	if a.Path == "" {
		return nil
	}
	if err := os.Remove(a.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Synthesizer converts text into an audio artifact.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (Artifact, error)
}

// ProviderError is a non-2xx answer from the provider.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("speech provider returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("speech provider returned status %d: %s", e.StatusCode, e.Message)
}

// Code is used for log error codes.
func (e *ProviderError) Code() string {
	return fmt.Sprintf("speech_http_%d", e.StatusCode)
}

// Reason is a short user-facing explanation.
func (e *ProviderError) Reason() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("provider error %d", e.StatusCode)
}
