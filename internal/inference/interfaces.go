// Package inference wraps the model backends used by the interview engine:
// multimodal models for the primary path, and a light text generator plus a
// speech-to-text transcriber for the fallback path.
package inference

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable marks a backend that was never loaded.
	ErrUnavailable = errors.New("inference backend unavailable")
	// ErrNotConfigured is returned by loaders that have nothing to load.
	ErrNotConfigured = errors.New("inference backend not configured")
	// ErrEmptyGeneration is returned when a model answers with no text.
	ErrEmptyGeneration = errors.New("model returned empty generation")
)

// Model is a multimodal (text + audio) conversational model.
type Model interface {
	Name() string
	Generate(ctx context.Context, conv Conversation, maxTokens int) (string, error)
	Close() error
}

// ModelLoader instantiates a Model. It is expected to fail when weights,
// credentials or the remote endpoint are missing.
type ModelLoader func(ctx context.Context) (Model, error)

// TextGenerator is a lightweight text-only completion model.
type TextGenerator interface {
	Name() string
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Transcriber turns an audio file on disk into text.
type Transcriber interface {
	Name() string
	TranscribeFile(ctx context.Context, path string) (string, error)
}
