package inference

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Config selects and configures the model backends.
type Config struct {
	// PrimaryMode is one of auto|gemini|http|mock|none.
	PrimaryMode        string
	GeminiAPIKey       string
	GeminiModel        string
	PrimaryHTTPURL     string
	PrimaryHTTPTimeout time.Duration

	// TextMode is one of auto|ollama|yandexgpt|mock|none.
	TextMode           string
	OllamaURL          string
	OllamaModel        string
	OllamaTimeout      time.Duration
	YandexGPTIAMToken  string
	YandexGPTCatalogID string

	// TranscriberMode is one of auto|whisper-cli|whisper-server|mock|none.
	TranscriberMode  string
	WhisperCLI       string
	WhisperModelPath string
	WhisperLanguage  string
	WhisperThreads   int
	WhisperServerURL string
	WhisperTimeout   time.Duration
}

func normalizeMode(mode string) string {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		return "auto"
	}
	return mode
}

// NewModelLoader returns the loader for the primary model. Nothing is loaded
// until the loader runs.
func NewModelLoader(cfg Config) (ModelLoader, error) {
	mode := normalizeMode(cfg.PrimaryMode)
	if mode == "auto" {
		switch {
		case strings.TrimSpace(cfg.GeminiAPIKey) != "":
			mode = "gemini"
		case strings.TrimSpace(cfg.PrimaryHTTPURL) != "":
			mode = "http"
		default:
			mode = "none"
		}
	}

	switch mode {
	case "gemini":
		return func(ctx context.Context) (Model, error) {
			m, err := LoadGeminiModel(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
			if err != nil {
				return nil, err
			}
			return m, nil
		}, nil
	case "http":
		return func(ctx context.Context) (Model, error) {
			m, err := LoadHTTPModel(ctx, cfg.PrimaryHTTPURL, cfg.PrimaryHTTPTimeout)
			if err != nil {
				return nil, err
			}
			return m, nil
		}, nil
	case "mock":
		return func(context.Context) (Model, error) {
			return NewMockModel(), nil
		}, nil
	case "none":
		return func(context.Context) (Model, error) {
			return nil, fmt.Errorf("primary model: %w", ErrNotConfigured)
		}, nil
	default:
		return nil, fmt.Errorf("unsupported primary model mode %q", cfg.PrimaryMode)
	}
}

// NewTextGenerator builds the fallback text model. An error means the
// fallback runs without one.
func NewTextGenerator(ctx context.Context, cfg Config) (TextGenerator, error) {
	mode := normalizeMode(cfg.TextMode)
	if mode == "auto" {
		mode = "ollama"
		if strings.TrimSpace(cfg.YandexGPTIAMToken) != "" && strings.TrimSpace(cfg.YandexGPTCatalogID) != "" {
			mode = "yandexgpt"
		}
	}

	switch mode {
	case "ollama":
		g, err := LoadOllamaGenerator(ctx, cfg.OllamaURL, cfg.OllamaModel, cfg.OllamaTimeout)
		if err != nil {
			return nil, err
		}
		return g, nil
	case "yandexgpt":
		g, err := NewYandexGPTGenerator(cfg.YandexGPTIAMToken, cfg.YandexGPTCatalogID)
		if err != nil {
			return nil, err
		}
		return g, nil
	case "mock":
		return NewMockTextGenerator(), nil
	case "none":
		return nil, fmt.Errorf("fallback text model: %w", ErrNotConfigured)
	default:
		return nil, fmt.Errorf("unsupported fallback text mode %q", cfg.TextMode)
	}
}

// NewTranscriber builds the fallback speech-to-text backend. An error means
// the fallback runs without one.
func NewTranscriber(cfg Config) (Transcriber, error) {
	mode := normalizeMode(cfg.TranscriberMode)
	if mode == "auto" {
		mode = "whisper-cli"
		if strings.TrimSpace(cfg.WhisperServerURL) != "" {
			mode = "whisper-server"
		}
	}

	switch mode {
	case "whisper-cli":
		t, err := NewWhisperCLI(cfg.WhisperCLI, cfg.WhisperModelPath, cfg.WhisperLanguage, cfg.WhisperThreads)
		if err != nil {
			return nil, err
		}
		return t, nil
	case "whisper-server":
		t, err := NewWhisperServer(cfg.WhisperServerURL, cfg.WhisperTimeout)
		if err != nil {
			return nil, err
		}
		return t, nil
	case "mock":
		return NewMockTranscriber(), nil
	case "none":
		return nil, fmt.Errorf("transcriber: %w", ErrNotConfigured)
	default:
		return nil, fmt.Errorf("unsupported transcriber mode %q", cfg.TranscriberMode)
	}
}
