package app

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ent0n29/mockinterview/internal/config"
	"github.com/ent0n29/mockinterview/internal/httpapi"
	"github.com/ent0n29/mockinterview/internal/inference"
	"github.com/ent0n29/mockinterview/internal/interview"
)

func inferenceConfig(cfg config.Config) inference.Config {
	return inference.Config{
		PrimaryMode:        cfg.PrimaryModelMode,
		GeminiAPIKey:       cfg.GeminiAPIKey,
		GeminiModel:        cfg.GeminiModel,
		PrimaryHTTPURL:     cfg.PrimaryHTTPURL,
		PrimaryHTTPTimeout: cfg.PrimaryHTTPTimeout,

		TextMode:           cfg.TextModelMode,
		OllamaURL:          cfg.OllamaURL,
		OllamaModel:        cfg.OllamaModel,
		OllamaTimeout:      cfg.OllamaTimeout,
		YandexGPTIAMToken:  cfg.YandexGPTIAMToken,
		YandexGPTCatalogID: cfg.YandexGPTCatalogID,

		TranscriberMode:  cfg.TranscriberMode,
		WhisperCLI:       cfg.LocalWhisperCLI,
		WhisperModelPath: cfg.LocalWhisperModelPath,
		WhisperLanguage:  cfg.LocalWhisperLanguage,
		WhisperThreads:   cfg.LocalWhisperThreads,
		WhisperServerURL: cfg.WhisperServerURL,
		WhisperTimeout:   cfg.WhisperServerTimeout,
	}
}

// newModelLoader bounds the one-shot primary load by timeout.
func newModelLoader(cfg inference.Config, timeout time.Duration) (inference.ModelLoader, error) {
	load, err := inference.NewModelLoader(cfg)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		return load, nil
	}
	return func(ctx context.Context) (inference.Model, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return load(ctx)
	}, nil
}

// resolveFallbackParts loads the fallback text model and transcriber. A part
// that cannot load is logged and left nil; modes are validated by config.
func resolveFallbackParts(ctx context.Context, cfg inference.Config) (interview.FallbackParts, httpapi.Components) {
	var (
		parts      interview.FallbackParts
		components httpapi.Components
	)

	if text, err := inference.NewTextGenerator(ctx, cfg); err != nil {
		log.WithError(err).Warn("fallback text model unavailable, canned questions will be used")
	} else {
		parts.Text = text
		components.TextModel = text.Name()
		log.WithField("text_model", text.Name()).Info("fallback text model ready")
	}

	if transcriber, err := inference.NewTranscriber(cfg); err != nil {
		log.WithError(err).Warn("fallback transcriber unavailable, fallback evaluations will be neutral")
	} else {
		parts.Transcriber = transcriber
		components.Transcriber = transcriber.Name()
		log.WithField("transcriber", transcriber.Name()).Info("fallback transcriber ready")
	}

	return parts, components
}
