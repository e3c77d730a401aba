package app

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/ent0n29/mockinterview/internal/config"
	"github.com/ent0n29/mockinterview/internal/httpapi"
	"github.com/ent0n29/mockinterview/internal/interview"
	"github.com/ent0n29/mockinterview/internal/observability"
	"github.com/ent0n29/mockinterview/internal/session"
)

type BuildResult struct {
	Config     config.Config
	API        *httpapi.Server
	Sessions   *session.Manager
	Engine     *interview.Engine
	Metrics    *observability.Metrics
	Components httpapi.Components

	// Cleanup should be called on shutdown to release the loaded models.
	Cleanup func() error
}

// Build wires the service. Missing models never fail the build; the engine
// runs whatever path is available.
func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	icfg := inferenceConfig(cfg)
	load, err := newModelLoader(icfg, cfg.PrimaryLoadTimeout)
	if err != nil {
		return nil, fmt.Errorf("primary model init failed: %w", err)
	}
	parts, components := resolveFallbackParts(ctx, icfg)

	engine := interview.NewEngine(ctx, load, parts, limitsFromConfig(cfg), interview.WithObserver(metrics))
	metrics.SetPrimaryAvailable(engine.Available())

	sessions := session.NewManager(cfg.SessionInactivityTimeout, cfg.MaxQuestions)
	sessions.SetExpireHook(func(s *session.Session) {
		log.WithField("session_id", s.ID).Info("interview session expired")
		metrics.SessionEvents.WithLabelValues("expired").Inc()
		metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))
	})

	api := httpapi.New(cfg, sessions, engine, metrics, components)

	cleanup := func() error {
		var errs []string
		if err := engine.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:     cfg,
		API:        api,
		Sessions:   sessions,
		Engine:     engine,
		Metrics:    metrics,
		Components: components,
		Cleanup:    cleanup,
	}, nil
}

func limitsFromConfig(cfg config.Config) interview.Limits {
	return interview.Limits{
		QuestionContextChars:      cfg.QuestionContextChars,
		FallbackContextChars:      cfg.FallbackContextChars,
		QuestionMaxTokens:         cfg.QuestionMaxTokens,
		FallbackQuestionMaxTokens: cfg.FallbackQuestionMaxTokens,
		EvaluationMaxTokens:       cfg.EvaluationMaxTokens,
		SampleRate:                cfg.SampleRate,
		FeedbackPreviewChars:      cfg.FeedbackPreviewChars,
		MaxQuestions:              cfg.MaxQuestions,
		TempDir:                   cfg.TempDir,
	}
}
