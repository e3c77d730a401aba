package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains all runtime settings for the mock interview service.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	MetricsNamespace         string
	MaxUploadBytes           int64
	TempDir                  string

	AllowAnyOrigin bool
	// RedactResumePII masks emails, phone and card numbers in resume text
	// before any model sees it.
	RedactResumePII bool

	// Interview tunables.
	MaxQuestions              int
	QuestionContextChars      int
	FallbackContextChars      int
	QuestionMaxTokens         int
	FallbackQuestionMaxTokens int
	EvaluationMaxTokens       int
	FeedbackPreviewChars      int
	SampleRate                int

	PrimaryModelMode   string
	PrimaryLoadTimeout time.Duration
	GeminiAPIKey       string
	GeminiModel        string
	PrimaryHTTPURL     string
	PrimaryHTTPTimeout time.Duration

	TextModelMode      string
	OllamaURL          string
	OllamaModel        string
	OllamaTimeout      time.Duration
	YandexGPTIAMToken  string
	YandexGPTCatalogID string

	TranscriberMode       string
	LocalWhisperCLI       string
	LocalWhisperModelPath string
	LocalWhisperLanguage  string
	LocalWhisperThreads   int
	WhisperServerURL      string
	WhisperServerTimeout  time.Duration
}

var (
	primaryModes     = []string{"auto", "gemini", "http", "mock", "none"}
	textModes        = []string{"auto", "ollama", "yandexgpt", "mock", "none"}
	transcriberModes = []string{"auto", "whisper-cli", "whisper-server", "mock", "none"}
)

// LoadDotEnv loads path into the environment without overriding variables
// that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	path = trimSpace(path)
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	if err := LoadDotEnv(envOrDefault("APP_ENV_FILE", ".env")); err != nil {
		return Config{}, err
	}

	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "mockinterview"),
		TempDir:          stringsTrimSpace("APP_TEMP_DIR"),
		AllowAnyOrigin:   false,
		RedactResumePII:  true,
		MaxUploadBytes:   25 << 20,

		MaxQuestions:              5,
		QuestionContextChars:      2000,
		FallbackContextChars:      1000,
		QuestionMaxTokens:         50,
		FallbackQuestionMaxTokens: 100,
		EvaluationMaxTokens:       100,
		FeedbackPreviewChars:      200,
		SampleRate:                16000,

		PrimaryModelMode: strings.ToLower(envOrDefault("PRIMARY_MODEL_MODE", "auto")),
		GeminiAPIKey:     stringsTrimSpace("GEMINI_API_KEY"),
		// Audio-capable model; the probe checks it exists before anything is served.
		GeminiModel:    envOrDefault("GEMINI_MODEL", "gemini-1.5-flash"),
		PrimaryHTTPURL: stringsTrimSpace("PRIMARY_HTTP_URL"),

		TextModelMode:      strings.ToLower(envOrDefault("TEXT_MODEL_MODE", "auto")),
		OllamaURL:          envOrDefault("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:        envOrDefault("OLLAMA_MODEL", "qwen2.5:0.5b"),
		YandexGPTIAMToken:  stringsTrimSpace("YANDEXGPT_IAM_TOKEN"),
		YandexGPTCatalogID: stringsTrimSpace("YANDEXGPT_CATALOG_ID"),

		TranscriberMode:       strings.ToLower(envOrDefault("TRANSCRIBER_MODE", "auto")),
		LocalWhisperCLI:       envOrDefault("LOCAL_WHISPER_CLI", "whisper-cli"),
		LocalWhisperModelPath: envOrDefault("LOCAL_WHISPER_MODEL_PATH", ".models/whisper/ggml-base.bin"),
		LocalWhisperLanguage:  envOrDefault("LOCAL_WHISPER_LANGUAGE", "en"),
		// 0 means "auto" (picked based on CPU count).
		LocalWhisperThreads: 0,
		WhisperServerURL:    stringsTrimSpace("WHISPER_SERVER_URL"),

		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 30 * time.Minute,
		PrimaryLoadTimeout:       30 * time.Second,
		PrimaryHTTPTimeout:       60 * time.Second,
		OllamaTimeout:            30 * time.Second,
		WhisperServerTimeout:     60 * time.Second,
	}

	var err error
	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"APP_SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout},
		{"APP_SESSION_INACTIVITY_TIMEOUT", &cfg.SessionInactivityTimeout},
		{"PRIMARY_LOAD_TIMEOUT", &cfg.PrimaryLoadTimeout},
		{"PRIMARY_HTTP_TIMEOUT", &cfg.PrimaryHTTPTimeout},
		{"OLLAMA_TIMEOUT", &cfg.OllamaTimeout},
		{"WHISPER_SERVER_TIMEOUT", &cfg.WhisperServerTimeout},
	}
	for _, d := range durations {
		if *d.dst, err = durationFromEnv(d.key, *d.dst); err != nil {
			return Config{}, err
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"INTERVIEW_MAX_QUESTIONS", &cfg.MaxQuestions},
		{"INTERVIEW_QUESTION_CONTEXT_CHARS", &cfg.QuestionContextChars},
		{"INTERVIEW_FALLBACK_CONTEXT_CHARS", &cfg.FallbackContextChars},
		{"INTERVIEW_QUESTION_MAX_TOKENS", &cfg.QuestionMaxTokens},
		{"INTERVIEW_FALLBACK_QUESTION_MAX_TOKENS", &cfg.FallbackQuestionMaxTokens},
		{"INTERVIEW_EVALUATION_MAX_TOKENS", &cfg.EvaluationMaxTokens},
		{"INTERVIEW_FEEDBACK_PREVIEW_CHARS", &cfg.FeedbackPreviewChars},
		{"INTERVIEW_SAMPLE_RATE", &cfg.SampleRate},
		{"LOCAL_WHISPER_THREADS", &cfg.LocalWhisperThreads},
	}
	for _, n := range ints {
		if *n.dst, err = intFromEnv(n.key, *n.dst); err != nil {
			return Config{}, err
		}
	}

	maxUpload, err := intFromEnv("APP_MAX_UPLOAD_BYTES", int(cfg.MaxUploadBytes))
	if err != nil {
		return Config{}, err
	}
	cfg.MaxUploadBytes = int64(maxUpload)

	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.RedactResumePII, err = boolFromEnv("APP_REDACT_RESUME_PII", cfg.RedactResumePII)
	if err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg Config) validate() error {
	if cfg.SessionInactivityTimeout < 5*time.Second {
		return fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.MaxUploadBytes <= 0 {
		return fmt.Errorf("APP_MAX_UPLOAD_BYTES must be positive")
	}
	positive := map[string]int{
		"INTERVIEW_MAX_QUESTIONS":                cfg.MaxQuestions,
		"INTERVIEW_QUESTION_CONTEXT_CHARS":       cfg.QuestionContextChars,
		"INTERVIEW_FALLBACK_CONTEXT_CHARS":       cfg.FallbackContextChars,
		"INTERVIEW_QUESTION_MAX_TOKENS":          cfg.QuestionMaxTokens,
		"INTERVIEW_FALLBACK_QUESTION_MAX_TOKENS": cfg.FallbackQuestionMaxTokens,
		"INTERVIEW_EVALUATION_MAX_TOKENS":        cfg.EvaluationMaxTokens,
		"INTERVIEW_FEEDBACK_PREVIEW_CHARS":       cfg.FeedbackPreviewChars,
		"INTERVIEW_SAMPLE_RATE":                  cfg.SampleRate,
	}
	for key, v := range positive {
		if v <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	if cfg.LocalWhisperThreads < 0 {
		return fmt.Errorf("LOCAL_WHISPER_THREADS must be >= 0")
	}
	if !oneOf(cfg.PrimaryModelMode, primaryModes) {
		return fmt.Errorf("PRIMARY_MODEL_MODE must be one of %s", strings.Join(primaryModes, "|"))
	}
	if !oneOf(cfg.TextModelMode, textModes) {
		return fmt.Errorf("TEXT_MODEL_MODE must be one of %s", strings.Join(textModes, "|"))
	}
	if !oneOf(cfg.TranscriberMode, transcriberModes) {
		return fmt.Errorf("TRANSCRIBER_MODE must be one of %s", strings.Join(transcriberModes, "|"))
	}
	return nil
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return trimSpace(os.Getenv(key))
}

func trimSpace(v string) string {
	return strings.TrimSpace(v)
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
