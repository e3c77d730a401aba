package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultOllamaModel = "qwen2.5:0.5b"
)

// OllamaGenerator is the light fallback text model served by a local Ollama.
type OllamaGenerator struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

type ollamaGenerateRequest struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	Stream  bool   `json:"stream"`
	Options struct {
		Temperature float64 `json:"temperature"`
		NumPredict  int     `json:"num_predict,omitempty"`
	} `json:"options"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

func NewOllamaGenerator(url, model string, timeout time.Duration) *OllamaGenerator {
	if strings.TrimSpace(url) == "" {
		url = DefaultOllamaURL
	}
	if strings.TrimSpace(model) == "" {
		model = DefaultOllamaModel
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OllamaGenerator{
		baseURL:    strings.TrimRight(url, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// LoadOllamaGenerator returns a generator only when the server answers and
// already has the model pulled.
func LoadOllamaGenerator(ctx context.Context, url, model string, timeout time.Duration) (*OllamaGenerator, error) {
	g := NewOllamaGenerator(url, model, timeout)
	models, err := g.ListModels(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "ollama unreachable")
	}
	for _, name := range models {
		if name == g.model || strings.TrimSuffix(name, ":latest") == g.model {
			return g, nil
		}
	}
	return nil, fmt.Errorf("ollama model %q not pulled", g.model)
}

func (g *OllamaGenerator) Name() string { return "ollama:" + g.model }

func (g *OllamaGenerator) logger() *log.Entry {
	return log.WithField("ai", "ollama").WithField("model", g.model)
}

func (g *OllamaGenerator) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	req := ollamaGenerateRequest{Model: g.model, Prompt: prompt}
	req.Options.Temperature = 0.7
	req.Options.NumPredict = maxTokens

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return "", fmt.Errorf("ollama error %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var result ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("ollama: %s", result.Error)
	}

	text := strings.TrimSpace(result.Response)
	g.logger().
		WithField("prompt_chars", len(prompt)).
		WithField("duration_ms", time.Since(start).Milliseconds()).
		Debug("ollama completion")
	if text == "" {
		return "", ErrEmptyGeneration
	}
	return text, nil
}

// ListModels returns the names of locally pulled models.
func (g *OllamaGenerator) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama tags status %d", resp.StatusCode)
	}

	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	names := make([]string, len(result.Models))
	for i, m := range result.Models {
		names[i] = m.Name
	}
	return names, nil
}
