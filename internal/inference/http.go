package inference

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/ent0n29/mockinterview/internal/audio"
)

// HTTPModel forwards conversations to a self-hosted multimodal endpoint
// (for example an Ultravox pipeline behind a small JSON server).
type HTTPModel struct {
	url    string
	client *http.Client
}

type httpContent struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	AudioBase64 string `json:"audio_base64,omitempty"`
	SampleRate  int    `json:"sampling_rate,omitempty"`
}

type httpTurn struct {
	Role    Role          `json:"role"`
	Content []httpContent `json:"content"`
}

type httpRequest struct {
	Turns        []httpTurn `json:"turns"`
	MaxNewTokens int        `json:"max_new_tokens,omitempty"`
}

func NewHTTPModel(url string, timeout time.Duration) *HTTPModel {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPModel{
		url:    strings.TrimRight(strings.TrimSpace(url), "/"),
		client: &http.Client{Timeout: timeout},
	}
}

// LoadHTTPModel checks the endpoint's health route before handing out a model.
func LoadHTTPModel(ctx context.Context, url string, timeout time.Duration) (*HTTPModel, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.Wrap(ErrNotConfigured, "model http url is empty")
	}
	m := NewHTTPModel(url, timeout)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.url+"/health", nil)
	if err != nil {
		return nil, errors.Wrap(err, "create health request")
	}
	res, err := m.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "model health check")
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("model health check: status %d", res.StatusCode)
	}
	return m, nil
}

func (m *HTTPModel) Name() string { return "http:" + m.url }

func (m *HTTPModel) Generate(ctx context.Context, conv Conversation, maxTokens int) (string, error) {
	body := httpRequest{MaxNewTokens: maxTokens}
	for _, turn := range conv.Turns {
		ht := httpTurn{Role: turn.Role}
		for _, seg := range turn.Segments {
			if !seg.IsAudio() {
				ht.Content = append(ht.Content, httpContent{Type: "text", Text: seg.Text})
				continue
			}
			wav, err := audio.EncodeSampleWAV(seg.Audio)
			if err != nil {
				return "", errors.Wrap(err, "encode audio segment")
			}
			ht.Content = append(ht.Content, httpContent{
				Type:        "audio",
				AudioBase64: base64.StdEncoding.EncodeToString(wav),
				SampleRate:  seg.Audio.SampleRate,
			})
		}
		body.Turns = append(body.Turns, ht)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url+"/generate", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := m.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", fmt.Errorf("model http status %d: %s", res.StatusCode, strings.TrimSpace(string(raw)))
	}

	text := strings.TrimSpace(extractGeneration(raw))
	if text == "" {
		return "", ErrEmptyGeneration
	}
	return text, nil
}

func (m *HTTPModel) Close() error {
	m.client.CloseIdleConnections()
	return nil
}

// extractGeneration accepts a plain-text body, a flat {"text": ...} object, or
// the pipeline shape [{"generation": {"content": ...}}].
func extractGeneration(raw []byte) string {
	var list []map[string]any
	if err := json.Unmarshal(raw, &list); err == nil {
		if len(list) == 0 {
			return ""
		}
		return extractText(list[0])
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return string(raw)
	}
	return extractText(obj)
}

func extractText(obj map[string]any) string {
	if gen, ok := obj["generation"].(map[string]any); ok {
		if s, ok := gen["content"].(string); ok {
			return s
		}
	}
	for _, k := range []string{"text", "content", "output", "response"} {
		if s, ok := obj[k].(string); ok {
			return s
		}
	}
	return ""
}
