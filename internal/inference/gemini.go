package inference

import (
	"context"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	"github.com/ent0n29/mockinterview/internal/audio"
)

const DefaultGeminiModel = "gemini-1.5-flash"

// GeminiModel sends conversations with inline WAV audio to a Gemini model.
type GeminiModel struct {
	client      *genai.Client
	model       string
	temperature float32
}

// LoadGeminiModel creates the client and fetches the model metadata, so a
// bad key or unknown model fails here rather than on the first question.
func LoadGeminiModel(ctx context.Context, apiKey, model string) (*GeminiModel, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.Wrap(ErrNotConfigured, "gemini api key is empty")
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, errors.Wrap(err, "create gemini client")
	}
	info, err := client.GenerativeModel(model).Info(ctx)
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "load gemini model %s", model)
	}
	log.WithField("model", info.Name).Info("gemini model loaded")

	return &GeminiModel{client: client, model: model, temperature: 0.7}, nil
}

func (g *GeminiModel) Name() string { return "gemini:" + g.model }

func (g *GeminiModel) Generate(ctx context.Context, conv Conversation, maxTokens int) (string, error) {
	// A fresh handle per call keeps generation settings out of shared state.
	m := g.client.GenerativeModel(g.model)
	m.SetTemperature(g.temperature)
	if maxTokens > 0 {
		m.SetMaxOutputTokens(int32(maxTokens))
	}

	var system, parts []genai.Part
	for _, turn := range conv.Turns {
		for _, seg := range turn.Segments {
			part, err := geminiPart(seg)
			if err != nil {
				return "", err
			}
			if turn.Role == RoleSystem {
				system = append(system, part)
			} else {
				parts = append(parts, part)
			}
		}
	}
	if len(system) > 0 {
		m.SystemInstruction = &genai.Content{Parts: system}
	}
	if len(parts) == 0 {
		return "", errors.New("gemini: conversation has no user content")
	}

	resp, err := m.GenerateContent(ctx, parts...)
	if err != nil {
		return "", errors.Wrap(err, "gemini generate content")
	}
	text := strings.TrimSpace(geminiText(resp))
	if text == "" {
		return "", ErrEmptyGeneration
	}
	return text, nil
}

func (g *GeminiModel) Close() error {
	return g.client.Close()
}

func geminiPart(seg Segment) (genai.Part, error) {
	if !seg.IsAudio() {
		return genai.Text(seg.Text), nil
	}
	wav, err := audio.EncodeSampleWAV(seg.Audio)
	if err != nil {
		return nil, errors.Wrap(err, "encode audio segment")
	}
	return genai.Blob{MIMEType: "audio/wav", Data: wav}, nil
}

func geminiText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return b.String()
}
