package inference

import (
	"context"
	"fmt"
	"strings"
)

// MockModel returns deterministic generations for local development.
type MockModel struct{}

func NewMockModel() *MockModel { return &MockModel{} }

func (m *MockModel) Name() string { return "mock" }

func (m *MockModel) Generate(ctx context.Context, conv Conversation, _ int) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	if conv.AudioCount() > 0 {
		return "The answer addresses the question directly and gives a concrete example, " +
			"but it could say more about trade-offs and how the result was measured.", nil
	}

	topic := "your most recent project"
	for _, t := range conv.Turns {
		if t.Role != RoleUser {
			continue
		}
		if line := firstLine(t.Text()); line != "" {
			topic = line
		}
	}
	return fmt.Sprintf("Walk me through a technical decision you made in %q and what you would change today.", topic), nil
}

func (m *MockModel) Close() error { return nil }

// MockTextGenerator echoes a templated question for the fallback path.
type MockTextGenerator struct{}

func NewMockTextGenerator() *MockTextGenerator { return &MockTextGenerator{} }

func (g *MockTextGenerator) Name() string { return "mock" }

func (g *MockTextGenerator) Complete(ctx context.Context, prompt string, _ int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	_, resumeText, _ := strings.Cut(prompt, ":")
	topic := firstLine(resumeText)
	if topic == "" {
		topic = "your background"
	}
	return fmt.Sprintf("What was the hardest problem you solved in %q?", topic), nil
}

// MockTranscriber returns a fixed transcript for any file.
type MockTranscriber struct {
	Transcript string
}

func NewMockTranscriber() *MockTranscriber {
	return &MockTranscriber{Transcript: "I would start by measuring where the latency comes from, then add a cache in front of the slowest dependency and watch the hit rate."}
}

func (t *MockTranscriber) Name() string { return "mock" }

func (t *MockTranscriber) TranscribeFile(ctx context.Context, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return t.Transcript, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > 60 {
		s = string(r[:60])
	}
	return s
}
