package inference

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	yandexgptclient "github.com/sheeiavellie/go-yandexgpt"
)

// YandexGPTGenerator uses YandexGPT Lite as the fallback text model.
type YandexGPTGenerator struct {
	client    *yandexgptclient.YandexGPTClient
	catalogID string
}

func NewYandexGPTGenerator(iamToken, catalogID string) (*YandexGPTGenerator, error) {
	if strings.TrimSpace(iamToken) == "" || strings.TrimSpace(catalogID) == "" {
		return nil, errors.Wrap(ErrNotConfigured, "yandexgpt iam token and catalog id are required")
	}
	return &YandexGPTGenerator{
		client:    yandexgptclient.NewYandexGPTClientWithIAMToken(iamToken),
		catalogID: catalogID,
	}, nil
}

func (g *YandexGPTGenerator) Name() string { return "yandexgpt-lite" }

func (g *YandexGPTGenerator) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	request := yandexgptclient.YandexGPTRequest{
		ModelURI: yandexgptclient.MakeModelURI(g.catalogID, yandexgptclient.YandexGPTModelLite),
		CompletionOptions: yandexgptclient.YandexGPTCompletionOptions{
			Stream:      false,
			Temperature: 0.7,
			MaxTokens:   maxTokens,
		},
		Messages: []yandexgptclient.YandexGPTMessage{
			{
				Role: yandexgptclient.YandexGPTMessageRoleUser,
				Text: prompt,
			},
		},
	}

	response, err := g.client.CreateRequest(ctx, request)
	if err != nil {
		return "", errors.Wrap(err, "yandexgpt completion request")
	}
	if len(response.Result.Alternatives) == 0 {
		return "", ErrEmptyGeneration
	}
	text := strings.TrimSpace(response.Result.Alternatives[0].Message.Text)
	if text == "" {
		return "", ErrEmptyGeneration
	}
	return text, nil
}
