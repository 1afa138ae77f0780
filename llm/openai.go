package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAIClient implementiert Client über die Chat-Completions-API.
type OpenAIClient struct {
	client   *openai.Client
	settings CallSettings
	logger   *zap.Logger
}

// NewOpenAIClient erstellt einen neuen OpenAI-Client mit festen
// Call-Settings.
func NewOpenAIClient(apiKey string, settings CallSettings, logger *zap.Logger) *OpenAIClient {
	return &OpenAIClient{
		client:   openai.NewClient(apiKey),
		settings: settings,
		logger:   logger,
	}
}

// Complete schickt genau einen Prompt und gibt den rohen Completion-Text
// zurück. Die Basis-Settings liefern Modell und Token-Limit, das Profil
// überschreibt Temperatur und Instruktionen.
func (o *OpenAIClient) Complete(ctx context.Context, profile Profile, userPrompt string) (string, error) {
	spec := profile.Spec(o.settings)
	req := newChatRequest(spec, userPrompt)

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		o.logger.Error("OpenAI-Aufruf fehlgeschlagen", zap.Error(err))
		return "", fmt.Errorf("openai call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}

	o.logger.Debug("OpenAI-Antwort erhalten",
		zap.String("model", spec.Settings.Model),
		zap.Float64("temperature", spec.Settings.Temperature),
		zap.String("finish_reason", string(resp.Choices[0].FinishReason)))
	return resp.Choices[0].Message.Content, nil
}

// newChatRequest baut den Chat-Request aus der Profil-Spec.
func newChatRequest(spec ProfileSpec, userPrompt string) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model:       spec.Settings.Model,
		Temperature: float32(spec.Settings.Temperature),
		MaxTokens:   spec.Settings.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: spec.Instructions},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	}
}
