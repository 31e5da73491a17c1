package inference

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"konto/internal/categorize"
	"konto/internal/log"
)

const systemPrompt = "You categorize bank transactions and answer with JSON only."

// OpenAI asks any OpenAI-compatible chat endpoint for category proposals.
type OpenAI struct {
	client   *openai.Client
	model    string
	language string
	logger   *log.Logger
}

// NewOpenAI creates a client. An empty baseURL uses the public endpoint.
func NewOpenAI(apiKey, baseURL, model, language string, logger *log.Logger) *OpenAI {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAI{
		client:   openai.NewClientWithConfig(config),
		model:    model,
		language: language,
		logger:   log.OrDefault(logger, log.ComponentInference).With(log.FieldProvider, "openai"),
	}
}

// Infer implements categorize.Inferrer.
func (o *OpenAI) Infer(ctx context.Context, batch []categorize.TxSummary, catalog []categorize.CatalogEntry) (map[string]*string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: BuildPrompt(batch, catalog, o.language)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion: no choices")
	}

	text := resp.Choices[0].Message.Content
	o.logger.DebugContext(ctx, "Model response received", log.FieldBatchSize, len(batch), "chars", len(text))
	return ParseAssignments(text)
}
