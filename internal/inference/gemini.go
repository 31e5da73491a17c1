package inference

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"konto/internal/categorize"
	"konto/internal/log"
)

// Gemini asks a Gemini model for category proposals.
type Gemini struct {
	client   *genai.Client
	model    string
	language string
	logger   *log.Logger
}

// NewGemini creates a client for the Gemini developer API.
func NewGemini(ctx context.Context, apiKey, model, language string, logger *log.Logger) (*Gemini, error) {
	return newGemini(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}, model, language, logger)
}

func newGemini(ctx context.Context, cc *genai.ClientConfig, model, language string, logger *log.Logger) (*Gemini, error) {
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Gemini{
		client:   client,
		model:    model,
		language: language,
		logger:   log.OrDefault(logger, log.ComponentInference).With(log.FieldProvider, "gemini"),
	}, nil
}

// Infer implements categorize.Inferrer.
func (g *Gemini) Infer(ctx context.Context, batch []categorize.TxSummary, catalog []categorize.CatalogEntry) (map[string]*string, error) {
	prompt := BuildPrompt(batch, catalog, g.language)
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}

	text := resp.Text()
	g.logger.DebugContext(ctx, "Model response received", log.FieldBatchSize, len(batch), "chars", len(text))
	return ParseAssignments(text)
}
