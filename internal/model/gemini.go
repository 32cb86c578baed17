package model

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// GeminiConfig configures the Gemini backend.
type GeminiConfig struct {
	APIKey        string
	Model         string // e.g. "gemini-2.5-flash"
	EmbedderModel string // e.g. "gemini-embedding-001"
}

// Gemini implements Client against the Gemini API.
type Gemini struct {
	client   *genai.Client
	model    string
	embedder string
}

// NewGemini creates the Gemini backend.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: missing API key")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if cfg.EmbedderModel == "" {
		cfg.EmbedderModel = "gemini-embedding-001"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: creating client: %w", err)
	}

	return &Gemini{
		client:   client,
		model:    cfg.Model,
		embedder: cfg.EmbedderModel,
	}, nil
}

// Embed implements Client.
func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	// gemini-embedding-001 natively outputs 3072 dimensions; request the
	// shared width so stored vectors stay comparable across backends.
	dim := int32(EmbeddingDimension)
	resp, err := g.client.Models.EmbedContent(ctx, g.embedder,
		genai.Text(text),
		&genai.EmbedContentConfig{OutputDimensionality: &dim},
	)
	if err != nil {
		return nil, wrapGemini("embed", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, &Error{Kind: KindTransient, Op: "embed", Err: errors.New("empty embedding response")}
	}
	return resp.Embeddings[0].Values, nil
}

// Complete implements Client.
func (g *Gemini) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", wrapGemini("complete", err)
	}
	text := resp.Text()
	if text == "" {
		return "", &Error{Kind: KindTransient, Op: "complete", Err: errors.New("empty completion response")}
	}
	return text, nil
}

// Dimension implements Client.
func (g *Gemini) Dimension() int { return EmbeddingDimension }

// wrapGemini classifies a genai SDK error into a *Error.
func wrapGemini(op string, err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &Error{Kind: classifyStatus(apiErr.Code), Op: op, Err: err}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("gemini %s: %w", op, err)
	}
	return &Error{Kind: classifyMessage(err), Op: op, Err: err}
}

var _ Client = (*Gemini)(nil)
