package model

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// EmbeddingDimension is the vector width requested from every backend so
// stored embeddings stay comparable regardless of provider. The
// text-embedding-3 models support shortening native vectors to a smaller
// dimension server side.
const EmbeddingDimension = 768

// OpenAIConfig configures the OpenAI backend.
type OpenAIConfig struct {
	APIKey         string
	Model          string  // chat model, e.g. "gpt-4o-mini"
	EmbedderModel  string  // e.g. "text-embedding-3-small"
	Temperature    float32 // completion temperature
	BaseURL        string  // optional override for OpenAI-compatible servers
}

// OpenAI implements Client against the OpenAI API.
type OpenAI struct {
	client      *openai.Client
	model       string
	embedder    openai.EmbeddingModel
	temperature float32
}

// NewOpenAI creates the OpenAI backend.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: missing API key")
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.EmbedderModel == "" {
		cfg.EmbedderModel = string(openai.SmallEmbedding3)
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAI{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		embedder:    openai.EmbeddingModel(cfg.EmbedderModel),
		temperature: cfg.Temperature,
	}, nil
}

// Embed implements Client.
func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input:      []string{text},
		Model:      o.embedder,
		Dimensions: EmbeddingDimension,
	})
	if err != nil {
		return nil, o.wrap("embed", err)
	}
	if len(resp.Data) == 0 {
		return nil, &Error{Kind: KindTransient, Op: "embed", Err: errors.New("empty embedding response")}
	}
	return resp.Data[0].Embedding, nil
}

// Complete implements Client.
func (o *OpenAI) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: o.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", o.wrap("complete", err)
	}
	if len(resp.Choices) == 0 {
		return "", &Error{Kind: KindTransient, Op: "complete", Err: errors.New("no choices returned")}
	}
	return resp.Choices[0].Message.Content, nil
}

// Dimension implements Client.
func (o *OpenAI) Dimension() int { return EmbeddingDimension }

// wrap classifies an SDK error into a *Error. The go-openai client exposes
// HTTP status codes through *openai.APIError and *openai.RequestError.
func (o *OpenAI) wrap(op string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &Error{Kind: classifyStatus(apiErr.HTTPStatusCode), Op: op, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &Error{Kind: classifyStatus(reqErr.HTTPStatusCode), Op: op, Err: err}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("openai %s: %w", op, err)
	}
	return &Error{Kind: classifyMessage(err), Op: op, Err: err}
}

var _ Client = (*OpenAI)(nil)
