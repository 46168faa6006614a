package embedding

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// Client produces query embeddings through an OpenAI-compatible
// /v1/embeddings endpoint. It is used only by the retrieval adapter; the
// agent loop itself never embeds anything.
type Client struct {
	api   *openai.Client
	model string
}

// NewClient creates an embedding client for the given endpoint and model.
func NewClient(baseURL, apiKey, model string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return &Client{
		api:   openai.NewClientWithConfig(cfg),
		model: model,
	}
}

// Embed returns the dense vector for a single query string.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(c.model),
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding backend returned no vectors for model %s", c.model)
	}
	return resp.Data[0].Embedding, nil
}
