package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/hopsearch/hopsearch/internal/domain/repository"
	"github.com/hopsearch/hopsearch/internal/resilience"
)

const defaultMaxTokens = 4096

// Client implements repository.LLMClient against an OpenAI-compatible
// chat-completions endpoint (OpenRouter, vLLM, llama.cpp server, ...).
//
// The wire format is decoded by hand rather than through an SDK because the
// usage block must be copied verbatim, including the non-standard
// usage.cost field OpenRouter attaches.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	retrier    *resilience.Retrier
	logger     zerolog.Logger
}

// NewClient creates a chat-completion client for the given endpoint URL.
func NewClient(baseURL, apiKey string, logger zerolog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
		retrier:    resilience.NewRetrier(3, 500*time.Millisecond),
		logger:     logger.With().Str("component", "llm").Logger(),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	Messages  []chatMessage `json:"messages"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int     `json:"prompt_tokens"`
		CompletionTokens int     `json:"completion_tokens"`
		Cost             float64 `json:"cost"`
	} `json:"usage"`
}

// Complete sends one chat-completion request and returns the generated text
// with the backend-reported usage. Transient transport failures (network
// errors, 429, 5xx) are retried a few times before the error is surfaced.
func (c *Client) Complete(ctx context.Context, model, systemPrompt, userMessage string) (repository.Completion, error) {
	var messages []chatMessage
	if systemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: userMessage})

	reqBody, err := json.Marshal(chatCompletionRequest{
		Model:     model,
		MaxTokens: defaultMaxTokens,
		Messages:  messages,
	})
	if err != nil {
		return repository.Completion{}, fmt.Errorf("marshal chat request: %w", err)
	}

	start := time.Now()

	var apiResp chatCompletionResponse
	err = c.retrier.Do(ctx, func() (bool, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(reqBody))
		if err != nil {
			return false, fmt.Errorf("create chat request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return true, fmt.Errorf("chat request failed: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			err := fmt.Errorf("llm backend returned status %d: %s", resp.StatusCode, string(body))
			retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
			return retryable, err
		}

		if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
			return false, fmt.Errorf("decode chat response: %w", err)
		}
		return false, nil
	})
	if err != nil {
		return repository.Completion{}, err
	}

	if len(apiResp.Choices) == 0 {
		return repository.Completion{}, fmt.Errorf("llm backend returned no choices for model %s", model)
	}

	completion := repository.Completion{
		Text: apiResp.Choices[0].Message.Content,
		Usage: repository.Usage{
			PromptTokens:     apiResp.Usage.PromptTokens,
			CompletionTokens: apiResp.Usage.CompletionTokens,
			Cost:             apiResp.Usage.Cost,
		},
	}

	c.logger.Debug().
		Str("model", model).
		Int("prompt_tokens", completion.Usage.PromptTokens).
		Int("completion_tokens", completion.Usage.CompletionTokens).
		Dur("latency", time.Since(start)).
		Msg("chat completion finished")

	return completion, nil
}
