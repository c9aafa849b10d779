package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/adiga-code/numerology/internal/config"
	"github.com/adiga-code/numerology/internal/metrics"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

const systemPrompt = "Ты опытный нумеролог. Отвечай на русском языке, без markdown-разметки."

// LLMProvider calls an OpenAI-compatible chat completions endpoint and
// returns the text synchronously.
type LLMProvider struct {
	client      *resty.Client
	model       string
	maxTokens   int
	temperature float64
	logger      *zerolog.Logger
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type chatError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func NewLLMProvider(cfg config.LLMConfig, logger *zerolog.Logger) *LLMProvider {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetAuthToken(cfg.APIKey)
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	return &LLMProvider{
		client:      client,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		logger:      logger,
	}
}

func (p *LLMProvider) Name() string { return config.ProviderLLM }

func (p *LLMProvider) Submit(ctx context.Context, req Request) (Submission, error) {
	start := time.Now()
	var (
		out     chatResponse
		failure chatError
	)
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(chatRequest{
			Model: p.model,
			Messages: []chatMessage{
				{Role: "system", Content: systemPrompt},
				{Role: "user", Content: req.Prompt},
			},
			MaxTokens:   p.maxTokens,
			Temperature: p.temperature,
		}).
		SetResult(&out).
		SetError(&failure).
		Post("/chat/completions")
	if err != nil {
		metrics.ObserveSubmission(p.Name(), "error", elapsed(start))
		return Submission{}, fmt.Errorf("llm request: %w", err)
	}
	if resp.IsError() {
		metrics.ObserveSubmission(p.Name(), "error", elapsed(start))
		if failure.Error.Message != "" {
			return Submission{}, fmt.Errorf("llm returned HTTP %d: %s", resp.StatusCode(), failure.Error.Message)
		}
		return Submission{}, fmt.Errorf("llm returned HTTP %d", resp.StatusCode())
	}

	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		metrics.ObserveSubmission(p.Name(), "empty", elapsed(start))
		return Submission{}, ErrEmptyText
	}
	metrics.ObserveSubmission(p.Name(), "success", elapsed(start))

	text := strings.TrimSpace(out.Choices[0].Message.Content)
	p.logger.Info().
		Int64("order_id", req.OrderID).
		Int("length", len(text)).
		Dur("took", time.Since(start)).
		Msg("LLM report generated")

	return Submission{Provider: p.Name(), TaskRef: out.ID, Text: text}, nil
}
