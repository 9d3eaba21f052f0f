package groq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/kirillkom/finvault/internal/core/domain"
	"github.com/kirillkom/finvault/internal/infrastructure/resilience"
)

const DefaultBaseURL = "https://api.groq.com/openai/v1"

// Completer calls a Groq hosted model through its OpenAI compatible API.
type Completer struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	executor    *resilience.Executor
}

func NewCompleter(apiKey, baseURL, model string, maxTokens int, executor *resilience.Executor) *Completer {
	config := openai.DefaultConfig(apiKey)
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	config.BaseURL = strings.TrimRight(baseURL, "/")
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Completer{
		client:      openai.NewClientWithConfig(config),
		model:       model,
		maxTokens:   maxTokens,
		temperature: 0.2,
		executor:    executor,
	}
}

func (c *Completer) Model() string {
	return c.model
}

func (c *Completer) Complete(ctx context.Context, prompt string) (domain.Inference, error) {
	start := time.Now()
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}

	resp, err := resilience.Call(ctx, c.executor, "groq.chat_completion", func(ctx context.Context) (openai.ChatCompletionResponse, error) {
		return c.client.CreateChatCompletion(ctx, req)
	}, classifyGroqError)
	if err != nil {
		return domain.Inference{}, resilience.WrapBackendError("groq chat completion", err, classifyGroqError)
	}
	if len(resp.Choices) == 0 {
		return domain.Inference{}, domain.WrapError(domain.ErrFormatViolation, "groq chat completion", fmt.Errorf("no response choices"))
	}

	model := resp.Model
	if model == "" {
		model = c.model
	}
	return domain.Inference{
		Text:       strings.TrimSpace(resp.Choices[0].Message.Content),
		Model:      model,
		TokensUsed: resp.Usage.TotalTokens,
		Latency:    time.Since(start),
	}, nil
}

func classifyGroqError(err error) resilience.ErrorClassification {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatus(reqErr.HTTPStatusCode)
	}
	return resilience.ClassifyError(err)
}

func classifyStatus(code int) resilience.ErrorClassification {
	if resilience.IsRetryableHTTPStatus(code) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
}
