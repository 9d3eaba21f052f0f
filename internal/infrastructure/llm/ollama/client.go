package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/finvault/internal/core/domain"
	"github.com/kirillkom/finvault/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, genModel, embedModel string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		executor:   executor,
	}
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	request := map[string]any{
		"model": e.client.embedModel,
		"input": []string{text},
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	err := e.client.executor.Execute(ctx, "ollama.embed", func(ctx context.Context) error {
		return e.client.call(ctx, "embed", "/api/embed", request, &response)
	}, resilience.ClassifyError)
	if err != nil {
		return nil, resilience.WrapBackendError("ollama embed", err, resilience.ClassifyError)
	}
	if len(response.Embeddings) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return response.Embeddings[0], nil
}

// Completer runs non-streaming generations against the local model.
type Completer struct {
	client *Client
}

func NewCompleter(client *Client) *Completer {
	return &Completer{client: client}
}

func (c *Completer) Complete(ctx context.Context, prompt string) (domain.Inference, error) {
	start := time.Now()
	reqBody := map[string]any{
		"model":  c.client.genModel,
		"prompt": prompt,
		"stream": false,
	}

	var response struct {
		Response        string `json:"response"`
		PromptEvalCount int    `json:"prompt_eval_count"`
		EvalCount       int    `json:"eval_count"`
	}
	err := c.client.executor.Execute(ctx, "ollama.generate", func(ctx context.Context) error {
		return c.client.call(ctx, "generate", "/api/generate", reqBody, &response)
	}, resilience.ClassifyError)
	if err != nil {
		return domain.Inference{}, resilience.WrapBackendError("ollama generate", err, resilience.ClassifyError)
	}

	return domain.Inference{
		Text:       strings.TrimSpace(response.Response),
		Model:      c.client.genModel,
		TokensUsed: response.PromptEvalCount + response.EvalCount,
		Latency:    time.Since(start),
	}, nil
}
