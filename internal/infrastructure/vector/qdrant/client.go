package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/finvault/internal/core/domain"
	"github.com/kirillkom/finvault/internal/infrastructure/resilience"
)

// Client reads the narrative collection over the Qdrant REST API.
type Client struct {
	baseURL    string
	collection string
	apiKey     string
	httpClient *http.Client
	executor   *resilience.Executor

	existsMu sync.Mutex
	exists   bool
}

type Option func(*Client)

func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = strings.TrimSpace(key) }
}

func WithExecutor(executor *resilience.Executor) Option {
	return func(c *Client) { c.executor = executor }
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func New(baseURL, collection string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CollectionExists reports whether the narrative collection is present.
// Only a positive answer is cached, so a collection created later is found.
func (c *Client) CollectionExists(ctx context.Context) (bool, error) {
	c.existsMu.Lock()
	cached := c.exists
	c.existsMu.Unlock()
	if cached {
		return true, nil
	}

	exists, err := resilience.Call(ctx, c.executor, "qdrant.collection_exists", func(ctx context.Context) (bool, error) {
		resp, err := c.do(ctx, http.MethodGet, c.collectionPath(""), nil)
		if err != nil {
			return false, fmt.Errorf("qdrant collection request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return false, nil
		}
		if resp.StatusCode >= 300 {
			return false, statusError("collection_exists", resp)
		}
		return true, nil
	}, resilience.ClassifyError)
	if err != nil {
		return false, resilience.WrapBackendError("qdrant collection exists", err, resilience.ClassifyError)
	}

	if exists {
		c.existsMu.Lock()
		c.exists = true
		c.existsMu.Unlock()
	}
	return exists, nil
}

func (c *Client) SearchPoints(
	ctx context.Context,
	queryVector []float32,
	limit int,
	scoreThreshold float64,
	filter domain.NarrativeFilter,
) ([]domain.NarrativePoint, error) {
	reqBody := map[string]any{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": true,
	}
	if scoreThreshold > 0 {
		reqBody["score_threshold"] = scoreThreshold
	}
	if must := buildMustFilter(filter); len(must) > 0 {
		reqBody["filter"] = map[string]any{"must": must}
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	points, err := resilience.Call(ctx, c.executor, "qdrant.search", func(ctx context.Context) ([]domain.NarrativePoint, error) {
		resp, err := c.do(ctx, http.MethodPost, c.collectionPath("/points/search"), body)
		if err != nil {
			return nil, fmt.Errorf("qdrant search request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			return nil, statusError("search", resp)
		}

		var searchResp struct {
			Result []struct {
				ID      any            `json:"id"`
				Score   float64        `json:"score"`
				Payload map[string]any `json:"payload"`
			} `json:"result"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
			return nil, fmt.Errorf("decode search response: %w", err)
		}

		out := make([]domain.NarrativePoint, 0, len(searchResp.Result))
		for _, r := range searchResp.Result {
			out = append(out, domain.NarrativePoint{
				ID:      pointID(r.ID),
				Payload: r.Payload,
				Score:   r.Score,
			})
		}
		return out, nil
	}, resilience.ClassifyError)
	if err != nil {
		return nil, resilience.WrapBackendError("qdrant search", err, resilience.ClassifyError)
	}
	return points, nil
}

func buildMustFilter(filter domain.NarrativeFilter) []map[string]any {
	var must []map[string]any
	if len(filter.Tickers) > 0 {
		must = append(must, map[string]any{
			"key":   "ticker",
			"match": map[string]any{"any": filter.Tickers},
		})
	}
	if len(filter.DocTypes) > 0 {
		must = append(must, map[string]any{
			"key":   "doc_type",
			"match": map[string]any{"any": filter.DocTypes},
		})
	}
	return must
}

func (c *Client) collectionPath(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", c.baseURL, url.PathEscape(c.collection), suffix)
}

func (c *Client) do(ctx context.Context, method, target string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}
	return c.httpClient.Do(req)
}

func statusError(operation string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &resilience.StatusError{
		Backend:    "qdrant",
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       string(body),
	}
}

func pointID(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case float64:
		return fmt.Sprintf("%.0f", id)
	default:
		return fmt.Sprintf("%v", id)
	}
}
