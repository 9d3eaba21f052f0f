package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kirillkom/finvault/internal/core/domain"
	"github.com/kirillkom/finvault/internal/infrastructure/resilience"
)

const (
	maxResponseBytes  = 16 << 20
	maxErrorBodyBytes = 2048
)

// apiError is the body Ollama sends with non-2xx answers.
type apiError struct {
	Error string `json:"error"`
}

// call POSTs payload to path and decodes the JSON answer into out. Non-2xx
// answers come back as *resilience.StatusError so the shared classifier can
// decide on retries.
func (c *Client) call(ctx context.Context, operation, path string, payload, out any) error {
	var body bytes.Buffer
	if err := json.NewEncoder(&body).Encode(payload); err != nil {
		return fmt.Errorf("encode ollama %s request: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &body)
	if err != nil {
		return fmt.Errorf("build ollama %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama %s: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return statusError(operation, resp)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return domain.WrapError(domain.ErrFormatViolation, "ollama "+operation, err)
	}
	return nil
}

func statusError(operation string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	msg := strings.TrimSpace(string(raw))
	var parsed apiError
	if json.Unmarshal(raw, &parsed) == nil && parsed.Error != "" {
		msg = parsed.Error
	}
	return &resilience.StatusError{
		Backend:    "ollama",
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       msg,
	}
}
