package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/finvault/internal/core/domain"
	"github.com/kirillkom/finvault/internal/core/ports"
)

// FallbackText is returned in place of an answer when the provider fails.
const FallbackText = "mock response (inference failed)"

// Guard turns provider failures into a degraded Inference so callers always
// get a response.
type Guard struct {
	completer ports.Completer
	model     string
	timeout   time.Duration
	logger    *slog.Logger
}

func NewGuard(completer ports.Completer, model string, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{completer: completer, model: model, logger: logger}
}

// WithTimeout bounds every completion. Zero leaves the caller's deadline.
func (g *Guard) WithTimeout(timeout time.Duration) *Guard {
	g.timeout = timeout
	return g
}

func (g *Guard) Infer(ctx context.Context, prompt string) (out domain.Inference) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("inference_panic", "model", g.model, "panic", fmt.Sprint(r))
			out = g.fallback(start)
		}
	}()

	if g.completer == nil {
		return g.fallback(start)
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	result, err := g.completer.Complete(ctx, prompt)
	if err != nil {
		g.logger.Warn("inference_failed",
			"model", g.model,
			"error_kind", domain.ErrorKind(err),
			"error", err,
		)
		return g.fallback(start)
	}
	if result.Model == "" {
		result.Model = g.model
	}
	if result.Latency == 0 {
		result.Latency = time.Since(start)
	}
	return result
}

func (g *Guard) fallback(start time.Time) domain.Inference {
	return domain.Inference{
		Text:     FallbackText,
		Model:    g.model,
		Latency:  time.Since(start),
		Degraded: true,
	}
}
