package usecase

import (
	"log/slog"

	"github.com/kirillkom/finvault/internal/core/domain"
	"github.com/kirillkom/finvault/internal/core/ports"
)

func loggerOrDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

func observerOrNoop(observer ports.RetrievalObserver) ports.RetrievalObserver {
	if observer == nil {
		return noopObserver{}
	}
	return observer
}

type noopObserver struct{}

func (noopObserver) ObserveRetrieval(domain.RetrievalSummary) {}
func (noopObserver) ObserveBackendFailure(string)             {}
func (noopObserver) ObserveVerdict(domain.VerdictKind)        {}
func (noopObserver) ObserveInference(string, bool)            {}
