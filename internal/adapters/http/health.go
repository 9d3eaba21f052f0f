package httpadapter

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

const healthProbeTimeout = 2 * time.Second

// HealthProbe checks one backend. Check returns nil when the backend is
// reachable and usable.
type HealthProbe struct {
	Name  string
	Check func(ctx context.Context) error
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (rt *Router) healthz(w http.ResponseWriter, r *http.Request) {
	results := make([]error, len(rt.probes))
	var g errgroup.Group
	for i, probe := range rt.probes {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
			defer cancel()
			results[i] = probe.Check(ctx)
			return nil
		})
	}
	_ = g.Wait()

	resp := healthResponse{Status: "ok"}
	if len(rt.probes) > 0 {
		resp.Checks = make(map[string]string, len(rt.probes))
	}
	for i, probe := range rt.probes {
		if err := results[i]; err != nil {
			resp.Status = "degraded"
			resp.Checks[probe.Name] = "unavailable"
			rt.logger.Warn("health_probe_failed",
				"request_id", requestIDFromContext(r.Context()),
				"backend", probe.Name,
				"error", err,
			)
			continue
		}
		resp.Checks[probe.Name] = "ok"
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
