package rest

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

const healthTimeout = 3 * time.Second

// Pinger - a dependency that can tell whether it is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type healthHandler struct {
	logger *slog.Logger
	checks map[string]Pinger
}

func newHealthHandler(logger *slog.Logger, checks map[string]Pinger) *healthHandler {
	return &healthHandler{
		logger: logger.With("component", "health"),
		checks: checks,
	}
}

type healthResult struct {
	Status string `json:"status"`
}

func (that *healthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	results := make(map[string]healthResult, len(that.checks))
	status := http.StatusOK

	for name, check := range that.checks {
		if err := check.Ping(ctx); err != nil {
			that.logger.Error("health check failed", "name", name, "error", err)
			results[name] = healthResult{Status: "error"}
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = healthResult{Status: "ok"}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(results); err != nil {
		that.logger.Error("failed to write health response", "error", err)
	}
}
