package handler

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/sync/errgroup"
)

// Version is set at build time with -ldflags
var Version = "0.1.0"

// Pinger is anything /ready must be able to reach
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	checks  map[string]Pinger
	timeout time.Duration
	logger  *slog.Logger
}

func NewHealthHandler(checks map[string]Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		checks:  checks,
		timeout: 2 * time.Second,
		logger:  logger,
	}
}

type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version,omitempty"`
	Checks  map[string]string `json:"checks,omitempty"`
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:  "ok",
		Version: Version,
	})
}

// Ready pings every dependency concurrently. Any failure answers 503.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	results := make(map[string]string, len(h.checks))
	errs := make(map[string]error, len(h.checks))
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}

	statuses := make([]error, len(names))
	var g errgroup.Group
	for i, name := range names {
		g.Go(func() error {
			statuses[i] = h.checks[name].Ping(ctx)
			return nil
		})
	}
	_ = g.Wait()

	ready := true
	for i, name := range names {
		if statuses[i] != nil {
			ready = false
			errs[name] = statuses[i]
			results[name] = "down"
			continue
		}
		results[name] = "up"
	}

	if !ready {
		h.logger.Warn("readiness check failed", "errors", errs)
		return c.Status(fiber.StatusServiceUnavailable).JSON(HealthResponse{
			Status: "unavailable",
			Checks: results,
		})
	}

	return c.JSON(HealthResponse{
		Status: "ready",
		Checks: results,
	})
}
