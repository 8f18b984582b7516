package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vzahanych/weather-timeline/internal/server/utils"
	"go.uber.org/zap"
)

// storageCheckTimeout bounds the preference store ping.
const storageCheckTimeout = 2 * time.Second

// Pinger is implemented by the preference store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports process liveness and whether the preference store,
// the only dependency the view cannot work without, answers.
type HealthHandler struct {
	logger    *zap.Logger
	version   string
	store     Pinger
	startTime time.Time
}

func NewHealthHandler(logger *zap.Logger, version string, store Pinger) *HealthHandler {
	return &HealthHandler{
		logger:    logger,
		version:   version,
		store:     store,
		startTime: time.Now(),
	}
}

func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status: "alive",
		Uptime: time.Since(h.startTime).String(),
	})
}

// Readiness answers 503 while the preference store is unreachable.
func (h *HealthHandler) Readiness(c *gin.Context) {
	checks, healthy := h.runChecks(c)

	resp := HealthResponse{
		Status: "ready",
		Uptime: time.Since(h.startTime).String(),
		Checks: checks,
	}
	if !healthy {
		resp.Status = "not_ready"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Health always answers 200; a failing store shows up as "degraded".
func (h *HealthHandler) Health(c *gin.Context) {
	checks, healthy := h.runChecks(c)

	status := "ok"
	if !healthy {
		status = "degraded"
	}

	c.JSON(http.StatusOK, HealthResponse{
		Status:    status,
		Uptime:    time.Since(h.startTime).String(),
		Version:   h.version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	})
}

func (h *HealthHandler) runChecks(c *gin.Context) (map[string]string, bool) {
	if h.store == nil {
		return map[string]string{"storage": "not configured"}, true
	}

	ctx, cancel := context.WithTimeout(utils.GetContextFromGinContext(c), storageCheckTimeout)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn("Storage health check failed",
			zap.String("request_id", utils.GetRequestIDFromGinContext(c)),
			zap.Error(err))
		return map[string]string{"storage": err.Error()}, false
	}
	return map[string]string{"storage": "ok"}, true
}
