package handlers

import (
	"context"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/moodi-org/pass-backend/internal/logging"
	"github.com/moodi-org/pass-backend/internal/models"
	"github.com/moodi-org/pass-backend/internal/utils"
	"go.uber.org/zap"
)

const runningStatus = "Access Pass backend running"

// HealthCheck is a named dependency probe for /ready
type HealthCheck struct {
	Name string
	// Required checks fail readiness; the others are only reported
	Required bool
	Check    func(ctx context.Context) error
}

// HealthHandlers serves liveness and readiness
type HealthHandlers struct {
	logger *logging.SafeLogger
	checks []HealthCheck
}

// NewHealthHandlers creates the health handlers
func NewHealthHandlers(logger *logging.SafeLogger, checks ...HealthCheck) *HealthHandlers {
	sorted := append([]HealthCheck(nil), checks...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	return &HealthHandlers{logger: logger, checks: sorted}
}

// Health godoc
// @Summary Liveness probe
// @Tags health
// @Produce json
// @Success 200 {object} models.HealthResponse
// @Router /health [get]
func (h *HealthHandlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, models.HealthResponse{OK: true, Status: runningStatus})
}

// Ready godoc
// @Summary Readiness probe
// @Tags health
// @Produce json
// @Success 200 {object} models.ReadyResponse
// @Failure 503 {object} models.ReadyResponse
// @Router /ready [get]
func (h *HealthHandlers) Ready(c *gin.Context) {
	resp := models.ReadyResponse{OK: true, Status: "ready", Services: make(map[string]string, len(h.checks))}

	for _, check := range h.checks {
		ctx, span := utils.TraceExternalService(c.Request.Context(), check.Name, "ping")
		err := check.Check(ctx)
		if err != nil {
			utils.RecordErrorInSpan(span, err, nil)
			resp.Services[check.Name] = "unhealthy"
			h.logger.Warn("readiness check failed",
				zap.String("service", check.Name),
				zap.Bool("required", check.Required),
				zap.Error(err))
			if check.Required {
				resp.OK = false
				resp.Status = "not ready"
			}
		} else {
			resp.Services[check.Name] = "healthy"
		}
		span.End()
	}

	status := http.StatusOK
	if !resp.OK {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}
