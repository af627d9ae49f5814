package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/moodi-org/pass-backend/internal/logging"
	"github.com/moodi-org/pass-backend/internal/models"
	"go.uber.org/zap"
)

// statusFor maps an error kind to its HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrNotRegistered):
		return http.StatusForbidden
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrTooManyRequests):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the JSON error body for err. Server errors are logged
// and only carry details when the error opted in.
func respondError(c *gin.Context, logger *logging.SafeLogger, operation string, err error) {
	status := statusFor(err)
	resp := models.ErrorResponse{Error: models.PublicMessage(err)}

	if status == http.StatusInternalServerError {
		resp.Details = models.ErrorDetails(err)
		logger.Error(operation+" failed",
			zap.String("request_id", c.GetString("RequestID")),
			zap.Error(err))
		_ = c.Error(err)
	}

	c.JSON(status, resp)
}
