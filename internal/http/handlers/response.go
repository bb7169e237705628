// Package handlers provides the HTTP handlers of the cache API.
//
// Every failure is answered with an ErrorResponse carrying the request id
// and a stable code from errors.go; 5xx responses are also logged through
// the request-scoped logger. failErr maps service errors to statuses so
// handlers stay transport-thin.
//
// Example error response:
//
//	HTTP/1.1 503 Service Unavailable
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "cache_not_initialized",
//	  "message": "cache is not initialized"
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/today-feed-cache/internal/domain"
	"github.com/tbourn/today-feed-cache/internal/http/middleware"
	"github.com/tbourn/today-feed-cache/internal/services"
)

// ErrorResponse is the error envelope returned by all endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go)
	Code string `json:"code" example:"no_content"`
	// Human-readable message
	Message string `json:"message" example:"no content available"`
}

func fail(c *gin.Context, status int, code, msg string) {
	resp := ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	}
	if status >= http.StatusInternalServerError {
		lg := middleware.LoggerFrom(c)
		lg.Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail for the router's fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// failErr maps a service error onto the envelope.
func failErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrNotInitialized):
		c.Header("Retry-After", "5")
		fail(c, http.StatusServiceUnavailable, ErrCodeNotInitialized, "cache is not initialized")
	case errors.Is(err, services.ErrNoContent):
		fail(c, http.StatusNotFound, ErrCodeNoContent, "no content available")
	case errors.Is(err, services.ErrInvalidContent):
		fail(c, http.StatusUnprocessableEntity, ErrCodeInvalidContent, err.Error())
	case errors.Is(err, services.ErrEmptyAction):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "action is required")
	case errors.Is(err, services.ErrInvalidPercentage), errors.Is(err, services.ErrInvalidPhase),
		errors.Is(err, domain.ErrUnknownStrategy), errors.Is(err, domain.ErrUnknownPhase):
		fail(c, http.StatusBadRequest, ErrCodeInvalidRollout, err.Error())
	case errors.Is(err, services.ErrSyncFailed):
		fail(c, http.StatusBadGateway, ErrCodeSyncFailed, err.Error())
	case errors.Is(err, services.ErrFetchFailed):
		fail(c, http.StatusBadGateway, ErrCodeFetchFailed, err.Error())
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
