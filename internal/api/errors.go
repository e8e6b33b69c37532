package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rongwang/groupbets-server/internal/ident"
	"github.com/rongwang/groupbets-server/internal/models"
	"github.com/rongwang/groupbets-server/internal/repository"
	"github.com/rongwang/groupbets-server/internal/service"
)

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, models.ErrorResponse{
		Status:  "error",
		Code:    code,
		Message: message,
	})
}

// badRequest reports a payload or query that failed binding
func badRequest(c *gin.Context, err error) {
	abortWithError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
}

// respondError maps a service error to its status and code. Storage
// diagnostics are logged, never returned.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ident.ErrInvalidIdentifier):
		abortWithError(c, http.StatusBadRequest, "INVALID_ID", err.Error())
	case errors.Is(err, service.ErrPasswordTooLong):
		abortWithError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	case errors.Is(err, service.ErrNotFound):
		abortWithError(c, http.StatusNotFound, "NOT_FOUND", "Resource not found")
	case errors.Is(err, service.ErrDuplicateEmail):
		abortWithError(c, http.StatusConflict, "DUPLICATE_EMAIL", "Email already exists")
	case errors.Is(err, service.ErrDuplicateName):
		abortWithError(c, http.StatusConflict, "DUPLICATE_NAME", "Group name already exists")
	case errors.Is(err, repository.ErrStorageUnavailable):
		slog.Error("Storage unavailable", "path", c.Request.URL.Path, "error", err)
		abortWithError(c, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Storage unavailable")
	default:
		slog.Error("Request failed", "path", c.Request.URL.Path, "error", err)
		abortWithError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}
