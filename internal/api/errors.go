package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/goatkit/prodmanager/internal/plugin"
)

// statusFor maps lifecycle error kinds to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, plugin.ErrInvalidName):
		return http.StatusBadRequest
	case errors.Is(err, plugin.ErrExtensionNotLoaded):
		return http.StatusNotFound
	case errors.Is(err, plugin.ErrAlreadyInstalled):
		return http.StatusConflict
	case errors.Is(err, plugin.ErrBadArchiveStructure),
		errors.Is(err, plugin.ErrEntryFileMissing),
		errors.Is(err, plugin.ErrEntryClassMissing),
		errors.Is(err, plugin.ErrNotAnExtension),
		errors.Is(err, plugin.ErrIncompatible):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// abortWithErrors writes the {"errors": [...]} body used by every endpoint.
func abortWithErrors(c *gin.Context, status int, msgs ...string) {
	c.AbortWithStatusJSON(status, gin.H{"errors": msgs})
}

// abortWithError reports err with the status its kind maps to. Retryable
// lifecycle failures also carry a Retry-After hint.
func abortWithError(c *gin.Context, err error) {
	if plugin.IsRetryable(err) {
		c.Header("Retry-After", "5")
	}
	abortWithErrors(c, statusFor(err), err.Error())
}
