// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"foodtrack/internal/modules/order"
	"foodtrack/internal/modules/profile"
)

type errorResponse struct {
	Error string `json:"error"`
}

// isValidID accepts the url-safe ids issued by checkout and auth (letters, digits, '-', '_').
func isValidID(v string) bool {
	if v == "" || len(v) > 128 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' || c == '_' {
			continue
		}
		return false
	}
	return true
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeOrderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, order.ErrBadRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, order.ErrInvalidRating):
		writeError(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, order.ErrForbidden):
		writeError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, order.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, order.ErrInvalidState), errors.Is(err, order.ErrConflict), errors.Is(err, order.ErrNotCompleted):
		writeError(c, http.StatusConflict, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

func writeProfileError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, profile.ErrInvalidVerification), errors.Is(err, profile.ErrNoteTooLong):
		writeError(c, http.StatusBadRequest, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}
