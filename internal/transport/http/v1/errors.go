package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/xiaot623/gogo/agentgate/internal/domain"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string            `json:"error"`
	Code  domain.ErrorKind `json:"code"`
}

// StatusFor maps an error kind to its HTTP status code.
func StatusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindDuplicateHandoff, domain.KindDuplicateApproval, domain.KindInvalidTransition,
		domain.KindAlreadyResolved, domain.KindStaleState:
		return http.StatusConflict
	case domain.KindNotRecipient, domain.KindActionDisabled:
		return http.StatusForbidden
	case domain.KindAgentUnavailable, domain.KindSelfHandoff:
		return http.StatusUnprocessableEntity
	case domain.KindRateLimit:
		return http.StatusTooManyRequests
	case domain.KindValidation:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// WriteError renders err with the status its kind maps to. Internal errors
// are logged and their message is not exposed.
func WriteError(c echo.Context, logger *zap.Logger, err error) error {
	kind := domain.KindOf(err)
	status := StatusFor(kind)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("method", c.Request().Method), zap.String("path", c.Path()), zap.Error(err))
		msg = "internal error"
	}
	return c.JSON(status, ErrorResponse{Error: msg, Code: kind})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg, Code: domain.KindValidation})
}
