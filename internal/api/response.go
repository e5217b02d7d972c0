package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	apperrors "equity-scanner/internal/errors"
	"equity-scanner/internal/logging"
)

// Response is the envelope of every JSON reply.
type Response struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// FieldError describes one rejected request field.
type FieldError struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func respond(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, Response{
		Status:  status,
		Message: http.StatusText(status),
		Data:    data,
	})
}

func ok(c echo.Context, data interface{}) error {
	return respond(c, http.StatusOK, data)
}

func badRequest(c echo.Context, errs []FieldError) error {
	return respond(c, http.StatusBadRequest, errs)
}

// errorStatus maps domain errors onto HTTP status codes.
func errorStatus(err error) int {
	var provider *apperrors.ProviderError
	switch {
	case errors.Is(err, apperrors.ErrInputValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrSymbolNotFound), errors.Is(err, apperrors.ErrDataNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrInsufficientHistory):
		return http.StatusUnprocessableEntity
	case errors.Is(err, apperrors.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, apperrors.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, apperrors.ErrMalformedPayload), errors.As(err, &provider):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// failure writes err with its mapped status. Internal errors are logged and
// not echoed to the client.
func (h *Handler) failure(c echo.Context, err error) error {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		logger := logging.FromContext(c.Request().Context())
		logger.Error().Err(err).Str("path", c.Path()).Msg("Request failed")
		return respond(c, status, "Something went wrong")
	}
	code := "ERR_VALIDATION"
	if status != http.StatusBadRequest {
		code = "ERR_" + strings.ToUpper(string(apperrors.Classify(err)))
	}
	return respond(c, status, []FieldError{{Code: code, Message: err.Error()}})
}
