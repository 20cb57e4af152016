package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"gemini-router/internal/provider"
	"gemini-router/internal/translator"
)

type requestError struct {
	Status  int
	Message string
}

func (e requestError) Error() string {
	return e.Message
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(c echo.Context, status int, message string) error {
	return c.JSON(status, errorBody{Error: message})
}

func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var reqErr requestError
	if errors.As(err, &reqErr) {
		_ = writeError(c, reqErr.Status, reqErr.Message)
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		_ = writeError(c, he.Code, fmt.Sprint(he.Message))
		return
	}

	slog.Error("unhandled request error", "uri", c.Request().RequestURI, "error", err)
	_ = writeError(c, http.StatusInternalServerError, err.Error())
}

// toHTTPError maps pipeline errors onto response statuses. Caller faults are
// 400; everything else surfaces as 500 with the raw message.
func toHTTPError(err error) error {
	var reqErr requestError
	if errors.As(err, &reqErr) {
		return reqErr
	}

	if errors.Is(err, translator.ErrInvalidInput) || errors.Is(err, provider.ErrUnknownProvider) {
		return requestError{
			Status:  http.StatusBadRequest,
			Message: err.Error(),
		}
	}

	return requestError{
		Status:  http.StatusInternalServerError,
		Message: err.Error(),
	}
}
