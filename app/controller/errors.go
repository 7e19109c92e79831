package controller

import (
	"errors"
	"net/http"

	"github.com/vibast-solutions/ms-go-member/app/dto"
	"github.com/vibast-solutions/ms-go-member/app/service"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// StatusFor maps a service error kind to an HTTP status.
func StatusFor(err error) int {
	switch service.KindOf(err) {
	case service.ErrValidationFailed:
		return http.StatusBadRequest
	case service.ErrConflict:
		return http.StatusConflict
	case service.ErrNotFound:
		return http.StatusNotFound
	case service.ErrUnauthorized, service.ErrExpired, service.ErrReplayDetected:
		return http.StatusUnauthorized
	case service.ErrDependencyUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err. A non-empty authMessage replaces the message of every
// 401 so callers cannot tell which check failed.
func writeError(ctx echo.Context, err error, authMessage string) error {
	status := StatusFor(err)

	message := err.Error()
	switch status {
	case http.StatusUnauthorized:
		if authMessage != "" {
			message = authMessage
		}
	case http.StatusServiceUnavailable:
		message = "service temporarily unavailable"
	case http.StatusInternalServerError:
		message = "internal server error"
	}

	return ctx.JSON(status, dto.ErrorResponse{Error: message})
}

func logFailure(err error, msg string, fields logrus.Fields) {
	entry := logrus.WithFields(fields).WithError(err)
	switch {
	case errors.Is(err, service.ErrReplayDetected), errors.Is(err, service.ErrConflict), errors.Is(err, service.ErrUnauthorized):
		entry.Warn(msg)
	case errors.Is(err, service.ErrDependencyUnavailable):
		entry.Error(msg)
	case service.KindOf(err) == nil:
		entry.Error(msg)
	default:
		entry.Debug(msg)
	}
}
