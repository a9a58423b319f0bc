package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"feedbackhub/internal/apperr"
	"feedbackhub/internal/models"

	"github.com/cenkalti/backoff/v4"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// writeError maps an error to its status code and the shared JSON error body
func writeError(c echo.Context, logger zerolog.Logger, err error) error {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	resp := models.ErrorResponse{Code: kind.String()}

	switch kind {
	case apperr.KindValidation:
		e, _ := apperr.As(err)
		resp.Error = e.Message()
		resp.Field = e.Field()
	case apperr.KindUnauthorized:
		resp.Error = "Unauthorized"
	case apperr.KindNotFound:
		resp.Error = "Thread not found"
	case apperr.KindTransientIO:
		resp.Error = "Service temporarily unavailable, please retry"
	default:
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return c.JSON(he.Code, models.ErrorResponse{Error: http.StatusText(he.Code), Code: "bad_request"})
		}
		resp.Error = "Internal server error"
	}

	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Str("path", c.Path()).Str("code", resp.Code).Msg("Request failed")
	}
	return c.JSON(status, resp)
}

// withRetry runs a read a bounded number of extra times while it fails
// with a transient error. Every other error returns immediately.
func withRetry[T any](ctx context.Context, maxRetries int, op func() (T, error)) (T, error) {
	if maxRetries < 0 {
		maxRetries = 0
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 50 * time.Millisecond
	policy.MaxInterval = time.Second

	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(maxRetries)), ctx)
	return backoff.RetryWithData(func() (T, error) {
		v, err := op()
		if err != nil && !apperr.IsRetryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, b)
}
