package nethttp

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	rcerrors "github.com/rustcare/core/pkg/errors"
)

// ErrorResponse is the wire shape every rejected request receives,
// matching the teacher's ResponseError{Code, Title, Message} — kept
// deliberately free of any field that could leak the underlying cause
// (a masking/kms/authz internal error message never reaches the client).
type ErrorResponse struct {
	Code    string `json:"code"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

var kindTitles = map[rcerrors.Kind]string{
	rcerrors.KindAuthentication: "Unauthorized",
	rcerrors.KindAuthorization:  "Forbidden",
	rcerrors.KindValidation:     "Validation Failed",
	rcerrors.KindConflict:       "Conflict",
	rcerrors.KindNotFound:       "Not Found",
	rcerrors.KindRateLimited:    "Rate Limit Exceeded",
	rcerrors.KindIntegrity:      "Integrity Error",
	rcerrors.KindKmsUnavailable: "Key Management Unavailable",
	rcerrors.KindInternal:       "Internal Server Error",
}

var kindStatus = map[rcerrors.Kind]int{
	rcerrors.KindAuthentication: fiber.StatusUnauthorized,
	rcerrors.KindAuthorization:  fiber.StatusForbidden,
	rcerrors.KindValidation:     fiber.StatusBadRequest,
	rcerrors.KindConflict:       fiber.StatusConflict,
	rcerrors.KindNotFound:       fiber.StatusNotFound,
	rcerrors.KindRateLimited:    fiber.StatusTooManyRequests,
	rcerrors.KindIntegrity:      fiber.StatusInternalServerError,
	rcerrors.KindKmsUnavailable: fiber.StatusServiceUnavailable,
	rcerrors.KindInternal:       fiber.StatusInternalServerError,
}

// WithError widens a pkg/errors.Error (or any other error) to an HTTP
// response, dispatched on Kind the way the teacher's WithError dispatches
// on concrete common.*Error types. Per spec §4.E's failure semantics, a
// rate-limited error also carries the Retry-After header.
func WithError(c *fiber.Ctx, err error) error {
	var rcErr *rcerrors.Error
	if !errors.As(err, &rcErr) {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Code:    "internal_error",
			Title:   "Internal Server Error",
			Message: "an unexpected error occurred",
		})
	}

	status, ok := kindStatus[rcErr.Kind]
	if !ok {
		status = fiber.StatusInternalServerError
	}

	if secs, ok := rcerrors.RetryAfterSecs(rcErr); ok {
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(secs))
	}

	return c.Status(status).JSON(ErrorResponse{
		Code:    rcErr.Code,
		Title:   kindTitles[rcErr.Kind],
		Message: rcErr.Message,
	})
}
