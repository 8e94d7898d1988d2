package errorhandler

import (
	"context"
	"net/http"

	"github.com/mwork/credits-api/internal/pkg/logger"
	"github.com/mwork/credits-api/internal/pkg/response"
)

// HandleError logs the failure with the request-scoped logger and sends a
// formatted error response. The underlying error never reaches the client.
func HandleError(ctx context.Context, w http.ResponseWriter, status int, code, message string, err error) {
	event := logger.FromContext(ctx).Error().
		Str("error_code", code).
		Str("error_message", message).
		Int("status_code", status)

	if err != nil {
		event = event.Err(err)
	}

	event.Msg("Request error")

	response.Error(w, status, code, message)
}

// HandleInternal is HandleError for unexpected failures
func HandleInternal(ctx context.Context, w http.ResponseWriter, err error) {
	HandleError(ctx, w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", err)
}

// HandleValidation logs field errors at warn level and sends a 422 response
func HandleValidation(ctx context.Context, w http.ResponseWriter, fieldErrors map[string]string) {
	logger.FromContext(ctx).Warn().
		Interface("validation_errors", fieldErrors).
		Msg("Validation error")

	response.ValidationError(w, fieldErrors)
}
