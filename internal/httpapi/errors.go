package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/fpang/thumbnail-studio/internal/thumbnail"
)

// writePipelineError maps a typed pipeline failure to its status and client
// message. Internal detail is logged, not returned, except where the message
// format carries a cause.
func (s *server) writePipelineError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := middleware.GetReqID(r.Context())
	logger := log.With().Str("requestId", requestID).Logger()

	var (
		validationErr  *thumbnail.ValidationError
		fetchErr       *thumbnail.FetchError
		publishErr     *thumbnail.PublishError
		compositionErr *thumbnail.CompositionError
		synthesisErr   *thumbnail.SynthesisError
	)

	switch {
	case errors.As(err, &validationErr):
		logger.Info().Strs("details", validationErr.Errors).Msg("Request failed validation")
		respondValidation(w, validationErr.Errors)

	case errors.Is(err, thumbnail.ErrNoImage):
		logger.Warn().Msg("Model returned no image")
		respondJSON(w, http.StatusBadRequest, failure("Image generation failed - no image returned by AI"))

	case errors.As(err, &fetchErr):
		status := http.StatusInternalServerError
		if fetchErr.ClientFault() {
			status = http.StatusBadRequest
		}
		logger.Warn().Err(err).Int("status", status).Msg("Source image fetch failed")
		respondJSON(w, status, failure("Failed to fetch source image: "+causeOf(fetchErr.Err)))

	case errors.As(err, &publishErr):
		logger.Error().Err(err).Msg("Generated image could not be stored")
		respondJSON(w, http.StatusInternalServerError, failure("Image generated but upload failed: "+causeOf(publishErr.Err)))

	case errors.Is(err, context.DeadlineExceeded):
		httpError(w, http.StatusGatewayTimeout, "Upstream model timed out, please retry", err.Error())

	case errors.As(err, &compositionErr):
		httpError(w, http.StatusInternalServerError, "Prompt composition failed: "+causeOf(compositionErr.Err), err.Error())

	case errors.As(err, &synthesisErr):
		httpError(w, http.StatusInternalServerError, "Image generation pipeline failed: external API call failed", err.Error())

	default:
		httpError(w, http.StatusInternalServerError, "Image generation pipeline failed", err.Error())
	}
}

// causeOf keeps client-facing causes short: the innermost error message.
func causeOf(err error) string {
	if err == nil {
		return "unknown error"
	}
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}
