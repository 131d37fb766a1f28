package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// --- JSON Helpers ---

// apiResponse is the envelope every endpoint answers with.
type apiResponse struct {
	Success    bool     `json:"success"`
	Message    string   `json:"message,omitempty"`
	Error      string   `json:"error,omitempty"`
	Details    []string `json:"details,omitempty"`
	URL        string   `json:"url,omitempty"`
	Key        string   `json:"key,omitempty"`
	RetryAfter int      `json:"retryAfter,omitempty"`
}

func failure(message string) apiResponse {
	return apiResponse{Success: false, Message: message}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Warn().Err(err).Msg("Failed to encode JSON response")
	}
}

// httpError sends a JSON error response. The clientMsg is returned to the caller.
// Optional internalDetails are logged server-side but never sent to the client.
func httpError(w http.ResponseWriter, status int, clientMsg string, internalDetails ...string) {
	if len(internalDetails) > 0 {
		log.Error().
			Int("status", status).
			Str("clientMsg", clientMsg).
			Strs("internalDetails", internalDetails).
			Msg("HTTP error with internal details")
	}
	respondJSON(w, status, failure(clientMsg))
}
