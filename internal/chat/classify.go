package chat

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

// IsTransient reports whether a model call failure is worth retrying:
// timeouts, throttling, server errors and dropped connections.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var oaiErr *openai.APIError
	if errors.As(err, &oaiErr) {
		return retryableStatus(oaiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}
	var gPtr *genai.APIError
	if errors.As(err, &gPtr) {
		return retryableStatus(gPtr.Code)
	}
	var gVal genai.APIError
	if errors.As(err, &gVal) {
		return retryableStatus(gVal.Code)
	}

	errLower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errLower, "resource exhausted") ||
		strings.Contains(errLower, "resource_exhausted") ||
		strings.Contains(errLower, "rate limit") ||
		strings.Contains(errLower, "unavailable") ||
		strings.Contains(errLower, "overloaded"):
		return true
	case strings.Contains(errLower, "connection reset") ||
		strings.Contains(errLower, "connection refused") ||
		strings.Contains(errLower, "broken pipe") ||
		strings.Contains(errLower, "timeout") ||
		strings.Contains(errLower, "unexpected eof"):
		return true
	default:
		return false
	}
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500
}
