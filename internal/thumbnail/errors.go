package thumbnail

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoImage is the expected terminal state where the model answered with
// text only. It is not a crash and nothing is published.
var ErrNoImage = errors.New("image generation failed - no image returned by AI")

// ErrEmptyCompletion is returned when a text model answers with nothing usable.
var ErrEmptyCompletion = errors.New("model returned an empty completion")

// ErrSourceRejected marks a follow-up source URL that is not allowed to be fetched.
var ErrSourceRejected = errors.New("source url not allowed")

// ValidationError carries every input violation found in a request.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Errors, "; ")
}

// CompositionError is a fatal failure of an instruction-rewriting call. Stage
// is "compose" for the main path and "rewrite" for follow-ups.
type CompositionError struct {
	Stage string
	Err   error
}

func (e *CompositionError) Error() string {
	return fmt.Sprintf("%s instruction failed: %v", e.Stage, e.Err)
}

func (e *CompositionError) Unwrap() error { return e.Err }

// SynthesisError is a failed image-synthesis call (as opposed to ErrNoImage).
type SynthesisError struct {
	Err error
}

func (e *SynthesisError) Error() string { return fmt.Sprintf("image synthesis failed: %v", e.Err) }

func (e *SynthesisError) Unwrap() error { return e.Err }

// PublishError means an image was produced but could not be stored, so it is lost.
type PublishError struct {
	Err error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("image generated but upload failed: %v", e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// FetchError means the follow-up source asset could not be retrieved.
// StatusCode is the upstream HTTP status when one was received.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ClientFault reports whether the caller supplied a bad reference (4xx or a
// disallowed URL) rather than the fetch failing on our side.
func (e *FetchError) ClientFault() bool {
	return errors.Is(e.Err, ErrSourceRejected) || (e.StatusCode >= 400 && e.StatusCode < 500)
}
