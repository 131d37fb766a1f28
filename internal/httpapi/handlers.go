package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/fpang/thumbnail-studio/internal/thumbnail"
)

const successMessage = "Image generated and uploaded successfully"

func (s *server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetReqID(r.Context())

	req, err := s.parseGenerationRequest(w, r)
	if err != nil {
		var ue *uploadError
		if errors.As(err, &ue) {
			log.Warn().Str("requestId", requestID).Str("detail", ue.detail).Msg(ue.body.Error)
			respondJSON(w, ue.status, ue.body)
			return
		}
		httpError(w, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}
	req.RequestID = requestID

	asset, err := s.pipeline.Generate(r.Context(), req)
	if err != nil {
		s.writePipelineError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, apiResponse{
		Success: true,
		Message: successMessage,
		URL:     asset.URL,
		Key:     asset.StorageKey,
	})
}

// followUpBody is the JSON body of a refinement request.
type followUpBody struct {
	ImageURL string `json:"imageUrl" validate:"required,url"`
	Desc     string `json:"desc" validate:"required"`
}

const maxFollowUpBody = 64 << 10

func (s *server) handleFollowUp(w http.ResponseWriter, r *http.Request) {
	var body followUpBody
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFollowUpBody))
	if err := dec.Decode(&body); err != nil {
		respondValidation(w, []string{"request body must be a JSON object with imageUrl and desc"})
		return
	}
	body.ImageURL = strings.TrimSpace(body.ImageURL)
	body.Desc = strings.TrimSpace(body.Desc)

	if err := s.validate.Struct(body); err != nil {
		respondValidation(w, validationMessages(err))
		return
	}

	asset, err := s.pipeline.Refine(r.Context(), thumbnail.FollowUpRequest{
		RequestID:  middleware.GetReqID(r.Context()),
		ImageURL:   body.ImageURL,
		Correction: body.Desc,
	})
	if err != nil {
		s.writePipelineError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, apiResponse{
		Success: true,
		Message: successMessage,
		URL:     asset.URL,
		Key:     asset.StorageKey,
	})
}

func respondValidation(w http.ResponseWriter, details []string) {
	respondJSON(w, http.StatusBadRequest, apiResponse{
		Success: false,
		Error:   "Validation failed",
		Message: "Validation failed",
		Details: details,
	})
}

// validationMessages renders validator errors as "<json field> is required"
// style messages.
func validationMessages(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		name := jsonFieldName(fe.StructField())
		switch fe.Tag() {
		case "required":
			out = append(out, name+" is required")
		case "url":
			out = append(out, name+" must be a valid URL")
		default:
			out = append(out, name+" is invalid")
		}
	}
	return out
}

func jsonFieldName(structField string) string {
	f, ok := reflect.TypeOf(followUpBody{}).FieldByName(structField)
	if !ok {
		return structField
	}
	if tag := strings.Split(f.Tag.Get("json"), ",")[0]; tag != "" {
		return tag
	}
	return structField
}
