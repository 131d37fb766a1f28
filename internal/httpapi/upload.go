package httpapi

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/fpang/thumbnail-studio/internal/thumbnail"
)

// multipartMemory is how much of a multipart body is kept in memory before
// spilling file parts to disk.
const multipartMemory = 8 << 20

// fileField describes one accepted file field and its legacy alias.
type fileField struct {
	name     string
	alias    string
	maxCount int
}

var fileFields = []fileField{
	{name: "backgroundImage", alias: "bgImg", maxCount: 1},
	{name: "majorImage", alias: "majorImg", maxCount: 1},
	{name: "iconImages", alias: "imgIcons", maxCount: thumbnail.MaxIcons},
}

var allowedDeclaredTypes = map[string]bool{
	"image/png":  true,
	"image/jpg":  true,
	"image/jpeg": true,
}

// uploadError is a request rejected while reading the multipart body, before
// validation runs.
type uploadError struct {
	status int
	body   apiResponse
	detail string
}

func (e *uploadError) Error() string { return e.body.Error + ": " + e.detail }

func (s *server) fileTooLarge(detail string) *uploadError {
	return &uploadError{
		status: http.StatusBadRequest,
		body: apiResponse{
			Error:   "File too large",
			Message: "File size must be less than " + formatLimit(s.maxFileBytes),
		},
		detail: detail,
	}
}

func invalidFileType(detail string) *uploadError {
	return &uploadError{
		status: http.StatusBadRequest,
		body:   apiResponse{Error: "Invalid file type", Message: "Only PNG, JPG, and JPEG files are allowed"},
		detail: detail,
	}
}

func invalidFileField(detail string) *uploadError {
	return &uploadError{
		status: http.StatusBadRequest,
		body:   apiResponse{Error: "Invalid file field", Message: "Unexpected file field"},
		detail: detail,
	}
}

func malformedBody(detail string) *uploadError {
	return &uploadError{
		status: http.StatusBadRequest,
		body:   apiResponse{Error: "Invalid request", Message: "Request body must be multipart/form-data"},
		detail: detail,
	}
}

// formatLimit renders a byte limit the way users read it: whole MB, one
// decimal MB, or KB below a megabyte.
func formatLimit(n int64) string {
	const mb = 1 << 20
	switch {
	case n >= mb && n%mb == 0:
		return strconv.FormatInt(n/mb, 10) + "MB"
	case n >= mb:
		return strconv.FormatFloat(float64(n)/mb, 'f', 1, 64) + "MB"
	case n%1024 == 0:
		return strconv.FormatInt(n/1024, 10) + "KB"
	default:
		return strconv.FormatInt(n, 10) + " bytes"
	}
}

// bodyLimit bounds the whole request: every allowed file at full size plus
// room for text fields and multipart framing.
func (s *server) bodyLimit() int64 {
	files := int64(0)
	for _, f := range fileFields {
		files += int64(f.maxCount)
	}
	return files*s.maxFileBytes + 1<<20
}

// parseGenerationRequest reads the multipart form into a GenerationRequest.
// File problems are reported here; field semantics are left to the validator.
func (s *server) parseGenerationRequest(w http.ResponseWriter, r *http.Request) (*thumbnail.GenerationRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.bodyLimit())
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, s.fileTooLarge(err.Error())
		}
		return nil, malformedBody(err.Error())
	}
	form := r.MultipartForm
	defer form.RemoveAll()

	known := map[string]bool{}
	images := make(map[string][]thumbnail.Image, len(fileFields))
	for _, field := range fileFields {
		known[field.name], known[field.alias] = true, true
		headers := append(append([]*multipart.FileHeader{}, form.File[field.name]...), form.File[field.alias]...)
		if len(headers) > field.maxCount {
			return nil, invalidFileField(fmt.Sprintf("%s: %d files, max %d", field.name, len(headers), field.maxCount))
		}
		for _, fh := range headers {
			img, err := s.readImage(field.name, fh)
			if err != nil {
				return nil, err
			}
			images[field.name] = append(images[field.name], img)
		}
	}
	for name := range form.File {
		if !known[name] {
			return nil, invalidFileField(name)
		}
	}

	req := &thumbnail.GenerationRequest{
		BackgroundDescription: formValue(form, "backgroundDescription", "bgImgDescription"),
		MajorDescription:      formValue(form, "majorDescription", "majorImgDescription"),
		IconDescriptionsRaw:   formValue(form, "iconDescriptions", "imgDescriptions"),
		FinalDescription:      formValue(form, "finalDescription"),
		ThemeColor:            formValue(form, "themeColor"),
		Category:              formValue(form, "category"),
		Icons:                 images["iconImages"],
	}
	if bg := images["backgroundImage"]; len(bg) > 0 {
		req.Background = &bg[0]
	}
	if major := images["majorImage"]; len(major) > 0 {
		req.Major = &major[0]
	}
	return req, nil
}

// readImage enforces the size cap, the declared type and the sniffed type.
func (s *server) readImage(field string, fh *multipart.FileHeader) (thumbnail.Image, error) {
	if fh.Size > s.maxFileBytes {
		return thumbnail.Image{}, s.fileTooLarge(fmt.Sprintf("%s/%s: %d bytes", field, fh.Filename, fh.Size))
	}
	declared := strings.ToLower(strings.TrimSpace(strings.Split(fh.Header.Get("Content-Type"), ";")[0]))
	if !allowedDeclaredTypes[declared] {
		return thumbnail.Image{}, invalidFileType(fmt.Sprintf("%s/%s declared %q", field, fh.Filename, declared))
	}

	f, err := fh.Open()
	if err != nil {
		return thumbnail.Image{}, malformedBody(err.Error())
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, s.maxFileBytes+1))
	if err != nil {
		return thumbnail.Image{}, malformedBody(err.Error())
	}
	if int64(len(data)) > s.maxFileBytes {
		return thumbnail.Image{}, s.fileTooLarge(fmt.Sprintf("%s/%s", field, fh.Filename))
	}

	sniffed := http.DetectContentType(data)
	if sniffed != "image/png" && sniffed != "image/jpeg" {
		return thumbnail.Image{}, invalidFileType(fmt.Sprintf("%s/%s sniffed %q", field, fh.Filename, sniffed))
	}
	return thumbnail.Image{Data: data, MIMEType: sniffed, Filename: fh.Filename}, nil
}

// formValue returns the first non-empty value among names.
func formValue(form *multipart.Form, names ...string) string {
	for _, name := range names {
		if v := form.Value[name]; len(v) > 0 && v[0] != "" {
			return v[0]
		}
	}
	return ""
}
