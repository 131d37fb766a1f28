package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fpang/thumbnail-studio/internal/metrics"
	"github.com/fpang/thumbnail-studio/internal/ratelimit"
	"github.com/fpang/thumbnail-studio/internal/thumbnail"
)

func TestMain(m *testing.M) {
	metrics.SetEnabled(false)
	os.Exit(m.Run())
}

var (
	pngBytes  = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 64)...)
	jpegBytes = append([]byte{0xff, 0xd8, 0xff, 0xe0}, bytes.Repeat([]byte{0}, 64)...)
)

type fakePipeline struct {
	generateErr error
	refineErr   error
	gotGenerate *thumbnail.GenerationRequest
	gotRefine   *thumbnail.FollowUpRequest
}

func (f *fakePipeline) Generate(_ context.Context, req *thumbnail.GenerationRequest) (*thumbnail.PublishedAsset, error) {
	f.gotGenerate = req
	if f.generateErr != nil {
		return nil, f.generateErr
	}
	return &thumbnail.PublishedAsset{
		URL:        "https://cdn.example.com/generated-images/a.png",
		StorageKey: "generated-images/a.png",
	}, nil
}

func (f *fakePipeline) Refine(_ context.Context, req thumbnail.FollowUpRequest) (*thumbnail.PublishedAsset, error) {
	f.gotRefine = &req
	if f.refineErr != nil {
		return nil, f.refineErr
	}
	return &thumbnail.PublishedAsset{
		URL:        "https://cdn.example.com/generated-images/b.png",
		StorageKey: "generated-images/b.png",
	}, nil
}

func newTestRouter(p Pipeline, mutate ...func(*Options)) http.Handler {
	opts := Options{
		Pipeline:     p,
		Limiter:      ratelimit.New(1000, time.Minute),
		MaxFileBytes: 1 << 20,
	}
	for _, fn := range mutate {
		fn(&opts)
	}
	return NewRouter(opts)
}

type formFile struct {
	field       string
	name        string
	contentType string
	data        []byte
}

func multipartRequest(t *testing.T, path string, fields map[string]string, files ...formFile) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.field, f.name))
		h.Set("Content-Type", f.contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func requiredFields() map[string]string {
	return map[string]string{
		"finalDescription": "Learn Go in 10 minutes",
		"themeColor":       "#1A2B3C",
		"category":         "Education",
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h := newTestRouter(&fakePipeline{})
	for _, path := range []string{"/health", "/api/health"} {
		rec := serve(h, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code, path)
		body := decode(t, rec)
		assert.Equal(t, "OK", body["status"])
		assert.Equal(t, "Server is healthy", body["message"])
		_, err := time.Parse(time.RFC3339, body["timestamp"].(string))
		assert.NoError(t, err)
	}
}

func TestGenerate_Success(t *testing.T) {
	p := &fakePipeline{}
	h := newTestRouter(p)

	for _, path := range []string{"/generate", "/api/generate"} {
		fields := requiredFields()
		fields["majorDescription"] = "host"
		fields["iconDescriptions"] = `["logo","star"]`
		req := multipartRequest(t, path, fields,
			formFile{field: "majorImage", name: "host.png", contentType: "image/png", data: pngBytes},
			formFile{field: "iconImages", name: "a.jpg", contentType: "image/jpeg", data: jpegBytes},
			formFile{field: "iconImages", name: "b.png", contentType: "image/png", data: pngBytes},
		)
		rec := serve(h, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		body := decode(t, rec)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, "Image generated and uploaded successfully", body["message"])
		assert.Equal(t, "https://cdn.example.com/generated-images/a.png", body["url"])
		assert.Equal(t, "generated-images/a.png", body["key"])
		assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Remaining"))

		got := p.gotGenerate
		require.NotNil(t, got)
		assert.NotEmpty(t, got.RequestID)
		assert.Nil(t, got.Background)
		require.NotNil(t, got.Major)
		assert.Equal(t, "host.png", got.Major.Filename)
		require.Len(t, got.Icons, 2)
		assert.Equal(t, "image/jpeg", got.Icons[0].MIMEType)
		assert.Equal(t, "b.png", got.Icons[1].Filename)
		assert.Equal(t, `["logo","star"]`, got.IconDescriptionsRaw)
		assert.Equal(t, "#1A2B3C", got.ThemeColor)
	}
}

func TestGenerate_LegacyFieldNames(t *testing.T) {
	p := &fakePipeline{}
	h := newTestRouter(p)

	fields := requiredFields()
	fields["bgImgDescription"] = "city"
	fields["majorImgDescription"] = "host"
	fields["imgDescriptions"] = `["logo"]`
	req := multipartRequest(t, "/generate", fields,
		formFile{field: "bgImg", name: "bg.png", contentType: "image/png", data: pngBytes},
		formFile{field: "majorImg", name: "m.png", contentType: "image/png", data: pngBytes},
		formFile{field: "imgIcons", name: "i.png", contentType: "image/png", data: pngBytes},
	)
	rec := serve(h, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got := p.gotGenerate
	require.NotNil(t, got.Background)
	require.NotNil(t, got.Major)
	assert.Len(t, got.Icons, 1)
	assert.Equal(t, "city", got.BackgroundDescription)
	assert.Equal(t, "host", got.MajorDescription)
	assert.Equal(t, `["logo"]`, got.IconDescriptionsRaw)
}

func TestGenerate_FileRejections(t *testing.T) {
	big := append(append([]byte{}, pngBytes...), bytes.Repeat([]byte{0}, 1<<20)...)

	tests := []struct {
		name      string
		files     []formFile
		wantError string
		wantMsg   string
	}{
		{
			name:      "file too large",
			files:     []formFile{{field: "majorImage", name: "m.png", contentType: "image/png", data: big}},
			wantError: "File too large",
			wantMsg:   "File size must be less than 1MB",
		},
		{
			name:      "declared type not allowed",
			files:     []formFile{{field: "majorImage", name: "m.gif", contentType: "image/gif", data: pngBytes}},
			wantError: "Invalid file type",
			wantMsg:   "Only PNG, JPG, and JPEG files are allowed",
		},
		{
			name:      "content is not an image",
			files:     []formFile{{field: "majorImage", name: "m.png", contentType: "image/png", data: []byte("<html>hello</html>")}},
			wantError: "Invalid file type",
			wantMsg:   "Only PNG, JPG, and JPEG files are allowed",
		},
		{
			name:      "unknown file field",
			files:     []formFile{{field: "avatar", name: "a.png", contentType: "image/png", data: pngBytes}},
			wantError: "Invalid file field",
			wantMsg:   "Unexpected file field",
		},
		{
			name: "second background image",
			files: []formFile{
				{field: "backgroundImage", name: "a.png", contentType: "image/png", data: pngBytes},
				{field: "bgImg", name: "b.png", contentType: "image/png", data: pngBytes},
			},
			wantError: "Invalid file field",
			wantMsg:   "Unexpected file field",
		},
		{
			name: "six icons",
			files: func() []formFile {
				out := make([]formFile, 6)
				for i := range out {
					out[i] = formFile{field: "iconImages", name: fmt.Sprintf("%d.png", i), contentType: "image/png", data: pngBytes}
				}
				return out
			}(),
			wantError: "Invalid file field",
			wantMsg:   "Unexpected file field",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakePipeline{}
			rec := serve(newTestRouter(p), multipartRequest(t, "/generate", requiredFields(), tt.files...))

			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			body := decode(t, rec)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.wantError, body["error"])
			assert.Equal(t, tt.wantMsg, body["message"])
			assert.Nil(t, p.gotGenerate, "pipeline must not run")
		})
	}
}

func TestGenerate_NotMultipart(t *testing.T) {
	p := &fakePipeline{}
	req := httptest.NewRequest(http.MethodPost, "/generate", strings.NewReader(`{"category":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := serve(newTestRouter(p), req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, p.gotGenerate)
}

func TestGenerate_PipelineErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "validation",
			err:        &thumbnail.ValidationError{Errors: []string{"category is required"}},
			wantStatus: http.StatusBadRequest,
			wantMsg:    "Validation failed",
		},
		{
			name:       "no image",
			err:        thumbnail.ErrNoImage,
			wantStatus: http.StatusBadRequest,
			wantMsg:    "Image generation failed - no image returned by AI",
		},
		{
			name:       "publish failure",
			err:        &thumbnail.PublishError{Err: errors.New("AccessDenied")},
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "Image generated but upload failed: AccessDenied",
		},
		{
			name:       "model timeout",
			err:        &thumbnail.SynthesisError{Err: fmt.Errorf("generate image: attempt timed out after 1m0s: %w", context.DeadlineExceeded)},
			wantStatus: http.StatusGatewayTimeout,
			wantMsg:    "Upstream model timed out, please retry",
		},
		{
			name:       "composition failure",
			err:        &thumbnail.CompositionError{Stage: "compose", Err: errors.New("quota exceeded")},
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "Prompt composition failed: quota exceeded",
		},
		{
			name:       "synthesis failure",
			err:        &thumbnail.SynthesisError{Err: errors.New("bad gateway")},
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "Image generation pipeline failed: external API call failed",
		},
		{
			name:       "unknown failure",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "Image generation pipeline failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakePipeline{generateErr: tt.err}
			rec := serve(newTestRouter(p), multipartRequest(t, "/generate", requiredFields()))

			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			body := decode(t, rec)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.wantMsg, body["message"])
			assert.NotContains(t, rec.Body.String(), "attempt timed out", "internal detail must not leak")
		})
	}
}

func TestGenerate_ValidationDetails(t *testing.T) {
	p := &fakePipeline{generateErr: &thumbnail.ValidationError{Errors: []string{
		"finalDescription is required",
		"themeColor must be a valid hex color code",
	}}}
	rec := serve(newTestRouter(p), multipartRequest(t, "/generate", map[string]string{"themeColor": "red"}))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Validation failed", body["error"])
	assert.Equal(t, []any{"finalDescription is required", "themeColor must be a valid hex color code"}, body["details"])
}

func TestRateLimit(t *testing.T) {
	p := &fakePipeline{}
	h := newTestRouter(p, func(o *Options) { o.Limiter = ratelimit.New(1, time.Minute) })

	first := serve(h, multipartRequest(t, "/generate", requiredFields()))
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", first.Header().Get("X-RateLimit-Remaining"))

	p.gotGenerate = nil
	second := serve(h, multipartRequest(t, "/api/generate", requiredFields()))
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Nil(t, p.gotGenerate, "pipeline must not run when rate limited")

	retry := second.Header().Get("Retry-After")
	require.NotEmpty(t, retry)
	body := decode(t, second)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, fmt.Sprintf("Too many requests, please try again in %s seconds", retry), body["message"])
	assert.Equal(t, retry, fmt.Sprint(body["retryAfter"]))

	health := serve(h, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, health.Code, "health is never rate limited")
}

func TestOriginVerify(t *testing.T) {
	p := &fakePipeline{}
	h := newTestRouter(p, func(o *Options) { o.OriginVerifySecret = "s3cret" })

	rec := serve(h, multipartRequest(t, "/generate", requiredFields()))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Nil(t, p.gotGenerate)

	req := multipartRequest(t, "/generate", requiredFields())
	req.Header.Set("x-origin-verify", "s3cret")
	rec = serve(h, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func followUpRequest(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestFollowUp_Success(t *testing.T) {
	p := &fakePipeline{}
	h := newTestRouter(p)

	rec := serve(h, followUpRequest("/api/generate/follow-up",
		`{"imageUrl":" https://cdn.example.com/generated-images/a.png ","desc":"make the sky orange"}`))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "https://cdn.example.com/generated-images/b.png", body["url"])
	require.NotNil(t, p.gotRefine)
	assert.Equal(t, "https://cdn.example.com/generated-images/a.png", p.gotRefine.ImageURL)
	assert.Equal(t, "make the sky orange", p.gotRefine.Correction)
	assert.NotEmpty(t, p.gotRefine.RequestID)
}

func TestFollowUp_Validation(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantDetails []any
	}{
		{
			name:        "missing both",
			body:        `{}`,
			wantDetails: []any{"imageUrl is required", "desc is required"},
		},
		{
			name:        "blank desc",
			body:        `{"imageUrl":"https://cdn.example.com/a.png","desc":"   "}`,
			wantDetails: []any{"desc is required"},
		},
		{
			name:        "not a url",
			body:        `{"imageUrl":"a.png","desc":"x"}`,
			wantDetails: []any{"imageUrl must be a valid URL"},
		},
		{
			name:        "not json",
			body:        `imageUrl=a`,
			wantDetails: []any{"request body must be a JSON object with imageUrl and desc"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakePipeline{}
			rec := serve(newTestRouter(p), followUpRequest("/generate/follow-up", tt.body))

			require.Equal(t, http.StatusBadRequest, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, "Validation failed", body["error"])
			assert.Equal(t, tt.wantDetails, body["details"])
			assert.Nil(t, p.gotRefine)
		})
	}
}

func TestFollowUp_FetchErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "source missing",
			err:        &thumbnail.FetchError{URL: "u", StatusCode: http.StatusNotFound, Err: errors.New("not found")},
			wantStatus: http.StatusBadRequest,
			wantMsg:    "Failed to fetch source image: not found",
		},
		{
			name:       "source rejected",
			err:        &thumbnail.FetchError{URL: "u", Err: fmt.Errorf("host resolves to private address: %w", thumbnail.ErrSourceRejected)},
			wantStatus: http.StatusBadRequest,
			wantMsg:    "Failed to fetch source image: source url not allowed",
		},
		{
			name:       "origin failure",
			err:        &thumbnail.FetchError{URL: "u", StatusCode: http.StatusBadGateway, Err: errors.New("bad gateway")},
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "Failed to fetch source image: bad gateway",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakePipeline{refineErr: tt.err}
			rec := serve(newTestRouter(p), followUpRequest("/generate/follow-up",
				`{"imageUrl":"https://cdn.example.com/a.png","desc":"x"}`))

			require.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantMsg, decode(t, rec)["message"])
		})
	}
}

func TestUnknownRoute(t *testing.T) {
	h := newTestRouter(&fakePipeline{})
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Route not found", decode(t, rec)["message"])

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/generate", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestFormatLimit(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{5 << 20, "5MB"},
		{7 << 19, "3.5MB"},
		{1024, "1KB"},
		{512 << 10, "512KB"},
		{1000, "1000 bytes"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatLimit(tt.in))
	}
}

func TestGenerate_SmallLimitMessage(t *testing.T) {
	p := &fakePipeline{}
	h := newTestRouter(p, func(o *Options) { o.MaxFileBytes = 1024 })
	big := append(append([]byte{}, pngBytes...), bytes.Repeat([]byte{0}, 4096)...)

	rec := serve(h, multipartRequest(t, "/generate", requiredFields(),
		formFile{field: "majorImage", name: "m.png", contentType: "image/png", data: big}))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "File too large", body["error"])
	assert.Equal(t, "File size must be less than 1KB", body["message"])
	assert.Nil(t, p.gotGenerate)
}
