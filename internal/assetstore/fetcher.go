package assetstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"time"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/rs/zerolog/log"

	"github.com/fpang/thumbnail-studio/internal/httpclient"
	"github.com/fpang/thumbnail-studio/internal/s3util"
	"github.com/fpang/thumbnail-studio/internal/thumbnail"
)

// DefaultFetchLimit caps a source image download.
const DefaultFetchLimit = 20 << 20

// FetcherConfig configures a Fetcher.
type FetcherConfig struct {
	Locator      Locator
	MaxBytes     int64
	Timeout      time.Duration
	AllowPrivate bool
	HTTPClient   *http.Client
}

// Fetcher retrieves a previously produced image. URLs inside our own bucket
// are read with GetObject; anything else goes over HTTP with SSRF guards.
type Fetcher struct {
	s3           s3util.ObjectReader
	http         *http.Client
	locator      Locator
	maxBytes     int64
	allowPrivate bool
	lookup       func(ctx context.Context, host string) ([]net.IPAddr, error)
}

// NewFetcher creates a fetcher. s3 may be nil, in which case every URL is
// fetched over HTTP.
func NewFetcher(s3 s3util.ObjectReader, cfg FetcherConfig) *Fetcher {
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultFetchLimit
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = httpclient.New(httpclient.Options{Timeout: timeout, BlockPrivate: !cfg.AllowPrivate})
	}
	return &Fetcher{
		s3:           s3,
		http:         client,
		locator:      cfg.Locator,
		maxBytes:     maxBytes,
		allowPrivate: cfg.AllowPrivate,
		lookup:       net.DefaultResolver.LookupIPAddr,
	}
}

// Fetch downloads rawURL and checks it is a PNG or JPEG image.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*thumbnail.Image, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, rejected(rawURL, "only absolute http(s) URLs are accepted")
	}

	start := time.Now()
	var data []byte
	var source string
	if key, ok := f.locator.KeyFor(u); ok && f.s3 != nil {
		source = "s3"
		data, err = f.fetchObject(ctx, rawURL, key)
	} else {
		source = "http"
		data, err = f.fetchHTTP(ctx, u)
	}
	if err != nil {
		return nil, err
	}

	mimeType := http.DetectContentType(data)
	if mimeType != "image/png" && mimeType != "image/jpeg" {
		return nil, rejected(rawURL, "source is "+mimeType+", not a PNG or JPEG image")
	}

	log.Debug().
		Str("url", rawURL).
		Str("source", source).
		Int("bytes", len(data)).
		Dur("duration", time.Since(start)).
		Msg("Source image fetched")

	return &thumbnail.Image{Data: data, MIMEType: mimeType, Filename: path.Base(u.Path)}, nil
}

func (f *Fetcher) fetchObject(ctx context.Context, rawURL, key string) ([]byte, error) {
	data, _, err := s3util.ReadObject(ctx, f.s3, f.locator.Bucket, key, f.maxBytes)
	if err == nil {
		return data, nil
	}
	fe := &thumbnail.FetchError{URL: rawURL, Err: err}
	var respErr *awshttp.ResponseError
	switch {
	case errors.Is(err, s3util.ErrObjectTooLarge):
		fe.StatusCode = http.StatusRequestEntityTooLarge
	case errors.As(err, &respErr):
		fe.StatusCode = respErr.HTTPStatusCode()
	}
	return nil, fe
}

func (f *Fetcher) fetchHTTP(ctx context.Context, u *url.URL) ([]byte, error) {
	rawURL := u.String()
	if !f.allowPrivate {
		if err := f.checkPublic(ctx, u.Hostname()); err != nil {
			return nil, &thumbnail.FetchError{URL: rawURL, Err: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, rejected(rawURL, err.Error())
	}
	req.Header.Set("Accept", "image/png, image/jpeg")

	resp, err := f.http.Do(req)
	if err != nil {
		if errors.Is(err, httpclient.ErrBlockedAddress) {
			return nil, &thumbnail.FetchError{URL: rawURL, Err: fmt.Errorf("%w: %v", thumbnail.ErrSourceRejected, err)}
		}
		return nil, &thumbnail.FetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &thumbnail.FetchError{URL: rawURL, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}
	if resp.ContentLength > f.maxBytes {
		return nil, &thumbnail.FetchError{URL: rawURL, StatusCode: http.StatusRequestEntityTooLarge, Err: fmt.Errorf("source is %d bytes", resp.ContentLength)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, &thumbnail.FetchError{URL: rawURL, Err: fmt.Errorf("read body: %w", err)}
	}
	if int64(len(data)) > f.maxBytes {
		return nil, &thumbnail.FetchError{URL: rawURL, StatusCode: http.StatusRequestEntityTooLarge, Err: errors.New("source exceeds size limit")}
	}
	return data, nil
}

// checkPublic resolves host and refuses private, loopback and link-local targets.
func (f *Fetcher) checkPublic(ctx context.Context, host string) error {
	addrs, err := f.lookup(ctx, host)
	if err != nil {
		return fmt.Errorf("%w: resolve %s: %v", thumbnail.ErrSourceRejected, host, err)
	}
	for _, addr := range addrs {
		if httpclient.IsBlockedIP(addr.IP) {
			return fmt.Errorf("%w: %s resolves to %s", thumbnail.ErrSourceRejected, host, addr.IP)
		}
	}
	return nil
}

func rejected(rawURL, reason string) *thumbnail.FetchError {
	return &thumbnail.FetchError{URL: rawURL, Err: fmt.Errorf("%w: %s", thumbnail.ErrSourceRejected, reason)}
}
