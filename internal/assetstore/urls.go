// Package assetstore persists synthesized thumbnails to S3 and reads source
// images back for follow-up refinement.
package assetstore

import (
	"fmt"
	"net/url"
	"strings"
)

// Locator maps storage keys to public URLs and back.
type Locator struct {
	Bucket        string
	Region        string
	PublicBaseURL string // e.g. https://cdn.example.com, no trailing slash
	Endpoint      string // custom S3 endpoint (MinIO, R2); path-style URLs
}

// URLFor returns the public URL of key.
func (l Locator) URLFor(key string) string {
	switch {
	case l.PublicBaseURL != "":
		return strings.TrimRight(l.PublicBaseURL, "/") + "/" + key
	case l.Endpoint != "":
		return fmt.Sprintf("%s/%s/%s", strings.TrimRight(l.Endpoint, "/"), l.Bucket, key)
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", l.Bucket, l.Region, key)
	}
}

// KeyFor reports the storage key behind u when u points into our own bucket.
func (l Locator) KeyFor(u *url.URL) (string, bool) {
	if u == nil || l.Bucket == "" {
		return "", false
	}
	p := u.EscapedPath()

	if l.PublicBaseURL != "" {
		if base, err := url.Parse(l.PublicBaseURL); err == nil && strings.EqualFold(base.Host, u.Host) {
			prefix := strings.TrimRight(base.EscapedPath(), "/") + "/"
			if strings.HasPrefix(p, prefix) {
				return unescapeKey(strings.TrimPrefix(p, prefix))
			}
		}
	}

	host := strings.ToLower(u.Hostname())
	if host == l.Bucket+".s3."+l.Region+".amazonaws.com" || host == l.Bucket+".s3.amazonaws.com" {
		return unescapeKey(strings.TrimPrefix(p, "/"))
	}

	if l.Endpoint != "" {
		if ep, err := url.Parse(l.Endpoint); err == nil && strings.EqualFold(ep.Host, u.Host) {
			prefix := "/" + l.Bucket + "/"
			if strings.HasPrefix(p, prefix) {
				return unescapeKey(strings.TrimPrefix(p, prefix))
			}
		}
	}
	return "", false
}

func unescapeKey(escaped string) (string, bool) {
	key, err := url.PathUnescape(escaped)
	if err != nil || key == "" {
		return "", false
	}
	return key, true
}
