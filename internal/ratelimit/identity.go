package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

// UnknownIdentity is the shared bucket for requests with no usable address.
const UnknownIdentity = "unknown"

// ClientIdentity resolves the rate-limit key for r. With trustProxy set the
// order is X-Real-IP, the first parseable X-Forwarded-For entry, then the peer
// address. Proxy headers are client-controlled, so a caller that can reach the
// service directly can rotate them to dodge the limiter; deployments not behind
// a proxy should set trustProxy to false.
func ClientIdentity(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if ip := parseIP(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
		if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
			for _, part := range strings.Split(xf, ",") {
				if ip := parseIP(part); ip != "" {
					return ip
				}
			}
		}
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		if ip := parseIP(host); ip != "" {
			return ip
		}
	} else if ip := parseIP(r.RemoteAddr); ip != "" {
		return ip
	}
	return UnknownIdentity
}

func parseIP(s string) string {
	ip := net.ParseIP(strings.TrimSpace(s))
	if ip == nil {
		return ""
	}
	return ip.String()
}
