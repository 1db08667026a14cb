package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/mssola/useragent"
)

// RequestMeta carries per-request client metadata recorded on minted SSO tokens.
type RequestMeta struct {
	IP         string
	UserAgent  string
	DeviceName string
}

type requestMetaKey struct{}

// Metadata extracts client IP and user agent once per request so downstream
// services never touch *http.Request.
func Metadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		meta := RequestMeta{
			IP:        clientIP(r),
			UserAgent: r.UserAgent(),
		}
		if meta.UserAgent != "" {
			ua := useragent.New(meta.UserAgent)
			name, version := ua.Browser()
			parts := []string{}
			if name != "" {
				parts = append(parts, name)
			}
			if version != "" {
				parts = append(parts, version)
			}
			if os := ua.OS(); os != "" {
				parts = append(parts, "on "+os)
			}
			meta.DeviceName = strings.Join(parts, " ")
		}
		ctx := context.WithValue(r.Context(), requestMetaKey{}, meta)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestMeta retrieves request metadata from the context.
func GetRequestMeta(ctx context.Context) RequestMeta {
	if m, ok := ctx.Value(requestMetaKey{}).(RequestMeta); ok {
		return m
	}
	return RequestMeta{}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i > 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
