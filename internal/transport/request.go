package transport

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/kevin07696/gateway-sdk/pkg/errors"
)

// Default timeouts applied when a request leaves them unset
const (
	DefaultConnectTimeout = 30 * time.Second
	DefaultReadTimeout    = 30 * time.Second
)

const messageEmptyPath = "Path cannot be null"

// Request describes one HTTP round trip. A new value is built per call.
type Request struct {
	Method  string
	BaseURL string
	Path    string // relative to BaseURL, or an absolute URL used as-is
	Body    string // JSON; empty means no body
	Headers map[string]string
	Query   url.Values

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

// URL resolves the request into an absolute URL.
// Base and path are joined with exactly one slash and Query is merged in.
func (r *Request) URL() (*url.URL, error) {
	if r.Path == "" {
		return nil, apperrors.NewValidationError("path", messageEmptyPath)
	}

	raw := r.Path
	if !isAbsolute(r.Path) {
		if r.BaseURL == "" {
			return nil, apperrors.NewTransportError(apperrors.KindMalformedURL,
				"Relative path requires a base URL", nil)
		}
		raw = strings.TrimRight(r.BaseURL, "/") + "/" + strings.TrimLeft(r.Path, "/")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, apperrors.NewTransportError(apperrors.KindMalformedURL, "Malformed request URL", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, apperrors.NewTransportError(apperrors.KindMalformedURL,
			"Request URL must include a scheme and host", nil)
	}

	if len(r.Query) > 0 {
		query := u.Query()
		for key, values := range r.Query {
			for _, v := range values {
				query.Add(key, v)
			}
		}
		u.RawQuery = query.Encode()
	}

	return u, nil
}

func (r *Request) method() string {
	if r.Method == "" {
		return http.MethodGet
	}
	return r.Method
}

func (r *Request) connectTimeout() time.Duration {
	if r.ConnectTimeout > 0 {
		return r.ConnectTimeout
	}
	return DefaultConnectTimeout
}

func (r *Request) readTimeout() time.Duration {
	if r.ReadTimeout > 0 {
		return r.ReadTimeout
	}
	return DefaultReadTimeout
}

func isAbsolute(path string) bool {
	u, err := url.Parse(path)
	return err == nil && u.Scheme != "" && u.Host != ""
}
