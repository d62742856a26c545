package http

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"net/http"
	"time"
)

// HTTPClientConfig holds HTTP client configuration
type HTTPClientConfig struct {
	// Connection pooling
	MaxIdleConns        int           // Total idle connections across all hosts
	MaxIdleConnsPerHost int           // Idle connections per host
	MaxConnsPerHost     int           // Maximum connections per host (including active)
	IdleConnTimeout     time.Duration // How long idle connections stay alive

	// Timeouts
	DialTimeout           time.Duration // TCP connection timeout, overridden per request by WithConnectTimeout
	TLSHandshakeTimeout   time.Duration // TLS handshake timeout
	ExpectContinueTimeout time.Duration // 100-continue timeout

	// Keep-alive
	DisableKeepAlives bool
	KeepAlive         time.Duration

	// Compression
	DisableCompression bool
}

// GatewayClientConfig returns the config used against the payment gateway.
// The gateway is a handful of hosts (REST, GraphQL, assets) so the pool is small.
func GatewayClientConfig() *HTTPClientConfig {
	return &HTTPClientConfig{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,

		DialTimeout:           30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		DisableKeepAlives: false,
		KeepAlive:         60 * time.Second,

		// Gateway responses are JSON
		DisableCompression: false,
	}
}

// ErrNoCertificates is returned when a PEM bundle holds no usable certificate
var ErrNoCertificates = errors.New("no certificates found in PEM bundle")

// HardenedTLSConfig returns a TLS 1.2+ client config restricted to modern
// cipher suites. When pemBundle is non-empty the trust store is pinned to it
// instead of the system roots.
func HardenedTLSConfig(pemBundle []byte) (*tls.Config, error) {
	cfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
		},
	}

	if len(pemBundle) > 0 {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pemBundle) {
			return nil, ErrNoCertificates
		}
		cfg.RootCAs = pool
	}

	return cfg, nil
}

type connectTimeoutKey struct{}

// WithConnectTimeout attaches a per-request TCP connect timeout to ctx.
// Clients built by NewHTTPClient honor it in place of DialTimeout.
func WithConnectTimeout(ctx context.Context, timeout time.Duration) context.Context {
	return context.WithValue(ctx, connectTimeoutKey{}, timeout)
}

// ConnectTimeout returns the connect timeout attached to ctx, if any
func ConnectTimeout(ctx context.Context) (time.Duration, bool) {
	timeout, ok := ctx.Value(connectTimeoutKey{}).(time.Duration)
	return timeout, ok && timeout > 0
}

// NewHTTPClient creates an HTTP client with the given configuration and TLS config.
// A nil tlsConfig leaves the transport on Go defaults (plain HTTP targets).
// No client-level timeout is set; deadlines come from the request context.
func NewHTTPClient(cfg *HTTPClientConfig, tlsConfig *tls.Config) *http.Client {
	dialer := &net.Dialer{
		Timeout:   cfg.DialTimeout,
		KeepAlive: cfg.KeepAlive,
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			if timeout, ok := ConnectTimeout(ctx); ok {
				dialCtx, cancel := context.WithTimeout(ctx, timeout)
				defer cancel()
				return dialer.DialContext(dialCtx, network, addr)
			}
			return dialer.DialContext(ctx, network, addr)
		},

		// Connection pooling
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,

		// Timeouts
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ExpectContinueTimeout: cfg.ExpectContinueTimeout,

		DisableKeepAlives:  cfg.DisableKeepAlives,
		DisableCompression: cfg.DisableCompression,

		TLSClientConfig:   tlsConfig,
		ForceAttemptHTTP2: true,
	}

	return &http.Client{
		Transport: transport,
		// Redirects are followed by default; gateway endpoints never redirect
	}
}
