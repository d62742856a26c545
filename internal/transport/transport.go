package transport

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kevin07696/gateway-sdk/internal/adapters/ports"
	apperrors "github.com/kevin07696/gateway-sdk/pkg/errors"
	pkghttp "github.com/kevin07696/gateway-sdk/pkg/http"
	"github.com/kevin07696/gateway-sdk/pkg/observability"
)

const messageTLSUnavailable = "TLS configuration was not set or failed to initialize"

// ClientFactory builds the HTTP client used for one TLS configuration.
// tlsConfig is nil for plain HTTP targets.
type ClientFactory func(tlsConfig *tls.Config) ports.HTTPClient

// Option configures a Transport
type Option func(*Transport)

// WithTLSConfig installs an explicit TLS configuration for https targets
func WithTLSConfig(cfg *tls.Config) Option {
	return func(t *Transport) {
		t.tlsConfig = cfg
	}
}

// WithDefaultTLS replaces the builder used when no explicit TLS config is set
func WithDefaultTLS(build func() (*tls.Config, error)) Option {
	return func(t *Transport) {
		t.defaultTLS = build
	}
}

// WithoutDefaultTLS disables the default TLS config; https requires WithTLSConfig
func WithoutDefaultTLS() Option {
	return func(t *Transport) {
		t.defaultTLS = nil
	}
}

// WithResponseParser replaces the status-code interpretation
func WithResponseParser(parser ResponseParser) Option {
	return func(t *Transport) {
		t.parser = parser
	}
}

// WithClientFactory replaces how HTTP clients are built
func WithClientFactory(factory ClientFactory) Option {
	return func(t *Transport) {
		t.clientFactory = factory
	}
}

// WithRateLimit caps outbound requests per second. Waiting honors the request context.
func WithRateLimit(requestsPerSecond float64, burst int) Option {
	return func(t *Transport) {
		if requestsPerSecond > 0 {
			t.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
		}
	}
}

// WithTimeouts sets the timeouts used by requests that leave theirs unset
func WithTimeouts(connect, read time.Duration) Option {
	return func(t *Transport) {
		t.connectTimeout = connect
		t.readTimeout = read
	}
}

// Transport performs single HTTP round trips against the gateway.
// It never retries; every failure is classified and returned.
type Transport struct {
	logger        *zap.Logger
	parser        ResponseParser
	clientFactory ClientFactory
	tlsConfig     *tls.Config
	defaultTLS    func() (*tls.Config, error)
	limiter       *rate.Limiter

	connectTimeout time.Duration
	readTimeout    time.Duration

	secureOnce   sync.Once
	secureClient ports.HTTPClient
	secureErr    error

	plainOnce   sync.Once
	plainClient ports.HTTPClient
}

// New creates a new Transport
func New(logger *zap.Logger, opts ...Option) *Transport {
	t := &Transport{
		logger:        logger,
		parser:        DefaultResponseParser{},
		clientFactory: defaultClientFactory,
		defaultTLS: func() (*tls.Config, error) {
			return pkghttp.HardenedTLSConfig(nil)
		},
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

func defaultClientFactory(tlsConfig *tls.Config) ports.HTTPClient {
	return pkghttp.NewHTTPClient(pkghttp.GatewayClientConfig(), tlsConfig)
}

// Execute performs the round trip described by req and returns the response body
func (t *Transport) Execute(ctx context.Context, req *Request) (string, error) {
	if req == nil || req.Path == "" {
		observability.RecordHTTPRejection(http.MethodGet)
		return "", apperrors.NewValidationError("path", messageEmptyPath)
	}

	method := req.method()

	u, err := req.URL()
	if err != nil {
		observability.RecordHTTPRejection(method)
		return "", err
	}

	client, err := t.clientFor(u.Scheme)
	if err != nil {
		observability.RecordHTTPRejection(method)
		return "", err
	}

	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			observability.RecordHTTPRejection(method)
			return "", apperrors.NewTransportError(apperrors.KindNetwork, "Request aborted while rate limited", err)
		}
	}

	connectTimeout, readTimeout := t.timeouts(req)
	ctx = pkghttp.WithConnectTimeout(ctx, connectTimeout)
	ctx, cancel := context.WithTimeout(ctx, connectTimeout+readTimeout)
	defer cancel()

	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		observability.RecordHTTPRejection(method)
		return "", apperrors.NewTransportError(apperrors.KindMalformedURL, "Malformed request URL", err)
	}

	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}
	if req.Body != "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	done := observability.TrackHTTPRequest(method)
	startTime := time.Now()

	resp, err := client.Do(httpReq)
	if err != nil {
		done(observability.OutcomeTransport)
		t.logger.Warn("Gateway request failed",
			zap.String("method", method),
			zap.String("path", u.Path),
			zap.Duration("elapsed", time.Since(startTime)),
			zap.Error(err),
		)
		return "", apperrors.NewTransportError(apperrors.KindNetwork, "Gateway request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		done(observability.OutcomeTransport)
		return "", apperrors.NewTransportError(apperrors.KindNetwork, "Failed to read gateway response", err)
	}

	text, err := t.parser.Parse(resp.StatusCode, string(data))
	if err != nil {
		done(observability.OutcomeServerError)
		t.logger.Info("Gateway returned an error response",
			zap.String("method", method),
			zap.String("path", u.Path),
			zap.Int("status_code", resp.StatusCode),
			zap.Duration("elapsed", time.Since(startTime)),
		)
		return "", err
	}

	done(observability.OutcomeSuccess)
	t.logger.Debug("Gateway request completed",
		zap.String("method", method),
		zap.String("path", u.Path),
		zap.Int("status_code", resp.StatusCode),
		zap.Duration("elapsed", time.Since(startTime)),
	)

	return text, nil
}

func (t *Transport) timeouts(req *Request) (connect, read time.Duration) {
	connect, read = req.connectTimeout(), req.readTimeout()
	if req.ConnectTimeout <= 0 && t.connectTimeout > 0 {
		connect = t.connectTimeout
	}
	if req.ReadTimeout <= 0 && t.readTimeout > 0 {
		read = t.readTimeout
	}
	return connect, read
}

func (t *Transport) clientFor(scheme string) (ports.HTTPClient, error) {
	if !strings.EqualFold(scheme, "https") {
		t.plainOnce.Do(func() {
			t.plainClient = t.clientFactory(nil)
		})
		return t.plainClient, nil
	}

	t.secureOnce.Do(func() {
		cfg := t.tlsConfig
		if cfg == nil && t.defaultTLS != nil {
			built, err := t.defaultTLS()
			if err != nil {
				t.logger.Error("Failed to build default TLS configuration", zap.Error(err))
				t.secureErr = err
				return
			}
			cfg = built
		}
		if cfg != nil {
			t.secureClient = t.clientFactory(cfg)
		}
	})

	if t.secureClient == nil {
		// secureErr is nil when no TLS config was ever available
		return nil, apperrors.NewTransportError(apperrors.KindTLSConfiguration, messageTLSUnavailable, t.secureErr)
	}
	return t.secureClient, nil
}
