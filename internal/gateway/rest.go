package gateway

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/kevin07696/gateway-sdk/internal/authorization"
	"github.com/kevin07696/gateway-sdk/internal/transport"
	"github.com/kevin07696/gateway-sdk/pkg/dispatch"
	apperrors "github.com/kevin07696/gateway-sdk/pkg/errors"
)

// RESTClient signs and sends requests to the gateway client API
type RESTClient struct {
	cred       *authorization.Credential
	executor   Executor
	dispatcher *dispatch.Dispatcher
	logger     *zap.Logger
}

// NewRESTClient creates a REST client bound to one credential
func NewRESTClient(cred *authorization.Credential, executor Executor, dispatcher *dispatch.Dispatcher, logger *zap.Logger) *RESTClient {
	return &RESTClient{
		cred:       cred,
		executor:   executor,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Credential returns the credential requests are signed with
func (c *RESTClient) Credential() *authorization.Credential {
	return c.cred
}

// Get sends a signed GET. endpoints may be nil when path is absolute.
func (c *RESTClient) Get(ctx context.Context, path string, endpoints Endpoints) (string, error) {
	return c.send(ctx, http.MethodGet, path, "", endpoints)
}

// Post sends a signed POST with a JSON body
func (c *RESTClient) Post(ctx context.Context, path, body string, endpoints Endpoints) (string, error) {
	return c.send(ctx, http.MethodPost, path, body, endpoints)
}

// GetAsync is Get with the result delivered to cb on a worker goroutine
func (c *RESTClient) GetAsync(ctx context.Context, path string, endpoints Endpoints, cb Callback) {
	runAsync(c.dispatcher, "rest.get", cb, func() (string, error) {
		return c.Get(ctx, path, endpoints)
	})
}

// PostAsync is Post with the result delivered to cb on a worker goroutine
func (c *RESTClient) PostAsync(ctx context.Context, path, body string, endpoints Endpoints, cb Callback) {
	runAsync(c.dispatcher, "rest.post", cb, func() (string, error) {
		return c.Post(ctx, path, body, endpoints)
	})
}

func (c *RESTClient) send(ctx context.Context, method, path, body string, endpoints Endpoints) (string, error) {
	req := &transport.Request{
		Method: method,
		Path:   path,
		Body:   body,
	}

	if err := sign(c.cred, req); err != nil {
		c.logger.Debug("Request rejected before dispatch",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return "", err
	}

	if path != "" && !isAbsoluteURL(path) {
		if endpoints == nil || endpoints.ClientAPIURL() == "" {
			return "", apperrors.NewConfigurationError("Configuration is required for relative gateway paths")
		}
		req.BaseURL = endpoints.ClientAPIURL()
	}

	return c.executor.Execute(ctx, req)
}
