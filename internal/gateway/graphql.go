package gateway

import (
	"context"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/kevin07696/gateway-sdk/internal/authorization"
	"github.com/kevin07696/gateway-sdk/internal/transport"
	"github.com/kevin07696/gateway-sdk/pkg/dispatch"
	apperrors "github.com/kevin07696/gateway-sdk/pkg/errors"
)

const messageGraphQLUnavailable = "GraphQL is not available until the gateway configuration has been loaded"

// GraphQLClient posts signed queries to the GraphQL endpoint named by the configuration
type GraphQLClient struct {
	cred       *authorization.Credential
	executor   Executor
	dispatcher *dispatch.Dispatcher
	logger     *zap.Logger
}

// NewGraphQLClient creates a GraphQL client bound to one credential
func NewGraphQLClient(cred *authorization.Credential, executor Executor, dispatcher *dispatch.Dispatcher, logger *zap.Logger) *GraphQLClient {
	return &GraphQLClient{
		cred:       cred,
		executor:   executor,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Post sends data to <graphQLURL>/<path>
func (c *GraphQLClient) Post(ctx context.Context, path, data string, endpoints Endpoints) (string, error) {
	return c.send(ctx, path, data, endpoints)
}

// PostQuery sends data to the GraphQL URL itself
func (c *GraphQLClient) PostQuery(ctx context.Context, data string, endpoints Endpoints) (string, error) {
	return c.send(ctx, "", data, endpoints)
}

// PostAsync is Post with the result delivered to cb on a worker goroutine
func (c *GraphQLClient) PostAsync(ctx context.Context, path, data string, endpoints Endpoints, cb Callback) {
	runAsync(c.dispatcher, "graphql.post", cb, func() (string, error) {
		return c.Post(ctx, path, data, endpoints)
	})
}

// PostQueryAsync is PostQuery with the result delivered to cb on a worker goroutine
func (c *GraphQLClient) PostQueryAsync(ctx context.Context, data string, endpoints Endpoints, cb Callback) {
	runAsync(c.dispatcher, "graphql.post", cb, func() (string, error) {
		return c.PostQuery(ctx, data, endpoints)
	})
}

func (c *GraphQLClient) send(ctx context.Context, path, data string, endpoints Endpoints) (string, error) {
	req := &transport.Request{
		Method: http.MethodPost,
		Body:   data,
	}

	if err := sign(c.cred, req); err != nil {
		c.logger.Debug("GraphQL request rejected before dispatch", zap.Error(err))
		return "", err
	}

	if endpoints == nil || endpoints.GraphQLURL() == "" {
		return "", apperrors.NewConfigurationError(messageGraphQLUnavailable)
	}

	base := endpoints.GraphQLURL()
	if path == "" {
		req.Path = base
	} else {
		req.BaseURL = base
		req.Path = path
	}

	body, err := c.executor.Execute(ctx, req)
	if err != nil {
		return "", err
	}

	if err := graphQLError(body); err != nil {
		return "", err
	}
	return body, nil
}

// graphQLError surfaces the first entry of a 2xx response's errors array
func graphQLError(body string) error {
	errs := gjson.Get(body, "errors")
	if !errs.IsArray() || len(errs.Array()) == 0 {
		return nil
	}

	first := errs.Array()[0]
	if first.Get("extensions.errorClass").String() == "VALIDATION" {
		return apperrors.NewServerError(http.StatusUnprocessableEntity, first.Get("message").String(), body)
	}
	return apperrors.NewServerError(http.StatusInternalServerError, "An unexpected error occurred", body)
}

func isAbsoluteURL(path string) bool {
	u, err := url.Parse(path)
	return err == nil && u.Scheme != "" && u.Host != ""
}
