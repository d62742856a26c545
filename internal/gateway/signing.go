package gateway

import (
	"context"
	"net/url"

	"github.com/kevin07696/gateway-sdk/internal/authorization"
	"github.com/kevin07696/gateway-sdk/internal/transport"
	apperrors "github.com/kevin07696/gateway-sdk/pkg/errors"
)

const (
	// Version of this SDK, reported in User-Agent
	Version = "1.0.0"

	// APIVersion pins the gateway API contract
	APIVersion = "2018-03-06"

	UserAgent = "gateway-sdk/go/" + Version

	tokenizationKeyParam = "tokenization_key"
)

// Endpoints resolves gateway base URLs. *configuration.Configuration satisfies it.
type Endpoints interface {
	ClientAPIURL() string
	GraphQLURL() string
}

// Executor performs one HTTP round trip. *transport.Transport satisfies it.
type Executor interface {
	Execute(ctx context.Context, req *transport.Request) (string, error)
}

// Callback receives the result of an async call: exactly one of body or err is set
type Callback func(body string, err error)

// sign adds the authentication contract for cred to req.
// Invalid credentials return their stored error and leave req untouched.
func sign(cred *authorization.Credential, req *transport.Request) error {
	if cred == nil {
		return apperrors.NewAuthorizationError("Authorization provided is null or empty")
	}
	if err := cred.Err(); err != nil {
		return err
	}

	if req.Headers == nil {
		req.Headers = make(map[string]string)
	}
	req.Headers["User-Agent"] = UserAgent
	req.Headers["Braintree-Version"] = APIVersion

	switch cred.Kind() {
	case authorization.KindTokenizationKey:
		if req.Query == nil {
			req.Query = url.Values{}
		}
		req.Query.Set(tokenizationKeyParam, cred.Raw())
	case authorization.KindClientToken:
		req.Headers["Authorization"] = "Bearer " + cred.Bearer()
	}

	return nil
}
