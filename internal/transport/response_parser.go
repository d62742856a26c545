package transport

import (
	"net/http"

	"github.com/tidwall/gjson"

	apperrors "github.com/kevin07696/gateway-sdk/pkg/errors"
)

// ResponseParser interprets a completed round trip
type ResponseParser interface {
	Parse(statusCode int, body string) (string, error)
}

// DefaultResponseParser returns the body for 2xx and a server error otherwise.
// When the body is a gateway error document its error.message is surfaced.
type DefaultResponseParser struct{}

func (DefaultResponseParser) Parse(statusCode int, body string) (string, error) {
	if statusCode >= 200 && statusCode < 300 {
		return body, nil
	}

	message := ""
	if gjson.Valid(body) {
		message = gjson.Get(body, "error.message").String()
	}
	if message == "" {
		message = http.StatusText(statusCode)
	}
	if message == "" {
		message = "Unexpected response from gateway"
	}

	return "", apperrors.NewServerError(statusCode, message, body)
}
