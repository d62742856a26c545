package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Category represents the category of error for handling
type Category string

const (
	CategoryValidation    Category = "validation"     // bad caller input, never retried
	CategoryAuthorization Category = "authorization"  // unusable credential, fails before I/O
	CategoryConfiguration Category = "configuration"  // setup defect or missing remote capability
	CategoryTransport     Category = "transport"      // network, TLS or malformed URL
	CategoryServer        Category = "server"         // non-2xx response from the gateway
	CategoryProtocolParse Category = "protocol_parse" // malformed payload from the gateway or a redirect
	CategoryCancelled     Category = "cancelled"      // work abandoned before it started
)

// Kind narrows down transport failures
type Kind string

const (
	KindMalformedURL     Kind = "malformed_url"
	KindNetwork          Kind = "network"
	KindTLSConfiguration Kind = "tls_configuration"
)

// Reason describes a server failure derived from its status code
type Reason string

const (
	ReasonAuthentication  Reason = "authentication"
	ReasonAuthorization   Reason = "authorization"
	ReasonUnprocessable   Reason = "unprocessable"
	ReasonUpgradeRequired Reason = "upgrade_required"
	ReasonRateLimited     Reason = "rate_limited"
	ReasonServer          Reason = "server"
	ReasonUnavailable     Reason = "unavailable"
	ReasonUnexpected      Reason = "unexpected"
)

// Error is the single error type surfaced by the SDK
type Error struct {
	Category   Category
	Kind       Kind   // transport only
	Message    string
	Field      string // validation only
	StatusCode int    // server only
	Body       string // server only, raw response body
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Category == CategoryServer && e.StatusCode != 0:
		return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	default:
		return e.Message
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Reason maps the status code of a server error to a Reason
func (e *Error) Reason() Reason {
	if e.Category != CategoryServer {
		return ""
	}
	return ReasonForStatus(e.StatusCode)
}

// ReasonForStatus classifies a non-2xx status code
func ReasonForStatus(statusCode int) Reason {
	switch statusCode {
	case http.StatusUnauthorized:
		return ReasonAuthentication
	case http.StatusForbidden:
		return ReasonAuthorization
	case http.StatusUnprocessableEntity:
		return ReasonUnprocessable
	case http.StatusUpgradeRequired:
		return ReasonUpgradeRequired
	case http.StatusTooManyRequests:
		return ReasonRateLimited
	case http.StatusInternalServerError:
		return ReasonServer
	case http.StatusServiceUnavailable:
		return ReasonUnavailable
	default:
		return ReasonUnexpected
	}
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *Error {
	return &Error{Category: CategoryValidation, Field: field, Message: message}
}

// NewAuthorizationError creates a new authorization error
func NewAuthorizationError(message string) *Error {
	return &Error{Category: CategoryAuthorization, Message: message}
}

// NewConfigurationError creates a new configuration error
func NewConfigurationError(message string) *Error {
	return &Error{Category: CategoryConfiguration, Message: message}
}

// NewTransportError creates a new transport error of the given kind
func NewTransportError(kind Kind, message string, err error) *Error {
	return &Error{Category: CategoryTransport, Kind: kind, Message: message, Err: err}
}

// NewServerError creates a new server error carrying the response status and body
func NewServerError(statusCode int, message, body string) *Error {
	return &Error{Category: CategoryServer, StatusCode: statusCode, Message: message, Body: body}
}

// NewProtocolParseError creates a new protocol parse error
func NewProtocolParseError(message string, err error) *Error {
	return &Error{Category: CategoryProtocolParse, Message: message, Err: err}
}

// NewCancelledError creates a new cancelled error
func NewCancelledError(message string) *Error {
	return &Error{Category: CategoryCancelled, Message: message}
}

// Wrap classifies an arbitrary collaborator failure under category
func Wrap(category Category, message string, err error) *Error {
	return &Error{Category: category, Message: message, Err: err}
}

// CategoryOf returns the category of err, or "" when err is not an SDK error
func CategoryOf(err error) Category {
	var sdkErr *Error
	if stderrors.As(err, &sdkErr) {
		return sdkErr.Category
	}
	return ""
}

// As extracts the SDK error from err
func As(err error) (*Error, bool) {
	var sdkErr *Error
	ok := stderrors.As(err, &sdkErr)
	return sdkErr, ok
}

func IsValidation(err error) bool    { return CategoryOf(err) == CategoryValidation }
func IsAuthorization(err error) bool { return CategoryOf(err) == CategoryAuthorization }
func IsConfiguration(err error) bool { return CategoryOf(err) == CategoryConfiguration }
func IsTransport(err error) bool     { return CategoryOf(err) == CategoryTransport }
func IsServer(err error) bool        { return CategoryOf(err) == CategoryServer }
func IsProtocolParse(err error) bool { return CategoryOf(err) == CategoryProtocolParse }
func IsCancelled(err error) bool     { return CategoryOf(err) == CategoryCancelled }
