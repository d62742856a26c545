package authorization

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	apperrors "github.com/kevin07696/gateway-sdk/pkg/errors"
)

// Kind identifies which credential variant was parsed
type Kind int

const (
	KindInvalid Kind = iota
	KindTokenizationKey
	KindClientToken
)

func (k Kind) String() string {
	switch k {
	case KindTokenizationKey:
		return "tokenization_key"
	case KindClientToken:
		return "client_token"
	default:
		return "invalid"
	}
}

const (
	messageEmpty   = "Authorization provided is null or empty"
	messageInvalid = "Authorization provided is not a valid client token or tokenization key"
)

var tokenizationKeyPattern = regexp.MustCompile(`^[a-zA-Z0-9]+_[a-zA-Z0-9]+_[a-zA-Z0-9_]+$`)

// environment base URLs for tokenization key configuration lookups
var environmentBaseURLs = map[string]string{
	"development": "http://10.0.2.2:3000/",
	"sandbox":     "https://api.sandbox.braintreegateway.com/",
	"production":  "https://api.braintreegateway.com/",
}

// Credential is the parsed form of an authorization string.
// It is immutable; use Kind to decide how to sign requests.
type Credential struct {
	kind        Kind
	raw         string
	bearer      string
	configURL   string
	environment string
	merchantID  string
	message     string
}

// Parse turns a raw authorization string into a Credential.
// Unusable input yields a KindInvalid credential carrying a message.
func Parse(raw string) *Credential {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return invalid(raw, messageEmpty)
	}

	if tokenizationKeyPattern.MatchString(trimmed) {
		return parseTokenizationKey(trimmed)
	}

	return parseClientToken(trimmed)
}

func parseTokenizationKey(raw string) *Credential {
	parts := strings.SplitN(raw, "_", 3)
	environment, merchantID := parts[0], parts[1]

	baseURL, ok := environmentBaseURLs[environment]
	if !ok {
		return invalid(raw, messageInvalid)
	}

	return &Credential{
		kind:        KindTokenizationKey,
		raw:         raw,
		bearer:      raw,
		configURL:   fmt.Sprintf("%smerchants/%s/client_api/v1/configuration", baseURL, merchantID),
		environment: environment,
		merchantID:  merchantID,
	}
}

type clientTokenPayload struct {
	ConfigURL                string `json:"configUrl"`
	AuthorizationFingerprint string `json:"authorizationFingerprint"`
	Environment              string `json:"environment"`
	MerchantID               string `json:"merchantId"`
}

func parseClientToken(raw string) *Credential {
	decoded, err := decodeBase64(raw)
	if err != nil {
		return invalid(raw, messageInvalid)
	}

	var payload clientTokenPayload
	if err := json.Unmarshal(decoded, &payload); err != nil {
		return invalid(raw, messageInvalid)
	}

	if payload.ConfigURL == "" || payload.AuthorizationFingerprint == "" {
		return invalid(raw, "Client token is missing configUrl or authorizationFingerprint")
	}

	return &Credential{
		kind:        KindClientToken,
		raw:         raw,
		bearer:      payload.AuthorizationFingerprint,
		configURL:   payload.ConfigURL,
		environment: payload.Environment,
		merchantID:  payload.MerchantID,
	}
}

// decodeBase64 accepts padded or raw input in either alphabet
func decodeBase64(s string) ([]byte, error) {
	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	}

	var lastErr error
	for _, enc := range encodings {
		decoded, err := enc.DecodeString(s)
		if err == nil {
			return decoded, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func invalid(raw, message string) *Credential {
	return &Credential{kind: KindInvalid, raw: raw, message: message}
}

func (c *Credential) Kind() Kind { return c.kind }

// Raw returns the string the credential was parsed from
func (c *Credential) Raw() string { return c.raw }

// Bearer returns the signing value: the raw key for tokenization keys,
// the authorization fingerprint for client tokens
func (c *Credential) Bearer() string { return c.bearer }

// ConfigURL returns the absolute URL of the remote configuration document
func (c *Credential) ConfigURL() string { return c.configURL }

func (c *Credential) Environment() string { return c.environment }

func (c *Credential) MerchantID() string { return c.merchantID }

// Message is the human-readable reason an invalid credential was rejected
func (c *Credential) Message() string { return c.message }

// IsValid reports whether the credential can sign requests
func (c *Credential) IsValid() bool { return c.kind != KindInvalid }

// Err returns an authorization error for invalid credentials, nil otherwise
func (c *Credential) Err() error {
	if c.kind != KindInvalid {
		return nil
	}
	return apperrors.NewAuthorizationError(c.message)
}
