package configuration

import (
	"fmt"

	"github.com/tidwall/gjson"

	apperrors "github.com/kevin07696/gateway-sdk/pkg/errors"
)

// Document keys
const (
	keyAssetsURL         = "assetsUrl"
	keyClientAPIURL      = "clientApiUrl"
	keyChallenges        = "challenges"
	keyEnvironment       = "environment"
	keyMerchantID        = "merchantId"
	keyMerchantAccountID = "merchantAccountId"
	keyAnalyticsURL      = "analytics.url"
	keyPayPalEnabled     = "paypalEnabled"
	keyThreeDSEnabled    = "threeDSecureEnabled"
	keyThreeDSVersions   = "threeDSecure.supportedVersions"
	keyCardinalJWT       = "cardinalAuthenticationJWT"
	keyGraphQLURL        = "graphQL.url"
	keyGraphQLFeatures   = "graphQL.features"
	keyCardTypes         = "creditCards.supportedCardTypes"
	keyCollectDeviceData = "creditCards.collectDeviceData"
)

// Configuration is an immutable snapshot of gateway capabilities for one merchant.
// Share it by pointer; nothing mutates it after FromJSON.
type Configuration struct {
	raw string

	assetsURL         string
	clientAPIURL      string
	environment       string
	merchantID        string
	merchantAccountID string
	analyticsURL      string
	cardinalJWT       string
	graphQLURL        string

	payPalEnabled        bool
	threeDSecureEnabled  bool
	fraudDataCollection  bool
	challenges           map[string]bool
	graphQLFeatures      map[string]bool
	supportedCardTypes   []string
	threeDSecureVersions []string
}

// FromJSON parses a configuration document.
// Malformed JSON or a missing required field is a protocol parse error.
func FromJSON(doc string) (*Configuration, error) {
	if !gjson.Valid(doc) {
		return nil, apperrors.NewProtocolParseError("Configuration document is not valid JSON", nil)
	}

	root := gjson.Parse(doc)
	if !root.IsObject() {
		return nil, apperrors.NewProtocolParseError("Configuration document must be a JSON object", nil)
	}

	for _, key := range []string{keyClientAPIURL, keyEnvironment, keyMerchantID} {
		if root.Get(key).String() == "" {
			return nil, apperrors.NewProtocolParseError(fmt.Sprintf("Configuration is missing required field %q", key), nil)
		}
	}

	cfg := &Configuration{
		raw:                 doc,
		assetsURL:           root.Get(keyAssetsURL).String(),
		clientAPIURL:        root.Get(keyClientAPIURL).String(),
		environment:         root.Get(keyEnvironment).String(),
		merchantID:          root.Get(keyMerchantID).String(),
		merchantAccountID:   root.Get(keyMerchantAccountID).String(),
		analyticsURL:        root.Get(keyAnalyticsURL).String(),
		cardinalJWT:         root.Get(keyCardinalJWT).String(),
		graphQLURL:          root.Get(keyGraphQLURL).String(),
		payPalEnabled:       root.Get(keyPayPalEnabled).Bool(),
		threeDSecureEnabled: root.Get(keyThreeDSEnabled).Bool(),
		fraudDataCollection: root.Get(keyCollectDeviceData).Bool(),
		challenges:          stringSet(root.Get(keyChallenges)),
		graphQLFeatures:     stringSet(root.Get(keyGraphQLFeatures)),
		supportedCardTypes:  stringList(root.Get(keyCardTypes)),
	}

	cfg.threeDSecureVersions = stringList(root.Get(keyThreeDSVersions))
	if len(cfg.threeDSecureVersions) == 0 {
		cfg.threeDSecureVersions = []string{"1"}
		if cfg.cardinalJWT != "" {
			cfg.threeDSecureVersions = append(cfg.threeDSecureVersions, "2")
		}
	}

	return cfg, nil
}

func stringList(result gjson.Result) []string {
	if !result.IsArray() {
		return nil
	}
	var out []string
	for _, item := range result.Array() {
		if s := item.String(); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func stringSet(result gjson.Result) map[string]bool {
	set := make(map[string]bool)
	for _, s := range stringList(result) {
		set[s] = true
	}
	return set
}

// ToJSON returns the document the configuration was parsed from
func (c *Configuration) ToJSON() string { return c.raw }

func (c *Configuration) AssetsURL() string { return c.assetsURL }

// ClientAPIURL is the REST base URL. Safe on a nil receiver.
func (c *Configuration) ClientAPIURL() string {
	if c == nil {
		return ""
	}
	return c.clientAPIURL
}

// GraphQLURL is the GraphQL endpoint, empty when GraphQL is disabled. Safe on a nil receiver.
func (c *Configuration) GraphQLURL() string {
	if c == nil {
		return ""
	}
	return c.graphQLURL
}

func (c *Configuration) Environment() string       { return c.environment }
func (c *Configuration) MerchantID() string        { return c.merchantID }
func (c *Configuration) MerchantAccountID() string { return c.merchantAccountID }
func (c *Configuration) AnalyticsURL() string      { return c.analyticsURL }
func (c *Configuration) IsAnalyticsEnabled() bool  { return c.analyticsURL != "" }
func (c *Configuration) IsGraphQLEnabled() bool    { return c.graphQLURL != "" }
func (c *Configuration) IsPayPalEnabled() bool     { return c.payPalEnabled }

// IsGraphQLFeatureEnabled reports whether GraphQL is enabled and lists feature
func (c *Configuration) IsGraphQLFeatureEnabled(feature string) bool {
	return c.IsGraphQLEnabled() && c.graphQLFeatures[feature]
}

func (c *Configuration) IsThreeDSecureEnabled() bool { return c.threeDSecureEnabled }

// CardinalAuthenticationJWT is the merchant JWT for the embedded 3DS 2 SDK
func (c *Configuration) CardinalAuthenticationJWT() string { return c.cardinalJWT }

func (c *Configuration) IsCVVChallengePresent() bool        { return c.challenges["cvv"] }
func (c *Configuration) IsPostalCodeChallengePresent() bool { return c.challenges["postal_code"] }
func (c *Configuration) IsFraudDataCollectionEnabled() bool { return c.fraudDataCollection }

// SupportedCardTypes returns a copy of the card types the merchant accepts
func (c *Configuration) SupportedCardTypes() []string {
	return append([]string(nil), c.supportedCardTypes...)
}

// ThreeDSecureSupportedVersions returns a copy of the supported protocol major versions
func (c *Configuration) ThreeDSecureSupportedVersions() []string {
	return append([]string(nil), c.threeDSecureVersions...)
}

// SupportsThreeDSecureVersion reports whether major version v ("1", "2") is supported
func (c *Configuration) SupportsThreeDSecureVersion(v string) bool {
	for _, supported := range c.threeDSecureVersions {
		if supported == v {
			return true
		}
	}
	return false
}
