package threedsecure

import (
	"strings"

	"github.com/tidwall/gjson"

	apperrors "github.com/kevin07696/gateway-sdk/pkg/errors"
)

// ThreeDSecureInfo is the verification state the gateway attaches to a card nonce
type ThreeDSecureInfo struct {
	LiabilityShifted       bool   `json:"liability_shifted"`
	LiabilityShiftPossible bool   `json:"liability_shift_possible"`
	Status                 string `json:"status,omitempty"`
	Enrolled               string `json:"enrolled,omitempty"`
	Verified               bool   `json:"verified"`
}

// CardNonce is a tokenized card returned by the gateway
type CardNonce struct {
	Nonce            string           `json:"nonce"`
	Description      string           `json:"description,omitempty"`
	CardType         string           `json:"card_type,omitempty"`
	LastTwo          string           `json:"last_two,omitempty"`
	LastFour         string           `json:"last_four,omitempty"`
	ThreeDSecureInfo ThreeDSecureInfo `json:"three_d_secure_info"`
}

// LookupResult is the parsed response of the lookup call. Immutable once parsed.
type LookupResult struct {
	ACSURL                 string     `json:"acs_url,omitempty"`
	PAReq                  string     `json:"pareq,omitempty"`
	MD                     string     `json:"md,omitempty"`
	TermURL                string     `json:"term_url,omitempty"`
	TransactionID          string     `json:"transaction_id,omitempty"`
	ThreeDSecureVersion    string     `json:"three_d_secure_version,omitempty"`
	LiabilityShifted       bool       `json:"liability_shifted"`
	LiabilityShiftPossible bool       `json:"liability_shift_possible"`
	PaymentMethod          *CardNonce `json:"payment_method,omitempty"`
}

// RequiresStepUp reports whether the cardholder must complete a challenge
func (l *LookupResult) RequiresStepUp() bool {
	return l.ACSURL != ""
}

// IsVersion2 reports whether the lookup negotiated a 2.x protocol, or left it unspecified
func (l *LookupResult) IsVersion2() bool {
	return l.ThreeDSecureVersion == "" || strings.HasPrefix(l.ThreeDSecureVersion, "2.")
}

// ParseLookup parses a lookup response body
func ParseLookup(body string) (*LookupResult, error) {
	if !gjson.Valid(body) {
		return nil, apperrors.NewProtocolParseError("Lookup response is not valid JSON", nil)
	}

	root := gjson.Parse(body)
	lookup := root.Get("lookup")
	if !lookup.Exists() && !root.Get("paymentMethod").Exists() {
		return nil, apperrors.NewProtocolParseError("Lookup response has neither lookup nor paymentMethod", nil)
	}

	result := &LookupResult{
		ACSURL:              lookup.Get("acsUrl").String(),
		PAReq:               lookup.Get("pareq").String(),
		MD:                  lookup.Get("md").String(),
		TermURL:             lookup.Get("termUrl").String(),
		TransactionID:       lookup.Get("transactionId").String(),
		ThreeDSecureVersion: lookup.Get("threeDSecureVersion").String(),
	}

	if pm := root.Get("paymentMethod"); pm.Exists() {
		result.PaymentMethod = parseCardNonce(pm)
		result.LiabilityShifted = result.PaymentMethod.ThreeDSecureInfo.LiabilityShifted
		result.LiabilityShiftPossible = result.PaymentMethod.ThreeDSecureInfo.LiabilityShiftPossible
	}

	return result, nil
}

func parseCardNonce(pm gjson.Result) *CardNonce {
	info := pm.Get("threeDSecureInfo")
	shifted := info.Get("liabilityShifted")
	possible := info.Get("liabilityShiftPossible")

	return &CardNonce{
		Nonce:       pm.Get("nonce").String(),
		Description: pm.Get("description").String(),
		CardType:    pm.Get("details.cardType").String(),
		LastTwo:     pm.Get("details.lastTwo").String(),
		LastFour:    pm.Get("details.lastFour").String(),
		ThreeDSecureInfo: ThreeDSecureInfo{
			LiabilityShifted:       shifted.Bool(),
			LiabilityShiftPossible: possible.Bool(),
			Status:                 info.Get("status").String(),
			Enrolled:               info.Get("enrolled").String(),
			Verified:               shifted.Exists() && possible.Exists(),
		},
	}
}

// authenticationResult is the reconciled payload of authenticate_from_jwt
// or of a redirect auth_response
type authenticationResult struct {
	nonce        *CardNonce
	errorMessage string // gateway-reported error alongside a 2xx response
}

// parseAuthentication parses an authenticate_from_jwt response body
func parseAuthentication(body string) (*authenticationResult, error) {
	if !gjson.Valid(body) {
		return nil, apperrors.NewProtocolParseError("Authentication response is not valid JSON", nil)
	}

	root := gjson.Parse(body)
	result := &authenticationResult{}

	if errs := root.Get("errors"); errs.IsArray() && len(errs.Array()) > 0 {
		result.errorMessage = errs.Array()[0].Get("message").String()
		return result, nil
	}
	if msg := root.Get("error.message"); msg.Exists() {
		result.errorMessage = msg.String()
		return result, nil
	}

	pm := root.Get("paymentMethod")
	if !pm.Exists() {
		return nil, apperrors.NewProtocolParseError("Authentication response is missing paymentMethod", nil)
	}
	result.nonce = parseCardNonce(pm)

	return result, nil
}
