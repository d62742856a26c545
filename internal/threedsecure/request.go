package threedsecure

import (
	"strings"

	"github.com/go-playground/validator"

	"github.com/kevin07696/gateway-sdk/pkg/encoding"
	apperrors "github.com/kevin07696/gateway-sdk/pkg/errors"
)

// Version is the requested 3-D Secure protocol major version
type Version string

const (
	Version1 Version = "1"
	Version2 Version = "2"
)

const messageInvalidRequest = "The ThreeDSecureRequest nonce and amount cannot be null"

var validate = validator.New()

// PostalAddress is a billing or shipping address sent with a lookup
type PostalAddress struct {
	GivenName         string `json:"given_name,omitempty"`
	Surname           string `json:"surname,omitempty"`
	StreetAddress     string `json:"street_address,omitempty"`
	ExtendedAddress   string `json:"extended_address,omitempty"`
	Line3             string `json:"line3,omitempty"`
	Locality          string `json:"locality,omitempty"`
	Region            string `json:"region,omitempty"`
	PostalCode        string `json:"postal_code,omitempty"`
	CountryCodeAlpha2 string `json:"country_code_alpha2,omitempty"`
	PhoneNumber       string `json:"phone_number,omitempty"`
}

// Request is a caller-built verification request.
// Nonce and Amount are mandatory; Amount is sent to the gateway verbatim.
type Request struct {
	Nonce                 string            `json:"nonce" validate:"required"`
	Amount                string            `json:"amount" validate:"required"`
	MobilePhoneNumber     string            `json:"mobile_phone_number,omitempty"`
	Email                 string            `json:"email,omitempty"`
	ShippingMethod        string            `json:"shipping_method,omitempty"`
	BillingAddress        *PostalAddress    `json:"billing_address,omitempty"`
	ShippingAddress       *PostalAddress    `json:"shipping_address,omitempty"`
	VersionRequested      Version           `json:"version_requested,omitempty" validate:"omitempty,oneof=1 2"`
	AdditionalInformation map[string]string `json:"additional_information,omitempty"`
	ChallengeRequested    bool              `json:"challenge_requested,omitempty"`
	ExemptionRequested    bool              `json:"exemption_requested,omitempty"`
	AccountType           string            `json:"account_type,omitempty"`
}

// Validate checks the request before any network call
func (r *Request) Validate() error {
	if r == nil {
		return apperrors.NewValidationError("request", messageInvalidRequest)
	}

	if err := validate.Struct(r); err != nil {
		field := "request"
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			field = strings.ToLower(verrs[0].Field())
		}
		if field == "versionrequested" {
			return apperrors.NewValidationError("version_requested", "Unsupported 3-D Secure version requested: "+string(r.VersionRequested))
		}
		return apperrors.NewValidationError(field, messageInvalidRequest)
	}

	return nil
}

// Version returns the requested protocol version, defaulting to Version2
func (r *Request) Version() Version {
	if r.VersionRequested == "" {
		return Version2
	}
	return r.VersionRequested
}

// LookupBody builds the JSON body of the lookup call.
// dfReferenceID is omitted when the embedded SDK could not provide one.
func (r *Request) LookupBody(dfReferenceID string) (string, error) {
	info := make(map[string]string)
	if addr := r.BillingAddress; addr != nil {
		putIfSet(info, "billing_given_name", addr.GivenName)
		putIfSet(info, "billing_surname", addr.Surname)
		putIfSet(info, "billing_line1", addr.StreetAddress)
		putIfSet(info, "billing_line2", addr.ExtendedAddress)
		putIfSet(info, "billing_line3", addr.Line3)
		putIfSet(info, "billing_city", addr.Locality)
		putIfSet(info, "billing_state", addr.Region)
		putIfSet(info, "billing_postal_code", addr.PostalCode)
		putIfSet(info, "billing_country_code", addr.CountryCodeAlpha2)
		putIfSet(info, "billing_phone_number", addr.PhoneNumber)
	}
	if addr := r.ShippingAddress; addr != nil {
		putIfSet(info, "shipping_given_name", addr.GivenName)
		putIfSet(info, "shipping_surname", addr.Surname)
		putIfSet(info, "shipping_line1", addr.StreetAddress)
		putIfSet(info, "shipping_line2", addr.ExtendedAddress)
		putIfSet(info, "shipping_line3", addr.Line3)
		putIfSet(info, "shipping_city", addr.Locality)
		putIfSet(info, "shipping_state", addr.Region)
		putIfSet(info, "shipping_postal_code", addr.PostalCode)
		putIfSet(info, "shipping_country_code", addr.CountryCodeAlpha2)
		putIfSet(info, "shipping_phone", addr.PhoneNumber)
	}
	putIfSet(info, "mobile_phone_number", r.MobilePhoneNumber)
	putIfSet(info, "email", r.Email)
	putIfSet(info, "shipping_method", r.ShippingMethod)
	for key, value := range r.AdditionalInformation {
		putIfSet(info, key, value)
	}

	body := map[string]interface{}{
		"amount":              r.Amount,
		"additional_info":     info,
		"challenge_requested": r.ChallengeRequested,
		"exemption_requested": r.ExemptionRequested,
	}
	if dfReferenceID != "" {
		body["df_reference_id"] = dfReferenceID
	}
	if r.AccountType != "" {
		body["account_type"] = r.AccountType
	}

	return encoding.EncodeJSONString(body)
}

func putIfSet(m map[string]string, key, value string) {
	if value != "" {
		m[key] = value
	}
}
