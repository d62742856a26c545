package ports

import "context"

// ChallengeRequest carries the ACS data handed to the embedded authentication SDK
type ChallengeRequest struct {
	TransactionID       string
	PAReq               string
	ACSURL              string
	MD                  string
	ThreeDSecureVersion string
}

// ValidationAction is the terminal action reported by the embedded SDK
type ValidationAction string

const (
	ValidationSuccess  ValidationAction = "SUCCESS"
	ValidationNoAction ValidationAction = "NOACTION"
	ValidationFailure  ValidationAction = "FAILURE"
	ValidationError    ValidationAction = "ERROR"
	ValidationTimeout  ValidationAction = "TIMEOUT"
	ValidationCancel   ValidationAction = "CANCEL"
)

// ValidationResult is the payload of the embedded SDK completion callback
type ValidationResult struct {
	Action           ValidationAction
	JWT              string // server JWT to exchange with the gateway
	ErrorDescription string
}

// EmbeddedAuthenticator defines the port for the embedded card-authentication SDK.
// Implementations own the challenge UI and its cryptography.
type EmbeddedAuthenticator interface {
	// Initialize sets up the SDK with the merchant JWT and returns the
	// device-fingerprint reference id used by the lookup call.
	Initialize(ctx context.Context, jwt string) (referenceID string, err error)

	// Authenticate presents the step-up challenge and blocks until the SDK
	// reports a validation result or ctx is done.
	Authenticate(ctx context.Context, challenge ChallengeRequest) (*ValidationResult, error)
}
