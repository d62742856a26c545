package threedsecure

// OutcomeKind tags the terminal state of a verification
type OutcomeKind int

const (
	OutcomeAuthenticated OutcomeKind = iota + 1
	OutcomeCancelled
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeAuthenticated:
		return "authenticated"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is produced exactly once per verification attempt.
// Authenticated carries Nonce, Failed carries Err, Cancelled carries neither.
type Outcome struct {
	Kind    OutcomeKind
	Nonce   *CardNonce
	Lookup  *LookupResult
	Request *Request
	Err     error

	// GatewayMessage is set when the gateway could not upgrade the nonce and
	// the lookup nonce was returned instead
	GatewayMessage string
}

// Callback receives the terminal outcome of a verification
type Callback func(outcome *Outcome)

func authenticated(req *Request, lookup *LookupResult, nonce *CardNonce) *Outcome {
	return &Outcome{Kind: OutcomeAuthenticated, Request: req, Lookup: lookup, Nonce: nonce}
}

func cancelled(req *Request, lookup *LookupResult) *Outcome {
	return &Outcome{Kind: OutcomeCancelled, Request: req, Lookup: lookup}
}

func failed(req *Request, lookup *LookupResult, err error) *Outcome {
	return &Outcome{Kind: OutcomeFailed, Request: req, Lookup: lookup, Err: err}
}
