package ports

import "context"

// Departure describes a redirect out of the host application
type Departure struct {
	URL              string // where the cardholder is sent
	ReturnURL        string // where the host is resumed
	CorrelationToken string
}

// RedirectHost defines the port for the host environment's redirect plumbing
type RedirectHost interface {
	// CanDepart reports whether a redirect round trip returning to the given
	// scheme is registered with the host. Checked before any lookup is made.
	CanDepart(returnURLScheme string) bool

	// Depart leaves the application. The result arrives later through a
	// separate resume call, possibly in a different process.
	Depart(ctx context.Context, departure Departure) error
}
