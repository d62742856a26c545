package ports

import "net/http"

// HTTPClient is a minimal HTTP client interface for making requests
// This allows the transport to be driven by httptest servers or mocks
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}
