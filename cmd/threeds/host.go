package main

import (
	"context"
	"io"
	"sync"

	"github.com/kevin07696/gateway-sdk/internal/adapters/ports"
	"github.com/kevin07696/gateway-sdk/pkg/encoding"
)

// consoleHost departs by printing the redirect for the operator to open.
// The browser's final return URL is fed back with -action=resume.
type consoleHost struct {
	mu     sync.Mutex
	out    io.Writer
	scheme string
}

func newConsoleHost(out io.Writer, scheme string) *consoleHost {
	return &consoleHost{out: out, scheme: scheme}
}

func (h *consoleHost) CanDepart(returnURLScheme string) bool {
	return returnURLScheme != "" && returnURLScheme == h.scheme
}

func (h *consoleHost) Depart(ctx context.Context, departure ports.Departure) error {
	data, err := encoding.EncodeJSON(map[string]string{
		"status":            "redirect",
		"url":               departure.URL,
		"return_url":        departure.ReturnURL,
		"correlation_token": departure.CorrelationToken,
	})
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	_, err = h.out.Write(append(data, '\n'))
	return err
}
