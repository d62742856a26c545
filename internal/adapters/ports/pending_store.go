package ports

import (
	"context"
	"errors"
	"time"
)

// ErrRecordNotFound is returned by Load when no record matches the token
var ErrRecordNotFound = errors.New("pending verification not found")

// PendingVerification is a suspended verification persisted across a redirect.
// Payload is an opaque JSON document owned by the orchestrator.
type PendingVerification struct {
	Token     string    `json:"token"`
	Payload   []byte    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

// PendingVerificationStore defines the port for durable redirect state
type PendingVerificationStore interface {
	Save(ctx context.Context, record *PendingVerification) error
	Load(ctx context.Context, token string) (*PendingVerification, error)
	Delete(ctx context.Context, token string) error
}
