package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/kevin07696/gateway-sdk/internal/adapters/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS pending_verifications (
	token      TEXT PRIMARY KEY,
	payload    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS pending_verifications_created_at_idx ON pending_verifications (created_at);
`

// PendingVerificationStore persists suspended verifications in PostgreSQL
type PendingVerificationStore struct {
	pool         *pgxpool.Pool
	logger       *zap.Logger
	queryTimeout time.Duration
}

// NewPendingVerificationStore creates a store over an existing pool
func NewPendingVerificationStore(pool *pgxpool.Pool, cfg *Config, logger *zap.Logger) *PendingVerificationStore {
	return &PendingVerificationStore{
		pool:         pool,
		logger:       logger,
		queryTimeout: cfg.QueryTimeout,
	}
}

// EnsureSchema creates the pending_verifications table if it does not exist
func (s *PendingVerificationStore) EnsureSchema(ctx context.Context) error {
	return withTransaction(ctx, s.pool, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, schema); err != nil {
			return fmt.Errorf("create pending_verifications: %w", err)
		}
		return nil
	})
}

func (s *PendingVerificationStore) Save(ctx context.Context, record *ports.PendingVerification) error {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO pending_verifications (token, payload, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token) DO UPDATE SET payload = EXCLUDED.payload, created_at = EXCLUDED.created_at`,
		record.Token, string(record.Payload), record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save pending verification: %w", err)
	}

	s.logger.Debug("Pending verification saved", zap.String("token", record.Token))
	return nil
}

func (s *PendingVerificationStore) Load(ctx context.Context, token string) (*ports.PendingVerification, error) {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	var (
		record  ports.PendingVerification
		payload string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT token, payload::text, created_at
		FROM pending_verifications
		WHERE token = $1`,
		token,
	).Scan(&record.Token, &payload, &record.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ports.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load pending verification: %w", err)
	}

	record.Payload = []byte(payload)
	return &record, nil
}

func (s *PendingVerificationStore) Delete(ctx context.Context, token string) error {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	if _, err := s.pool.Exec(ctx, `DELETE FROM pending_verifications WHERE token = $1`, token); err != nil {
		return fmt.Errorf("delete pending verification: %w", err)
	}
	return nil
}

func (s *PendingVerificationStore) queryContext(parent context.Context) (context.Context, context.CancelFunc) {
	if s.queryTimeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, s.queryTimeout)
}

var _ ports.PendingVerificationStore = (*PendingVerificationStore)(nil)
