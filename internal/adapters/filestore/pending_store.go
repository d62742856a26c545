package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"go.uber.org/zap"

	"github.com/kevin07696/gateway-sdk/internal/adapters/ports"
)

var tokenPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// PendingVerificationStore persists one JSON file per correlation token
type PendingVerificationStore struct {
	dir    string
	logger *zap.Logger
}

// NewPendingVerificationStore creates the directory if needed
func NewPendingVerificationStore(dir string, logger *zap.Logger) (*PendingVerificationStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create pending verification directory: %w", err)
	}

	logger.Info("File pending verification store initialized", zap.String("dir", dir))

	return &PendingVerificationStore{dir: dir, logger: logger}, nil
}

func (s *PendingVerificationStore) Save(ctx context.Context, record *ports.PendingVerification) error {
	path, err := s.path(record.Token)
	if err != nil {
		return err
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode pending verification: %w", err)
	}

	// Write then rename so a crash never leaves a truncated record
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write pending verification: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to commit pending verification: %w", err)
	}

	s.logger.Debug("Pending verification saved", zap.String("token", record.Token))
	return nil
}

func (s *PendingVerificationStore) Load(ctx context.Context, token string) (*ports.PendingVerification, error) {
	path, err := s.path(token)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ports.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read pending verification: %w", err)
	}

	var record ports.PendingVerification
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to decode pending verification: %w", err)
	}
	return &record, nil
}

func (s *PendingVerificationStore) Delete(ctx context.Context, token string) error {
	path, err := s.path(token)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete pending verification: %w", err)
	}
	return nil
}

// path maps a token to its file; tokens are restricted so they cannot escape dir
func (s *PendingVerificationStore) path(token string) (string, error) {
	if !tokenPattern.MatchString(token) {
		return "", fmt.Errorf("invalid correlation token %q", token)
	}
	return filepath.Join(s.dir, token+".json"), nil
}

var _ ports.PendingVerificationStore = (*PendingVerificationStore)(nil)
