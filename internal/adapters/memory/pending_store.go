package memory

import (
	"context"
	"sync"

	"github.com/kevin07696/gateway-sdk/internal/adapters/ports"
)

// PendingVerificationStore keeps suspended verifications in process memory.
// It does not survive a restart; use the file or postgres store for that.
type PendingVerificationStore struct {
	mu      sync.RWMutex
	records map[string]ports.PendingVerification
}

// NewPendingVerificationStore creates an empty in-memory store
func NewPendingVerificationStore() *PendingVerificationStore {
	return &PendingVerificationStore{
		records: make(map[string]ports.PendingVerification),
	}
}

func (s *PendingVerificationStore) Save(ctx context.Context, record *ports.PendingVerification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *record
	stored.Payload = append([]byte(nil), record.Payload...)
	s.records[record.Token] = stored
	return nil
}

func (s *PendingVerificationStore) Load(ctx context.Context, token string) (*ports.PendingVerification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[token]
	if !ok {
		return nil, ports.ErrRecordNotFound
	}
	record.Payload = append([]byte(nil), record.Payload...)
	return &record, nil
}

func (s *PendingVerificationStore) Delete(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, token)
	return nil
}

// Len returns the number of pending records
func (s *PendingVerificationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

var _ ports.PendingVerificationStore = (*PendingVerificationStore)(nil)
