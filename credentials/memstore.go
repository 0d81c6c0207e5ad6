package credentials

import (
	"context"
	"sync"

	"github.com/c360studio/flowengine/flowerr"
)

// MemStore is a trivial in-memory Store, used by resolver tests and by
// components constructed without a NATS client (e.g. for local
// development or unit tests of the orchestrator wiring).
type MemStore struct {
	mu   sync.Mutex
	data map[string]ToolCredentials
}

// NewMemStore builds an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{data: map[string]ToolCredentials{}}
}

func (s *MemStore) Get(_ context.Context, org, tool string) (ToolCredentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.data[credKey(org, tool)]
	if !ok {
		return ToolCredentials{}, flowerr.New(flowerr.NotFound, "not found")
	}
	return c, nil
}

func (s *MemStore) Set(_ context.Context, org, tool string, creds ToolCredentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[credKey(org, tool)] = creds
	return nil
}

func (s *MemStore) Delete(_ context.Context, org, tool string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, credKey(org, tool))
	return nil
}
