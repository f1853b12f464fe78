// ABOUTME: In-memory task cache store backed by a mutex-guarded map
// ABOUTME: Pattern invalidation is a no-op with a warning, per §9

package cache

import (
	"context"
	"sync"
	"time"

	"github.com/flowctl/engine/pkg/types"
)

// MemoryStore is the default, single-process Store implementation.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
	logger  types.Logger
}

// NewMemoryStore builds an empty in-memory store. logger may be nil.
func NewMemoryStore(logger types.Logger) *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry), logger: logger}
}

func (s *MemoryStore) Get(_ context.Context, key string) (*types.TaskExecutionResult, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	now := time.Now()
	if e.IsBeyondStaleTTL(now) {
		return nil, false, nil
	}
	if e.IsStale(now) {
		return nil, false, nil
	}
	return e.Result, true, nil
}

func (s *MemoryStore) GetWithMetadata(_ context.Context, key string) (Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok {
		return Metadata{}, nil
	}
	now := time.Now()
	if e.IsBeyondStaleTTL(now) {
		return Metadata{IsBeyondStaleTTL: true}, nil
	}
	entryCopy := e
	return Metadata{
		Entry:   &entryCopy,
		IsStale: e.IsStale(now),
	}, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, entry Entry) error {
	if entry.CreatedAtUtc.IsZero() {
		entry.CreatedAtUtc = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry
	return nil
}

func (s *MemoryStore) Invalidate(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// InvalidatePattern is a no-op: the generic in-memory store does not
// support pattern-based invalidation (§9 "treat pattern support as
// optional"; §4.5 "implementations may no-op with a warning").
func (s *MemoryStore) InvalidatePattern(_ context.Context, pattern string) error {
	if s.logger != nil {
		s.logger.Warn().Str("pattern", pattern).Msg("pattern invalidation not supported by memory cache store")
	}
	return nil
}
