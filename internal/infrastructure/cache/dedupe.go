// Package cache holds the short-lived key stores used by webhook intake
package cache

import (
	"context"
	"sync"
	"time"

	appsync "github.com/meschain/marketsync/internal/application/marketsync"
)

type claim struct {
	expiresAt time.Time
}

// MemoryDedupeStore remembers webhook event keys in process memory.
// Suitable for single-instance deployments and tests.
type MemoryDedupeStore struct {
	mu        sync.Mutex
	claims    map[string]claim
	now       func() time.Time
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewMemoryDedupeStore creates the store and starts its sweeper
func NewMemoryDedupeStore(sweepEvery time.Duration) *MemoryDedupeStore {
	if sweepEvery <= 0 {
		sweepEvery = 5 * time.Minute
	}
	s := &MemoryDedupeStore{
		claims:   make(map[string]claim),
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
	s.wg.Add(1)
	go s.sweepLoop(sweepEvery)
	return s
}

// Claim records key until ttl passes. It returns false while an earlier claim is live.
func (s *MemoryDedupeStore) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if c, ok := s.claims[key]; ok && now.Before(c.expiresAt) {
		return false, nil
	}
	s.claims[key] = claim{expiresAt: now.Add(ttl)}
	return true, nil
}

// Release drops the claim on key
func (s *MemoryDedupeStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.claims, key)
	return nil
}

// Len returns the number of stored claims, expired ones included until the next sweep
func (s *MemoryDedupeStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.claims)
}

// Close stops the sweeper. Safe to call more than once.
func (s *MemoryDedupeStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
	})
	return nil
}

func (s *MemoryDedupeStore) sweepLoop(every time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *MemoryDedupeStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, c := range s.claims {
		if !now.Before(c.expiresAt) {
			delete(s.claims, key)
		}
	}
}

var _ appsync.DedupeStore = (*MemoryDedupeStore)(nil)
