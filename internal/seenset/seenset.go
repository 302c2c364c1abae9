// Package seenset keeps the bounded, durable record of request IDs that have
// already been processed by the poll loop.
package seenset

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// DefaultCapacity is the number of IDs retained when no capacity is configured.
const DefaultCapacity = 100

// Repository persists the ordered list of seen IDs.
type Repository interface {
	LoadSeen(ctx context.Context) ([]string, error)
	SaveSeen(ctx context.Context, ids []string) error
}

// Set is a FIFO-bounded set of IDs backed by a Repository.
// Every mutation rewrites the whole list, so a failed write is retried by
// the next successful one.
type Set struct {
	mu       sync.Mutex
	repo     Repository
	log      *slog.Logger
	capacity int
	order    []string
	index    map[string]struct{}
}

// Load reads the persisted IDs. A read failure is logged and yields an empty
// set; Load never fails.
func Load(ctx context.Context, repo Repository, capacity int, log *slog.Logger) *Set {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	s := &Set{
		repo:     repo,
		log:      log,
		capacity: capacity,
		index:    make(map[string]struct{}),
	}

	ids, err := repo.LoadSeen(ctx)
	if err != nil {
		log.Error("load seen items, starting empty", "error", err)
		return s
	}
	for _, id := range ids {
		s.insert(id)
	}
	s.evict()

	log.Info("loaded seen items", "count", len(s.order), "capacity", capacity)
	return s
}

// Contains reports whether id has been recorded.
func (s *Set) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[id]
	return ok
}

// Add records id, evicting the oldest entries beyond capacity, and persists
// the set before returning. Adding a known id is a no-op.
// The in-memory set is updated even when persisting fails.
func (s *Set) Add(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.insert(id) {
		return nil
	}
	s.evict()
	return s.persist(ctx)
}

// Clear removes every recorded id.
func (s *Set) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.order = nil
	s.index = make(map[string]struct{})
	return s.persist(ctx)
}

// IDs returns the recorded ids, oldest first.
func (s *Set) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.order)
}

// Len returns the number of recorded ids.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// Capacity returns the maximum number of retained ids.
func (s *Set) Capacity() int {
	return s.capacity
}

func (s *Set) insert(id string) bool {
	if id == "" {
		return false
	}
	if _, ok := s.index[id]; ok {
		return false
	}
	s.index[id] = struct{}{}
	s.order = append(s.order, id)
	return true
}

func (s *Set) evict() {
	if len(s.order) <= s.capacity {
		return
	}
	drop := len(s.order) - s.capacity
	for _, id := range s.order[:drop] {
		delete(s.index, id)
	}
	s.order = slices.Clone(s.order[drop:])
}

func (s *Set) persist(ctx context.Context) error {
	if err := s.repo.SaveSeen(ctx, slices.Clone(s.order)); err != nil {
		return fmt.Errorf("save seen items: %w", err)
	}
	return nil
}
