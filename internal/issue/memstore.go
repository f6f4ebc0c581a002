package issue

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"issuedesk.org/internal/ids"
)

// MemStore implements Store with in-process concurrency safety. Backs
// tests and local development without Postgres.
type MemStore struct {
	mu     sync.RWMutex
	issues map[string]*Issue
}

var _ Store = (*MemStore)(nil)

// NewMemStore creates an empty in-memory issue store.
func NewMemStore() *MemStore {
	return &MemStore{issues: make(map[string]*Issue)}
}

func (s *MemStore) Create(ctx context.Context, is *Issue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if is.ID == "" {
		is.ID = ids.New()
	}
	now := time.Now().UTC()
	is.CreatedAt = now
	is.UpdatedAt = now
	cp := *is
	s.issues[is.ID] = &cp
	return nil
}

func (s *MemStore) Find(ctx context.Context, id string) (*Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	is, ok := s.issues[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *is
	return &cp, nil
}

func (s *MemStore) List(ctx context.Context, f Filter) ([]*Issue, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*Issue
	for _, is := range s.issues {
		if !matches(is, f) {
			continue
		}
		cp := *is
		matched = append(matched, &cp)
	}

	oldest := f.Sort == SortOldest
	sort.Slice(matched, func(i, j int) bool {
		if oldest {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start := (f.Page - 1) * f.Limit
	if start >= total {
		return nil, total, nil
	}
	end := start + f.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (s *MemStore) Update(ctx context.Context, is *Issue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.issues[is.ID]; !ok {
		return ErrNotFound
	}
	is.UpdatedAt = time.Now().UTC()
	cp := *is
	s.issues[is.ID] = &cp
	return nil
}

func (s *MemStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.issues[id]; !ok {
		return ErrNotFound
	}
	delete(s.issues, id)
	return nil
}

func (s *MemStore) StatusCounts(ctx context.Context, creatorIDs []string) (map[Status]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[Status]int)
	for _, is := range s.issues {
		if contains(creatorIDs, is.CreatedBy) {
			counts[is.Status]++
		}
	}
	return counts, nil
}

func (s *MemStore) PriorityCounts(ctx context.Context, creatorIDs []string) (map[Priority]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[Priority]int)
	for _, is := range s.issues {
		if contains(creatorIDs, is.CreatedBy) {
			counts[is.Priority]++
		}
	}
	return counts, nil
}

func (s *MemStore) RecentByCreators(ctx context.Context, creatorIDs []string, limit int) ([]*Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []*Issue
	for _, is := range s.issues {
		if contains(creatorIDs, is.CreatedBy) {
			cp := *is
			matched = append(matched, &cp)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func matches(is *Issue, f Filter) bool {
	if !contains(f.CreatorIDs, is.CreatedBy) {
		return false
	}
	if f.Status != "" && is.Status != f.Status {
		return false
	}
	if f.Priority != "" && is.Priority != f.Priority {
		return false
	}
	if f.Label != "" && !strings.EqualFold(is.Label, f.Label) {
		return false
	}
	if f.Query != "" {
		q := strings.ToLower(f.Query)
		if !strings.Contains(strings.ToLower(is.Title), q) &&
			!strings.Contains(strings.ToLower(is.Description), q) &&
			!strings.Contains(strings.ToLower(is.Label), q) {
			return false
		}
	}
	return true
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
