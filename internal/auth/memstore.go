package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"issuedesk.org/internal/ids"
)

// MemStore implements UserStore with in-process concurrency safety.
// Backs tests and local development without Postgres.
type MemStore struct {
	mu      sync.RWMutex
	users   map[string]*User
	byEmail map[string]string // lower(email) -> id
}

var _ UserStore = (*MemStore)(nil)

// NewMemStore creates an empty in-memory user store.
func NewMemStore() *MemStore {
	return &MemStore{
		users:   make(map[string]*User),
		byEmail: make(map[string]string),
	}
}

func (s *MemStore) Create(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(strings.TrimSpace(u.Email))
	if _, exists := s.byEmail[key]; exists {
		return ErrEmailTaken
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	cp := *u
	s.users[u.ID] = &cp
	s.byEmail[key] = u.ID
	return nil
}

func (s *MemStore) Find(ctx context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.users[id]
	return &cp, nil
}

func (s *MemStore) ListByOrganization(ctx context.Context, organization string) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*User
	for _, u := range s.users {
		if u.Organization == organization {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemStore) SetRefreshHash(ctx context.Context, userID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.RefreshHash = hash
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemStore) RotateRefreshHash(ctx context.Context, userID, oldHash, newHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	if u.RefreshHash != oldHash {
		return ErrInvalidToken
	}
	u.RefreshHash = newHash
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemStore) ClearRefreshHash(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.RefreshHash = ""
	u.UpdatedAt = time.Now().UTC()
	return nil
}
