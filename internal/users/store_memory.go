package users

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"examduler/pkg/platform/sentinel"
)

// InMemoryStore is the unit-test implementation of Store. It ignores any
// transaction in context; tests that need transactional behavior use the
// postgres store.
type InMemoryStore struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]*User
	byEmail map[string]uuid.UUID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID:    make(map[uuid.UUID]*User),
		byEmail: make(map[string]uuid.UUID),
	}
}

func (s *InMemoryStore) GetByIDs(_ context.Context, ids []uuid.UUID) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*User, 0, len(ids))
	for _, id := range ids {
		if u, ok := s.byID[id]; ok {
			clone := *u
			result = append(result, &clone)
		}
	}
	return result, nil
}

func (s *InMemoryStore) GetByEmails(_ context.Context, emails []string) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*User, 0, len(emails))
	for _, email := range emails {
		if id, ok := s.byEmail[strings.ToLower(email)]; ok {
			clone := *s.byID[id]
			result = append(result, &clone)
		}
	}
	return result, nil
}

func (s *InMemoryStore) UpsertByEmail(_ context.Context, batch []*User) ([]*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]*User, 0, len(batch))
	for _, incoming := range batch {
		email := strings.ToLower(incoming.Email)
		if id, ok := s.byEmail[email]; ok {
			existing := s.byID[id]
			existing.Name = incoming.Name
			existing.Role = incoming.Role
			existing.Domain = incoming.Domain
			clone := *existing
			result = append(result, &clone)
			continue
		}
		stored := *incoming
		stored.Email = email
		if stored.ID == uuid.Nil {
			stored.ID = uuid.New()
		}
		s.byID[stored.ID] = &stored
		s.byEmail[email] = stored.ID
		clone := stored
		result = append(result, &clone)
	}
	return result, nil
}

func (s *InMemoryStore) DeleteByIDs(_ context.Context, ids []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if u, ok := s.byID[id]; ok {
			delete(s.byEmail, strings.ToLower(u.Email))
			delete(s.byID, id)
		}
	}
	return nil
}

func (s *InMemoryStore) Promote(_ context.Context, candidateIDs []uuid.UUID, domain string, excludeID uuid.UUID) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	domain = strings.ToLower(domain)
	var promoted []uuid.UUID
	for _, id := range candidateIDs {
		if id == excludeID {
			continue
		}
		u, ok := s.byID[id]
		if !ok || u.Status != StatusPending || strings.ToLower(u.Domain) != domain {
			continue
		}
		u.Status = StatusVerified
		promoted = append(promoted, id)
	}
	return promoted, nil
}

func (s *InMemoryStore) TokenVersion(_ context.Context, id uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return 0, sentinel.ErrNotFound
	}
	return u.TokenVersion, nil
}

func (s *InMemoryStore) BumpTokenVersion(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	u.TokenVersion++
	return nil
}
