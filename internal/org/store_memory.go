package org

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"examduler/internal/org/models"
	"examduler/pkg/platform/sentinel"
)

// InMemoryStore is the unit-test implementation of Store.
type InMemoryStore struct {
	mu   sync.RWMutex
	orgs map[uuid.UUID]*models.Organization
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{orgs: make(map[uuid.UUID]*models.Organization)}
}

func cloneOrg(o *models.Organization) *models.Organization {
	clone := *o
	clone.Domains = append([]models.Domain(nil), o.Domains...)
	clone.Members = append([]models.MemberRef(nil), o.Members...)
	return &clone
}

func (s *InMemoryStore) Get(_ context.Context, id uuid.UUID) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orgs[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneOrg(o), nil
}

func (s *InMemoryStore) Insert(_ context.Context, o *models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if _, ok := s.orgs[o.ID]; ok {
		return sentinel.ErrConflict
	}
	for _, d := range o.Domains {
		if d.Verified {
			if _, err := s.findVerifiedOwnerLocked(d.Domain); err == nil {
				return sentinel.ErrConflict
			}
		}
	}
	o.Version = 1
	s.orgs[o.ID] = cloneOrg(o)
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, o *models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.orgs[o.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if stored.Version != o.Version {
		return sentinel.ErrVersionMismatch
	}
	for _, d := range o.Domains {
		if d.Verified {
			owner, err := s.findVerifiedOwnerLocked(d.Domain)
			if err == nil && owner != o.ID {
				return sentinel.ErrConflict
			}
		}
	}
	o.Version++
	s.orgs[o.ID] = cloneOrg(o)
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orgs[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.orgs, id)
	return nil
}

func (s *InMemoryStore) ListByMember(_ context.Context, userID uuid.UUID) ([]*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*models.Organization
	for _, o := range s.orgs {
		for _, ref := range o.Members {
			if ref.UserID == userID {
				result = append(result, cloneOrg(o))
				break
			}
		}
	}
	return result, nil
}

func (s *InMemoryStore) FindVerifiedDomainOwner(_ context.Context, domain string) (uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findVerifiedOwnerLocked(domain)
}

func (s *InMemoryStore) findVerifiedOwnerLocked(domain string) (uuid.UUID, error) {
	for id, o := range s.orgs {
		for _, d := range o.Domains {
			if d.Domain == domain && d.Verified {
				return id, nil
			}
		}
	}
	return uuid.Nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) MembershipCounts(_ context.Context, userIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[uuid.UUID]int, len(userIDs))
	for _, id := range userIDs {
		counts[id] = 0
	}
	for _, o := range s.orgs {
		for _, ref := range o.Members {
			if _, ok := counts[ref.UserID]; ok {
				counts[ref.UserID]++
			}
		}
	}
	return counts, nil
}

func (s *InMemoryStore) SetDomainVerified(_ context.Context, orgID uuid.UUID, domain string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orgs[orgID]
	if !ok {
		return sentinel.ErrNotFound
	}
	for i := range o.Domains {
		if o.Domains[i].Domain == domain {
			o.Domains[i].Verified = true
			o.Version++
			return nil
		}
	}
	return sentinel.ErrNotFound
}

func (s *InMemoryStore) SetMembersVerified(_ context.Context, userIDs []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	promoted := make(map[uuid.UUID]struct{}, len(userIDs))
	for _, id := range userIDs {
		promoted[id] = struct{}{}
	}
	for _, o := range s.orgs {
		changed := false
		for i := range o.Members {
			if _, ok := promoted[o.Members[i].UserID]; ok && !o.Members[i].Verified {
				o.Members[i].Verified = true
				changed = true
			}
		}
		if changed {
			o.Version++
		}
	}
	return nil
}
