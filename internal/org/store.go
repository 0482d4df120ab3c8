// Package org persists the organization aggregate.
package org

import (
	"context"

	"github.com/google/uuid"

	"examduler/internal/org/models"
)

// Store persists organizations. Writes are compare-and-swap on the
// organization Version: an Update whose Version no longer matches the stored
// one fails with sentinel.ErrVersionMismatch instead of silently clobbering
// a concurrent edit. Implementations must honor a transaction carried in
// the context (pkg/platform/tx).
type Store interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Organization, error)

	Insert(ctx context.Context, o *models.Organization) error

	// Update replaces the organization's name, domain list and member
	// list as of o.Version. The stored version is incremented on
	// success and o.Version is updated to match.
	Update(ctx context.Context, o *models.Organization) error

	Delete(ctx context.Context, id uuid.UUID) error

	// ListByMember returns every organization holding a MemberRef to
	// userID.
	ListByMember(ctx context.Context, userID uuid.UUID) ([]*models.Organization, error)

	// FindVerifiedDomainOwner returns the id of the organization holding
	// domain in a verified state, or sentinel.ErrNotFound. At most one
	// such organization can exist.
	FindVerifiedDomainOwner(ctx context.Context, domain string) (uuid.UUID, error)

	// MembershipCounts returns, per user id, how many organizations
	// still reference it. Users absent from every organization map to 0.
	MembershipCounts(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]int, error)

	// SetDomainVerified flips the verified flag on one of the
	// organization's domains.
	SetDomainVerified(ctx context.Context, orgID uuid.UUID, domain string) error

	// SetMembersVerified flips MemberRef.Verified for the given users in
	// every organization referencing them, keeping refs in sync with the
	// user store after promotion.
	SetMembersVerified(ctx context.Context, userIDs []uuid.UUID) error
}
