package users

import (
	"context"

	"github.com/google/uuid"
)

// Store persists users. Implementations must honor a transaction carried in
// the context (pkg/platform/tx) so reconciliation writes commit atomically
// with organization writes.
type Store interface {
	// GetByIDs returns the users whose ids are in ids. Missing ids are
	// simply absent from the result, not an error; callers treat a
	// reference that resolves to nothing as a logged inconsistency.
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*User, error)

	// GetByEmails returns users keyed by normalized email.
	GetByEmails(ctx context.Context, emails []string) ([]*User, error)

	// UpsertByEmail inserts or updates each user keyed by email and
	// returns them with resolved ids. On update, name, role and domain
	// are refreshed but Status is left untouched: re-uploading a roster
	// never demotes an already verified user.
	UpsertByEmail(ctx context.Context, batch []*User) ([]*User, error)

	// DeleteByIDs removes the given users.
	DeleteByIDs(ctx context.Context, ids []uuid.UUID) error

	// Promote flips pending users to verified. Only records whose id is
	// in candidateIDs AND whose stored domain equals domain are touched;
	// excludeID is skipped even when listed. Returns the ids actually
	// promoted; an empty selection is a successful no-op.
	Promote(ctx context.Context, candidateIDs []uuid.UUID, domain string, excludeID uuid.UUID) ([]uuid.UUID, error)

	// TokenVersion returns the current token version for id.
	TokenVersion(ctx context.Context, id uuid.UUID) (int, error)

	// BumpTokenVersion increments the token version, invalidating
	// previously issued session tokens.
	BumpTokenVersion(ctx context.Context, id uuid.UUID) error
}
