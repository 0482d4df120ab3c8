package org

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"examduler/internal/org/models"
	"examduler/pkg/platform/sentinel"
	txcontext "examduler/pkg/platform/tx"
)

// PostgresStore persists organizations across three tables: organizations,
// org_domains and org_members. A partial unique index on verified domains
// backstops the global ownership uniqueness check at the database level.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	execer := txcontext.ExecutorFrom(ctx, s.db)

	var o models.Organization
	err := execer.QueryRowContext(ctx,
		"SELECT id, name, version FROM organizations WHERE id = $1", id).
		Scan(&o.ID, &o.Name, &o.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get organization: %w", err)
	}

	domainRows, err := execer.QueryContext(ctx, `
		SELECT domain, verification_token, verified
		FROM org_domains WHERE org_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("get organization domains: %w", err)
	}
	defer domainRows.Close()
	for domainRows.Next() {
		var d models.Domain
		if err := domainRows.Scan(&d.Domain, &d.VerificationToken, &d.Verified); err != nil {
			return nil, fmt.Errorf("scan organization domain: %w", err)
		}
		o.Domains = append(o.Domains, d)
	}
	if err := domainRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate organization domains: %w", err)
	}

	memberRows, err := execer.QueryContext(ctx,
		"SELECT user_id, verified FROM org_members WHERE org_id = $1", id)
	if err != nil {
		return nil, fmt.Errorf("get organization members: %w", err)
	}
	defer memberRows.Close()
	for memberRows.Next() {
		var ref models.MemberRef
		if err := memberRows.Scan(&ref.UserID, &ref.Verified); err != nil {
			return nil, fmt.Errorf("scan organization member: %w", err)
		}
		o.Members = append(o.Members, ref)
	}
	if err := memberRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate organization members: %w", err)
	}

	return &o, nil
}

func (s *PostgresStore) Insert(ctx context.Context, o *models.Organization) error {
	execer := txcontext.ExecutorFrom(ctx, s.db)
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	o.Version = 1
	_, err := execer.ExecContext(ctx,
		"INSERT INTO organizations (id, name, version) VALUES ($1, $2, $3)",
		o.ID, o.Name, o.Version)
	if err != nil {
		return translatePQError("insert organization", err)
	}
	if err := s.writeDomains(ctx, o); err != nil {
		return err
	}
	return s.writeMembers(ctx, o)
}

func (s *PostgresStore) Update(ctx context.Context, o *models.Organization) error {
	execer := txcontext.ExecutorFrom(ctx, s.db)

	res, err := execer.ExecContext(ctx, `
		UPDATE organizations SET name = $2, version = version + 1
		WHERE id = $1 AND version = $3`,
		o.ID, o.Name, o.Version)
	if err != nil {
		return translatePQError("update organization", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update organization: %w", err)
	}
	if affected == 0 {
		// Distinguish a missing row from a stale version.
		var exists bool
		err := execer.QueryRowContext(ctx,
			"SELECT EXISTS (SELECT 1 FROM organizations WHERE id = $1)", o.ID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("update organization: %w", err)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrVersionMismatch
	}
	o.Version++

	if _, err := execer.ExecContext(ctx, "DELETE FROM org_domains WHERE org_id = $1", o.ID); err != nil {
		return fmt.Errorf("clear organization domains: %w", err)
	}
	if err := s.writeDomains(ctx, o); err != nil {
		return err
	}
	if _, err := execer.ExecContext(ctx, "DELETE FROM org_members WHERE org_id = $1", o.ID); err != nil {
		return fmt.Errorf("clear organization members: %w", err)
	}
	return s.writeMembers(ctx, o)
}

func (s *PostgresStore) writeDomains(ctx context.Context, o *models.Organization) error {
	execer := txcontext.ExecutorFrom(ctx, s.db)
	for i, d := range o.Domains {
		_, err := execer.ExecContext(ctx, `
			INSERT INTO org_domains (org_id, domain, verification_token, verified, position)
			VALUES ($1, $2, $3, $4, $5)`,
			o.ID, d.Domain, d.VerificationToken, d.Verified, i)
		if err != nil {
			return translatePQError("insert organization domain", err)
		}
	}
	return nil
}

func (s *PostgresStore) writeMembers(ctx context.Context, o *models.Organization) error {
	execer := txcontext.ExecutorFrom(ctx, s.db)
	for _, ref := range o.Members {
		_, err := execer.ExecContext(ctx, `
			INSERT INTO org_members (org_id, user_id, verified)
			VALUES ($1, $2, $3)
			ON CONFLICT (org_id, user_id) DO UPDATE SET verified = EXCLUDED.verified`,
			o.ID, ref.UserID, ref.Verified)
		if err != nil {
			return translatePQError("insert organization member", err)
		}
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx,
		"DELETE FROM organizations WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete organization: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete organization: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	// org_domains and org_members cascade.
	return nil
}

func (s *PostgresStore) ListByMember(ctx context.Context, userID uuid.UUID) ([]*models.Organization, error) {
	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx,
		"SELECT org_id FROM org_members WHERE user_id = $1", userID)
	if err != nil {
		return nil, fmt.Errorf("list organizations by member: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan organization id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate organization ids: %w", err)
	}

	result := make([]*models.Organization, 0, len(ids))
	for _, id := range ids {
		o, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		result = append(result, o)
	}
	return result, nil
}

func (s *PostgresStore) FindVerifiedDomainOwner(ctx context.Context, domain string) (uuid.UUID, error) {
	var owner uuid.UUID
	err := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx,
		"SELECT org_id FROM org_domains WHERE domain = $1 AND verified", domain).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, sentinel.ErrNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("find verified domain owner: %w", err)
	}
	return owner, nil
}

func (s *PostgresStore) MembershipCounts(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	counts := make(map[uuid.UUID]int, len(userIDs))
	if len(userIDs) == 0 {
		return counts, nil
	}
	for _, id := range userIDs {
		counts[id] = 0
	}
	ids := make([]string, len(userIDs))
	for i, id := range userIDs {
		ids[i] = id.String()
	}
	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx, `
		SELECT user_id, COUNT(*) FROM org_members
		WHERE user_id = ANY($1) GROUP BY user_id`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("membership counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id    uuid.UUID
			count int
		)
		if err := rows.Scan(&id, &count); err != nil {
			return nil, fmt.Errorf("scan membership count: %w", err)
		}
		counts[id] = count
	}
	return counts, rows.Err()
}

func (s *PostgresStore) SetDomainVerified(ctx context.Context, orgID uuid.UUID, domain string) error {
	execer := txcontext.ExecutorFrom(ctx, s.db)
	res, err := execer.ExecContext(ctx,
		"UPDATE org_domains SET verified = TRUE WHERE org_id = $1 AND domain = $2",
		orgID, domain)
	if err != nil {
		return translatePQError("set domain verified", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set domain verified: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	_, err = execer.ExecContext(ctx,
		"UPDATE organizations SET version = version + 1 WHERE id = $1", orgID)
	if err != nil {
		return fmt.Errorf("bump organization version: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetMembersVerified(ctx context.Context, userIDs []uuid.UUID) error {
	if len(userIDs) == 0 {
		return nil
	}
	ids := make([]string, len(userIDs))
	for i, id := range userIDs {
		ids[i] = id.String()
	}
	_, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx,
		"UPDATE org_members SET verified = TRUE WHERE user_id = ANY($1)", pq.Array(ids))
	if err != nil {
		return fmt.Errorf("set members verified: %w", err)
	}
	return nil
}

// translatePQError maps unique-constraint violations onto the conflict
// sentinel so services can report them as domain conflicts.
func translatePQError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return fmt.Errorf("%s: %w", op, sentinel.ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}
