package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"examduler/pkg/platform/sentinel"
	txcontext "examduler/pkg/platform/tx"
)

// PostgresStore persists users in PostgreSQL. All methods route through the
// transaction in context when one is present.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const userColumns = "id, email, domain, name, role, status, exam_ids, token_version"

func (s *PostgresStore) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf("SELECT %s FROM users WHERE id = ANY($1)", userColumns)
	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx, query, pq.Array(uuidStrings(ids)))
	if err != nil {
		return nil, fmt.Errorf("get users by ids: %w", err)
	}
	defer rows.Close()
	return scanUsers(rows)
}

func (s *PostgresStore) GetByEmails(ctx context.Context, emails []string) ([]*User, error) {
	if len(emails) == 0 {
		return nil, nil
	}
	lowered := make([]string, len(emails))
	for i, e := range emails {
		lowered[i] = strings.ToLower(e)
	}
	query := fmt.Sprintf("SELECT %s FROM users WHERE email = ANY($1)", userColumns)
	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx, query, pq.Array(lowered))
	if err != nil {
		return nil, fmt.Errorf("get users by emails: %w", err)
	}
	defer rows.Close()
	return scanUsers(rows)
}

// UpsertByEmail inserts or refreshes each user keyed by email. Status is set
// only on insert; conflicts keep the stored status so re-uploaded rosters
// never demote verified users.
func (s *PostgresStore) UpsertByEmail(ctx context.Context, batch []*User) ([]*User, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	execer := txcontext.ExecutorFrom(ctx, s.db)
	query := fmt.Sprintf(`
		INSERT INTO users (id, email, domain, name, role, status, exam_ids, token_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0)
		ON CONFLICT (email) DO UPDATE
		SET domain = EXCLUDED.domain, name = EXCLUDED.name, role = EXCLUDED.role
		RETURNING %s`, userColumns)

	result := make([]*User, 0, len(batch))
	for _, u := range batch {
		id := u.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		row := execer.QueryRowContext(ctx, query,
			id,
			strings.ToLower(u.Email),
			strings.ToLower(u.Domain),
			u.Name,
			string(u.Role),
			string(u.Status),
			pq.Array(uuidStrings(u.ExamIDs)),
		)
		stored, err := scanUser(row)
		if err != nil {
			return nil, fmt.Errorf("upsert user %s: %w", u.Email, err)
		}
		result = append(result, stored)
	}
	return result, nil
}

func (s *PostgresStore) DeleteByIDs(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx,
		"DELETE FROM users WHERE id = ANY($1)", pq.Array(uuidStrings(ids)))
	if err != nil {
		return fmt.Errorf("delete users: %w", err)
	}
	return nil
}

// Promote flips pending users under domain to verified. The WHERE clause
// re-checks domain and status so stale candidate ids cannot promote
// unrelated records.
func (s *PostgresStore) Promote(ctx context.Context, candidateIDs []uuid.UUID, domain string, excludeID uuid.UUID) ([]uuid.UUID, error) {
	if len(candidateIDs) == 0 {
		return nil, nil
	}
	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx, `
		UPDATE users
		SET status = 'verified'
		WHERE id = ANY($1)
		  AND id <> $2
		  AND domain = $3
		  AND status = 'pending'
		RETURNING id`,
		pq.Array(uuidStrings(candidateIDs)), excludeID, strings.ToLower(domain))
	if err != nil {
		return nil, fmt.Errorf("promote users: %w", err)
	}
	defer rows.Close()

	var promoted []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan promoted id: %w", err)
		}
		promoted = append(promoted, id)
	}
	return promoted, rows.Err()
}

func (s *PostgresStore) TokenVersion(ctx context.Context, id uuid.UUID) (int, error) {
	var version int
	err := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx,
		"SELECT token_version FROM users WHERE id = $1", id).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, sentinel.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("token version: %w", err)
	}
	return version, nil
}

func (s *PostgresStore) BumpTokenVersion(ctx context.Context, id uuid.UUID) error {
	res, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx,
		"UPDATE users SET token_version = token_version + 1 WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("bump token version: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("bump token version: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var (
		u       User
		role    string
		status  string
		examIDs pq.StringArray
	)
	if err := row.Scan(&u.ID, &u.Email, &u.Domain, &u.Name, &role, &status, &examIDs, &u.TokenVersion); err != nil {
		return nil, err
	}
	u.Role = Role(role)
	u.Status = Status(status)
	for _, raw := range examIDs {
		examID, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse exam id %q: %w", raw, err)
		}
		u.ExamIDs = append(u.ExamIDs, examID)
	}
	return &u, nil
}

func scanUsers(rows *sql.Rows) ([]*User, error) {
	var result []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		result = append(result, u)
	}
	return result, rows.Err()
}

func uuidStrings(ids []uuid.UUID) []string {
	result := make([]string, len(ids))
	for i, id := range ids {
		result[i] = id.String()
	}
	return result
}
