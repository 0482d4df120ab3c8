//go:build integration

package users_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"examduler/internal/users"
	"examduler/pkg/testutil/containers"
)

func TestPostgresStore(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	ctx := context.Background()
	store := users.NewPostgresStore(pg.DB)

	truncate := func() {
		require.NoError(t, pg.Truncate(ctx, "users"))
	}

	t.Run("upsert inserts and refreshes without demoting", func(t *testing.T) {
		truncate()

		seeded, err := store.UpsertByEmail(ctx, []*users.User{{
			Email:  "alice@school.edu",
			Domain: "school.edu",
			Name:   "Alice",
			Role:   users.RoleStudent,
			Status: users.StatusVerified,
		}})
		require.NoError(t, err)
		require.Len(t, seeded, 1)
		require.NotEqual(t, uuid.Nil, seeded[0].ID)

		// Re-upload with a new name and pending status; the stored
		// verified status must survive.
		again, err := store.UpsertByEmail(ctx, []*users.User{{
			Email:  "alice@school.edu",
			Domain: "school.edu",
			Name:   "Alice Johnson",
			Role:   users.RoleTeacher,
			Status: users.StatusPending,
		}})
		require.NoError(t, err)
		require.Len(t, again, 1)
		assert.Equal(t, seeded[0].ID, again[0].ID)
		assert.Equal(t, "Alice Johnson", again[0].Name)
		assert.Equal(t, users.RoleTeacher, again[0].Role)
		assert.Equal(t, users.StatusVerified, again[0].Status)
	})

	t.Run("promote flips only matching pending users", func(t *testing.T) {
		truncate()

		seeded, err := store.UpsertByEmail(ctx, []*users.User{
			{Email: "bob@school.edu", Domain: "school.edu", Name: "Bob", Role: users.RoleStudent, Status: users.StatusPending},
			{Email: "carol@other.edu", Domain: "other.edu", Name: "Carol", Role: users.RoleStudent, Status: users.StatusPending},
			{Email: "dave@school.edu", Domain: "school.edu", Name: "Dave", Role: users.RoleStudent, Status: users.StatusPending},
		})
		require.NoError(t, err)
		ids := []uuid.UUID{seeded[0].ID, seeded[1].ID, seeded[2].ID}

		// Dave is excluded, Carol's domain does not match.
		promoted, err := store.Promote(ctx, ids, "school.edu", seeded[2].ID)
		require.NoError(t, err)
		assert.ElementsMatch(t, []uuid.UUID{seeded[0].ID}, promoted)

		resolved, err := store.GetByIDs(ctx, ids)
		require.NoError(t, err)
		byEmail := map[string]*users.User{}
		for _, u := range resolved {
			byEmail[u.Email] = u
		}
		assert.Equal(t, users.StatusVerified, byEmail["bob@school.edu"].Status)
		assert.Equal(t, users.StatusPending, byEmail["carol@other.edu"].Status)
		assert.Equal(t, users.StatusPending, byEmail["dave@school.edu"].Status)

		// Second run is a no-op.
		promoted, err = store.Promote(ctx, ids, "school.edu", seeded[2].ID)
		require.NoError(t, err)
		assert.Empty(t, promoted)
	})

	t.Run("token version bumps", func(t *testing.T) {
		truncate()

		seeded, err := store.UpsertByEmail(ctx, []*users.User{{
			Email: "eve@school.edu", Domain: "school.edu", Name: "Eve",
			Role: users.RoleStudent, Status: users.StatusPending,
		}})
		require.NoError(t, err)

		v, err := store.TokenVersion(ctx, seeded[0].ID)
		require.NoError(t, err)
		assert.Equal(t, 0, v)

		require.NoError(t, store.BumpTokenVersion(ctx, seeded[0].ID))
		v, err = store.TokenVersion(ctx, seeded[0].ID)
		require.NoError(t, err)
		assert.Equal(t, 1, v)
	})

	t.Run("delete removes records", func(t *testing.T) {
		truncate()

		seeded, err := store.UpsertByEmail(ctx, []*users.User{{
			Email: "frank@school.edu", Domain: "school.edu", Name: "Frank",
			Role: users.RoleStudent, Status: users.StatusPending,
		}})
		require.NoError(t, err)

		require.NoError(t, store.DeleteByIDs(ctx, []uuid.UUID{seeded[0].ID}))
		resolved, err := store.GetByIDs(ctx, []uuid.UUID{seeded[0].ID})
		require.NoError(t, err)
		assert.Empty(t, resolved)
	})
}
