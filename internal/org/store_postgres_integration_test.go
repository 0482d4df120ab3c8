//go:build integration

package org_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"examduler/internal/org"
	"examduler/internal/org/models"
	"examduler/internal/users"
	"examduler/pkg/platform/sentinel"
	"examduler/pkg/testutil/containers"
)

func TestPostgresStore(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	ctx := context.Background()
	store := org.NewPostgresStore(pg.DB)
	userStore := users.NewPostgresStore(pg.DB)

	truncate := func() {
		require.NoError(t, pg.Truncate(ctx, "organizations", "users"))
	}

	seedUser := func(email string) *users.User {
		seeded, err := userStore.UpsertByEmail(ctx, []*users.User{{
			Email: email, Domain: "school.edu", Name: "Member",
			Role: users.RoleStudent, Status: users.StatusPending,
		}})
		require.NoError(t, err)
		return seeded[0]
	}

	t.Run("insert and get round-trip preserves domain order", func(t *testing.T) {
		truncate()
		member := seedUser("alice@school.edu")

		o := &models.Organization{
			Name: "CS Department",
			Domains: []models.Domain{
				{Domain: "https://school.edu", VerificationToken: "examduler-one"},
				{Domain: "https://cs.school.edu", VerificationToken: "examduler-two"},
			},
			Members: []models.MemberRef{{UserID: member.ID, Verified: false}},
		}
		require.NoError(t, store.Insert(ctx, o))

		got, err := store.Get(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, "CS Department", got.Name)
		assert.Equal(t, int64(1), got.Version)
		require.Len(t, got.Domains, 2)
		assert.Equal(t, "https://school.edu", got.Domains[0].Domain)
		assert.Equal(t, "https://cs.school.edu", got.Domains[1].Domain)
		require.Len(t, got.Members, 1)
		assert.Equal(t, member.ID, got.Members[0].UserID)
	})

	t.Run("update enforces compare-and-swap", func(t *testing.T) {
		truncate()

		o := &models.Organization{Name: "CS Department"}
		require.NoError(t, store.Insert(ctx, o))

		stale, err := store.Get(ctx, o.ID)
		require.NoError(t, err)

		fresh, err := store.Get(ctx, o.ID)
		require.NoError(t, err)
		fresh.Name = "Renamed"
		require.NoError(t, store.Update(ctx, fresh))

		stale.Name = "Stale Rename"
		err = store.Update(ctx, stale)
		require.ErrorIs(t, err, sentinel.ErrVersionMismatch)
	})

	t.Run("verified domain is globally unique", func(t *testing.T) {
		truncate()

		first := &models.Organization{
			Name:    "CS Department",
			Domains: []models.Domain{{Domain: "https://school.edu", VerificationToken: "examduler-a"}},
		}
		require.NoError(t, store.Insert(ctx, first))
		require.NoError(t, store.SetDomainVerified(ctx, first.ID, "https://school.edu"))

		owner, err := store.FindVerifiedDomainOwner(ctx, "https://school.edu")
		require.NoError(t, err)
		assert.Equal(t, first.ID, owner)

		// A second organization may hold the same domain unverified.
		second := &models.Organization{
			Name:    "Evening School",
			Domains: []models.Domain{{Domain: "https://school.edu", VerificationToken: "examduler-b"}},
		}
		require.NoError(t, store.Insert(ctx, second))

		// Marking it verified trips the partial unique index.
		err = store.SetDomainVerified(ctx, second.ID, "https://school.edu")
		require.Error(t, err)
		assert.True(t, errors.Is(err, sentinel.ErrConflict))
	})

	t.Run("membership counts and cascade delete", func(t *testing.T) {
		truncate()
		alice := seedUser("alice@school.edu")
		bob := seedUser("bob@school.edu")

		first := &models.Organization{
			Name: "CS Department",
			Members: []models.MemberRef{
				{UserID: alice.ID}, {UserID: bob.ID},
			},
		}
		second := &models.Organization{
			Name:    "Math Department",
			Members: []models.MemberRef{{UserID: alice.ID}},
		}
		require.NoError(t, store.Insert(ctx, first))
		require.NoError(t, store.Insert(ctx, second))

		counts, err := store.MembershipCounts(ctx, []uuid.UUID{alice.ID, bob.ID})
		require.NoError(t, err)
		assert.Equal(t, 2, counts[alice.ID])
		assert.Equal(t, 1, counts[bob.ID])

		require.NoError(t, store.Delete(ctx, first.ID))

		counts, err = store.MembershipCounts(ctx, []uuid.UUID{alice.ID, bob.ID})
		require.NoError(t, err)
		assert.Equal(t, 1, counts[alice.ID])
		assert.Equal(t, 0, counts[bob.ID])
	})

	t.Run("set members verified updates every referencing organization", func(t *testing.T) {
		truncate()
		alice := seedUser("alice@school.edu")

		first := &models.Organization{
			Name:    "CS Department",
			Members: []models.MemberRef{{UserID: alice.ID}},
		}
		second := &models.Organization{
			Name:    "Math Department",
			Members: []models.MemberRef{{UserID: alice.ID}},
		}
		require.NoError(t, store.Insert(ctx, first))
		require.NoError(t, store.Insert(ctx, second))

		require.NoError(t, store.SetMembersVerified(ctx, []uuid.UUID{alice.ID}))

		for _, id := range []uuid.UUID{first.ID, second.ID} {
			got, err := store.Get(ctx, id)
			require.NoError(t, err)
			require.Len(t, got.Members, 1)
			assert.True(t, got.Members[0].Verified)
		}
	})

	t.Run("list by member", func(t *testing.T) {
		truncate()
		alice := seedUser("alice@school.edu")

		o := &models.Organization{
			Name:    "CS Department",
			Members: []models.MemberRef{{UserID: alice.ID}},
		}
		require.NoError(t, store.Insert(ctx, o))

		listed, err := store.ListByMember(ctx, alice.ID)
		require.NoError(t, err)
		require.Len(t, listed, 1)
		assert.Equal(t, o.ID, listed[0].ID)

		listed, err = store.ListByMember(ctx, uuid.New())
		require.NoError(t, err)
		assert.Empty(t, listed)
	})
}
