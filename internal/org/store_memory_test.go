package org

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"examduler/internal/org/models"
	"examduler/pkg/platform/sentinel"
)

func TestUpdateVersionMismatch(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	o := &models.Organization{Name: "Acme"}
	require.NoError(t, store.Insert(ctx, o))

	stale, err := store.Get(ctx, o.ID)
	require.NoError(t, err)

	fresh, err := store.Get(ctx, o.ID)
	require.NoError(t, err)
	fresh.Name = "Acme Corp"
	require.NoError(t, store.Update(ctx, fresh))

	stale.Name = "Acme Inc"
	err = store.Update(ctx, stale)
	require.ErrorIs(t, err, sentinel.ErrVersionMismatch)

	got, err := store.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", got.Name)
}

func TestVerifiedDomainUniqueness(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	holder := &models.Organization{
		Name:    "Holder",
		Domains: []models.Domain{{Domain: "https://acme.test", Verified: true}},
	}
	require.NoError(t, store.Insert(ctx, holder))

	owner, err := store.FindVerifiedDomainOwner(ctx, "https://acme.test")
	require.NoError(t, err)
	assert.Equal(t, holder.ID, owner)

	claimant := &models.Organization{
		Name:    "Claimant",
		Domains: []models.Domain{{Domain: "https://acme.test", Verified: true}},
	}
	err = store.Insert(ctx, claimant)
	require.ErrorIs(t, err, sentinel.ErrConflict)

	// An unverified claim on the same domain is allowed.
	pending := &models.Organization{
		Name:    "Pending",
		Domains: []models.Domain{{Domain: "https://acme.test", Verified: false}},
	}
	require.NoError(t, store.Insert(ctx, pending))
}

func TestMembershipCounts(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	shared := uuid.New()
	only := uuid.New()
	nowhere := uuid.New()

	require.NoError(t, store.Insert(ctx, &models.Organization{
		Name:    "A",
		Members: []models.MemberRef{{UserID: shared, Verified: true}, {UserID: only, Verified: false}},
	}))
	require.NoError(t, store.Insert(ctx, &models.Organization{
		Name:    "B",
		Members: []models.MemberRef{{UserID: shared, Verified: true}},
	}))

	counts, err := store.MembershipCounts(ctx, []uuid.UUID{shared, only, nowhere})
	require.NoError(t, err)
	assert.Equal(t, 2, counts[shared])
	assert.Equal(t, 1, counts[only])
	assert.Equal(t, 0, counts[nowhere])
}

func TestSetMembersVerifiedAcrossOrganizations(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	userID := uuid.New()
	a := &models.Organization{Name: "A", Members: []models.MemberRef{{UserID: userID}}}
	b := &models.Organization{Name: "B", Members: []models.MemberRef{{UserID: userID}}}
	require.NoError(t, store.Insert(ctx, a))
	require.NoError(t, store.Insert(ctx, b))

	require.NoError(t, store.SetMembersVerified(ctx, []uuid.UUID{userID}))

	for _, id := range []uuid.UUID{a.ID, b.ID} {
		got, err := store.Get(ctx, id)
		require.NoError(t, err)
		require.Len(t, got.Members, 1)
		assert.True(t, got.Members[0].Verified)
	}
}
