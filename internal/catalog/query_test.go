package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zerohunger/foodbridge/internal/storage"
)

// stubReadRepository implements storage.ListingReadRepository in memory.
type stubReadRepository struct {
	listings []storage.Listing
	err      error
}

func (s *stubReadRepository) GetListing(_ context.Context, id string) (*storage.Listing, error) {
	if s.err != nil {
		return nil, s.err
	}

	for i := range s.listings {
		if s.listings[i].ID == id {
			return &s.listings[i], nil
		}
	}

	return nil, storage.ErrListingNotFound
}

func (s *stubReadRepository) ListByStatus(_ context.Context, status storage.Status) ([]storage.Listing, error) {
	return s.filter(func(l storage.Listing) bool { return l.Status == status })
}

func (s *stubReadRepository) ListByOwner(_ context.Context, ownerID string) ([]storage.Listing, error) {
	return s.filter(func(l storage.Listing) bool { return l.OwnerID == ownerID })
}

func (s *stubReadRepository) ListByClaimant(_ context.Context, claimantID string) ([]storage.Listing, error) {
	return s.filter(func(l storage.Listing) bool { return l.ClaimantID == claimantID })
}

func (s *stubReadRepository) filter(keep func(storage.Listing) bool) ([]storage.Listing, error) {
	if s.err != nil {
		return nil, s.err
	}

	matched := []storage.Listing{}

	for _, l := range s.listings {
		if keep(l) {
			matched = append(matched, l)
		}
	}

	return matched, nil
}

func TestListAvailable(t *testing.T) {
	repo := &stubReadRepository{listings: []storage.Listing{
		{ID: "l1", Status: storage.StatusAvailable, OwnerID: "donor-a"},
		{ID: "l2", Status: storage.StatusClaimed, OwnerID: "donor-a", ClaimantID: "receiver-1"},
		{ID: "l3", Status: storage.StatusAvailable, OwnerID: "donor-b"},
	}}
	svc := NewQueryService(repo)

	available, err := svc.ListAvailable(context.Background())
	require.NoError(t, err)
	require.Len(t, available, 2)

	for _, l := range available {
		require.Equal(t, storage.StatusAvailable, l.Status)
	}
}

func TestListFiltersByCaller(t *testing.T) {
	repo := &stubReadRepository{listings: []storage.Listing{
		{ID: "l1", Status: storage.StatusAvailable, OwnerID: "donor-a"},
		{ID: "l2", Status: storage.StatusClaimed, OwnerID: "donor-a", ClaimantID: "receiver-1"},
	}}
	svc := NewQueryService(repo)
	ctx := context.Background()

	byOwner, err := svc.ListByOwner(ctx, "donor-a")
	require.NoError(t, err)
	require.Len(t, byOwner, 2)

	byClaimant, err := svc.ListByClaimant(ctx, "receiver-1")
	require.NoError(t, err)
	require.Len(t, byClaimant, 1)
	require.Equal(t, "l2", byClaimant[0].ID)
}

func TestEmptyResultIsNotAnError(t *testing.T) {
	svc := NewQueryService(&stubReadRepository{})
	ctx := context.Background()

	available, err := svc.ListAvailable(ctx)
	require.NoError(t, err)
	require.Empty(t, available)

	byOwner, err := svc.ListByOwner(ctx, "nobody")
	require.NoError(t, err)
	require.Empty(t, byOwner)
}

func TestRepositoryErrorsPropagate(t *testing.T) {
	repoErr := errors.New("disk on fire")
	svc := NewQueryService(&stubReadRepository{err: repoErr})

	_, err := svc.ListAvailable(context.Background())
	require.ErrorIs(t, err, repoErr)
}

func TestExpiresIn(t *testing.T) {
	require.Empty(t, ExpiresIn(&storage.Listing{}))

	withExpiry := &storage.Listing{Expiry: time.Now().Add(48 * time.Hour)}
	require.NotEmpty(t, ExpiresIn(withExpiry))
}

func TestIsExpired(t *testing.T) {
	now := time.Now()

	require.False(t, IsExpired(&storage.Listing{}, now), "missing expiry never expires")
	require.False(t, IsExpired(&storage.Listing{Expiry: now.Add(time.Hour)}, now))
	require.True(t, IsExpired(&storage.Listing{Expiry: now.Add(-time.Hour)}, now))
}
