package booking_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zerohunger/foodbridge/internal/booking"
	"github.com/zerohunger/foodbridge/internal/storage"
	"github.com/zerohunger/foodbridge/internal/storage/sqlite"
	"golang.org/x/sync/errgroup"
)

func newTestRepo(t *testing.T) (*sqlite.ListingWriteRepository, *sqlite.ListingReadRepository) {
	t.Helper()

	db, err := sqlite.InitDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })

	// A single writer connection keeps 50-way claim races on the file-backed
	// test database from exhausting the busy timeout.
	db.SetMaxOpenConns(1)

	return sqlite.NewListingWriteRepository(db), sqlite.NewListingReadRepository(db)
}

func createTestListing(t *testing.T, writes *sqlite.ListingWriteRepository) *storage.Listing {
	t.Helper()

	created, err := writes.CreateListing(context.Background(), &storage.Listing{
		OwnerID:  "donor-1",
		Title:    "Cooked meals",
		Quantity: "5",
		Location: "Queens, NY",
	})
	require.NoError(t, err)

	return created
}

func TestClaimSuccessThenConflict(t *testing.T) {
	writes, reads := newTestRepo(t)
	coordinator := booking.NewCoordinator(writes, nil)
	ctx := context.Background()

	listing := createTestListing(t, writes)

	claimed, err := coordinator.Claim(ctx, listing.ID, "userA")
	require.NoError(t, err)
	require.Equal(t, storage.StatusClaimed, claimed.Status)
	require.Equal(t, "userA", claimed.ClaimantID)
	require.NotNil(t, claimed.ClaimedAt)

	_, err = coordinator.Claim(ctx, listing.ID, "userB")

	var conflictErr *booking.ConflictError
	require.ErrorAs(t, err, &conflictErr)
	require.Equal(t, "already claimed", conflictErr.Reason)

	got, err := reads.GetListing(ctx, listing.ID)
	require.NoError(t, err)
	require.Equal(t, "userA", got.ClaimantID)
}

func TestClaimNotFound(t *testing.T) {
	writes, _ := newTestRepo(t)
	coordinator := booking.NewCoordinator(writes, nil)

	_, err := coordinator.Claim(context.Background(), "nonexistent-id", "userA")

	var notFoundErr *booking.NotFoundError
	require.ErrorAs(t, err, &notFoundErr)
	require.Equal(t, "nonexistent-id", notFoundErr.ListingID)
}

func TestClaimNeverReverts(t *testing.T) {
	writes, _ := newTestRepo(t)
	coordinator := booking.NewCoordinator(writes, nil)
	ctx := context.Background()

	listing := createTestListing(t, writes)

	_, err := coordinator.Claim(ctx, listing.ID, "userA")
	require.NoError(t, err)

	// Every later claim loses, including the original winner re-claiming.
	for _, claimant := range []string{"userB", "userC", "userA"} {
		_, err := coordinator.Claim(ctx, listing.ID, claimant)

		var conflictErr *booking.ConflictError
		require.ErrorAs(t, err, &conflictErr, "claimant %s must get a conflict", claimant)
	}
}

func TestClaimValidation(t *testing.T) {
	tests := []struct {
		name       string
		listingID  string
		claimantID string
		wantField  string
	}{
		{
			name:       "empty listing id",
			listingID:  "",
			claimantID: "userA",
			wantField:  "listing_id",
		},
		{
			name:       "empty claimant id",
			listingID:  "some-listing",
			claimantID: "",
			wantField:  "claimant_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &recordingTransactor{}
			coordinator := booking.NewCoordinator(store, nil)

			_, err := coordinator.Claim(context.Background(), tt.listingID, tt.claimantID)

			var invalidErr *booking.InvalidInputError
			require.ErrorAs(t, err, &invalidErr)
			require.Equal(t, tt.wantField, invalidErr.Field)
			require.Zero(t, store.calls, "the store must not be touched on invalid input")
		})
	}
}

func TestClaimStoreUnavailable(t *testing.T) {
	store := &recordingTransactor{err: fmt.Errorf("retries exhausted: %w", storage.ErrStoreUnavailable)}
	coordinator := booking.NewCoordinator(store, nil)

	_, err := coordinator.Claim(context.Background(), "some-listing", "userA")

	var unavailableErr *booking.UnavailableError
	require.ErrorAs(t, err, &unavailableErr)
	require.ErrorIs(t, err, storage.ErrStoreUnavailable)
}

func TestConcurrentClaimsExactlyOneWinner(t *testing.T) {
	const claimants = 50

	writes, reads := newTestRepo(t)
	coordinator := booking.NewCoordinator(writes, nil)
	ctx := context.Background()

	listing := createTestListing(t, writes)

	var (
		mu        sync.Mutex
		winners   []string
		conflicts int
	)

	start := make(chan struct{})

	var wg errgroup.Group

	for i := 0; i < claimants; i++ {
		claimantID := fmt.Sprintf("user-%02d", i)

		wg.Go(func() error {
			<-start

			claimed, err := coordinator.Claim(ctx, listing.ID, claimantID)

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err == nil:
				require.Equal(t, claimantID, claimed.ClaimantID)
				winners = append(winners, claimantID)
			case isConflict(err):
				conflicts++
			default:
				return fmt.Errorf("claimant %s: unexpected error: %w", claimantID, err)
			}

			return nil
		})
	}

	close(start)
	require.NoError(t, wg.Wait())

	require.Len(t, winners, 1, "exactly one claim must win")
	require.Equal(t, claimants-1, conflicts, "every other claim must lose with a conflict")

	got, err := reads.GetListing(ctx, listing.ID)
	require.NoError(t, err)
	require.Equal(t, storage.StatusClaimed, got.Status)
	require.Equal(t, winners[0], got.ClaimantID)
	require.NotNil(t, got.ClaimedAt)
}

func TestClaimedFieldsMoveTogether(t *testing.T) {
	writes, reads := newTestRepo(t)
	coordinator := booking.NewCoordinator(writes, nil)
	ctx := context.Background()

	listing := createTestListing(t, writes)

	before, err := reads.GetListing(ctx, listing.ID)
	require.NoError(t, err)
	require.Equal(t, storage.StatusAvailable, before.Status)
	require.Empty(t, before.ClaimantID)
	require.Nil(t, before.ClaimedAt)

	_, err = coordinator.Claim(ctx, listing.ID, "userA")
	require.NoError(t, err)

	after, err := reads.GetListing(ctx, listing.ID)
	require.NoError(t, err)
	require.Equal(t, storage.StatusClaimed, after.Status)
	require.Equal(t, "userA", after.ClaimantID)
	require.NotNil(t, after.ClaimedAt)
	require.WithinDuration(t, time.Now(), *after.ClaimedAt, time.Minute)
}

func isConflict(err error) bool {
	var conflictErr *booking.ConflictError

	return errors.As(err, &conflictErr)
}

// recordingTransactor counts Transact calls and fails with a canned error.
type recordingTransactor struct {
	calls int
	err   error
}

func (s *recordingTransactor) Transact(_ context.Context, _ string, fn storage.TxFunc) error {
	s.calls++

	if s.err != nil {
		return s.err
	}

	_, err := fn(&storage.Listing{ID: "some-listing", Status: storage.StatusAvailable})

	return err
}
