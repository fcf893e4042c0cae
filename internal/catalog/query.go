package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/zerohunger/foodbridge/internal/storage"
)

// QueryService provides read-only filtered views over listings. It holds no
// state beyond the injected repository; every call re-runs its query, so a
// sequence can be re-fetched at any time. An empty result is an empty slice,
// never an error.
type QueryService struct {
	repo storage.ListingReadRepository
}

func NewQueryService(repo storage.ListingReadRepository) *QueryService {
	return &QueryService{repo: repo}
}

// Get returns a single listing by id.
func (s *QueryService) Get(ctx context.Context, id string) (*storage.Listing, error) {
	return s.repo.GetListing(ctx, id)
}

// ListAvailable returns listings still open to claims.
func (s *QueryService) ListAvailable(ctx context.Context) ([]storage.Listing, error) {
	listings, err := s.repo.ListByStatus(ctx, storage.StatusAvailable)
	if err != nil {
		return nil, fmt.Errorf("failed to list available listings: %w", err)
	}

	return listings, nil
}

// ListByStatus returns listings in the given state.
func (s *QueryService) ListByStatus(ctx context.Context, status storage.Status) ([]storage.Listing, error) {
	listings, err := s.repo.ListByStatus(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list listings by status: %w", err)
	}

	return listings, nil
}

// ListByOwner returns the donor's own listings.
func (s *QueryService) ListByOwner(ctx context.Context, ownerID string) ([]storage.Listing, error) {
	listings, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list listings by owner: %w", err)
	}

	return listings, nil
}

// ListByClaimant returns the listings a receiver has claimed.
func (s *QueryService) ListByClaimant(ctx context.Context, claimantID string) ([]storage.Listing, error) {
	listings, err := s.repo.ListByClaimant(ctx, claimantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list listings by claimant: %w", err)
	}

	return listings, nil
}

// ExpiresIn renders the listing expiry relative to now ("2 days from now").
// Returns an empty string when no expiry was provided.
func ExpiresIn(l *storage.Listing) string {
	if l.Expiry.IsZero() {
		return ""
	}

	return humanize.Time(l.Expiry)
}

// IsExpired reports whether the listing's expiry has passed. Expiry sweeping
// is out of scope; this only informs presentation.
func IsExpired(l *storage.Listing, now time.Time) bool {
	return !l.Expiry.IsZero() && l.Expiry.Before(now)
}
