package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/zerohunger/foodbridge/internal/storage"
)

const listingColumns = `id, owner_id, title, quantity, location, latitude, longitude,
	expiry, category, image_url, org_name, donor_type, status, claimant_id, created_at, claimed_at`

// ListingReadRepository implements storage.ListingReadRepository on SQLite.
type ListingReadRepository struct {
	db *sql.DB
}

func NewListingReadRepository(dbConn *sql.DB) *ListingReadRepository {
	return &ListingReadRepository{db: dbConn}
}

func (r *ListingReadRepository) GetListing(ctx context.Context, id string) (*storage.Listing, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = ?`, id)

	l, err := scanListing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrListingNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}

	return l, nil
}

func (r *ListingReadRepository) ListByStatus(ctx context.Context, status storage.Status) ([]storage.Listing, error) {
	return r.listWhere(ctx, `status = ?`, string(status))
}

func (r *ListingReadRepository) ListByOwner(ctx context.Context, ownerID string) ([]storage.Listing, error) {
	return r.listWhere(ctx, `owner_id = ?`, ownerID)
}

func (r *ListingReadRepository) ListByClaimant(ctx context.Context, claimantID string) ([]storage.Listing, error) {
	return r.listWhere(ctx, `claimant_id = ?`, claimantID)
}

// listWhere runs a single-condition filtered query. An empty result is a valid
// empty slice, not an error.
func (r *ListingReadRepository) listWhere(ctx context.Context, cond string, arg any) ([]storage.Listing, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE `+cond+` ORDER BY created_at DESC`, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query listings: %w", err)
	}
	defer rows.Close()

	listings := []storage.Listing{}

	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}

		listings = append(listings, *l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate listings: %w", err)
	}

	return listings, nil
}

// scannable covers both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

func scanListing(row scannable) (*storage.Listing, error) {
	var l storage.Listing

	var (
		expiry     sql.NullTime
		claimantID sql.NullString
		claimedAt  sql.NullTime
	)

	err := row.Scan(
		&l.ID, &l.OwnerID, &l.Title, &l.Quantity, &l.Location,
		&l.Latitude, &l.Longitude, &expiry, &l.Category, &l.ImageURL,
		&l.OrgName, &l.DonorType, &l.Status, &claimantID, &l.CreatedAt, &claimedAt,
	)
	if err != nil {
		return nil, err
	}

	if expiry.Valid {
		l.Expiry = expiry.Time
	}

	if claimantID.Valid {
		l.ClaimantID = claimantID.String
	}

	if claimedAt.Valid {
		t := claimedAt.Time
		l.ClaimedAt = &t
	}

	return &l, nil
}
