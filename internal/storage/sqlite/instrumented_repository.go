package sqlite

import (
	"context"
	"database/sql"

	"github.com/zerohunger/foodbridge/internal/storage"
	"github.com/zerohunger/foodbridge/internal/telemetry"
)

// InstrumentedListingRepository wraps the read and write repositories with
// telemetry. It satisfies both storage.ListingReadRepository and
// storage.ListingWriteRepository.
type InstrumentedListingRepository struct {
	reads     *ListingReadRepository
	writes    *ListingWriteRepository
	telemetry *telemetry.Telemetry
}

// NewInstrumentedListingRepository creates a new instrumented listing repository.
func NewInstrumentedListingRepository(dbConn *sql.DB, tel *telemetry.Telemetry) *InstrumentedListingRepository {
	return &InstrumentedListingRepository{
		reads:     NewListingReadRepository(dbConn),
		writes:    NewListingWriteRepository(dbConn),
		telemetry: tel,
	}
}

// NewInstrumentedListingRepositoryWithRetries overrides the transaction retry
// budget of the underlying write repository.
func NewInstrumentedListingRepositoryWithRetries(dbConn *sql.DB, maxRetries int, tel *telemetry.Telemetry) *InstrumentedListingRepository {
	return &InstrumentedListingRepository{
		reads:     NewListingReadRepository(dbConn),
		writes:    NewListingWriteRepositoryWithRetries(dbConn, maxRetries),
		telemetry: tel,
	}
}

func (r *InstrumentedListingRepository) GetListing(ctx context.Context, id string) (*storage.Listing, error) {
	var result *storage.Listing

	err := r.telemetry.InstrumentDBOperation(ctx, "get_listing", func(ctx context.Context) error {
		var err error
		result, err = r.reads.GetListing(ctx, id)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (r *InstrumentedListingRepository) ListByStatus(ctx context.Context, status storage.Status) ([]storage.Listing, error) {
	return r.instrumentList(ctx, "list_by_status", func(ctx context.Context) ([]storage.Listing, error) {
		return r.reads.ListByStatus(ctx, status)
	})
}

func (r *InstrumentedListingRepository) ListByOwner(ctx context.Context, ownerID string) ([]storage.Listing, error) {
	return r.instrumentList(ctx, "list_by_owner", func(ctx context.Context) ([]storage.Listing, error) {
		return r.reads.ListByOwner(ctx, ownerID)
	})
}

func (r *InstrumentedListingRepository) ListByClaimant(ctx context.Context, claimantID string) ([]storage.Listing, error) {
	return r.instrumentList(ctx, "list_by_claimant", func(ctx context.Context) ([]storage.Listing, error) {
		return r.reads.ListByClaimant(ctx, claimantID)
	})
}

func (r *InstrumentedListingRepository) CreateListing(ctx context.Context, l *storage.Listing) (*storage.Listing, error) {
	var result *storage.Listing

	err := r.telemetry.InstrumentDBOperation(ctx, "create_listing", func(ctx context.Context) error {
		var err error
		result, err = r.writes.CreateListing(ctx, l)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (r *InstrumentedListingRepository) Transact(ctx context.Context, id string, fn storage.TxFunc) error {
	return r.telemetry.InstrumentDBOperation(ctx, "transact_listing", func(ctx context.Context) error {
		return r.writes.Transact(ctx, id, fn)
	})
}

func (r *InstrumentedListingRepository) instrumentList(
	ctx context.Context,
	operation string,
	fn func(ctx context.Context) ([]storage.Listing, error),
) ([]storage.Listing, error) {
	var result []storage.Listing

	err := r.telemetry.InstrumentDBOperation(ctx, operation, func(ctx context.Context) error {
		var err error
		result, err = fn(ctx)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}
