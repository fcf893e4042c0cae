package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/zerohunger/foodbridge/internal/storage"
)

const defaultTxRetries = 5

// retryBackoff spaces out transaction retries under conflict storms.
const retryBackoff = 10 * time.Millisecond

// ListingWriteRepository implements storage.ListingWriteRepository on SQLite.
// Transact is the sole mutation path for existing records: it snapshots the
// row inside a transaction and commits the update only if no conflicting
// write landed in between.
type ListingWriteRepository struct {
	db         *sql.DB
	maxRetries int
}

func NewListingWriteRepository(dbConn *sql.DB) *ListingWriteRepository {
	return &ListingWriteRepository{db: dbConn, maxRetries: defaultTxRetries}
}

// NewListingWriteRepositoryWithRetries overrides the transaction retry budget.
func NewListingWriteRepositoryWithRetries(dbConn *sql.DB, maxRetries int) *ListingWriteRepository {
	if maxRetries < 0 {
		maxRetries = 0
	}

	return &ListingWriteRepository{db: dbConn, maxRetries: maxRetries}
}

// CreateListing persists a new listing. The store assigns the id and forces
// the record into the available state regardless of what the caller set.
func (r *ListingWriteRepository) CreateListing(ctx context.Context, l *storage.Listing) (*storage.Listing, error) {
	created := *l
	created.ID = uuid.NewString()
	created.Status = storage.StatusAvailable
	created.ClaimantID = ""
	created.ClaimedAt = nil

	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO listings (id, owner_id, title, quantity, location, latitude, longitude,
			expiry, category, image_url, org_name, donor_type, status, claimant_id, created_at, claimed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, NULL)`,
		created.ID, created.OwnerID, created.Title, created.Quantity, created.Location,
		created.Latitude, created.Longitude, nullableTime(created.Expiry), created.Category,
		created.ImageURL, created.OrgName, created.DonorType, created.Status, created.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create listing: %w", wrapUnavailable(err))
	}

	return &created, nil
}

// Transact runs fn against a snapshot of the listing inside a transaction.
// When fn returns an updated record, the write commits only if the row's
// status still matches the snapshot; a lost race surfaces internally as
// storage.ErrTxConflict and the whole transaction is retried up to the
// budget. Exhaustion and context expiry surface as storage.ErrStoreUnavailable.
func (r *ListingWriteRepository) Transact(ctx context.Context, id string, fn storage.TxFunc) error {
	var lastErr error

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("transaction abandoned: %w (%w)", storage.ErrStoreUnavailable, err)
		}

		err := r.transactOnce(ctx, id, fn)
		if err == nil || !isRetryable(err) {
			return err
		}

		lastErr = err

		select {
		case <-ctx.Done():
			return fmt.Errorf("transaction abandoned: %w (%w)", storage.ErrStoreUnavailable, ctx.Err())
		case <-time.After(retryBackoff):
		}
	}

	return fmt.Errorf("transaction retries exhausted: %w (%w)", storage.ErrStoreUnavailable, lastErr)
}

func (r *ListingWriteRepository) transactOnce(ctx context.Context, id string, fn storage.TxFunc) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", wrapUnavailable(err))
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	row := tx.QueryRowContext(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = ?`, id)

	snapshot, err := scanListing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrListingNotFound
	}

	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", wrapUnavailable(err))
	}

	updated, err := fn(snapshot)
	if err != nil {
		return err
	}

	if updated == nil {
		// Read-only transaction, nothing to commit.
		return nil
	}

	// The status guard makes the write conditional on the snapshot still being
	// current. Descriptive fields are immutable, so only the claim unit moves.
	res, err := tx.ExecContext(ctx,
		`UPDATE listings SET status = ?, claimant_id = ?, claimed_at = ? WHERE id = ? AND status = ?`,
		updated.Status, nullableString(updated.ClaimantID), nullableTimePtr(updated.ClaimedAt),
		id, snapshot.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to write listing: %w", wrapUnavailable(err))
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check write result: %w", wrapUnavailable(err))
	}

	if affected == 0 {
		return storage.ErrTxConflict
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", wrapUnavailable(err))
	}

	return nil
}

// isRetryable reports whether a fresh attempt could still succeed: a lost
// snapshot race or a momentarily locked database.
func isRetryable(err error) bool {
	if errors.Is(err, storage.ErrTxConflict) {
		return true
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}

	return false
}

// wrapUnavailable tags infrastructure failures so callers can distinguish
// them from domain outcomes. Retryable errors stay unwrapped until the
// retry budget runs out.
func wrapUnavailable(err error) error {
	if isRetryable(err) {
		return err
	}

	return fmt.Errorf("%w: %w", storage.ErrStoreUnavailable, err)
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}

	return t
}

func nullableTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}

	return *t
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}

	return s
}
