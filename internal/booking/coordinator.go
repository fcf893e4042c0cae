package booking

import (
	"context"
	"errors"
	"time"

	"github.com/zerohunger/foodbridge/internal/logctx"
	"github.com/zerohunger/foodbridge/internal/storage"
	"github.com/zerohunger/foodbridge/internal/telemetry"
)

// Transactor is the isolated read-modify-write primitive of the listing
// store. It is the only mutation path the coordinator uses.
type Transactor interface {
	Transact(ctx context.Context, id string, fn storage.TxFunc) error
}

// Coordinator executes the atomic claim protocol. It is stateless and
// reentrant; any number of Claim calls may run concurrently and all
// serialization happens inside the store's Transact primitive.
type Coordinator struct {
	store     Transactor
	telemetry *telemetry.Telemetry
	now       func() time.Time
}

// NewCoordinator creates a claim coordinator on top of the given store.
func NewCoordinator(store Transactor, tel *telemetry.Telemetry) *Coordinator {
	return &Coordinator{
		store:     store,
		telemetry: tel,
		now:       time.Now,
	}
}

// Claim atomically transitions the listing from available to claimed on
// behalf of claimantID. Exactly one of N concurrent calls on the same
// listing succeeds; the rest get *ConflictError. A missing listing yields
// *NotFoundError, infrastructure failure *UnavailableError.
//
// On success the returned listing carries the committed claim fields.
func (c *Coordinator) Claim(ctx context.Context, listingID, claimantID string) (*storage.Listing, error) {
	start := time.Now()

	if listingID == "" {
		c.record("invalid_input", start)

		return nil, &InvalidInputError{Field: "listing_id", Reason: "must not be empty"}
	}

	if claimantID == "" {
		c.record("invalid_input", start)

		return nil, &InvalidInputError{Field: "claimant_id", Reason: "must not be empty"}
	}

	logger := logctx.LoggerFromContext(ctx).With("listing_id", listingID)

	var claimed *storage.Listing

	err := c.store.Transact(ctx, listingID, func(snapshot *storage.Listing) (*storage.Listing, error) {
		if snapshot.Status != storage.StatusAvailable {
			return nil, &ConflictError{ListingID: listingID, Reason: "already claimed"}
		}

		// Status, claimant and timestamp move as one unit; no partial state
		// is ever committed.
		next := *snapshot
		next.Status = storage.StatusClaimed
		next.ClaimantID = claimantID
		claimedAt := c.now().UTC()
		next.ClaimedAt = &claimedAt

		claimed = &next

		return &next, nil
	})

	switch {
	case err == nil:
		logger.InfoContext(ctx, "listing claimed", "claimed_at", claimed.ClaimedAt)
		c.record("success", start)

		return claimed, nil
	case errors.Is(err, storage.ErrListingNotFound):
		c.record("not_found", start)

		return nil, &NotFoundError{ListingID: listingID}
	case isConflict(err):
		logger.DebugContext(ctx, "claim lost", "err", err)
		c.record("conflict", start)

		return nil, err
	default:
		logger.ErrorContext(ctx, "claim failed", "err", err)
		c.record("unavailable", start)

		return nil, &UnavailableError{Op: "claim", Err: err}
	}
}

func (c *Coordinator) record(outcome string, start time.Time) {
	if c.telemetry != nil {
		c.telemetry.RecordClaim(outcome, time.Since(start))
	}
}

func isConflict(err error) bool {
	var conflictErr *ConflictError

	return errors.As(err, &conflictErr)
}
