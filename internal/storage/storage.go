package storage

import (
	"context"
	"errors"
	"time"
)

// Status is the lifecycle state of a listing. A listing starts available and
// transitions to claimed at most once; there is no path back.
type Status string

const (
	StatusAvailable Status = "available"
	StatusClaimed   Status = "claimed"
)

// Listing is the stored record of a published food donation.
type Listing struct {
	ID         string
	OwnerID    string
	Title      string
	Quantity   string
	Location   string
	Latitude   float64
	Longitude  float64
	Expiry     time.Time
	Category   string
	ImageURL   string
	OrgName    string
	DonorType  string
	Status     Status
	ClaimantID string
	CreatedAt  time.Time
	ClaimedAt  *time.Time
}

var (
	// ErrListingNotFound is returned when the referenced listing does not exist.
	ErrListingNotFound = errors.New("listing not found")

	// ErrTxConflict is returned by a single transaction attempt when another
	// transaction committed a conflicting write to the same record after the
	// snapshot was taken. Transact retries these internally.
	ErrTxConflict = errors.New("transaction conflict")

	// ErrStoreUnavailable is returned when the store cannot serve the request:
	// connection failures, busy database, or retry budget exhaustion.
	ErrStoreUnavailable = errors.New("storage unavailable")
)

// TxFunc runs inside a Transact call with a snapshot of the current record.
// It returns the updated record to commit, or nil for a read-only transaction.
type TxFunc func(snapshot *Listing) (*Listing, error)

// ListingReadRepository provides read-only access to listings.
type ListingReadRepository interface {
	GetListing(ctx context.Context, id string) (*Listing, error)
	ListByStatus(ctx context.Context, status Status) ([]Listing, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Listing, error)
	ListByClaimant(ctx context.Context, claimantID string) ([]Listing, error)
}

// ListingWriteRepository provides the mutation paths into the store. Transact
// is the only way to modify an existing listing.
type ListingWriteRepository interface {
	CreateListing(ctx context.Context, l *Listing) (*Listing, error)
	Transact(ctx context.Context, id string, fn TxFunc) error
}
