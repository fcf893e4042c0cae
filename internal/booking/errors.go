package booking

import "fmt"

// NotFoundError indicates the referenced listing does not exist.
type NotFoundError struct {
	ListingID string // The listing id the caller asked for
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("listing %s not found", e.ListingID)
}

// ConflictError indicates the claim precondition failed: the listing has
// already been claimed. Strict at-most-one-claim semantics apply, so the
// original winner re-claiming gets this too.
type ConflictError struct {
	ListingID string // The contested listing
	Reason    string // Human-readable explanation, e.g. "already claimed"
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("cannot claim listing %s: %s", e.ListingID, e.Reason)
}

// UnavailableError indicates the store or transaction infrastructure failed,
// including retry exhaustion under conflict storms. It is the only retryable
// outcome of a claim.
type UnavailableError struct {
	Op  string // The operation that failed (e.g. "claim")
	Err error  // Underlying error, if any
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s temporarily unavailable: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// InvalidInputError indicates a malformed identifier, caught before the store
// is touched.
type InvalidInputError struct {
	Field  string // The offending input field
	Reason string // Why it was rejected
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
