package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/zerohunger/foodbridge/internal/booking"
	"github.com/zerohunger/foodbridge/internal/catalog"
	"github.com/zerohunger/foodbridge/internal/geo"
	"github.com/zerohunger/foodbridge/internal/logctx"
	"github.com/zerohunger/foodbridge/internal/storage"
	"github.com/zerohunger/foodbridge/internal/telemetry"
)

type ctxKey string

const userIDKey ctxKey = "user_id"

// UserIDHeader carries the verified caller identity. Authentication itself is
// an upstream concern; by the time a request reaches this service the header
// is trusted.
const UserIDHeader = "X-User-ID"

// ClaimService is the coordinator surface the handler depends on.
type ClaimService interface {
	Claim(ctx context.Context, listingID, claimantID string) (*storage.Listing, error)
}

// ListingQueries is the read-only surface the handler depends on.
type ListingQueries interface {
	ListAvailable(ctx context.Context) ([]storage.Listing, error)
	ListByOwner(ctx context.Context, ownerID string) ([]storage.Listing, error)
	ListByClaimant(ctx context.Context, claimantID string) ([]storage.Listing, error)
}

// ListingCreator persists new listings.
type ListingCreator interface {
	CreateListing(ctx context.Context, l *storage.Listing) (*storage.Listing, error)
}

// ListingHandler maps the external HTTP surface onto the coordinator, query
// service and store.
type ListingHandler struct {
	claims    ClaimService
	queries   ListingQueries
	creator   ListingCreator
	geocoder  geo.Geocoder
	validate  *validator.Validate
	telemetry *telemetry.Telemetry
}

// NewListingHandler creates a new listing handler.
func NewListingHandler(
	claims ClaimService,
	queries ListingQueries,
	creator ListingCreator,
	geocoder geo.Geocoder,
	tel *telemetry.Telemetry,
) *ListingHandler {
	return &ListingHandler{
		claims:    claims,
		queries:   queries,
		creator:   creator,
		geocoder:  geocoder,
		validate:  validator.New(),
		telemetry: tel,
	}
}

func (h *ListingHandler) Routes() http.Handler {
	r := chi.NewRouter()

	// Browsing available listings is open; everything that creates, claims or
	// reads caller-scoped data needs an identity.
	r.Get("/api/donations", h.HandleAvailable)

	r.Group(func(r chi.Router) {
		r.Use(h.identityMiddleware)

		r.Post("/api/bookings", h.HandleClaim)
		r.Get("/api/bookings/mine", h.HandleReceiverListings)
		r.Post("/api/donations", h.HandleCreate)
		r.Get("/api/donations/mine", h.HandleDonorListings)
	})

	return r
}

// identityMiddleware resolves the verified caller identity from the request.
func (h *ListingHandler) identityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(UserIDHeader)
		if userID == "" {
			writeMessage(w, http.StatusUnauthorized, "missing caller identity")

			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func callerID(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey).(string); ok {
		return id
	}

	return ""
}

type claimRequest struct {
	ListingID string `json:"listing_id" validate:"required"`
}

type createRequest struct {
	Title     string   `json:"title" validate:"required"`
	Quantity  string   `json:"quantity" validate:"required"`
	Location  string   `json:"location" validate:"required"`
	Expiry    string   `json:"expiry" validate:"omitempty"`
	Category  string   `json:"category"`
	ImageURL  string   `json:"image_url" validate:"omitempty,url"`
	OrgName   string   `json:"org_name"`
	DonorType string   `json:"donor_type"`
	Latitude  *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude *float64 `json:"longitude" validate:"omitempty,longitude"`
}

type listingResponse struct {
	ID         string     `json:"id"`
	OwnerID    string     `json:"owner_id"`
	Title      string     `json:"title"`
	Quantity   string     `json:"quantity"`
	Location   string     `json:"location"`
	Latitude   float64    `json:"latitude"`
	Longitude  float64    `json:"longitude"`
	Expiry     *time.Time `json:"expiry,omitempty"`
	ExpiresIn  string     `json:"expires_in,omitempty"`
	Category   string     `json:"category"`
	ImageURL   string     `json:"image_url,omitempty"`
	OrgName    string     `json:"org_name"`
	DonorType  string     `json:"donor_type"`
	Status     string     `json:"status"`
	ClaimantID string     `json:"claimant_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	ClaimedAt  *time.Time `json:"claimed_at,omitempty"`
}

type claimResponse struct {
	Message string          `json:"message"`
	Listing listingResponse `json:"listing"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// HandleClaim claims a listing for the caller.
func (h *ListingHandler) HandleClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logctx.LoggerFromContext(ctx)

	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")

		return
	}

	if err := h.validate.Struct(req); err != nil {
		writeMessage(w, http.StatusBadRequest, "listing_id is required")

		return
	}

	claimed, err := h.claims.Claim(ctx, req.ListingID, callerID(ctx))
	if err != nil {
		writeClaimError(w, err)

		return
	}

	logger.InfoContext(ctx, "booking successful", "listing_id", claimed.ID)

	writeJSON(w, http.StatusCreated, claimResponse{
		Message: "booking successful",
		Listing: toListingResponse(claimed),
	})
}

// HandleCreate publishes a new donation listing for the caller. Coordinates
// are resolved before the store is touched; explicit coordinates in the
// request skip geocoding.
func (h *ListingHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logctx.LoggerFromContext(ctx)

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")

		return
	}

	if err := h.validate.Struct(req); err != nil {
		writeMessage(w, http.StatusBadRequest, "please provide all required fields (title, quantity, location)")

		return
	}

	var expiry time.Time

	if req.Expiry != "" {
		parsed, err := time.Parse(time.RFC3339, req.Expiry)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "expiry must be an RFC 3339 timestamp")

			return
		}

		expiry = parsed
	}

	var coords geo.Coordinates

	if req.Latitude != nil && req.Longitude != nil {
		coords = geo.Coordinates{Latitude: *req.Latitude, Longitude: *req.Longitude}
	} else {
		resolved, err := h.geocoder.Resolve(ctx, req.Location)
		if err != nil {
			// The fallback decorator normally absorbs failures; reaching this
			// branch means the geocoder chain is wired without it.
			logger.ErrorContext(ctx, "failed to resolve location", "err", err)
			writeMessage(w, http.StatusServiceUnavailable, "could not resolve listing location")

			return
		}

		coords = resolved
	}

	listing := &storage.Listing{
		OwnerID:   callerID(ctx),
		Title:     req.Title,
		Quantity:  req.Quantity,
		Location:  req.Location,
		Latitude:  coords.Latitude,
		Longitude: coords.Longitude,
		Expiry:    expiry,
		Category:  defaultString(req.Category, "Veg"),
		ImageURL:  req.ImageURL,
		OrgName:   defaultString(req.OrgName, "Anonymous"),
		DonorType: defaultString(req.DonorType, "individual"),
	}

	created, err := h.creator.CreateListing(ctx, listing)
	if err != nil {
		logger.ErrorContext(ctx, "failed to create listing", "err", err)
		writeMessage(w, http.StatusServiceUnavailable, "error creating listing")

		return
	}

	if h.telemetry != nil {
		h.telemetry.RecordListingCreated(created.Category)
	}

	logger.InfoContext(ctx, "listing created", "listing_id", created.ID)

	writeJSON(w, http.StatusCreated, toListingResponse(created))
}

// HandleAvailable lists the listings still open to claims.
func (h *ListingHandler) HandleAvailable(w http.ResponseWriter, r *http.Request) {
	listings, err := h.queries.ListAvailable(r.Context())
	if err != nil {
		h.writeListError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, toListingResponses(listings))
}

// HandleDonorListings lists the caller's own listings.
func (h *ListingHandler) HandleDonorListings(w http.ResponseWriter, r *http.Request) {
	listings, err := h.queries.ListByOwner(r.Context(), callerID(r.Context()))
	if err != nil {
		h.writeListError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, toListingResponses(listings))
}

// HandleReceiverListings lists the listings the caller has claimed.
func (h *ListingHandler) HandleReceiverListings(w http.ResponseWriter, r *http.Request) {
	listings, err := h.queries.ListByClaimant(r.Context(), callerID(r.Context()))
	if err != nil {
		h.writeListError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, toListingResponses(listings))
}

func (h *ListingHandler) writeListError(w http.ResponseWriter, r *http.Request, err error) {
	logctx.LoggerFromContext(r.Context()).ErrorContext(r.Context(), "failed to fetch listings", "err", err)
	writeMessage(w, http.StatusServiceUnavailable, "error fetching listings")
}

// writeClaimError maps the coordinator's typed errors onto HTTP statuses. A
// losing claimant sees "already claimed", distinct from "not found".
func writeClaimError(w http.ResponseWriter, err error) {
	var notFoundErr *booking.NotFoundError
	if errors.As(err, &notFoundErr) {
		writeMessage(w, http.StatusNotFound, "listing not found")

		return
	}

	var conflictErr *booking.ConflictError
	if errors.As(err, &conflictErr) {
		writeMessage(w, http.StatusConflict, "listing already claimed")

		return
	}

	var invalidErr *booking.InvalidInputError
	if errors.As(err, &invalidErr) {
		writeMessage(w, http.StatusBadRequest, invalidErr.Error())

		return
	}

	var unavailableErr *booking.UnavailableError
	if errors.As(err, &unavailableErr) {
		writeMessage(w, http.StatusServiceUnavailable, "error processing booking, please retry")

		return
	}

	writeMessage(w, http.StatusInternalServerError, "error processing booking")
}

func toListingResponse(l *storage.Listing) listingResponse {
	resp := listingResponse{
		ID:         l.ID,
		OwnerID:    l.OwnerID,
		Title:      l.Title,
		Quantity:   l.Quantity,
		Location:   l.Location,
		Latitude:   l.Latitude,
		Longitude:  l.Longitude,
		ExpiresIn:  catalog.ExpiresIn(l),
		Category:   l.Category,
		ImageURL:   l.ImageURL,
		OrgName:    l.OrgName,
		DonorType:  l.DonorType,
		Status:     string(l.Status),
		ClaimantID: l.ClaimantID,
		CreatedAt:  l.CreatedAt,
		ClaimedAt:  l.ClaimedAt,
	}

	if !l.Expiry.IsZero() {
		expiry := l.Expiry
		resp.Expiry = &expiry
	}

	return resp
}

func toListingResponses(listings []storage.Listing) []listingResponse {
	responses := make([]listingResponse, len(listings))

	for i := range listings {
		responses[i] = toListingResponse(&listings[i])
	}

	return responses
}

func defaultString(s, fallback string) string {
	if s == "" {
		return fallback
	}

	return s
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, messageResponse{Message: message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	// Status is already written; an encode failure here has no recovery.
	_ = json.NewEncoder(w).Encode(body)
}
