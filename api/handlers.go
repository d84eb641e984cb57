/*
handlers.go - HTTP API handlers for the renewal engine

PURPOSE:
  Exposes beneficiary balances and the catalog they are computed from
  via REST API. Handles HTTP request/response, JSON serialization, and
  delegates to the rights service and the ledger.

ENDPOINTS:
  Beneficiaries:
    GET    /api/users/{id}/rights/{rightID}/beneficiary?moment=  One balance
    GET    /api/users/{id}/beneficiaries?moment=                 All balances

  Users:
    POST   /api/users                  Create user
    GET    /api/users/{id}             Get user

  Rights:
    GET    /api/rights                 List rights
    POST   /api/rights                 Create right
    GET    /api/rights/{id}            Get right
    GET    /api/rights/{id}/renewals   List renewals, oldest first
    POST   /api/rights/{id}/renewals   Create renewal

  Accounts / Entries:
    POST   /api/accounts               Enroll a user on a right
    POST   /api/entries                Append a ledger entry

  Operations:
    POST   /api/admin/roll             Append missing renewals now
    GET    /api/scenarios              List demo scenarios
    GET    /api/scenarios/current      Loaded demo scenario
    POST   /api/scenarios/load         Reset and load a demo scenario

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic (rights service, ledger, store)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Record not found
  - 409: Duplicate idempotency key
  - 500: Internal errors

  A beneficiary with failed renewals is still a 200: the failures are
  listed in "errors" and "degraded" is true.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - scheduler.go: Manual renewal roll
  - scenarios.go: Demo data
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/warp/renewal-engine/generic"
	"github.com/warp/renewal-engine/rights"
	"github.com/warp/renewal-engine/scheduler"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  generic.Backend
	Ledger generic.Ledger
	Rights *rights.Service
	Roller *scheduler.RenewalRoller // nil disables POST /api/admin/roll
	Clock  generic.Clock
	Logger zerolog.Logger

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler over a storage backend.
func NewHandler(store generic.Backend, svc *rights.Service, clock generic.Clock, logger zerolog.Logger) *Handler {
	if clock == nil {
		clock = generic.RealClock{}
	}
	return &Handler{
		Store:  store,
		Ledger: generic.NewLedger(store),
		Rights: svc,
		Clock:  clock,
		Logger: logger.With().Str("component", "api").Logger(),
	}
}

// =============================================================================
// BENEFICIARY HANDLERS
// =============================================================================

// GetBeneficiary returns the balance of a user on one right.
// GET /api/users/{id}/rights/{rightID}/beneficiary?moment=YYYY-MM-DD
func (h *Handler) GetBeneficiary(w http.ResponseWriter, r *http.Request) {
	userID := generic.UserID(chi.URLParam(r, "id"))
	rightID := generic.RightID(chi.URLParam(r, "rightID"))

	moment, ok := h.moment(w, r)
	if !ok {
		return
	}

	snap, err := h.Rights.Beneficiary(r.Context(), userID, rightID, moment)
	if err != nil {
		h.writeDomainError(w, "Failed to compute beneficiary", err)
		return
	}
	writeJSON(w, http.StatusOK, ToBeneficiaryDTO(snap))
}

// ListBeneficiaries returns the balances of a user on every enrolled right.
// GET /api/users/{id}/beneficiaries?moment=YYYY-MM-DD
func (h *Handler) ListBeneficiaries(w http.ResponseWriter, r *http.Request) {
	userID := generic.UserID(chi.URLParam(r, "id"))

	moment, ok := h.moment(w, r)
	if !ok {
		return
	}

	snaps, err := h.Rights.Beneficiaries(r.Context(), userID, moment)
	if err != nil {
		h.writeDomainError(w, "Failed to compute beneficiaries", err)
		return
	}

	dtos := make([]BeneficiaryDTO, len(snaps))
	for i, s := range snaps {
		dtos[i] = ToBeneficiaryDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// moment reads the optional ?moment= parameter, today by default.
func (h *Handler) moment(w http.ResponseWriter, r *http.Request) (generic.TimePoint, bool) {
	raw := r.URL.Query().Get("moment")
	if raw == "" {
		return generic.FromTime(h.Clock.Now()), true
	}
	tp, err := generic.ParseTimePoint(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid moment format (use YYYY-MM-DD)", err)
		return generic.TimePoint{}, false
	}
	return tp, true
}

// =============================================================================
// USER HANDLERS
// =============================================================================

// CreateUser creates or updates a user.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}

	user := generic.User{ID: generic.UserID(req.ID), Name: req.Name, Email: req.Email}
	if err := h.Store.SaveUser(r.Context(), user); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create user", err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserDTO(user))
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.Store.GetUser(r.Context(), generic.UserID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, "Failed to get user", err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(user))
}

// =============================================================================
// RIGHT HANDLERS
// =============================================================================

func (h *Handler) ListRights(w http.ResponseWriter, r *http.Request) {
	list, err := h.Store.ListRights(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list rights", err)
		return
	}
	dtos := make([]RightDTO, len(list))
	for i, right := range list {
		dtos[i] = toRightDTO(right)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateRight creates or updates a right definition.
func (h *Handler) CreateRight(w http.ResponseWriter, r *http.Request) {
	var req CreateRightRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}
	unit := generic.Unit(req.Unit)
	if req.Unit == "" {
		unit = generic.UnitDays
	}
	if !unit.Valid() {
		writeError(w, http.StatusBadRequest, "unit must be days or hours", nil)
		return
	}
	if req.Quantity < 0 {
		writeError(w, http.StatusBadRequest, "quantity must not be negative", generic.ErrInvalidQuantity)
		return
	}

	right := generic.Right{
		ID:       generic.RightID(req.ID),
		Name:     req.Name,
		Quantity: decimal.NewFromFloat(req.Quantity),
		Unit:     unit,
	}
	if err := h.Store.SaveRight(r.Context(), right); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create right", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRightDTO(right))
}

func (h *Handler) GetRight(w http.ResponseWriter, r *http.Request) {
	right, err := h.Store.GetRight(r.Context(), generic.RightID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, "Failed to get right", err)
		return
	}
	writeJSON(w, http.StatusOK, toRightDTO(right))
}

// =============================================================================
// RENEWAL HANDLERS
// =============================================================================

func (h *Handler) ListRenewals(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rightID := generic.RightID(chi.URLParam(r, "id"))

	if _, err := h.Store.GetRight(ctx, rightID); err != nil {
		h.writeDomainError(w, "Failed to get right", err)
		return
	}
	list, err := h.Store.ListRenewals(ctx, rightID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list renewals", err)
		return
	}
	dtos := make([]RenewalDTO, len(list))
	for i, rn := range list {
		dtos[i] = toRenewalDTO(rn)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateRenewal adds a renewal to a right.
// POST /api/rights/{id}/renewals
func (h *Handler) CreateRenewal(w http.ResponseWriter, r *http.Request) {
	rightID := generic.RightID(chi.URLParam(r, "id"))

	var req CreateRenewalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	start, err := generic.ParseTimePoint(req.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start format (use YYYY-MM-DD)", err)
		return
	}
	finish, err := generic.ParseTimePoint(req.Finish)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid finish format (use YYYY-MM-DD)", err)
		return
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	renewal := generic.Renewal{ID: generic.RenewalID(id), RightID: rightID, Start: start, Finish: finish}

	if err := h.Store.SaveRenewal(r.Context(), renewal); err != nil {
		h.writeDomainError(w, "Failed to create renewal", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRenewalDTO(renewal))
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// CreateAccount enrolls a user on a right.
// POST /api/accounts
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	account := generic.Account{
		ID:      generic.AccountID(req.ID),
		UserID:  generic.UserID(req.UserID),
		RightID: generic.RightID(req.RightID),
	}
	if req.Arrival != "" {
		arrival, err := generic.ParseTimePoint(req.Arrival)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid arrival format (use YYYY-MM-DD)", err)
			return
		}
		account.Arrival = arrival
	}
	if account.ID == "" {
		account.ID = generic.AccountID(uuid.NewString())
	}

	if _, err := h.Store.GetUser(ctx, account.UserID); err != nil {
		h.writeDomainError(w, "Failed to get user", err)
		return
	}
	if _, err := h.Store.GetRight(ctx, account.RightID); err != nil {
		h.writeDomainError(w, "Failed to get right", err)
		return
	}

	if err := h.Store.SaveAccount(ctx, account); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create account", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountDTO(account))
}

// =============================================================================
// ENTRY HANDLERS
// =============================================================================

// CreateEntry appends a movement to the ledger.
// POST /api/entries
func (h *Handler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	effectiveAt, err := generic.ParseTimePoint(req.EffectiveAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid effective_at format (use YYYY-MM-DD)", err)
		return
	}

	renewal, err := h.Store.GetRenewal(ctx, generic.RenewalID(req.RenewalID))
	if err != nil {
		h.writeDomainError(w, "Failed to get renewal", err)
		return
	}
	if renewal.RightID != generic.RightID(req.RightID) {
		writeError(w, http.StatusBadRequest, "renewal does not belong to right", nil)
		return
	}
	if _, err := h.Store.GetUser(ctx, generic.UserID(req.UserID)); err != nil {
		h.writeDomainError(w, "Failed to get user", err)
		return
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	entry := generic.Entry{
		ID:             generic.EntryID(id),
		UserID:         generic.UserID(req.UserID),
		RightID:        renewal.RightID,
		RenewalID:      renewal.ID,
		EffectiveAt:    effectiveAt,
		Quantity:       decimal.NewFromFloat(req.Quantity),
		Type:           generic.EntryType(req.Type),
		ReferenceID:    req.ReferenceID,
		Reason:         req.Reason,
		IdempotencyKey: req.IdempotencyKey,
		CreatedBy:      "api",
		CreatedAt:      generic.FromTime(h.Clock.Now()),
	}

	if err := h.Ledger.Append(ctx, entry); err != nil {
		h.writeDomainError(w, "Failed to append entry", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryDTO(entry))
}

// =============================================================================
// HEALTH
// =============================================================================

type pinger interface {
	Ping(ctx context.Context) error
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.Store.(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Storage unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, HealthDTO{Status: "ok"})
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps engine errors to HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case generic.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, generic.ErrDuplicateIdempotencyKey):
		writeError(w, http.StatusConflict, message, err)
	case generic.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		h.Logger.Error().Err(err).Msg(message)
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
