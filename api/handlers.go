/*
handlers.go - HTTP API handlers for the casebook service

PURPOSE:
  Exposes profiles, authorizations, service entries and derived balances
  over REST. Handles HTTP request/response and JSON serialization, and
  delegates everything else to casebook.Service.

ENDPOINTS:
  Profiles:
    GET    /api/profiles                       List profiles
    POST   /api/profiles                       Create profile
    GET    /api/profiles/{id}                  Get profile
    PUT    /api/profiles/{id}                  Update profile details
    DELETE /api/profiles/{id}                  Delete profile (admin)
    POST   /api/profiles/{id}/migrate-legacy   Move legacy fields into history

  Authorizations:
    POST   /api/profiles/{id}/authorizations
    PUT    /api/profiles/{id}/authorizations/{authID}
    DELETE /api/profiles/{id}/authorizations/{authID}
    POST   /api/profiles/{id}/authorizations/{authID}/archive
    POST   /api/profiles/{id}/authorizations/{authID}/unarchive
    POST   /api/profiles/{id}/authorizations/{authID}/adjustments
    DELETE /api/profiles/{id}/authorizations/{authID}/adjustments/{adjID}

  Balances:
    GET    /api/profiles/{id}/balance?service_type=&as_of=
                                       Empty service_type resolves across all
                                       types; use /summary for per-type rows
    GET    /api/profiles/{id}/balance/stream   Server-sent events, one per change
    POST   /api/profiles/{id}/balance/preview  Candidate entry in body
    GET    /api/profiles/{id}/summary?as_of=
    GET    /api/profiles/{id}/audit

  Entries:
    GET    /api/entries?profile_id=
    POST   /api/entries
    DELETE /api/entries/{id}

  Scenarios (when enabled, see scenarios.go):
    GET    /api/scenarios
    GET    /api/scenarios/current
    POST   /api/scenarios/load                 Reset and load (admin)

ACCESS:
  Every /api request must carry X-User-Email accepted by the AccessPolicy.
  Deleting a profile additionally requires an admin.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 403: Caller not allowed
  - 404: Resource not found
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo data loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/warp/casebook/casebook"
	"github.com/warp/casebook/units"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// AccessPolicy decides who may use the API.
type AccessPolicy interface {
	IsAllowed(email string) bool
	IsAdmin(email string) bool
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *casebook.Service
	Access  AccessPolicy
	Log     zerolog.Logger

	resetter        Resetter
	scenarioMu      sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler. A nil access policy allows everyone and
// treats nobody as admin.
func NewHandler(svc *casebook.Service, access AccessPolicy, log zerolog.Logger) *Handler {
	return &Handler{Service: svc, Access: access, Log: log}
}

// =============================================================================
// PROFILE HANDLERS
// =============================================================================

// ListProfiles returns all profiles.
func (h *Handler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.Service.ListProfiles(r.Context())
	if err != nil {
		h.handleError(w, r, "Failed to list profiles", err)
		return
	}

	dtos := make([]ProfileDTO, len(profiles))
	for i, p := range profiles {
		dtos[i] = toProfileDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateProfile creates a new profile.
func (h *Handler) CreateProfile(w http.ResponseWriter, r *http.Request) {
	var req ProfileRequest
	if !decode(w, r, &req) {
		return
	}

	p, err := h.Service.SaveProfile(r.Context(), req.toProfile(""))
	if err != nil {
		h.handleError(w, r, "Failed to create profile", err)
		return
	}
	writeJSON(w, http.StatusCreated, toProfileDTO(p))
}

// GetProfile returns one profile.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.Service.GetProfile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleError(w, r, "Failed to get profile", err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileDTO(p))
}

// UpdateProfile replaces a profile's details, keeping its history.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.Service.GetProfile(r.Context(), id); err != nil {
		h.handleError(w, r, "Failed to update profile", err)
		return
	}

	var req ProfileRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := h.Service.SaveProfile(r.Context(), req.toProfile(id))
	if err != nil {
		h.handleError(w, r, "Failed to update profile", err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileDTO(p))
}

// DeleteProfile removes a profile. Admins only.
func (h *Handler) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	if h.Access == nil || !h.Access.IsAdmin(r.Header.Get(UserHeader)) {
		writeError(w, http.StatusForbidden, "Only admins can delete profiles", nil)
		return
	}
	if err := h.Service.DeleteProfile(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.handleError(w, r, "Failed to delete profile", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MigrateLegacy moves a profile's legacy authorization fields into history.
func (h *Handler) MigrateLegacy(w http.ResponseWriter, r *http.Request) {
	p, migrated, err := h.Service.MigrateLegacy(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleError(w, r, "Failed to migrate profile", err)
		return
	}
	writeJSON(w, http.StatusOK, MigrateResponse{Migrated: migrated, Profile: toProfileDTO(p)})
}

// =============================================================================
// AUTHORIZATION HANDLERS
// =============================================================================

// AddAuthorization adds an authorization to a profile.
func (h *Handler) AddAuthorization(w http.ResponseWriter, r *http.Request) {
	var req AuthorizationRequest
	if !decode(w, r, &req) {
		return
	}
	a, err := h.Service.AddAuthorization(r.Context(), chi.URLParam(r, "id"), req.toAuthorization())
	if err != nil {
		h.handleError(w, r, "Failed to add authorization", err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// EditAuthorization merges changes into an authorization.
func (h *Handler) EditAuthorization(w http.ResponseWriter, r *http.Request) {
	var req AuthorizationPatchRequest
	if !decode(w, r, &req) {
		return
	}
	a, err := h.Service.EditAuthorization(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "authID"), req.toPatch())
	if err != nil {
		h.handleError(w, r, "Failed to edit authorization", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// DeleteAuthorization removes an authorization permanently.
func (h *Handler) DeleteAuthorization(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeleteAuthorization(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "authID")); err != nil {
		h.handleError(w, r, "Failed to delete authorization", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ArchiveAuthorization soft-deletes an authorization.
func (h *Handler) ArchiveAuthorization(w http.ResponseWriter, r *http.Request) {
	a, err := h.Service.ArchiveAuthorization(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "authID"))
	if err != nil {
		h.handleError(w, r, "Failed to archive authorization", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// UnarchiveAuthorization restores an archived authorization.
func (h *Handler) UnarchiveAuthorization(w http.ResponseWriter, r *http.Request) {
	a, err := h.Service.UnarchiveAuthorization(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "authID"))
	if err != nil {
		h.handleError(w, r, "Failed to unarchive authorization", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// AddAdjustment adds an adjustment to an authorization.
func (h *Handler) AddAdjustment(w http.ResponseWriter, r *http.Request) {
	var req AdjustmentRequest
	if !decode(w, r, &req) {
		return
	}
	adj, err := h.Service.AddAdjustment(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "authID"), req.toAdjustment())
	if err != nil {
		h.handleError(w, r, "Failed to add adjustment", err)
		return
	}
	writeJSON(w, http.StatusCreated, adj)
}

// RemoveAdjustment deletes an adjustment.
func (h *Handler) RemoveAdjustment(w http.ResponseWriter, r *http.Request) {
	err := h.Service.RemoveAdjustment(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "authID"), chi.URLParam(r, "adjID"))
	if err != nil {
		h.handleError(w, r, "Failed to remove adjustment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// BALANCE HANDLERS
// =============================================================================

// GetBalance returns the balance for a service type as of a date. Without
// service_type the governing authorization is picked across every type, which
// suits a profile whose service type is not chosen yet. Callers wanting one
// balance per type should use GetSummary.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	asOf, ok := parseAsOf(w, r)
	if !ok {
		return
	}
	res, err := h.Service.Balance(r.Context(), chi.URLParam(r, "id"), casebook.BalanceQuery{
		ServiceType: r.URL.Query().Get("service_type"),
		AsOf:        asOf,
	})
	if err != nil {
		h.handleError(w, r, "Failed to compute balance", err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(res))
}

// PreviewBalance returns the balance as it would be with the entry in the
// body saved.
func (h *Handler) PreviewBalance(w http.ResponseWriter, r *http.Request) {
	var req EntryRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.Service.Preview(r.Context(), chi.URLParam(r, "id"), req.toEntry())
	if err != nil {
		h.handleError(w, r, "Failed to preview balance", err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(res))
}

// StreamBalance sends the balance as a server-sent event, then a new event
// after every change to the profile or its entries, until the client leaves.
func (h *Handler) StreamBalance(w http.ResponseWriter, r *http.Request) {
	asOf, ok := parseAsOf(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := h.Service.GetProfile(r.Context(), id); err != nil {
		h.handleError(w, r, "Failed to stream balance", err)
		return
	}

	// The stream outlives the server's write timeout.
	rc := http.NewResponseController(w)
	rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	q := casebook.BalanceQuery{ServiceType: r.URL.Query().Get("service_type"), AsOf: asOf}
	err := h.Service.Watch(r.Context(), id, q, func(res units.BalanceResult) {
		data, err := json.Marshal(toBalanceDTO(res))
		if err != nil {
			h.Log.Error().Err(err).Str("profile_id", id).Msg("encode balance event")
			return
		}
		fmt.Fprintf(w, "event: balance\ndata: %s\n\n", data)
		if err := rc.Flush(); err != nil {
			h.Log.Warn().Err(err).Str("profile_id", id).Msg("flush balance event")
		}
	})
	if err != nil && r.Context().Err() == nil {
		h.Log.Warn().Err(err).Str("profile_id", id).Msg("balance stream ended")
	}
}

// GetSummary returns one balance per active service type.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	asOf, ok := parseAsOf(w, r)
	if !ok {
		return
	}
	rows, err := h.Service.Summary(r.Context(), chi.URLParam(r, "id"), asOf)
	if err != nil {
		h.handleError(w, r, "Failed to compute summary", err)
		return
	}
	dtos := make([]ServiceBalanceDTO, len(rows))
	for i, row := range rows {
		dtos[i] = ServiceBalanceDTO{ServiceType: row.ServiceType, Balance: toBalanceDTO(row.Result)}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetAudit returns a profile's audit trail, newest first.
func (h *Handler) GetAudit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.Service.GetProfile(r.Context(), id); err != nil {
		h.handleError(w, r, "Failed to get audit log", err)
		return
	}
	entries, err := h.Service.AuditLog(r.Context(), id)
	if err != nil {
		h.handleError(w, r, "Failed to get audit log", err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// =============================================================================
// ENTRY HANDLERS
// =============================================================================

// ListEntries returns all entries, or a profile's entries with ?profile_id=.
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	var (
		entries []units.ServiceEntry
		err     error
	)
	if profileID := r.URL.Query().Get("profile_id"); profileID != "" {
		entries, err = h.Service.EntriesFor(r.Context(), profileID)
	} else {
		entries, err = h.Service.ListEntries(r.Context())
	}
	if err != nil {
		h.handleError(w, r, "Failed to list entries", err)
		return
	}
	if entries == nil {
		entries = []units.ServiceEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// CreateEntry saves a service entry.
func (h *Handler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	var req EntryRequest
	if !decode(w, r, &req) {
		return
	}
	e, err := h.Service.SaveEntry(r.Context(), req.toEntry())
	if err != nil {
		h.handleError(w, r, "Failed to save entry", err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// DeleteEntry removes a service entry.
func (h *Handler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeleteEntry(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.handleError(w, r, "Failed to delete entry", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// HELPERS
// =============================================================================

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// parseAsOf reads ?as_of=. Absent means now.
func parseAsOf(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	raw := r.URL.Query().Get("as_of")
	if raw == "" {
		return time.Time{}, true
	}
	t, ok := units.Date(raw).Parse()
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid as_of date", fmt.Errorf("cannot parse %q", raw))
		return time.Time{}, false
	}
	return t, true
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, message string, err error) {
	switch {
	case casebook.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case casebook.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		h.Log.Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg(message)
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

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
