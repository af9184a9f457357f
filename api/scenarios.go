/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with realistic
	families, authorizations and visits. Each scenario shows one behavior
	of the balance banner. Dates are laid out around the day the scenario
	is loaded, so balances look current whenever it is run.

AVAILABLE SCENARIOS:

	basic-shortage:  Authorized total below what the weekly rate needs
	rate-increase:   Mid-authorization rate increase plus extra units
	drug-testing:    DST authorization counting occurrences, not hours
	running-low:     Less than two weeks of units left
	multi-service:   Two service types, an archived record, prior usage
	legacy-profile:  Old single-authorization fields, ready to migrate

HOW SCENARIOS WORK:
 1. Reset the store (clear all documents)
 2. Create the family profile
 3. Add authorizations and adjustments through the service
 4. Log visits

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "rate-increase"}

NOTE:

	Scenarios reset the store. They are only routed when enabled in config,
	and loading one requires an admin.

SEE ALSO:
  - handlers.go: Handler
  - config/config.go: scenarios flag
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/casebook/units"
)

// Resetter clears every document in a store.
type Resetter interface {
	Reset(ctx context.Context) error
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "basic-shortage",
		Name:        "Basic Shortage",
		Description: "PTSV at 3 units/week for 14 weeks but only 30 units authorized",
	},
	{
		ID:          "rate-increase",
		Name:        "Mid-Period Rate Increase",
		Description: "Rate goes from 2 to 3 units/week two weeks ago, plus 5 extra units",
	},
	{
		ID:          "drug-testing",
		Name:        "Drug Testing",
		Description: "DST-U authorization; urine and hair tests each use one unit",
	},
	{
		ID:          "running-low",
		Name:        "Running Low",
		Description: "Fewer than two weeks of units left at the current rate",
	},
	{
		ID:          "multi-service",
		Name:        "Multiple Services",
		Description: "PTSV and DST-U side by side, an archived PTSV record, and prior usage",
	},
	{
		ID:          "legacy-profile",
		Name:        "Legacy Profile",
		Description: "Authorization kept in the old profile fields; try migrate-legacy",
	},
}

type scenarioLoader func(h *Handler, ctx context.Context, today time.Time) error

var scenarioLoaders = map[string]scenarioLoader{
	"basic-shortage": (*Handler).loadBasicShortageScenario,
	"rate-increase":  (*Handler).loadRateIncreaseScenario,
	"drug-testing":   (*Handler).loadDrugTestingScenario,
	"running-low":    (*Handler).loadRunningLowScenario,
	"multi-service":  (*Handler).loadMultiServiceScenario,
	"legacy-profile": (*Handler).loadLegacyProfileScenario,
}

// EnableScenarios turns on the scenario endpoints, resetting through r.
func (h *Handler) EnableScenarios(r Resetter) {
	h.resetter = r
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	if h.resetter == nil {
		writeError(w, http.StatusNotFound, "Scenarios are disabled", nil)
		return
	}
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.resetter == nil {
		writeError(w, http.StatusNotFound, "Scenarios are disabled", nil)
		return
	}

	h.scenarioMu.Lock()
	current := h.currentScenario
	h.scenarioMu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the store and loads a predefined scenario. Admins only.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	if h.resetter == nil {
		writeError(w, http.StatusNotFound, "Scenarios are disabled", nil)
		return
	}
	if h.Access == nil || !h.Access.IsAdmin(r.Header.Get(UserHeader)) {
		writeError(w, http.StatusForbidden, "Only admins can load scenarios", nil)
		return
	}

	var req struct {
		ScenarioID string `json:"scenario_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	load, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("no scenario %q", req.ScenarioID))
		return
	}

	h.scenarioMu.Lock()
	defer h.scenarioMu.Unlock()

	ctx := r.Context()
	if err := h.resetter.Reset(ctx); err != nil {
		h.handleError(w, r, "Failed to reset store", err)
		return
	}
	h.currentScenario = ""

	if err := load(h, ctx, h.Service.Now().UTC()); err != nil {
		h.handleError(w, r, "Failed to load scenario", err)
		return
	}
	h.currentScenario = req.ScenarioID

	h.Log.Info().Str("scenario", req.ScenarioID).Msg("scenario loaded")
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// scenarioBuilder lays out one family's data around today.
type scenarioBuilder struct {
	h     *Handler
	ctx   context.Context
	today time.Time
	p     units.Profile
}

func (h *Handler) newFamily(ctx context.Context, today time.Time, p units.Profile) (*scenarioBuilder, error) {
	saved, err := h.Service.SaveProfile(ctx, p)
	if err != nil {
		return nil, err
	}
	return &scenarioBuilder{h: h, ctx: ctx, today: units.StartOfDay(today), p: saved}, nil
}

// day returns the date offset days from today.
func (b *scenarioBuilder) day(offset int) units.Date {
	return units.DateOf(b.today.AddDate(0, 0, offset))
}

func (b *scenarioBuilder) authorize(a units.Authorization) (units.Authorization, error) {
	return b.h.Service.AddAuthorization(b.ctx, b.p.ID, a)
}

// visits logs one visit per offset, each start-end on that day.
func (b *scenarioBuilder) visits(serviceType, start, end string, offsets ...int) error {
	for _, off := range offsets {
		_, err := b.h.Service.SaveEntry(b.ctx, units.ServiceEntry{
			Date:               b.day(off),
			ServiceType:        serviceType,
			StartTime:          start,
			EndTime:            end,
			FamilyDirectoryKey: b.p.Key,
			FamilyName:         b.p.FamilyName,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadBasicShortageScenario(ctx context.Context, today time.Time) error {
	b, err := h.newFamily(ctx, today, units.Profile{
		Key: "fam-rivera", FamilyName: "Rivera", MCNumber: "MC-1001",
	})
	if err != nil {
		return err
	}
	// 14 weeks at 3/week needs 42 units.
	if _, err := b.authorize(units.Authorization{
		ServiceType:  "PTSV",
		StartDate:    b.day(-42),
		EndDate:      b.day(55),
		UnitsPerWeek: "3",
		TotalUnits:   "30",
	}); err != nil {
		return err
	}
	return b.visits("PTSV", "10:00", "12:00", -35, -28, -21, -14, -7)
}

func (h *Handler) loadRateIncreaseScenario(ctx context.Context, today time.Time) error {
	b, err := h.newFamily(ctx, today, units.Profile{
		Key: "fam-nguyen", FamilyName: "Nguyen", MCNumber: "MC-1002",
	})
	if err != nil {
		return err
	}
	if _, err := b.authorize(units.Authorization{
		ServiceType:  "PTSV",
		StartDate:    b.day(-56),
		EndDate:      b.day(83),
		UnitsPerWeek: "2",
		TotalUnits:   "40",
		Adjustments: []units.Adjustment{
			{Type: string(units.AdjRateIncrease), Amount: "1", EffectiveDate: b.day(-14), Note: "Court order: extra weekly visit"},
			{Type: string(units.AdjUnitsIncrease), Amount: "5", Note: "Caseworker request approved"},
		},
	}); err != nil {
		return err
	}
	return b.visits("PTSV", "09:00", "11:30", -49, -42, -35, -28, -21, -14, -10, -7, -3)
}

func (h *Handler) loadDrugTestingScenario(ctx context.Context, today time.Time) error {
	b, err := h.newFamily(ctx, today, units.Profile{
		Key: "fam-okafor", FamilyName: "Okafor", MCNumber: "MC-1003",
	})
	if err != nil {
		return err
	}
	if _, err := b.authorize(units.Authorization{
		ServiceType:  "DST-U",
		StartDate:    b.day(-30),
		EndDate:      b.day(60),
		UnitsPerWeek: "1",
		TotalUnits:   "12",
	}); err != nil {
		return err
	}
	if err := b.visits("DST-U", "08:00", "08:15", -28, -21, -14); err != nil {
		return err
	}
	return b.visits("DST-H", "08:00", "08:30", -7)
}

func (h *Handler) loadRunningLowScenario(ctx context.Context, today time.Time) error {
	b, err := h.newFamily(ctx, today, units.Profile{
		Key: "fam-haddad", FamilyName: "Haddad", MCNumber: "MC-1004",
	})
	if err != nil {
		return err
	}
	// 12 units at 2/week, 10 used: one week left.
	if _, err := b.authorize(units.Authorization{
		ServiceType:  "PTSV",
		StartDate:    b.day(-35),
		EndDate:      b.day(7),
		UnitsPerWeek: "2",
		TotalUnits:   "12",
	}); err != nil {
		return err
	}
	return b.visits("PTSV", "14:00", "16:00", -31, -24, -17, -10, -3)
}

func (h *Handler) loadMultiServiceScenario(ctx context.Context, today time.Time) error {
	b, err := h.newFamily(ctx, today, units.Profile{
		Key: "fam-kowalski", FamilyName: "Kowalski", MCNumber: "MC-1005",
	})
	if err != nil {
		return err
	}

	old, err := b.authorize(units.Authorization{
		ServiceType:  "PTSV",
		StartDate:    b.day(-180),
		EndDate:      b.day(-91),
		UnitsPerWeek: "2",
		TotalUnits:   "26",
		Notes:        "Previous referral",
	})
	if err != nil {
		return err
	}
	if _, err := h.Service.ArchiveAuthorization(ctx, b.p.ID, old.ID); err != nil {
		return err
	}

	if _, err := b.authorize(units.Authorization{
		ServiceType:  "PTSV",
		StartDate:    b.day(-30),
		EndDate:      b.day(60),
		UnitsPerWeek: "2",
		TotalUnits:   "24",
		Adjustments: []units.Adjustment{
			{Type: string(units.AdjPriorUsage), Amount: "4", Note: "Used under the transferring agency"},
		},
	}); err != nil {
		return err
	}
	if _, err := b.authorize(units.Authorization{
		ServiceType:  "DST-U",
		StartDate:    b.day(-30),
		EndDate:      b.day(60),
		UnitsPerWeek: "1",
		TotalUnits:   "10",
	}); err != nil {
		return err
	}

	if err := b.visits("PTSV", "13:00", "15:00", -21, -14, -7); err != nil {
		return err
	}
	return b.visits("DST-U", "09:00", "09:10", -20, -6)
}

func (h *Handler) loadLegacyProfileScenario(ctx context.Context, today time.Time) error {
	start := units.DateOf(units.StartOfDay(today).AddDate(0, 0, -21))
	end := units.DateOf(units.StartOfDay(today).AddDate(0, 0, 70))
	b, err := h.newFamily(ctx, today, units.Profile{
		Key:           "fam-silva",
		FamilyName:    "Silva",
		MCNumber:      "MC-1006",
		AuthStartDate: start,
		AuthEndDate:   end,
		UnitsPerWeek:  "2",
		TotalUnits:    "26",
		UnitAdjustments: []units.Adjustment{
			{Type: "increase", Amount: "2", Note: "Added before history existed"},
		},
	})
	if err != nil {
		return err
	}
	return b.visits("PTSV", "10:00", "11:30", -14, -7)
}
