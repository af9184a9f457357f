package units

import (
	"sort"
	"strings"
	"time"
)

// =============================================================================
// AUTHORIZATION RESOLVER - Which authorization governs a date?
// =============================================================================

// candidate pairs an authorization with its parsed window.
type candidate struct {
	auth   Authorization
	window Window
}

// ResolveActive selects the authorization governing serviceType as of asOf.
//
// Selection order over non-archived authorizations whose service type matches:
//  1. the most recently started one whose window covers asOf
//  2. otherwise the soonest-starting future one
//  3. otherwise the most recently started past one
//
// An empty serviceType means none has been chosen yet and admits every
// authorization. Authorizations with unparseable or inverted dates never
// qualify. Returns
// false when nothing qualifies; callers then fall back to the profile's legacy
// fields (see ResolveEffective).
func ResolveActive(history []Authorization, serviceType string, asOf time.Time) (Authorization, bool) {
	anyType := strings.TrimSpace(serviceType) == ""
	var pool []candidate
	for _, a := range history {
		if a.IsArchived {
			continue
		}
		if !anyType && !ServiceTypeMatches(a.ServiceType, serviceType) {
			continue
		}
		w, ok := a.Window()
		if !ok {
			continue
		}
		pool = append(pool, candidate{auth: a, window: w})
	}
	return pick(pool, asOf)
}

// ActiveByServiceType returns one resolved authorization per literal service
// type, ordered by service type. This is the profile summary view: grouping
// is by exact serviceType value, not by the matching rule.
func ActiveByServiceType(history []Authorization, asOf time.Time) []Authorization {
	groups := make(map[string][]candidate)
	for _, a := range history {
		if a.IsArchived {
			continue
		}
		w, ok := a.Window()
		if !ok {
			continue
		}
		groups[a.ServiceType] = append(groups[a.ServiceType], candidate{auth: a, window: w})
	}

	types := make([]string, 0, len(groups))
	for st := range groups {
		types = append(types, st)
	}
	sort.Strings(types)

	result := make([]Authorization, 0, len(types))
	for _, st := range types {
		if a, ok := pick(groups[st], asOf); ok {
			result = append(result, a)
		}
	}
	return result
}

// pick applies the covering / future / past selection to a prepared pool.
func pick(pool []candidate, asOf time.Time) (Authorization, bool) {
	if len(pool) == 0 {
		return Authorization{}, false
	}

	// Descending by start date; ties keep input order.
	sort.SliceStable(pool, func(i, j int) bool {
		return pool[i].window.Start.After(pool[j].window.Start)
	})

	for _, c := range pool {
		if c.window.Contains(asOf) {
			return c.auth, true
		}
	}

	// Future pool is still descending, so the last element starts soonest.
	today := StartOfDay(civil(asOf))
	var future []candidate
	for _, c := range pool {
		if c.window.Start.After(today) {
			future = append(future, c)
		}
	}
	if len(future) > 0 {
		return future[len(future)-1].auth, true
	}

	return pool[0].auth, true
}

// SortedHistory returns a copy of history in display order: descending by
// start date, records with unparseable start dates last in input order.
func SortedHistory(history []Authorization) []Authorization {
	out := make([]Authorization, len(history))
	copy(out, history)
	sort.SliceStable(out, func(i, j int) bool {
		si, oki := out[i].StartDate.Parse()
		sj, okj := out[j].StartDate.Parse()
		switch {
		case oki && okj:
			return si.After(sj)
		case oki:
			return true
		default:
			return false
		}
	})
	return out
}

// FindAuthorization returns the authorization with the given id.
func FindAuthorization(history []Authorization, id string) (Authorization, int, bool) {
	for i, a := range history {
		if a.ID == id {
			return a, i, true
		}
	}
	return Authorization{}, -1, false
}

// =============================================================================
// EFFECTIVE AUTHORIZATION - History record or legacy fallback
// =============================================================================

// EffectiveAuthorization is the authorization actually used for unit math.
// IsFromHistory is false when it was synthesized from legacy profile fields.
type EffectiveAuthorization struct {
	ID            string       `json:"id,omitempty"`
	ServiceType   string       `json:"serviceType,omitempty"`
	StartDate     Date         `json:"startDate"`
	EndDate       Date         `json:"endDate"`
	UnitsPerWeek  Quantity     `json:"unitsPerWeek"`
	TotalUnits    Quantity     `json:"totalUnits"`
	Adjustments   []Adjustment `json:"adjustments,omitempty"`
	IsFromHistory bool         `json:"isFromHistory"`
}

// FromHistory wraps a history authorization.
func FromHistory(a Authorization) EffectiveAuthorization {
	return EffectiveAuthorization{
		ID:            a.ID,
		ServiceType:   a.ServiceType,
		StartDate:     a.StartDate,
		EndDate:       a.EndDate,
		UnitsPerWeek:  a.UnitsPerWeek,
		TotalUnits:    a.TotalUnits,
		Adjustments:   a.Adjustments,
		IsFromHistory: true,
	}
}

// FromLegacy synthesizes an authorization from the profile's legacy fields.
func FromLegacy(p Profile) EffectiveAuthorization {
	return EffectiveAuthorization{
		StartDate:    p.AuthStartDate,
		EndDate:      p.AuthEndDate,
		UnitsPerWeek: p.UnitsPerWeek,
		TotalUnits:   p.TotalUnits,
		Adjustments:  p.UnitAdjustments,
	}
}

// Window returns the effective period, or false if unusable.
func (e EffectiveAuthorization) Window() (Window, bool) {
	return NewWindow(e.StartDate, e.EndDate)
}

// ResolveEffective picks the authorization used for unit math.
//
// A history with at least one parseable record is authoritative: legacy fields
// are ignored even when nothing in it matches the service type. When the
// history is empty, or none of its records has a usable date range, the
// legacy fields are used if their dates form a valid window.
func ResolveEffective(p Profile, serviceType string, asOf time.Time) (EffectiveAuthorization, bool) {
	if hasUsableHistory(p.AuthorizationHistory) {
		a, ok := ResolveActive(p.AuthorizationHistory, serviceType, asOf)
		if !ok {
			return EffectiveAuthorization{}, false
		}
		return FromHistory(a), true
	}
	legacy := FromLegacy(p)
	if _, ok := legacy.Window(); !ok {
		return EffectiveAuthorization{}, false
	}
	return legacy, true
}

func hasUsableHistory(history []Authorization) bool {
	for _, a := range history {
		if _, ok := a.Window(); ok {
			return true
		}
	}
	return false
}
