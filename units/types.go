/*
Package units derives authorization balances for client profiles.

PURPOSE:
  Answers three questions for a family and a service type: how many units
  are authorized, how many have been used, and what remains as of a date.
  Everything here is a pure function of a profile snapshot and an entry
  snapshot. Nothing is cached, persisted or mutated.

PIPELINE:
  Profile + service type + date
    -> ResolveActive          pick the governing authorization
    -> AggregateAdjustments   unit delta, prior usage, rate changes
    -> ComputeUnitsRequired   integrate the weekly rate over the window
    -> usage scan             entries in window, matching profile and type
    -> BalanceResult          balance, shortage, expiry, running-low

UNITS:
  One unit is one hour of timed service, or one occurrence of a drug test
  (any service type starting with "DST"). Quantities use decimal.Decimal.

TOTALITY:
  No function in this package returns an error. Unparseable dates make the
  owning record invisible to date-sensitive steps; unparseable numbers are
  zero; unmatched entries are simply not counted.

SEE ALSO:
  - resolver.go: active authorization selection
  - adjustment.go: adjustment aggregation
  - schedule.go: units-required integration
  - balance.go: the full derivation
*/
package units

import (
	"strings"
	"time"
)

// =============================================================================
// PROFILE - Client family profile document
// =============================================================================

// Profile is the subset of a client profile document the engine reads.
type Profile struct {
	ID         string `json:"id"`
	Key        string `json:"key,omitempty"`
	FamilyID   string `json:"familyId,omitempty"`
	MCNumber   string `json:"mcNumber,omitempty"`
	FamilyName string `json:"familyName,omitempty"`

	AuthorizationHistory []Authorization `json:"authorizationHistory,omitempty"`

	// Legacy single-authorization fields. Only read when AuthorizationHistory
	// is empty.
	AuthStartDate   Date         `json:"authStartDate,omitempty"`
	AuthEndDate     Date         `json:"authEndDate,omitempty"`
	UnitsPerWeek    Quantity     `json:"unitsPerWeek,omitempty"`
	TotalUnits      Quantity     `json:"totalUnits,omitempty"`
	UnitAdjustments []Adjustment `json:"unitAdjustments,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasLegacyAuthorization reports whether any legacy authorization field is set.
func (p Profile) HasLegacyAuthorization() bool {
	return !p.AuthStartDate.IsZero() || !p.AuthEndDate.IsZero() ||
		p.UnitsPerWeek != "" || p.TotalUnits != "" || len(p.UnitAdjustments) > 0
}

// =============================================================================
// AUTHORIZATION - One grant of service over a date range
// =============================================================================

// Authorization grants units for one service type over an inclusive date range.
// Whether it is active is computed, never stored.
type Authorization struct {
	ID           string       `json:"id"`
	ServiceType  string       `json:"serviceType,omitempty"`
	StartDate    Date         `json:"startDate,omitempty"`
	EndDate      Date         `json:"endDate,omitempty"`
	UnitsPerWeek Quantity     `json:"unitsPerWeek,omitempty"`
	TotalUnits   Quantity     `json:"totalUnits,omitempty"`
	Adjustments  []Adjustment `json:"adjustments,omitempty"`
	IsArchived   bool         `json:"isArchived,omitempty"`
	Notes        string       `json:"notes,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// Window returns the authorization period, or false if its dates are
// unparseable or inverted.
func (a Authorization) Window() (Window, bool) {
	return NewWindow(a.StartDate, a.EndDate)
}

// ServiceGeneral is the wildcard service type.
const ServiceGeneral = "GENERAL"

// drugTestPrefix marks occurrence-based drug testing services (DST-U, DST-H, ...).
const drugTestPrefix = "DST"

// IsDrugTest reports whether the service type is a drug-testing variant.
func IsDrugTest(serviceType string) bool {
	return strings.HasPrefix(strings.TrimSpace(serviceType), drugTestPrefix)
}

// ServiceTypeMatches reports whether an authorization of type candidate covers
// service type query: exact match, both drug-testing types, or a GENERAL/empty
// candidate. GENERAL is matched literally.
func ServiceTypeMatches(candidate, query string) bool {
	candidate = strings.TrimSpace(candidate)
	query = strings.TrimSpace(query)
	switch {
	case candidate == "" || candidate == ServiceGeneral:
		return true
	case candidate == query:
		return true
	case IsDrugTest(candidate) && IsDrugTest(query):
		return true
	}
	return false
}

// =============================================================================
// ADJUSTMENT - Dated change to an authorization
// =============================================================================

// AdjustmentType is the canonical kind of an adjustment.
type AdjustmentType string

const (
	AdjRateIncrease  AdjustmentType = "rate_increase"
	AdjRateDecrease  AdjustmentType = "rate_decrease"
	AdjUnitsIncrease AdjustmentType = "units_increase"
	AdjUnitsDecrease AdjustmentType = "units_decrease"
	AdjPriorUsage    AdjustmentType = "prior_usage"
)

// legacyAdjustmentTypes maps aliases written by older clients.
var legacyAdjustmentTypes = map[string]AdjustmentType{
	"increase": AdjUnitsIncrease,
	"decrease": AdjUnitsDecrease,
}

// NormalizeAdjustmentType maps a stored type string to its canonical value.
// It returns false for unknown types.
func NormalizeAdjustmentType(raw string) (AdjustmentType, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch t := AdjustmentType(s); t {
	case AdjRateIncrease, AdjRateDecrease, AdjUnitsIncrease, AdjUnitsDecrease, AdjPriorUsage:
		return t, true
	}
	if t, ok := legacyAdjustmentTypes[s]; ok {
		return t, true
	}
	return "", false
}

// Adjustment is a point-in-time change. Amount is always non-negative; the
// sign comes from Type.
type Adjustment struct {
	ID            string   `json:"id"`
	Type          string   `json:"type"`
	Amount        Quantity `json:"amount"`
	EffectiveDate Date     `json:"effectiveDate,omitempty"`
	Note          string   `json:"note,omitempty"`
}

// Kind returns the normalized adjustment type.
func (a Adjustment) Kind() (AdjustmentType, bool) {
	return NormalizeAdjustmentType(a.Type)
}

// =============================================================================
// SERVICE ENTRY - A logged visit or contact
// =============================================================================

// ServiceEntry is a logged contact. It is tied to a profile by any of the
// family keys (see MatchesProfile), not by a single foreign key.
type ServiceEntry struct {
	ID          string `json:"id"`
	Date        Date   `json:"date,omitempty"`
	ServiceType string `json:"serviceType,omitempty"`
	StartTime   string `json:"startTime,omitempty"`
	EndTime     string `json:"endTime,omitempty"`

	FamilyDirectoryKey string `json:"familyDirectoryKey,omitempty"`
	FamilyID           string `json:"familyId,omitempty"`
	MasterCase         string `json:"masterCase,omitempty"`
	FamilyName         string `json:"familyName,omitempty"`

	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
