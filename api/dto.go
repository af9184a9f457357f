/*
dto.go - Data Transfer Objects for the HTTP API

PURPOSE:
  Defines request and response shapes. Requests accept the loose values
  older clients send (numbers as strings or numbers, dates as strings);
  responses report derived unit figures as numbers rounded to two places.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/casebook/casebook"
	"github.com/warp/casebook/units"
)

// =============================================================================
// PROFILE DTOs
// =============================================================================

// ProfileRequest creates or updates a profile's details. Authorization
// history is managed through the authorization endpoints and is not accepted
// here.
type ProfileRequest struct {
	Key        string `json:"key"`
	FamilyID   string `json:"familyId"`
	MCNumber   string `json:"mcNumber"`
	FamilyName string `json:"familyName"`

	AuthStartDate   units.Date          `json:"authStartDate"`
	AuthEndDate     units.Date          `json:"authEndDate"`
	UnitsPerWeek    units.Quantity      `json:"unitsPerWeek"`
	TotalUnits      units.Quantity      `json:"totalUnits"`
	UnitAdjustments []AdjustmentRequest `json:"unitAdjustments"`
}

func (r ProfileRequest) toProfile(id string) units.Profile {
	p := units.Profile{
		ID:            id,
		Key:           r.Key,
		FamilyID:      r.FamilyID,
		MCNumber:      r.MCNumber,
		FamilyName:    r.FamilyName,
		AuthStartDate: r.AuthStartDate,
		AuthEndDate:   r.AuthEndDate,
		UnitsPerWeek:  r.UnitsPerWeek,
		TotalUnits:    r.TotalUnits,
	}
	for _, a := range r.UnitAdjustments {
		p.UnitAdjustments = append(p.UnitAdjustments, a.toAdjustment())
	}
	return p
}

// ProfileDTO is a profile with its history ordered newest first.
type ProfileDTO struct {
	units.Profile
	HasLegacyAuthorization bool `json:"hasLegacyAuthorization"`
}

func toProfileDTO(p units.Profile) ProfileDTO {
	p.AuthorizationHistory = units.SortedHistory(p.AuthorizationHistory)
	return ProfileDTO{
		Profile:                p,
		HasLegacyAuthorization: len(p.AuthorizationHistory) == 0 && p.HasLegacyAuthorization(),
	}
}

// MigrateResponse reports the outcome of a legacy migration.
type MigrateResponse struct {
	Migrated bool       `json:"migrated"`
	Profile  ProfileDTO `json:"profile"`
}

// =============================================================================
// AUTHORIZATION DTOs
// =============================================================================

// AuthorizationRequest creates an authorization.
type AuthorizationRequest struct {
	ServiceType  string              `json:"serviceType"`
	StartDate    units.Date          `json:"startDate"`
	EndDate      units.Date          `json:"endDate"`
	UnitsPerWeek units.Quantity      `json:"unitsPerWeek"`
	TotalUnits   units.Quantity      `json:"totalUnits"`
	Notes        string              `json:"notes"`
	Adjustments  []AdjustmentRequest `json:"adjustments"`
}

func (r AuthorizationRequest) toAuthorization() units.Authorization {
	a := units.Authorization{
		ServiceType:  r.ServiceType,
		StartDate:    r.StartDate,
		EndDate:      r.EndDate,
		UnitsPerWeek: r.UnitsPerWeek,
		TotalUnits:   r.TotalUnits,
		Notes:        r.Notes,
	}
	for _, adj := range r.Adjustments {
		a.Adjustments = append(a.Adjustments, adj.toAdjustment())
	}
	return a
}

// AuthorizationPatchRequest edits an authorization. Omitted fields are kept.
type AuthorizationPatchRequest struct {
	ServiceType  *string              `json:"serviceType"`
	StartDate    *units.Date          `json:"startDate"`
	EndDate      *units.Date          `json:"endDate"`
	UnitsPerWeek *units.Quantity      `json:"unitsPerWeek"`
	TotalUnits   *units.Quantity      `json:"totalUnits"`
	Notes        *string              `json:"notes"`
	Adjustments  *[]AdjustmentRequest `json:"adjustments"`
}

func (r AuthorizationPatchRequest) toPatch() casebook.AuthorizationPatch {
	patch := casebook.AuthorizationPatch{
		ServiceType:  r.ServiceType,
		StartDate:    r.StartDate,
		EndDate:      r.EndDate,
		UnitsPerWeek: r.UnitsPerWeek,
		TotalUnits:   r.TotalUnits,
		Notes:        r.Notes,
	}
	if r.Adjustments != nil {
		adjustments := make([]units.Adjustment, 0, len(*r.Adjustments))
		for _, a := range *r.Adjustments {
			adjustments = append(adjustments, a.toAdjustment())
		}
		patch.Adjustments = &adjustments
	}
	return patch
}

// AdjustmentRequest adds an adjustment. ID is kept only inside a full
// adjustment list sent with an authorization edit.
type AdjustmentRequest struct {
	ID            string         `json:"id"`
	Type          string         `json:"type"`
	Amount        units.Quantity `json:"amount"`
	EffectiveDate units.Date     `json:"effectiveDate"`
	Note          string         `json:"note"`
}

func (r AdjustmentRequest) toAdjustment() units.Adjustment {
	return units.Adjustment{
		ID:            r.ID,
		Type:          r.Type,
		Amount:        r.Amount,
		EffectiveDate: r.EffectiveDate,
		Note:          r.Note,
	}
}

// =============================================================================
// ENTRY DTOs
// =============================================================================

// EntryRequest creates or replaces a service entry.
type EntryRequest struct {
	ID                 string     `json:"id"`
	Date               units.Date `json:"date"`
	ServiceType        string     `json:"serviceType"`
	StartTime          string     `json:"startTime"`
	EndTime            string     `json:"endTime"`
	FamilyDirectoryKey string     `json:"familyDirectoryKey"`
	FamilyID           string     `json:"familyId"`
	MasterCase         string     `json:"masterCase"`
	FamilyName         string     `json:"familyName"`
	Notes              string     `json:"notes"`
}

func (r EntryRequest) toEntry() units.ServiceEntry {
	return units.ServiceEntry{
		ID:                 r.ID,
		Date:               r.Date,
		ServiceType:        r.ServiceType,
		StartTime:          r.StartTime,
		EndTime:            r.EndTime,
		FamilyDirectoryKey: r.FamilyDirectoryKey,
		FamilyID:           r.FamilyID,
		MasterCase:         r.MasterCase,
		FamilyName:         r.FamilyName,
		Notes:              r.Notes,
	}
}

// =============================================================================
// BALANCE DTOs
// =============================================================================

// BalanceDTO is the balance banner shown next to a family.
type BalanceDTO struct {
	HasAuthorization bool                          `json:"hasAuthorization"`
	Authorization    *units.EffectiveAuthorization `json:"authorization,omitempty"`

	AdjustedTotal float64 `json:"adjustedTotal"`
	UnitsRequired float64 `json:"unitsRequired"`
	HoursUsed     float64 `json:"hoursUsed"`
	Occurrences   float64 `json:"occurrences"`
	PriorUsage    float64 `json:"priorUsage"`
	TotalUsed     float64 `json:"totalUsed"`
	Balance       float64 `json:"balance"`

	UsedAfterEntry    *float64 `json:"usedAfterEntry,omitempty"`
	BalanceAfterEntry *float64 `json:"balanceAfterEntry,omitempty"`

	HasShortage    bool    `json:"hasShortage"`
	ShortageAmount float64 `json:"shortageAmount"`

	DaysUntilExpiry  *int     `json:"daysUntilExpiry"`
	WeeksOfUnitsLeft *float64 `json:"weeksOfUnitsLeft"`
	IsRunningLow     bool     `json:"isRunningLow"`

	CurrentRate  float64          `json:"currentRate"`
	RateSegments []RateSegmentDTO `json:"rateSegments"`
}

// RateSegmentDTO is one constant-rate stretch of an authorization.
type RateSegmentDTO struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Rate  float64   `json:"rate"`
	Weeks float64   `json:"weeks"`
	Units float64   `json:"units"`
}

// ServiceBalanceDTO is one row of a profile summary.
type ServiceBalanceDTO struct {
	ServiceType string     `json:"serviceType"`
	Balance     BalanceDTO `json:"balance"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func num(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}

func numPtr(d *decimal.Decimal) *float64 {
	if d == nil {
		return nil
	}
	f := num(*d)
	return &f
}

func toBalanceDTO(r units.BalanceResult) BalanceDTO {
	dto := BalanceDTO{
		HasAuthorization:  r.HasAuthorization,
		Authorization:     r.EffectiveAuth,
		AdjustedTotal:     num(r.AdjustedTotal),
		UnitsRequired:     num(r.UnitsRequired),
		HoursUsed:         num(r.UnitsUsed.Hours),
		Occurrences:       num(r.UnitsUsed.Occurrences),
		PriorUsage:        num(r.PriorUsage),
		TotalUsed:         num(r.TotalUsed),
		Balance:           num(r.Balance),
		UsedAfterEntry:    numPtr(r.UsedAfterEntry),
		BalanceAfterEntry: numPtr(r.BalanceAfterEntry),
		HasShortage:       r.HasShortage,
		ShortageAmount:    num(r.ShortageAmount),
		DaysUntilExpiry:   r.DaysUntilExpiry,
		WeeksOfUnitsLeft:  numPtr(r.WeeksOfUnitsLeft),
		IsRunningLow:      r.IsRunningLow,
		CurrentRate:       num(r.CurrentRate),
		RateSegments:      make([]RateSegmentDTO, len(r.RateSegments)),
	}
	for i, s := range r.RateSegments {
		dto.RateSegments[i] = RateSegmentDTO{
			Start: s.Start,
			End:   s.End,
			Rate:  num(s.Rate),
			Weeks: num(s.Weeks),
			Units: num(s.Units()),
		}
	}
	return dto
}
