/*
balance.go - Authorization balance derivation

PURPOSE:
  Combines the resolver, adjustment aggregator, units-required schedule
  and entry usage into the numbers staff see next to a family: remaining
  balance, shortage warning, days until expiry, and a running-low flag.

KEY FORMULAS:
  AdjustedTotal = TotalUnits + UnitDelta
  TotalUsed     = Hours + Occurrences + PriorUsage
  Balance       = AdjustedTotal - TotalUsed
  Shortage      = UnitsRequired - AdjustedTotal
  HasShortage   = UnitsRequired > 0 && Shortage > 0 && PriorUsage == 0

PRIOR USAGE AND SHORTAGE:
  Any non-zero prior usage suppresses the shortage warning, whatever its
  size. This matches how balances have always been reported to staff and
  is kept as-is; see TestBalance_PriorUsageSuppressesShortage.

PREVIEW:
  When a Candidate entry (an unsaved entry in the form) is supplied, its
  own consumption is added on top of TotalUsed to give UsedAfterEntry and
  BalanceAfterEntry, the "remaining after this visit" figures.

SEE ALSO:
  - resolver.go: ResolveEffective
  - schedule.go: ComputeSchedule
  - usage.go: Consumption, MatchesProfile
*/
package units

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultRunningLowWeeks is the weeks-of-units-left threshold below which a
// balance is flagged as running low.
const DefaultRunningLowWeeks = 2

// BalanceInput is one snapshot to derive a balance from.
type BalanceInput struct {
	Profile Profile
	Entries []ServiceEntry

	// ServiceType selects the authorization. Defaults to the candidate's
	// service type when empty.
	ServiceType string

	// Candidate is an entry being composed or edited. Its ID, when set, is
	// excluded from Entries so an edited entry is not counted twice.
	Candidate *ServiceEntry

	// AsOf selects the active authorization. Defaults to the candidate's date,
	// then to Today.
	AsOf time.Time

	// Today anchors DaysUntilExpiry.
	Today time.Time

	// RunningLowWeeks overrides DefaultRunningLowWeeks when positive.
	RunningLowWeeks int
}

// BalanceResult is the derived balance for one authorization.
type BalanceResult struct {
	HasAuthorization bool                    `json:"hasAuthorization"`
	EffectiveAuth    *EffectiveAuthorization `json:"effectiveAuth,omitempty"`

	AdjustedTotal decimal.Decimal `json:"adjustedTotal"`
	UnitsRequired decimal.Decimal `json:"unitsRequired"`
	UnitsUsed     Usage           `json:"unitsUsed"`
	PriorUsage    decimal.Decimal `json:"priorUsage"`
	TotalUsed     decimal.Decimal `json:"totalUsed"`
	Balance       decimal.Decimal `json:"balance"`

	// Set only when a candidate entry was supplied.
	CandidateUsage    *Usage           `json:"candidateUsage,omitempty"`
	UsedAfterEntry    *decimal.Decimal `json:"usedAfterEntry,omitempty"`
	BalanceAfterEntry *decimal.Decimal `json:"balanceAfterEntry,omitempty"`

	HasShortage    bool            `json:"hasShortage"`
	ShortageAmount decimal.Decimal `json:"shortageAmount"`

	DaysUntilExpiry  *int             `json:"daysUntilExpiry"`
	WeeksOfUnitsLeft *decimal.Decimal `json:"weeksOfUnitsLeft"`
	IsRunningLow     bool             `json:"isRunningLow"`

	CurrentRate  decimal.Decimal `json:"currentRate"`
	RateSegments []RateSegment   `json:"rateSegments"`
}

// emptyResult is the conservative result when no authorization resolves.
func emptyResult() BalanceResult {
	return BalanceResult{
		AdjustedTotal:  decimal.Zero,
		UnitsRequired:  decimal.Zero,
		UnitsUsed:      zeroUsage(),
		PriorUsage:     decimal.Zero,
		TotalUsed:      decimal.Zero,
		Balance:        decimal.Zero,
		ShortageAmount: decimal.Zero,
		CurrentRate:    decimal.Zero,
		RateSegments:   []RateSegment{},
	}
}

// ComputeBalance resolves the effective authorization for the input and
// derives its balance.
func ComputeBalance(in BalanceInput) BalanceResult {
	in = in.withDefaults()
	eff, ok := ResolveEffective(in.Profile, in.ServiceType, in.AsOf)
	if !ok {
		return emptyResult()
	}
	return ComputeBalanceFor(eff, in)
}

// ComputeBalanceFor derives the balance for a caller-chosen authorization.
func ComputeBalanceFor(eff EffectiveAuthorization, in BalanceInput) BalanceResult {
	in = in.withDefaults()
	w, ok := eff.Window()
	if !ok {
		return emptyResult()
	}

	adj := AggregateAdjustments(eff.Adjustments)
	adjustedTotal := eff.TotalUnits.Decimal().Add(adj.UnitDelta)
	sched := ComputeSchedule(w, eff.UnitsPerWeek.Decimal(), adj.RateChanges)

	used := zeroUsage()
	excludeID := ""
	if in.Candidate != nil {
		excludeID = in.Candidate.ID
	}
	for _, e := range in.Entries {
		if excludeID != "" && e.ID == excludeID {
			continue
		}
		if !MatchesProfile(e, in.Profile) || !w.ContainsDay(e.Date) {
			continue
		}
		if eff.IsFromHistory && !ServiceTypeMatches(eff.ServiceType, e.ServiceType) {
			continue
		}
		used = used.Add(Consumption(e))
	}

	totalUsed := used.Total().Add(adj.PriorUsage)
	balance := adjustedTotal.Sub(totalUsed)

	effCopy := eff
	res := BalanceResult{
		HasAuthorization: true,
		EffectiveAuth:    &effCopy,
		AdjustedTotal:    adjustedTotal,
		UnitsRequired:    sched.UnitsRequired,
		UnitsUsed:        used,
		PriorUsage:       adj.PriorUsage,
		TotalUsed:        totalUsed,
		Balance:          balance,
		ShortageAmount:   decimal.Zero,
		CurrentRate:      sched.CurrentRate,
		RateSegments:     sched.Segments,
	}
	if res.RateSegments == nil {
		res.RateSegments = []RateSegment{}
	}

	if in.Candidate != nil {
		cu := Consumption(*in.Candidate)
		after := totalUsed.Add(cu.Total())
		remaining := adjustedTotal.Sub(after)
		res.CandidateUsage = &cu
		res.UsedAfterEntry = &after
		res.BalanceAfterEntry = &remaining
	}

	shortage := sched.UnitsRequired.Sub(adjustedTotal)
	if shortage.IsPositive() {
		res.ShortageAmount = shortage
	}
	res.HasShortage = sched.UnitsRequired.IsPositive() && shortage.IsPositive() && adj.PriorUsage.IsZero()

	days := daysUntil(w.End, in.Today)
	res.DaysUntilExpiry = &days

	if sched.CurrentRate.IsPositive() {
		weeksLeft := balance.Div(sched.CurrentRate)
		res.WeeksOfUnitsLeft = &weeksLeft
		threshold := decimal.NewFromInt(int64(in.runningLowWeeks()))
		res.IsRunningLow = !weeksLeft.IsNegative() && weeksLeft.LessThan(threshold)
	}

	return res
}

// daysUntil returns ceil((end - startOfDay(today)) / 1 day), where end is
// already the last millisecond of the final day.
func daysUntil(end, today time.Time) int {
	diff := end.Sub(StartOfDay(civil(today)))
	return int(math.Ceil(float64(diff) / float64(day)))
}

func (in BalanceInput) withDefaults() BalanceInput {
	if in.Today.IsZero() {
		in.Today = time.Now()
	}
	if in.ServiceType == "" && in.Candidate != nil {
		in.ServiceType = in.Candidate.ServiceType
	}
	if in.AsOf.IsZero() && in.Candidate != nil {
		if t, ok := in.Candidate.Date.Parse(); ok {
			in.AsOf = t
		}
	}
	if in.AsOf.IsZero() {
		in.AsOf = in.Today
	}
	return in
}

func (in BalanceInput) runningLowWeeks() int {
	if in.RunningLowWeeks > 0 {
		return in.RunningLowWeeks
	}
	return DefaultRunningLowWeeks
}
