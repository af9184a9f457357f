package units

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ADJUSTMENT AGGREGATOR
// =============================================================================

// RateChange is a signed change to the weekly rate effective on a day.
type RateChange struct {
	Date  time.Time       `json:"date"`
	Delta decimal.Decimal `json:"delta"`
}

// AdjustmentSummary is the aggregate of an authorization's adjustments.
//
// PriorUsage never changes the grant: it is excluded from UnitDelta and only
// added to units used.
type AdjustmentSummary struct {
	UnitDelta   decimal.Decimal
	PriorUsage  decimal.Decimal
	RateChanges []RateChange
}

// AggregateAdjustments sums adjustments by kind. Unknown types contribute
// nothing. Rate changes with unparseable effective dates are dropped since
// they cannot be placed on the schedule; their amounts never reach the unit
// totals either way.
func AggregateAdjustments(adjustments []Adjustment) AdjustmentSummary {
	s := AdjustmentSummary{
		UnitDelta:  decimal.Zero,
		PriorUsage: decimal.Zero,
	}
	for _, adj := range adjustments {
		kind, ok := adj.Kind()
		if !ok {
			continue
		}
		amount := adj.Amount.Decimal()

		switch kind {
		case AdjUnitsIncrease:
			s.UnitDelta = s.UnitDelta.Add(amount)
		case AdjUnitsDecrease:
			s.UnitDelta = s.UnitDelta.Sub(amount)
		case AdjPriorUsage:
			s.PriorUsage = s.PriorUsage.Add(amount)
		case AdjRateIncrease, AdjRateDecrease:
			at, ok := adj.EffectiveDate.Parse()
			if !ok {
				continue
			}
			delta := amount
			if kind == AdjRateDecrease {
				delta = delta.Neg()
			}
			s.RateChanges = append(s.RateChanges, RateChange{Date: at, Delta: delta})
		}
	}
	return s
}
