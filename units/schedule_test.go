package units_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/casebook/units"
)

// =============================================================================
// ADJUSTMENT AGGREGATION
// =============================================================================

func TestAggregateAdjustments_PriorUsageExcludedFromUnitDelta(t *testing.T) {
	s := units.AggregateAdjustments([]units.Adjustment{adj("prior_usage", 50, "2025-01-01")})

	assert.True(t, s.UnitDelta.IsZero())
	assert.True(t, s.PriorUsage.Equal(dec(50)))
	assert.Empty(t, s.RateChanges)
}

func TestAggregateAdjustments_AllKinds(t *testing.T) {
	s := units.AggregateAdjustments([]units.Adjustment{
		adj("units_increase", 10, "2025-01-05"),
		adj("increase", 5, "2025-01-06"),
		adj("units_decrease", 3, "2025-01-07"),
		adj("decrease", 1, "2025-01-08"),
		adj("prior_usage", 2.5, "2025-01-01"),
		adj("rate_increase", 4, "2025-02-01"),
		adj("rate_decrease", 1.5, "2025-03-01"),
		adj("bonus_points", 99, "2025-01-01"),
	})

	assert.True(t, s.UnitDelta.Equal(dec(11)), "got %s", s.UnitDelta)
	assert.True(t, s.PriorUsage.Equal(dec(2.5)))
	require.Len(t, s.RateChanges, 2)
	assert.True(t, s.RateChanges[0].Delta.Equal(dec(4)))
	assert.Equal(t, day(2025, time.February, 1), s.RateChanges[0].Date)
	assert.True(t, s.RateChanges[1].Delta.Equal(dec(-1.5)))
}

func TestAggregateAdjustments_UnparseableAmountIsZero(t *testing.T) {
	s := units.AggregateAdjustments([]units.Adjustment{
		{ID: "a", Type: "units_increase", Amount: "lots"},
		{ID: "b", Type: "units_increase", Amount: "4 hrs"},
		{ID: "c", Type: "rate_increase", Amount: "??", EffectiveDate: "2025-02-01"},
	})

	assert.True(t, s.UnitDelta.Equal(dec(4)))
	require.Len(t, s.RateChanges, 1)
	assert.True(t, s.RateChanges[0].Delta.IsZero())
}

func TestNormalizeAdjustmentType(t *testing.T) {
	kind, ok := units.NormalizeAdjustmentType("increase")
	require.True(t, ok)
	assert.Equal(t, units.AdjUnitsIncrease, kind)

	kind, ok = units.NormalizeAdjustmentType(" Prior_Usage ")
	require.True(t, ok)
	assert.Equal(t, units.AdjPriorUsage, kind)

	_, ok = units.NormalizeAdjustmentType("refund")
	assert.False(t, ok)
}

// =============================================================================
// UNITS REQUIRED
// =============================================================================

func TestComputeUnitsRequired_SingleRate(t *testing.T) {
	// GIVEN: Jan 1 - Jan 31 at 10 units/week
	// THEN: 31 days less 1ms, ~4.43 weeks, ~44.29 units

	s := units.ComputeUnitsRequired("2025-01-01", "2025-01-31", dec(10), nil)

	require.Len(t, s.Segments, 1)
	assert.InDelta(t, 31.0/7.0, f(s.Segments[0].Weeks), 1e-6)
	assert.InDelta(t, 44.2857, f(s.UnitsRequired), 0.001)
	assert.True(t, s.CurrentRate.Equal(dec(10)))
}

func TestComputeUnitsRequired_MidPeriodRateIncrease(t *testing.T) {
	// GIVEN: Jan 1 - Feb 28, base 5/week, +5 effective Feb 1
	// THEN: Two segments (Jan at 5, Feb at 10), current rate 10

	changes := units.AggregateAdjustments([]units.Adjustment{adj("rate_increase", 5, "2025-02-01")}).RateChanges
	s := units.ComputeUnitsRequired("2025-01-01", "2025-02-28", dec(5), changes)

	require.Len(t, s.Segments, 2)
	jan, feb := s.Segments[0], s.Segments[1]

	assert.Equal(t, day(2025, time.January, 1), jan.Start)
	assert.Equal(t, day(2025, time.February, 1).Add(-time.Millisecond), jan.End)
	assert.True(t, jan.Rate.Equal(dec(5)))
	assert.InDelta(t, 22.1429, f(jan.Units()), 0.001)

	assert.Equal(t, day(2025, time.February, 1), feb.Start)
	assert.True(t, feb.Rate.Equal(dec(10)))
	assert.InDelta(t, 40.0, f(feb.Units()), 0.001)

	assert.InDelta(t, 62.1429, f(s.UnitsRequired), 0.001)
	assert.True(t, s.CurrentRate.Equal(dec(10)))
}

func TestComputeUnitsRequired_SegmentsCoverWindowExactly(t *testing.T) {
	// GIVEN: Changes on the first day, mid-window, the last day, and outside the window
	// THEN: Segments are contiguous (1ms apart) and span exactly [start, end]

	changes := units.AggregateAdjustments([]units.Adjustment{
		adj("rate_increase", 2, "2025-01-01"),
		adj("rate_decrease", 1, "2025-02-10"),
		adj("rate_increase", 3, "2025-01-20"),
		adj("rate_increase", 7, "2025-03-31"),
		adj("rate_increase", 100, "2025-05-01"),
		adj("rate_increase", 100, "2024-12-31"),
	}).RateChanges

	s := units.ComputeUnitsRequired("2025-01-01", "2025-03-31", dec(4), changes)

	require.NotEmpty(t, s.Segments)
	assert.Equal(t, day(2025, time.January, 1), s.Segments[0].Start)
	assert.Equal(t, day(2025, time.April, 1).Add(-time.Millisecond), s.Segments[len(s.Segments)-1].End)
	for i := 1; i < len(s.Segments); i++ {
		assert.Equal(t, s.Segments[i-1].End.Add(time.Millisecond), s.Segments[i].Start, "gap at segment %d", i)
	}
	assert.Len(t, s.Segments, 4)
	assert.True(t, s.CurrentRate.Equal(dec(15)), "got %s", s.CurrentRate)

	total := decimal.Zero
	for _, seg := range s.Segments {
		total = total.Add(seg.Weeks)
	}
	assert.InDelta(t, 90.0/7.0, f(total), 1e-6)
}

func TestComputeUnitsRequired_MonotonicInRateIncrease(t *testing.T) {
	prev := decimal.NewFromInt(-1)
	for amount := 0.0; amount <= 10; amount += 0.5 {
		changes := units.AggregateAdjustments([]units.Adjustment{adj("rate_increase", amount, "2025-03-15")}).RateChanges
		s := units.ComputeUnitsRequired("2025-01-01", "2025-06-30", dec(3), changes)
		assert.True(t, s.UnitsRequired.GreaterThanOrEqual(prev), "amount %v decreased units required", amount)
		prev = s.UnitsRequired
	}
}

func TestComputeUnitsRequired_InvalidWindow(t *testing.T) {
	s := units.ComputeUnitsRequired("", "2025-01-31", dec(6), nil)
	assert.True(t, s.UnitsRequired.IsZero())
	assert.True(t, s.CurrentRate.Equal(dec(6)))
	assert.Empty(t, s.Segments)

	s = units.ComputeUnitsRequired("2025-02-01", "2025-01-01", dec(6), nil)
	assert.True(t, s.UnitsRequired.IsZero())
}
