/*
schedule.go - Units required over an authorization window

PURPOSE:
  Integrates a piecewise-constant weekly rate across the authorization
  window. The result is how many units the family would need to receive
  service at the authorized rate for the whole period; comparing it with
  the adjusted grant reveals a shortage before it happens.

SEGMENTS:
  Rate changes split the window. Each segment ends 1ms before the next
  change, so segments are contiguous and never overlap:

    [Jan 1 00:00:00.000, Jan 31 23:59:59.999] rate 5
    [Feb 1 00:00:00.000, Feb 28 23:59:59.999] rate 10

  Week fractions are real-valued (ms / 604,800,000), not rounded.
*/
package units

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

var msPerWeek = decimal.NewFromInt(week.Milliseconds())

// RateSegment is a sub-interval with a constant weekly rate.
type RateSegment struct {
	Start time.Time       `json:"start"`
	End   time.Time       `json:"end"`
	Rate  decimal.Decimal `json:"rate"`
	Weeks decimal.Decimal `json:"weeks"`
}

// Units returns rate * weeks for the segment.
func (s RateSegment) Units() decimal.Decimal {
	return s.Rate.Mul(s.Weeks)
}

// Schedule is the result of integrating the rate over a window.
type Schedule struct {
	UnitsRequired decimal.Decimal `json:"unitsRequired"`
	CurrentRate   decimal.Decimal `json:"currentRate"`
	Segments      []RateSegment   `json:"segments"`
}

// ComputeUnitsRequired integrates baseRate, modified by rateChanges, over the
// window [start, end]. Changes outside the window are ignored. When the window
// is unusable it returns zero units at the base rate with no segments.
func ComputeUnitsRequired(start, end Date, baseRate decimal.Decimal, rateChanges []RateChange) Schedule {
	w, ok := NewWindow(start, end)
	if !ok {
		return Schedule{UnitsRequired: decimal.Zero, CurrentRate: baseRate, Segments: []RateSegment{}}
	}
	return ComputeSchedule(w, baseRate, rateChanges)
}

// ComputeSchedule is ComputeUnitsRequired over an already-parsed window.
func ComputeSchedule(w Window, baseRate decimal.Decimal, rateChanges []RateChange) Schedule {
	var changes []RateChange
	for _, c := range rateChanges {
		if !c.Date.Before(w.Start) && !c.Date.After(w.End) {
			changes = append(changes, c)
		}
	}
	sort.SliceStable(changes, func(i, j int) bool {
		return changes[i].Date.Before(changes[j].Date)
	})

	var (
		segments     []RateSegment
		rate         = baseRate
		segmentStart = w.Start
	)
	for _, c := range changes {
		if c.Date.After(segmentStart) {
			segments = append(segments, newSegment(segmentStart, c.Date.Add(-time.Millisecond), rate))
		}
		rate = rate.Add(c.Delta)
		segmentStart = c.Date
	}
	if !segmentStart.After(w.End) {
		segments = append(segments, newSegment(segmentStart, w.End, rate))
	}

	required := decimal.Zero
	for _, s := range segments {
		required = required.Add(s.Units())
	}

	return Schedule{
		UnitsRequired: required,
		CurrentRate:   rate,
		Segments:      segments,
	}
}

func newSegment(start, end time.Time, rate decimal.Decimal) RateSegment {
	weeks := decimal.NewFromInt(end.Sub(start).Milliseconds()).Div(msPerWeek)
	if weeks.IsNegative() {
		weeks = decimal.Zero
	}
	return RateSegment{Start: start, End: end, Rate: rate, Weeks: weeks}
}
