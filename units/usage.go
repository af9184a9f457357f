package units

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CONSUMPTION - Units used by one entry
// =============================================================================

// Usage is consumption split by measure.
type Usage struct {
	Hours       decimal.Decimal `json:"hours"`
	Occurrences decimal.Decimal `json:"occurrences"`
}

// Total returns hours plus occurrences.
func (u Usage) Total() decimal.Decimal {
	return u.Hours.Add(u.Occurrences)
}

// Add sums two usages.
func (u Usage) Add(o Usage) Usage {
	return Usage{Hours: u.Hours.Add(o.Hours), Occurrences: u.Occurrences.Add(o.Occurrences)}
}

func zeroUsage() Usage {
	return Usage{Hours: decimal.Zero, Occurrences: decimal.Zero}
}

var sixty = decimal.NewFromInt(60)

// Consumption returns the units an entry consumes. Drug tests consume one
// occurrence regardless of times. Other entries consume their HH:MM duration
// in hours, rounded to two places and never negative; missing or malformed
// times consume nothing.
func Consumption(e ServiceEntry) Usage {
	u := zeroUsage()
	if IsDrugTest(e.ServiceType) {
		u.Occurrences = decimal.NewFromInt(1)
		return u
	}
	start, ok := parseClock(e.StartTime)
	if !ok {
		return u
	}
	end, ok := parseClock(e.EndTime)
	if !ok {
		return u
	}
	minutes := end - start
	if minutes <= 0 {
		return u
	}
	u.Hours = decimal.NewFromInt(int64(minutes)).Div(sixty).Round(2)
	return u
}

// parseClock parses "HH:MM" (also "H:MM" and "HH:MM:SS") into minutes after
// midnight.
func parseClock(s string) (int, bool) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 24 {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	if h == 24 && m != 0 {
		return 0, false
	}
	return h*60 + m, true
}

// =============================================================================
// ENTRY-TO-PROFILE MATCHING
// =============================================================================

// MatchesProfile reports whether an entry belongs to a profile.
//
// Priority:
//  1. entry directory key equals the profile key
//  2. entry directory key equals the profile family id or MC number
//  3. without a directory key: family id, then master case, then family name
//     (case-insensitive); a name match is rejected when both sides carry
//     different master case numbers
func MatchesProfile(e ServiceEntry, p Profile) bool {
	dirKey := strings.TrimSpace(e.FamilyDirectoryKey)
	if dirKey != "" {
		return equalNonEmpty(dirKey, p.Key) ||
			equalNonEmpty(dirKey, p.FamilyID) ||
			equalNonEmpty(dirKey, p.MCNumber)
	}

	if equalNonEmpty(e.FamilyID, p.FamilyID) {
		return true
	}
	entryMC := strings.TrimSpace(e.MasterCase)
	profileMC := strings.TrimSpace(p.MCNumber)
	if equalNonEmpty(entryMC, profileMC) {
		return true
	}

	name := strings.TrimSpace(e.FamilyName)
	if name == "" || !strings.EqualFold(name, strings.TrimSpace(p.FamilyName)) {
		return false
	}
	if entryMC != "" && profileMC != "" && entryMC != profileMC {
		return false
	}
	return true
}

func equalNonEmpty(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	return a != "" && a == b
}
