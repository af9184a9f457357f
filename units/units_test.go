package units_test

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/casebook/units"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func noon(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 12, 0, 0, 0, time.UTC)
}

func dec(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

func f(d decimal.Decimal) float64 {
	v, _ := d.Float64()
	return v
}

func auth(id, serviceType, start, end string) units.Authorization {
	return units.Authorization{
		ID:          id,
		ServiceType: serviceType,
		StartDate:   units.Date(start),
		EndDate:     units.Date(end),
	}
}

func adj(kind string, amount float64, effective string) units.Adjustment {
	return units.Adjustment{
		ID:            kind + "-" + effective,
		Type:          kind,
		Amount:        units.Q(amount),
		EffectiveDate: units.Date(effective),
	}
}

func entry(id, date, serviceType, start, end string) units.ServiceEntry {
	return units.ServiceEntry{
		ID:                 id,
		Date:               units.Date(date),
		ServiceType:        serviceType,
		StartTime:          start,
		EndTime:            end,
		FamilyDirectoryKey: "fam-1",
	}
}

func profile(history ...units.Authorization) units.Profile {
	return units.Profile{
		ID:                   "profile-1",
		Key:                  "fam-1",
		FamilyName:           "Rivera",
		MCNumber:             "MC-100",
		AuthorizationHistory: history,
	}
}
