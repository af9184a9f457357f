package casebook

import (
	"context"
	"time"

	"github.com/warp/casebook/units"
)

// =============================================================================
// BALANCES - Engine runs over freshly loaded snapshots
// =============================================================================

// BalanceQuery selects which authorization a balance is computed for.
type BalanceQuery struct {
	// ServiceType of the visit being considered. Empty resolves across every
	// authorization type; Summary gives one balance per type.
	ServiceType string

	// AsOf selects the active authorization. Defaults to the candidate's date,
	// then to now.
	AsOf time.Time

	// Candidate is an unsaved or edited entry to preview.
	Candidate *units.ServiceEntry
}

// ServiceBalance is one row of a profile summary.
type ServiceBalance struct {
	ServiceType string              `json:"serviceType"`
	Result      units.BalanceResult `json:"result"`
}

// Balance derives the balance for one profile.
func (s *Service) Balance(ctx context.Context, profileID string, q BalanceQuery) (units.BalanceResult, error) {
	p, entries, err := s.snapshot(ctx, profileID)
	if err != nil {
		return units.BalanceResult{}, err
	}
	return units.ComputeBalance(s.input(p, entries, q)), nil
}

// Preview derives the balance as it would be with candidate saved: the
// "remaining after this visit" figures shown while an entry is being edited.
func (s *Service) Preview(ctx context.Context, profileID string, candidate units.ServiceEntry) (units.BalanceResult, error) {
	return s.Balance(ctx, profileID, BalanceQuery{Candidate: &candidate})
}

// Summary returns one balance per service type with an active authorization,
// ordered by service type. A profile without usable history gets a single row
// for its legacy authorization; a profile with neither gets none.
func (s *Service) Summary(ctx context.Context, profileID string, asOf time.Time) ([]ServiceBalance, error) {
	p, entries, err := s.snapshot(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if asOf.IsZero() {
		asOf = s.now()
	}
	in := s.input(p, entries, BalanceQuery{AsOf: asOf})

	out := make([]ServiceBalance, 0)
	for _, a := range units.ActiveByServiceType(p.AuthorizationHistory, asOf) {
		out = append(out, ServiceBalance{
			ServiceType: a.ServiceType,
			Result:      units.ComputeBalanceFor(units.FromHistory(a), in),
		})
	}
	if len(out) > 0 {
		return out, nil
	}

	if res := units.ComputeBalance(in); res.HasAuthorization {
		out = append(out, ServiceBalance{ServiceType: res.EffectiveAuth.ServiceType, Result: res})
	}
	return out, nil
}

func (s *Service) snapshot(ctx context.Context, profileID string) (units.Profile, []units.ServiceEntry, error) {
	p, err := s.GetProfile(ctx, profileID)
	if err != nil {
		return units.Profile{}, nil, err
	}
	entries, err := s.ListEntries(ctx)
	if err != nil {
		return units.Profile{}, nil, err
	}
	return p, entries, nil
}

func (s *Service) input(p units.Profile, entries []units.ServiceEntry, q BalanceQuery) units.BalanceInput {
	return units.BalanceInput{
		Profile:         p,
		Entries:         entries,
		ServiceType:     q.ServiceType,
		Candidate:       q.Candidate,
		AsOf:            q.AsOf,
		Today:           s.now(),
		RunningLowWeeks: s.runningLowWeeks,
	}
}
