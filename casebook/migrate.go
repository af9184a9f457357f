package casebook

import (
	"context"
	"errors"
	"fmt"

	"github.com/warp/casebook/units"
)

// =============================================================================
// LEGACY MIGRATION
// =============================================================================
// Profiles written before authorization history existed carry one
// authorization in flat fields. Migration moves it into a single GENERAL
// history record so the profile resolves the same way through history.

// MigrateLegacy converts a profile's legacy authorization fields into one
// history record. It reports false, without writing, when the profile already
// has history or its legacy dates do not form a valid window.
func (s *Service) MigrateLegacy(ctx context.Context, profileID string) (units.Profile, bool, error) {
	var migrated *units.Authorization
	p, err := s.mutateProfile(ctx, profileID, func(p *units.Profile) error {
		a, ok := s.legacyRecord(*p)
		if !ok {
			return errNothingToMigrate
		}
		p.AuthorizationHistory = []units.Authorization{a}
		p.AuthStartDate = ""
		p.AuthEndDate = ""
		p.UnitsPerWeek = ""
		p.TotalUnits = ""
		p.UnitAdjustments = nil
		migrated = &a
		return nil
	})
	if errors.Is(err, errNothingToMigrate) {
		p, err = s.GetProfile(ctx, profileID)
		return p, false, err
	}
	if err != nil {
		return units.Profile{}, false, err
	}

	s.record(ctx, AuditLegacyMigrated, profileID, migrated.ID, migrated)
	s.log.Info().Str("profile_id", profileID).Str("authorization_id", migrated.ID).Msg("legacy authorization migrated")
	return p, true, nil
}

// MigrateAllLegacy runs MigrateLegacy over every profile and returns how many
// were converted.
func (s *Service) MigrateAllLegacy(ctx context.Context) (int, error) {
	profiles, err := s.ListProfiles(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range profiles {
		if len(p.AuthorizationHistory) > 0 || !p.HasLegacyAuthorization() {
			continue
		}
		_, ok, err := s.MigrateLegacy(ctx, p.ID)
		if err != nil {
			return n, fmt.Errorf("migrate profile %s: %w", p.ID, err)
		}
		if ok {
			n++
		}
	}
	return n, nil
}

var errNothingToMigrate = errors.New("nothing to migrate")

func (s *Service) legacyRecord(p units.Profile) (units.Authorization, bool) {
	if len(p.AuthorizationHistory) > 0 || !p.HasLegacyAuthorization() {
		return units.Authorization{}, false
	}
	if _, ok := units.NewWindow(p.AuthStartDate, p.AuthEndDate); !ok {
		return units.Authorization{}, false
	}

	var adjustments []units.Adjustment
	for _, adj := range p.UnitAdjustments {
		if kind, ok := adj.Kind(); ok {
			adj.Type = string(kind)
		}
		if adj.ID == "" {
			adj.ID = s.newID()
		}
		adjustments = append(adjustments, adj)
	}

	now := s.now()
	return units.Authorization{
		ID:           s.newID(),
		ServiceType:  units.ServiceGeneral,
		StartDate:    p.AuthStartDate,
		EndDate:      p.AuthEndDate,
		UnitsPerWeek: p.UnitsPerWeek,
		TotalUnits:   p.TotalUnits,
		Adjustments:  adjustments,
		Notes:        "Migrated from legacy authorization fields",
		CreatedAt:    now,
		UpdatedAt:    now,
	}, true
}
