/*
authorizations.go - Authorization lifecycle on a profile

PURPOSE:
  Adds, edits, archives and deletes records in a profile's authorization
  history, and adds or removes their adjustments. Each change is saved as a
  new version of the whole profile document and written to the audit log.

LIFECYCLE:
  created (id + createdAt assigned)
    -> edited        (fields merged; id and createdAt never change)
    -> archived      (soft delete; excluded from resolution, reversible)
    -> deleted       (hard delete; gone from history)

VALIDATION:
  Saved authorizations must have two parseable dates with end >= start.
  Adjustments must have a known type and a numeric amount. The engine itself
  still tolerates bad records already in storage.

SEE ALSO:
  - units/resolver.go: How the active authorization is chosen
  - migrate.go: Converting legacy single-authorization fields
*/
package casebook

import (
	"context"
	"fmt"
	"strings"

	"github.com/warp/casebook/units"
)

// AuthorizationPatch lists the fields EditAuthorization may change.
// Nil fields are left as they are.
type AuthorizationPatch struct {
	ServiceType  *string
	StartDate    *units.Date
	EndDate      *units.Date
	UnitsPerWeek *units.Quantity
	TotalUnits   *units.Quantity
	Notes        *string
	Adjustments  *[]units.Adjustment
}

// =============================================================================
// AUTHORIZATIONS
// =============================================================================

// AddAuthorization appends a new authorization to the profile's history.
func (s *Service) AddAuthorization(ctx context.Context, profileID string, a units.Authorization) (units.Authorization, error) {
	if err := validateDates(a.StartDate, a.EndDate); err != nil {
		return units.Authorization{}, err
	}
	adjustments, err := s.normalizeAdjustments(a.Adjustments)
	if err != nil {
		return units.Authorization{}, err
	}

	now := s.now()
	a.ID = s.newID()
	a.ServiceType = strings.TrimSpace(a.ServiceType)
	a.Adjustments = adjustments
	a.CreatedAt = now
	a.UpdatedAt = now

	if _, err := s.mutateProfile(ctx, profileID, func(p *units.Profile) error {
		p.AuthorizationHistory = append(p.AuthorizationHistory, a)
		return nil
	}); err != nil {
		return units.Authorization{}, err
	}

	s.record(ctx, AuditAuthorizationAdded, profileID, a.ID, a)
	s.log.Info().
		Str("profile_id", profileID).
		Str("authorization_id", a.ID).
		Str("service_type", a.ServiceType).
		Str("actor", ActorFrom(ctx)).
		Msg("authorization added")
	return a, nil
}

// EditAuthorization merges patch into an existing authorization.
func (s *Service) EditAuthorization(ctx context.Context, profileID, authID string, patch AuthorizationPatch) (units.Authorization, error) {
	var edited units.Authorization
	_, err := s.mutateProfile(ctx, profileID, func(p *units.Profile) error {
		a, i, ok := units.FindAuthorization(p.AuthorizationHistory, authID)
		if !ok {
			return fmt.Errorf("authorization %s: %w", authID, ErrAuthorizationNotFound)
		}

		if patch.ServiceType != nil {
			a.ServiceType = strings.TrimSpace(*patch.ServiceType)
		}
		if patch.StartDate != nil {
			a.StartDate = *patch.StartDate
		}
		if patch.EndDate != nil {
			a.EndDate = *patch.EndDate
		}
		if patch.UnitsPerWeek != nil {
			a.UnitsPerWeek = *patch.UnitsPerWeek
		}
		if patch.TotalUnits != nil {
			a.TotalUnits = *patch.TotalUnits
		}
		if patch.Notes != nil {
			a.Notes = *patch.Notes
		}
		if patch.Adjustments != nil {
			adjustments, err := s.normalizeAdjustments(*patch.Adjustments)
			if err != nil {
				return err
			}
			a.Adjustments = adjustments
		}
		if err := validateDates(a.StartDate, a.EndDate); err != nil {
			return err
		}

		a.UpdatedAt = s.now()
		p.AuthorizationHistory[i] = a
		edited = a
		return nil
	})
	if err != nil {
		return units.Authorization{}, err
	}

	s.record(ctx, AuditAuthorizationEdited, profileID, authID, edited)
	s.log.Info().Str("profile_id", profileID).Str("authorization_id", authID).Msg("authorization edited")
	return edited, nil
}

// ArchiveAuthorization hides an authorization from resolution.
func (s *Service) ArchiveAuthorization(ctx context.Context, profileID, authID string) (units.Authorization, error) {
	return s.setArchived(ctx, profileID, authID, true)
}

// UnarchiveAuthorization restores an archived authorization.
func (s *Service) UnarchiveAuthorization(ctx context.Context, profileID, authID string) (units.Authorization, error) {
	return s.setArchived(ctx, profileID, authID, false)
}

func (s *Service) setArchived(ctx context.Context, profileID, authID string, archived bool) (units.Authorization, error) {
	var updated units.Authorization
	_, err := s.mutateProfile(ctx, profileID, func(p *units.Profile) error {
		a, i, ok := units.FindAuthorization(p.AuthorizationHistory, authID)
		if !ok {
			return fmt.Errorf("authorization %s: %w", authID, ErrAuthorizationNotFound)
		}
		a.IsArchived = archived
		a.UpdatedAt = s.now()
		p.AuthorizationHistory[i] = a
		updated = a
		return nil
	})
	if err != nil {
		return units.Authorization{}, err
	}

	action := AuditAuthorizationArchived
	if !archived {
		action = AuditAuthorizationUnarchived
	}
	s.record(ctx, action, profileID, authID, nil)
	s.log.Info().Str("profile_id", profileID).Str("authorization_id", authID).Bool("archived", archived).Msg("authorization archive state changed")
	return updated, nil
}

// DeleteAuthorization removes an authorization from history permanently.
func (s *Service) DeleteAuthorization(ctx context.Context, profileID, authID string) error {
	var removed units.Authorization
	_, err := s.mutateProfile(ctx, profileID, func(p *units.Profile) error {
		a, i, ok := units.FindAuthorization(p.AuthorizationHistory, authID)
		if !ok {
			return fmt.Errorf("authorization %s: %w", authID, ErrAuthorizationNotFound)
		}
		removed = a
		p.AuthorizationHistory = append(p.AuthorizationHistory[:i:i], p.AuthorizationHistory[i+1:]...)
		return nil
	})
	if err != nil {
		return err
	}

	s.record(ctx, AuditAuthorizationDeleted, profileID, authID, removed)
	s.log.Info().Str("profile_id", profileID).Str("authorization_id", authID).Msg("authorization deleted")
	return nil
}

// =============================================================================
// ADJUSTMENTS
// =============================================================================

// AddAdjustment appends an adjustment to an authorization. The type is stored
// in canonical form.
func (s *Service) AddAdjustment(ctx context.Context, profileID, authID string, adj units.Adjustment) (units.Adjustment, error) {
	adj.ID = ""
	normalized, err := s.normalizeAdjustments([]units.Adjustment{adj})
	if err != nil {
		return units.Adjustment{}, err
	}
	adj = normalized[0]

	_, err = s.mutateProfile(ctx, profileID, func(p *units.Profile) error {
		a, i, ok := units.FindAuthorization(p.AuthorizationHistory, authID)
		if !ok {
			return fmt.Errorf("authorization %s: %w", authID, ErrAuthorizationNotFound)
		}
		a.Adjustments = append(a.Adjustments, adj)
		a.UpdatedAt = s.now()
		p.AuthorizationHistory[i] = a
		return nil
	})
	if err != nil {
		return units.Adjustment{}, err
	}

	s.record(ctx, AuditAdjustmentAdded, profileID, authID, adj)
	s.log.Info().
		Str("profile_id", profileID).
		Str("authorization_id", authID).
		Str("type", adj.Type).
		Str("amount", adj.Amount.String()).
		Msg("adjustment added")
	return adj, nil
}

// RemoveAdjustment deletes one adjustment from an authorization.
func (s *Service) RemoveAdjustment(ctx context.Context, profileID, authID, adjID string) error {
	var removed units.Adjustment
	_, err := s.mutateProfile(ctx, profileID, func(p *units.Profile) error {
		a, i, ok := units.FindAuthorization(p.AuthorizationHistory, authID)
		if !ok {
			return fmt.Errorf("authorization %s: %w", authID, ErrAuthorizationNotFound)
		}
		kept := make([]units.Adjustment, 0, len(a.Adjustments))
		found := false
		for _, adj := range a.Adjustments {
			if adj.ID == adjID && !found {
				removed = adj
				found = true
				continue
			}
			kept = append(kept, adj)
		}
		if !found {
			return fmt.Errorf("adjustment %s: %w", adjID, ErrAdjustmentNotFound)
		}
		a.Adjustments = kept
		a.UpdatedAt = s.now()
		p.AuthorizationHistory[i] = a
		return nil
	})
	if err != nil {
		return err
	}

	s.record(ctx, AuditAdjustmentRemoved, profileID, authID, removed)
	s.log.Info().Str("profile_id", profileID).Str("authorization_id", authID).Str("adjustment_id", adjID).Msg("adjustment removed")
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

func validateDates(start, end units.Date) error {
	if _, ok := units.NewWindow(start, end); !ok {
		return &DateRangeError{Start: start, End: end}
	}
	return nil
}

// normalizeAdjustments validates adjustments, assigns missing ids and rewrites
// types to their canonical form.
func (s *Service) normalizeAdjustments(in []units.Adjustment) ([]units.Adjustment, error) {
	if in == nil {
		return nil, nil
	}
	out := make([]units.Adjustment, len(in))
	for i, adj := range in {
		kind, ok := adj.Kind()
		if !ok {
			return nil, &AdjustmentTypeError{Type: adj.Type}
		}
		if !adj.Amount.Valid() {
			return nil, fmt.Errorf("adjustment amount %q is not a number: %w", adj.Amount, ErrInvalidInput)
		}
		if adj.Amount.Decimal().IsNegative() {
			return nil, fmt.Errorf("adjustment amount %q is negative: %w", adj.Amount, ErrInvalidInput)
		}
		isRate := kind == units.AdjRateIncrease || kind == units.AdjRateDecrease
		if isRate || !adj.EffectiveDate.IsZero() {
			if _, ok := adj.EffectiveDate.Parse(); !ok {
				return nil, fmt.Errorf("adjustment effective date %q: %w", adj.EffectiveDate, ErrInvalidInput)
			}
		}
		adj.Type = string(kind)
		if adj.ID == "" {
			adj.ID = s.newID()
		}
		out[i] = adj
	}
	return out, nil
}
