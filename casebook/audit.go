package casebook

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// =============================================================================
// AUDIT LOG - Who changed which authorization, and when
// =============================================================================

type AuditAction string

const (
	AuditAuthorizationAdded      AuditAction = "authorization_added"
	AuditAuthorizationEdited     AuditAction = "authorization_edited"
	AuditAuthorizationArchived   AuditAction = "authorization_archived"
	AuditAuthorizationUnarchived AuditAction = "authorization_unarchived"
	AuditAuthorizationDeleted    AuditAction = "authorization_deleted"
	AuditAdjustmentAdded         AuditAction = "adjustment_added"
	AuditAdjustmentRemoved       AuditAction = "adjustment_removed"
	AuditLegacyMigrated          AuditAction = "legacy_migrated"
	AuditProfileDeleted          AuditAction = "profile_deleted"
)

// AuditEntry records one change. Entries are never updated or deleted.
type AuditEntry struct {
	ID              string          `json:"id"`
	Actor           string          `json:"actor"`
	Action          AuditAction     `json:"action"`
	ProfileID       string          `json:"profileId"`
	AuthorizationID string          `json:"authorizationId,omitempty"`
	At              time.Time       `json:"at"`
	Seq             int64           `json:"seq"`
	Payload         json.RawMessage `json:"payload,omitempty"`
}

// record appends an audit entry. The change it describes is already saved,
// so a failure here is logged rather than returned.
func (s *Service) record(ctx context.Context, action AuditAction, profileID, authID string, payload any) {
	entry := AuditEntry{
		ID:              s.newID(),
		Actor:           ActorFrom(ctx),
		Action:          action,
		ProfileID:       profileID,
		AuthorizationID: authID,
		At:              s.now(),
		Seq:             s.nextAuditSeq(),
	}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err == nil {
			entry.Payload = b
		}
	}
	if err := save(ctx, s.docs, Audit, entry.ID, entry); err != nil {
		s.log.Error().Err(err).
			Str("action", string(action)).
			Str("profile_id", profileID).
			Msg("failed to write audit entry")
	}
}

// nextAuditSeq orders entries written at the same instant. It follows the
// wall clock in nanoseconds so it keeps increasing across restarts.
func (s *Service) nextAuditSeq() int64 {
	for {
		last := s.auditSeq.Load()
		next := time.Now().UnixNano()
		if next <= last {
			next = last + 1
		}
		if s.auditSeq.CompareAndSwap(last, next) {
			return next
		}
	}
}

// AuditLog returns a profile's audit entries, newest first. Entries with the
// same timestamp come back in reverse order of writing.
func (s *Service) AuditLog(ctx context.Context, profileID string) ([]AuditEntry, error) {
	all, err := loadAll[AuditEntry](ctx, s, Audit)
	if err != nil {
		return nil, fmt.Errorf("audit log: %w", err)
	}
	out := make([]AuditEntry, 0)
	for _, e := range all {
		if e.ProfileID == profileID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].At.Equal(out[j].At) {
			return out[i].At.After(out[j].At)
		}
		return out[i].Seq > out[j].Seq
	})
	return out, nil
}
