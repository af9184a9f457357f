/*
Package casebook is the family-services case service: it owns profiles and
service entries through a DocumentStore and runs the units engine over them.

PURPOSE:
  Package units derives balances from snapshots and never touches storage.
  This package loads those snapshots, applies authorization lifecycle
  changes (add, edit, archive, adjust, migrate) with entry-time validation,
  records an audit trail, and re-derives balances when documents change.

CONCURRENCY:
  Profile mutations are read-modify-write on a whole document. The Service
  serializes them with a mutex, so one process never loses an update. Several
  processes sharing a Redis store can still race; last write wins.

ACTOR:
  Audit entries name the user who made a change. Callers attach it to the
  context with WithActor; the HTTP layer does this from X-User-Email.

SEE ALSO:
  - units/balance.go: ComputeBalance
  - authorizations.go: Authorization lifecycle
  - watch.go: Reactive recomputation
*/
package casebook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/warp/casebook/units"
)

// Service is the casebook application service.
type Service struct {
	docs            DocumentStore
	log             zerolog.Logger
	now             func() time.Time
	newID           func() string
	runningLowWeeks int

	mu       sync.Mutex // serializes profile read-modify-write
	auditSeq atomic.Int64
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRunningLowWeeks sets the running-low threshold used by Balance.
func WithRunningLowWeeks(weeks int) Option {
	return func(s *Service) {
		if weeks > 0 {
			s.runningLowWeeks = weeks
		}
	}
}

// NewService creates a Service on top of a document store.
func NewService(docs DocumentStore, opts ...Option) *Service {
	s := &Service{
		docs:            docs,
		log:             zerolog.Nop(),
		now:             time.Now,
		newID:           uuid.NewString,
		runningLowWeeks: units.DefaultRunningLowWeeks,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the service clock's current time.
func (s *Service) Now() time.Time { return s.now() }

// =============================================================================
// ACTOR
// =============================================================================

type actorKey struct{}

// SystemActor is recorded when no user is attached to the context.
const SystemActor = "system"

// WithActor attaches the acting user's email to ctx.
func WithActor(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, actorKey{}, strings.ToLower(strings.TrimSpace(email)))
}

// ActorFrom returns the acting user, or SystemActor.
func ActorFrom(ctx context.Context) string {
	if a, ok := ctx.Value(actorKey{}).(string); ok && a != "" {
		return a
	}
	return SystemActor
}

// =============================================================================
// DOCUMENT HELPERS
// =============================================================================

func load[T any](ctx context.Context, docs DocumentStore, c Collection, id string) (T, error) {
	var v T
	data, err := docs.Get(ctx, c, id)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("decode %s/%s: %w", c, id, err)
	}
	return v, nil
}

func save[T any](ctx context.Context, docs DocumentStore, c Collection, id string, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", c, id, err)
	}
	return docs.Put(ctx, c, id, data)
}

// loadAll decodes every document in c. Documents that fail to decode are
// logged and skipped so one bad record cannot hide the rest.
func loadAll[T any](ctx context.Context, s *Service, c Collection) ([]T, error) {
	docs, err := s.docs.List(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", c, err)
	}
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		var v T
		if err := json.Unmarshal(d.Data, &v); err != nil {
			s.log.Warn().Err(err).Str("collection", string(c)).Str("id", d.ID).Msg("skipping undecodable document")
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// =============================================================================
// PROFILES
// =============================================================================

// GetProfile loads one profile.
func (s *Service) GetProfile(ctx context.Context, id string) (units.Profile, error) {
	p, err := load[units.Profile](ctx, s.docs, Profiles, id)
	if errors.Is(err, ErrNotFound) {
		return units.Profile{}, fmt.Errorf("profile %s: %w", id, ErrProfileNotFound)
	}
	if err != nil {
		return units.Profile{}, fmt.Errorf("load profile %s: %w", id, err)
	}
	if p.ID == "" {
		p.ID = id
	}
	return p, nil
}

// ListProfiles returns all profiles ordered by family name.
func (s *Service) ListProfiles(ctx context.Context) ([]units.Profile, error) {
	profiles, err := loadAll[units.Profile](ctx, s, Profiles)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(profiles, func(i, j int) bool {
		return strings.ToLower(profiles[i].FamilyName) < strings.ToLower(profiles[j].FamilyName)
	})
	return profiles, nil
}

// SaveProfile creates or updates a profile. A new profile gets an id and
// createdAt. On update, createdAt is kept, and a nil AuthorizationHistory keeps
// the stored history so a details-only edit cannot drop authorizations.
func (s *Service) SaveProfile(ctx context.Context, p units.Profile) (units.Profile, error) {
	p.FamilyName = strings.TrimSpace(p.FamilyName)
	p.Key = strings.TrimSpace(p.Key)
	if p.FamilyName == "" && p.Key == "" {
		return units.Profile{}, fmt.Errorf("profile needs a family name or key: %w", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if p.ID == "" {
		p.ID = s.newID()
		p.CreatedAt = now
	} else {
		existing, err := s.GetProfile(ctx, p.ID)
		switch {
		case err == nil:
			p.CreatedAt = existing.CreatedAt
			if p.AuthorizationHistory == nil {
				p.AuthorizationHistory = existing.AuthorizationHistory
			}
		case errors.Is(err, ErrProfileNotFound):
			p.CreatedAt = now
		default:
			return units.Profile{}, err
		}
	}
	p.UpdatedAt = now

	if err := save(ctx, s.docs, Profiles, p.ID, p); err != nil {
		s.log.Error().Err(err).Str("profile_id", p.ID).Msg("failed to save profile")
		return units.Profile{}, fmt.Errorf("save profile %s: %w", p.ID, err)
	}
	return p, nil
}

// DeleteProfile removes a profile. Its entries are left in place.
func (s *Service) DeleteProfile(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.docs.Delete(ctx, Profiles, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("profile %s: %w", id, ErrProfileNotFound)
		}
		return fmt.Errorf("delete profile %s: %w", id, err)
	}
	s.record(ctx, AuditProfileDeleted, id, "", nil)
	s.log.Info().Str("profile_id", id).Str("actor", ActorFrom(ctx)).Msg("profile deleted")
	return nil
}

// mutateProfile applies fn to a loaded profile and saves the result.
func (s *Service) mutateProfile(ctx context.Context, profileID string, fn func(p *units.Profile) error) (units.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.GetProfile(ctx, profileID)
	if err != nil {
		return units.Profile{}, err
	}
	if err := fn(&p); err != nil {
		return units.Profile{}, err
	}
	p.UpdatedAt = s.now()
	if err := save(ctx, s.docs, Profiles, p.ID, p); err != nil {
		s.log.Error().Err(err).Str("profile_id", p.ID).Msg("failed to save profile")
		return units.Profile{}, fmt.Errorf("save profile %s: %w", p.ID, err)
	}
	return p, nil
}

// =============================================================================
// SERVICE ENTRIES
// =============================================================================

// SaveEntry creates or replaces a service entry.
func (s *Service) SaveEntry(ctx context.Context, e units.ServiceEntry) (units.ServiceEntry, error) {
	if e.ID == "" {
		e.ID = s.newID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	if err := save(ctx, s.docs, Entries, e.ID, e); err != nil {
		s.log.Error().Err(err).Str("entry_id", e.ID).Msg("failed to save entry")
		return units.ServiceEntry{}, fmt.Errorf("save entry %s: %w", e.ID, err)
	}
	return e, nil
}

// ListEntries returns every service entry ordered by date, then id.
func (s *Service) ListEntries(ctx context.Context) ([]units.ServiceEntry, error) {
	entries, err := loadAll[units.ServiceEntry](ctx, s, Entries)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Date != entries[j].Date {
			return entries[i].Date < entries[j].Date
		}
		return entries[i].ID < entries[j].ID
	})
	return entries, nil
}

// EntriesFor returns the entries that belong to a profile.
func (s *Service) EntriesFor(ctx context.Context, profileID string) ([]units.ServiceEntry, error) {
	p, err := s.GetProfile(ctx, profileID)
	if err != nil {
		return nil, err
	}
	all, err := s.ListEntries(ctx)
	if err != nil {
		return nil, err
	}
	var out []units.ServiceEntry
	for _, e := range all {
		if units.MatchesProfile(e, p) {
			out = append(out, e)
		}
	}
	return out, nil
}

// DeleteEntry removes a service entry.
func (s *Service) DeleteEntry(ctx context.Context, id string) error {
	if err := s.docs.Delete(ctx, Entries, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("entry %s: %w", id, ErrEntryNotFound)
		}
		return fmt.Errorf("delete entry %s: %w", id, err)
	}
	return nil
}
