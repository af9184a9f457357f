/*
watch.go - Reactive balance recomputation

PURPOSE:
  Keeps a displayed balance current while staff edit a profile or log
  entries. Watch subscribes to the profiles and entries collections and
  re-runs the pure derivation after every change that can affect it.

SCHEDULING:
  Nothing runs in the background. Watch blocks on the caller's goroutine
  and calls fn synchronously; a slow fn delays the next recompute and
  changes that arrive meanwhile are coalesced by the store's buffer.

SEE ALSO:
  - store.go: DocumentStore.Subscribe
  - balance.go: Balance
*/
package casebook

import (
	"context"
	"fmt"

	"github.com/warp/casebook/units"
)

// Watch calls fn with the current balance, then again after each change to
// the profile or to any service entry. It returns when ctx is done (with
// ctx.Err()), when a subscription closes (nil), or when a recompute fails.
func (s *Service) Watch(ctx context.Context, profileID string, q BalanceQuery, fn func(units.BalanceResult)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	profiles, err := s.docs.Subscribe(ctx, Profiles)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", Profiles, err)
	}
	entries, err := s.docs.Subscribe(ctx, Entries)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", Entries, err)
	}

	recompute := func() error {
		res, err := s.Balance(ctx, profileID, q)
		if err != nil {
			return err
		}
		fn(res)
		return nil
	}
	if err := recompute(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c, ok := <-profiles:
			if !ok {
				return ctx.Err()
			}
			if c.ID != profileID {
				continue
			}
			if err := recompute(); err != nil {
				return err
			}
		case _, ok := <-entries:
			if !ok {
				return ctx.Err()
			}
			if err := recompute(); err != nil {
				return err
			}
		}
	}
}
