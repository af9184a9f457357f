// Package storetest holds the behavior every casebook.DocumentStore backend
// must share. Backend tests call Run with a constructor.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/casebook/casebook"
)

// Run exercises a fresh store from newStore against the DocumentStore contract.
func Run(t *testing.T, newStore func(t *testing.T) casebook.DocumentStore) {
	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(context.Background(), casebook.Profiles, "nope")
		assert.ErrorIs(t, err, casebook.ErrNotFound)
	})

	t.Run("PutGetReplace", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Put(ctx, casebook.Profiles, "p1", []byte(`{"id":"p1","familyName":"Rivera"}`)))
		got, err := s.Get(ctx, casebook.Profiles, "p1")
		require.NoError(t, err)
		assert.JSONEq(t, `{"id":"p1","familyName":"Rivera"}`, string(got))

		require.NoError(t, s.Put(ctx, casebook.Profiles, "p1", []byte(`{"id":"p1","familyName":"Nguyen"}`)))
		got, err = s.Get(ctx, casebook.Profiles, "p1")
		require.NoError(t, err)
		assert.JSONEq(t, `{"id":"p1","familyName":"Nguyen"}`, string(got))
	})

	t.Run("CollectionsAreSeparate", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Put(ctx, casebook.Profiles, "x", []byte(`{"kind":"profile"}`)))
		require.NoError(t, s.Put(ctx, casebook.Entries, "x", []byte(`{"kind":"entry"}`)))

		got, err := s.Get(ctx, casebook.Entries, "x")
		require.NoError(t, err)
		assert.JSONEq(t, `{"kind":"entry"}`, string(got))

		_, err = s.Get(ctx, casebook.Audit, "x")
		assert.ErrorIs(t, err, casebook.ErrNotFound)
	})

	t.Run("ListOrderedByID", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for _, id := range []string{"c", "a", "b"} {
			require.NoError(t, s.Put(ctx, casebook.Entries, id, []byte(`{"id":"`+id+`"}`)))
		}
		docs, err := s.List(ctx, casebook.Entries)
		require.NoError(t, err)
		require.Len(t, docs, 3)
		assert.Equal(t, "a", docs[0].ID)
		assert.Equal(t, "b", docs[1].ID)
		assert.Equal(t, "c", docs[2].ID)
		assert.JSONEq(t, `{"id":"a"}`, string(docs[0].Data))
		assert.False(t, docs[0].UpdatedAt.IsZero())

		empty, err := s.List(ctx, casebook.Audit)
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Put(ctx, casebook.Entries, "e1", []byte(`{}`)))
		require.NoError(t, s.Delete(ctx, casebook.Entries, "e1"))

		_, err := s.Get(ctx, casebook.Entries, "e1")
		assert.ErrorIs(t, err, casebook.ErrNotFound)
		assert.ErrorIs(t, s.Delete(ctx, casebook.Entries, "e1"), casebook.ErrNotFound)
	})

	t.Run("SubscribeReceivesChanges", func(t *testing.T) {
		// GIVEN: A subscriber on entries
		// WHEN: An entry is written, a profile is written, then the entry is deleted
		// THEN: The subscriber sees put and delete for the entry only

		s := newStore(t)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		ch, err := s.Subscribe(ctx, casebook.Entries)
		require.NoError(t, err)

		require.NoError(t, s.Put(ctx, casebook.Entries, "e1", []byte(`{}`)))
		require.NoError(t, s.Put(ctx, casebook.Profiles, "p1", []byte(`{}`)))
		require.NoError(t, s.Delete(ctx, casebook.Entries, "e1"))

		first := receive(t, ch)
		assert.Equal(t, casebook.Entries, first.Collection)
		assert.Equal(t, "e1", first.ID)
		assert.Equal(t, casebook.ChangePut, first.Kind)

		second := receive(t, ch)
		assert.Equal(t, "e1", second.ID)
		assert.Equal(t, casebook.ChangeDelete, second.Kind)
	})

	t.Run("SubscriptionClosesWithContext", func(t *testing.T) {
		s := newStore(t)
		ctx, cancel := context.WithCancel(context.Background())

		ch, err := s.Subscribe(ctx, casebook.Profiles)
		require.NoError(t, err)
		cancel()

		select {
		case _, ok := <-ch:
			assert.False(t, ok, "expected closed channel")
		case <-time.After(2 * time.Second):
			t.Fatal("subscription not closed after cancel")
		}
	})
}

func receive(t *testing.T, ch <-chan casebook.Change) casebook.Change {
	t.Helper()
	select {
	case c, ok := <-ch:
		require.True(t, ok, "subscription closed early")
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change")
		return casebook.Change{}
	}
}
