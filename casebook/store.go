/*
store.go - Document persistence interface for profiles, entries and audit

PURPOSE:
  Defines the boundary between the casebook service and the database.
  Profiles and service entries are stored as whole JSON documents, the way
  the case-management frontend has always kept them, so older documents with
  loosely typed fields survive untouched.

KEY INTERFACES:
  DocumentStore: Get/Put/Delete/List plus change notifications

COLLECTIONS:
  profiles: Family profiles with their authorization history
  entries:  Service entries (visits, drug tests)
  audit:    Append-only trail of authorization changes

CHANGE NOTIFICATIONS:
  Subscribe returns a channel that receives one Change per write to the
  collection. Watch uses it to re-derive balances whenever profiles or entries
  change. Delivery is best-effort: a subscriber whose buffer is full may miss
  a Change, but a pending one is already enough to trigger a recompute.

IMPLEMENTATIONS:
  - store/memory: In-memory for tests and local development
  - store/sqlite: Single-node SQLite (WAL)
  - store/redis:  Shared hash-per-collection with pub/sub changes

SEE ALSO:
  - service.go: Service built on DocumentStore
  - watch.go: Subscription-driven recomputation
*/
package casebook

import (
	"context"
	"time"
)

// =============================================================================
// COLLECTIONS
// =============================================================================

// Collection names a group of documents.
type Collection string

const (
	Profiles Collection = "profiles"
	Entries  Collection = "entries"
	Audit    Collection = "audit"
)

// =============================================================================
// DOCUMENT STORE
// =============================================================================

// Document is one stored JSON document.
type Document struct {
	ID        string
	Data      []byte
	UpdatedAt time.Time
}

// ChangeKind tells what happened to a document.
type ChangeKind string

const (
	ChangePut    ChangeKind = "put"
	ChangeDelete ChangeKind = "delete"
)

// Change is published after every successful write.
type Change struct {
	Collection Collection `json:"collection"`
	ID         string     `json:"id"`
	Kind       ChangeKind `json:"kind"`
	At         time.Time  `json:"at"`
}

// DocumentStore persists JSON documents by collection and id.
// Implementations must be safe for concurrent use.
type DocumentStore interface {
	// Get returns the document data. Returns ErrNotFound if absent.
	Get(ctx context.Context, c Collection, id string) ([]byte, error)

	// Put creates or replaces a document.
	Put(ctx context.Context, c Collection, id string, data []byte) error

	// Delete removes a document. Returns ErrNotFound if absent.
	Delete(ctx context.Context, c Collection, id string) error

	// List returns every document in the collection ordered by id.
	List(ctx context.Context, c Collection) ([]Document, error)

	// Subscribe streams changes to the collection until ctx is done,
	// then closes the channel.
	Subscribe(ctx context.Context, c Collection) (<-chan Change, error)
}
