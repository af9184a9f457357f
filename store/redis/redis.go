/*
Package redis provides a Redis-backed casebook.DocumentStore.

PURPOSE:
  Lets several casebook servers share profiles and entries and see each
  other's writes. Watchers on any node recompute when another node saves.

KEYS:
  <prefix>:<collection>          hash: id -> JSON document
  <prefix>:<collection>:updated  hash: id -> RFC3339Nano write time
  <prefix>:changes:<collection>  pub/sub channel: JSON casebook.Change

CHANGE NOTIFICATIONS:
  Each write publishes a Change after the hashes are updated. Pub/sub does
  not replay, so a subscriber only sees changes made after Subscribe returns.

SEE ALSO:
  - casebook/store.go: Interface definition
*/
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"github.com/warp/casebook/casebook"
)

const subscriberBuffer = 16

// Config holds the Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// NewClient creates a Redis client.
func NewClient(cfg Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// Store implements casebook.DocumentStore on Redis hashes.
type Store struct {
	client *redis.Client
	prefix string
	log    zerolog.Logger
}

// New wraps a client. prefix namespaces every key, e.g. "casebook".
func New(client *redis.Client, prefix string, log zerolog.Logger) *Store {
	if prefix == "" {
		prefix = "casebook"
	}
	return &Store{client: client, prefix: prefix, log: log}
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Reset deletes every collection under this store's prefix.
func (s *Store) Reset(ctx context.Context) error {
	var keys []string
	for _, c := range []casebook.Collection{casebook.Profiles, casebook.Entries, casebook.Audit} {
		keys = append(keys, s.dataKey(c), s.updatedKey(c))
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) dataKey(c casebook.Collection) string {
	return s.prefix + ":" + string(c)
}

func (s *Store) updatedKey(c casebook.Collection) string {
	return s.prefix + ":" + string(c) + ":updated"
}

func (s *Store) channel(c casebook.Collection) string {
	return s.prefix + ":changes:" + string(c)
}

// =============================================================================
// DOCUMENT STORE
// =============================================================================

func (s *Store) Get(ctx context.Context, c casebook.Collection, id string) ([]byte, error) {
	val, err := s.client.HGet(ctx, s.dataKey(c), id).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, casebook.ErrNotFound
		}
		return nil, fmt.Errorf("get %s/%s: %w", c, id, err)
	}
	return []byte(val), nil
}

func (s *Store) Put(ctx context.Context, c casebook.Collection, id string, data []byte) error {
	now := time.Now().UTC()
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.dataKey(c), id, string(data))
		pipe.HSet(ctx, s.updatedKey(c), id, now.Format(time.RFC3339Nano))
		return nil
	})
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", c, id, err)
	}
	s.publish(ctx, casebook.Change{Collection: c, ID: id, Kind: casebook.ChangePut, At: now})
	return nil
}

func (s *Store) Delete(ctx context.Context, c casebook.Collection, id string) error {
	var removed *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.HDel(ctx, s.dataKey(c), id)
		pipe.HDel(ctx, s.updatedKey(c), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", c, id, err)
	}
	if removed.Val() == 0 {
		return casebook.ErrNotFound
	}
	s.publish(ctx, casebook.Change{Collection: c, ID: id, Kind: casebook.ChangeDelete, At: time.Now().UTC()})
	return nil
}

func (s *Store) List(ctx context.Context, c casebook.Collection) ([]casebook.Document, error) {
	data, err := s.client.HGetAll(ctx, s.dataKey(c)).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", c, err)
	}
	updated, err := s.client.HGetAll(ctx, s.updatedKey(c)).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", c, err)
	}

	docs := make([]casebook.Document, 0, len(data))
	for id, v := range data {
		d := casebook.Document{ID: id, Data: []byte(v)}
		d.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated[id])
		docs = append(docs, d)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

// Subscribe listens on the collection's change channel until ctx is done.
func (s *Store) Subscribe(ctx context.Context, c casebook.Collection) (<-chan casebook.Change, error) {
	ps := s.client.Subscribe(ctx, s.channel(c))
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", c, err)
	}
	msgs := ps.Channel()

	out := make(chan casebook.Change, subscriberBuffer)
	go func() {
		defer close(out)
		defer ps.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var change casebook.Change
				if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
					s.log.Warn().Err(err).Str("channel", msg.Channel).Msg("ignoring malformed change message")
					continue
				}
				select {
				case out <- change:
				default:
				}
			}
		}
	}()
	return out, nil
}

// publish announces a change. The write has already succeeded, so a publish
// failure is only logged.
func (s *Store) publish(ctx context.Context, change casebook.Change) {
	b, err := json.Marshal(change)
	if err != nil {
		return
	}
	if err := s.client.Publish(ctx, s.channel(change.Collection), b).Err(); err != nil {
		s.log.Error().Err(err).
			Str("collection", string(change.Collection)).
			Str("id", change.ID).
			Msg("failed to publish change")
	}
}
