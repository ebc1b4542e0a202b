/*
Package rediscache caches the requirement catalog in Redis.

PURPOSE:
  The catalog is read on every auto-assignment, coverage and history call
  but changes rarely. Catalog wraps any ledger.CatalogProvider with a
  read-through cache of the full item list.

BEHAVIOR:
  ListAll:           GET key; hit -> decode; miss -> load from the wrapped
                     provider and SET with TTL
  ListByEligibility: filters the cached full list
  SaveItem:          writes through, then deletes the key
  Redis errors:      logged and ignored; the wrapped provider answers

SEE ALSO:
  - ledger/store.go: CatalogProvider
  - cmd/server/main.go: Enabled when redis_addr is configured
*/
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/warp/requirement-ledger/ledger"
)

// DefaultKey is where the catalog list is cached.
const DefaultKey = "ledger:catalog:all"

type catalogWriter interface {
	SaveItem(ctx context.Context, item ledger.RequirementItem) error
}

// Catalog is a ledger.CatalogProvider backed by Redis and a wrapped provider.
type Catalog struct {
	next ledger.CatalogProvider
	rdb  *redis.Client
	key  string
	ttl  time.Duration
	log  zerolog.Logger
}

func New(next ledger.CatalogProvider, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *Catalog {
	return &Catalog{
		next: next,
		rdb:  rdb,
		key:  DefaultKey,
		ttl:  ttl,
		log:  log.With().Str("component", "catalog_cache").Logger(),
	}
}

// Connect opens a client and pings it.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}

func (c *Catalog) ListAll(ctx context.Context) ([]ledger.RequirementItem, error) {
	cached, err := c.rdb.Get(ctx, c.key).Bytes()
	switch {
	case err == nil:
		var items []ledger.RequirementItem
		if jsonErr := json.Unmarshal(cached, &items); jsonErr == nil {
			return items, nil
		}
		c.log.Warn().Str("key", c.key).Msg("discarding undecodable cached catalog")
	case !errors.Is(err, redis.Nil):
		c.log.Error().Err(err).Str("key", c.key).Msg("redis GET failed")
	}

	items, err := c.next.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	if doc, err := json.Marshal(items); err == nil {
		if err := c.rdb.Set(ctx, c.key, doc, c.ttl).Err(); err != nil {
			c.log.Error().Err(err).Str("key", c.key).Msg("redis SET failed")
		}
	}
	return items, nil
}

func (c *Catalog) ListByEligibility(ctx context.Context, filter ledger.EligibilityFilter) ([]ledger.RequirementItem, error) {
	items, err := c.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return ledger.FilterItems(items, filter), nil
}

// SaveItem writes through to the wrapped provider and drops the cached list.
func (c *Catalog) SaveItem(ctx context.Context, item ledger.RequirementItem) error {
	w, ok := c.next.(catalogWriter)
	if !ok {
		return fmt.Errorf("catalog provider %T is read-only", c.next)
	}
	if err := w.SaveItem(ctx, item); err != nil {
		return err
	}
	return c.Invalidate(ctx)
}

// Invalidate drops the cached list. A Redis failure is logged, not returned,
// since the TTL bounds staleness.
func (c *Catalog) Invalidate(ctx context.Context) error {
	if err := c.rdb.Del(ctx, c.key).Err(); err != nil {
		c.log.Error().Err(err).Str("key", c.key).Msg("redis DEL failed")
	}
	return nil
}
