// Package cache implements the allocator's inventory cache on Redis.
// Table inventory and adjacency are read-mostly, so quotes read them
// through here and every inventory write invalidates the restaurant's
// entry. A nil Redis client disables caching entirely; the allocator
// then reads straight from MySQL.
package cache

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/seatwise/table-allocation/internal/allocator"
)

// InventoryCache implements allocator.InventoryCache.
type InventoryCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewInventoryCache returns a cache over the given client. A nil
// client yields a pass-through cache that never hits.
func NewInventoryCache(client *redis.Client, ttl time.Duration) *InventoryCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &InventoryCache{client: client, ttl: ttl, prefix: "inventory"}
}

func (c *InventoryCache) key(restaurantID string) string {
	return c.prefix + ":" + restaurantID
}

// Inventory fetches the cached tables and adjacency for a
// restaurant. Any Redis or decode failure is treated as a miss.
func (c *InventoryCache) Inventory(ctx context.Context, restaurantID string) (*allocator.CachedInventory, bool) {
	if c.client == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, c.key(restaurantID)).Bytes()
	if err != nil {
		return nil, false
	}
	var inv allocator.CachedInventory
	if err := json.Unmarshal(raw, &inv); err != nil {
		return nil, false
	}
	return &inv, true
}

// StoreInventory writes the entry with the configured TTL.
// Failures are logged and ignored.
func (c *InventoryCache) StoreInventory(ctx context.Context, restaurantID string, inv *allocator.CachedInventory) {
	if c.client == nil || inv == nil {
		return
	}
	raw, err := json.Marshal(inv)
	if err != nil {
		log.Printf("[cache] marshal inventory for %s failed: %v", restaurantID, err)
		return
	}
	if err := c.client.Set(ctx, c.key(restaurantID), raw, c.ttl).Err(); err != nil {
		log.Printf("[cache] store inventory for %s failed: %v", restaurantID, err)
	}
}

// Invalidate drops the restaurant's entry. Table and adjacency
// writers call this so the next quote sees fresh topology.
func (c *InventoryCache) Invalidate(ctx context.Context, restaurantID string) {
	if c.client == nil {
		return
	}
	if err := c.client.Del(ctx, c.key(restaurantID)).Err(); err != nil {
		log.Printf("[cache] invalidate inventory for %s failed: %v", restaurantID, err)
	}
}
