package db

import (
	"time"

	"github.com/dgraph-io/ristretto"
)

const institutionNameTTL = 24 * time.Hour

const (
	KindInstitution = "institution"
	KindWebhookKey  = "webhook_key"
)

// Cache fronts slow aggregator lookups. Keys are namespaced per kind.
type Cache struct {
	store *ristretto.Cache
}

func NewCache() (*Cache, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10000, // number of keys to track frequency of
		MaxCost:     10000,
		BufferItems: 64, // number of keys per Get buffer
	})
	if err != nil {
		return nil, err
	}
	return &Cache{store: c}, nil
}

func cacheKey(kind, key string) string {
	return kind + ":" + key
}

func (c *Cache) Close() {
	c.store.Close()
}

// InstitutionNames adapts the cache to services.NameCache.
func (c *Cache) InstitutionNames() *InstitutionNameCache {
	return &InstitutionNameCache{c: c}
}

type InstitutionNameCache struct {
	c *Cache
}

func (n *InstitutionNameCache) Get(institutionID string) (string, bool) {
	v, ok := n.c.Value(KindInstitution, institutionID)
	if !ok {
		return "", false
	}
	name, ok := v.(string)
	return name, ok
}

func (n *InstitutionNameCache) Set(institutionID, name string) {
	n.c.Store(KindInstitution, institutionID, name, institutionNameTTL)
}

// Value and Store give other packages typed access to a cache kind.
func (c *Cache) Value(kind, key string) (interface{}, bool) {
	return c.store.Get(cacheKey(kind, key))
}

func (c *Cache) Store(kind, key string, value interface{}, ttl time.Duration) {
	c.store.SetWithTTL(cacheKey(kind, key), value, 1, ttl)
	c.store.Wait()
}

// Evict drops one entry.
func (c *Cache) Evict(kind, key string) {
	c.store.Del(cacheKey(kind, key))
}
