package aggregator

import (
	"sync"
	"time"

	"disaster-alerts-go/internal/models"
)

// Cache holds the most recent aggregation. It has a single slot and never
// expires on its own; freshness is judged when it is read.
type Cache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	stored  time.Time
	alerts  []models.NormalizedAlert
	present bool
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{ttl: ttl, now: time.Now}
}

// WithClock replaces the time source. Used by tests.
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

// Fresh returns the cached alerts when they are younger than the TTL.
func (c *Cache) Fresh() ([]models.NormalizedAlert, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.present || c.now().Sub(c.stored) >= c.ttl {
		return nil, false
	}
	return c.alerts, true
}

// Store overwrites the slot.
func (c *Cache) Store(alerts []models.NormalizedAlert) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.alerts = alerts
	c.stored = c.now()
	c.present = true
}
