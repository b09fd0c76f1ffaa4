package cache

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/irfndi/cashflow-ai-go/internal/forecasting"
)

// ModelCache keeps trained forecasters per organization, bounded in size and
// age. A zero ttl never expires entries.
type ModelCache struct {
	cache *expirable.LRU[uuid.UUID, *forecasting.Forecaster]
}

// NewModelCache returns a cache holding at most size forecasters.
func NewModelCache(size int, ttl time.Duration) (*ModelCache, error) {
	if size <= 0 {
		return nil, fmt.Errorf("model cache size must be positive, got %d", size)
	}
	return &ModelCache{cache: expirable.NewLRU[uuid.UUID, *forecasting.Forecaster](size, nil, ttl)}, nil
}

// Get returns the organization's forecaster unless it is missing or stale.
// Stale entries are dropped on lookup.
func (m *ModelCache) Get(organizationID uuid.UUID) (*forecasting.Forecaster, bool) {
	f, ok := m.cache.Get(organizationID)
	if !ok {
		m.cache.Remove(organizationID)
		return nil, false
	}
	return f, true
}

// Add stores f for the organization, evicting the least recently used entry
// when full.
func (m *ModelCache) Add(organizationID uuid.UUID, f *forecasting.Forecaster) {
	m.cache.Add(organizationID, f)
}

// Remove drops the organization's forecaster.
func (m *ModelCache) Remove(organizationID uuid.UUID) {
	m.cache.Remove(organizationID)
}

func (m *ModelCache) Len() int {
	return m.cache.Len()
}
