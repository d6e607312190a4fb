// Package observability provides per-entity fetch statistics for backend
// health monitoring and slow-query diagnosis.
package observability

import (
	"sort"
	"sync"
	"time"
)

// FetchStats tracks fetch latency and failure counts per entity.
type FetchStats struct {
	mu       sync.RWMutex
	entities map[string]*EntityStats
}

// EntityStats holds accumulated fetch statistics for one entity.
type EntityStats struct {
	Entity        string
	Backend       string
	Fetches       int64
	Errors        int64
	Retries       int64
	Records       int64
	TotalDuration time.Duration
	MinDuration   time.Duration
	MaxDuration   time.Duration
	LastFetch     time.Time
}

// AvgDuration returns the mean fetch duration, or 0 with no fetches.
func (e *EntityStats) AvgDuration() time.Duration {
	if e.Fetches == 0 {
		return 0
	}
	return e.TotalDuration / time.Duration(e.Fetches)
}

// NewFetchStats creates a new fetch statistics tracker.
func NewFetchStats() *FetchStats {
	return &FetchStats{
		entities: make(map[string]*EntityStats),
	}
}

// RecordFetch records one completed fetch attempt.
// This method is O(1) and thread-safe.
func (f *FetchStats) RecordFetch(entity, backend string, records int, duration time.Duration, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	stats, exists := f.entities[entity]
	if !exists {
		stats = &EntityStats{Entity: entity, Backend: backend}
		f.entities[entity] = stats
	}

	stats.Fetches++
	stats.LastFetch = time.Now()
	stats.TotalDuration += duration
	if stats.MinDuration == 0 || duration < stats.MinDuration {
		stats.MinDuration = duration
	}
	if duration > stats.MaxDuration {
		stats.MaxDuration = duration
	}

	if err != nil {
		stats.Errors++
	} else {
		stats.Records += int64(records)
	}
}

// RecordRetry records one retry of a fetch for an entity.
func (f *FetchStats) RecordRetry(entity string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	stats, exists := f.entities[entity]
	if !exists {
		stats = &EntityStats{Entity: entity}
		f.entities[entity] = stats
	}
	stats.Retries++
}

// Snapshot returns a copy of all entity stats sorted by entity name.
func (f *FetchStats) Snapshot() []EntityStats {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]EntityStats, 0, len(f.entities))
	for _, s := range f.entities {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Entity < out[j].Entity
	})
	return out
}

// Get returns a copy of one entity's stats.
func (f *FetchStats) Get(entity string) (EntityStats, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	s, ok := f.entities[entity]
	if !ok {
		return EntityStats{}, false
	}
	return *s, true
}
