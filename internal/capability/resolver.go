// Package capability resolves and caches the capability sets authorization
// decisions are made from. Capabilities come from a static role→capability
// policy file; the resolver caches per subject with a TTL.
package capability

import (
	"sync"
	"time"

	"github.com/softrade/brokerdesk/internal/observability"
	"github.com/softrade/brokerdesk/model"
)

type cacheEntry struct {
	caps    model.CapabilitySet
	expires time.Time
}

// Resolver implements model.CapabilityResolver with an in-memory cache.
type Resolver struct {
	evaluator  model.PolicyEvaluator
	ttl        time.Duration
	maxEntries int
	metrics    *observability.Metrics
	mu         sync.RWMutex
	cache      map[string]cacheEntry
}

// NewResolver creates a Resolver with the given evaluator, cache TTL, and
// entry cap. A maxEntries of zero or less means unbounded.
func NewResolver(evaluator model.PolicyEvaluator, ttl time.Duration, maxEntries int, metrics *observability.Metrics) *Resolver {
	return &Resolver{
		evaluator:  evaluator,
		ttl:        ttl,
		maxEntries: maxEntries,
		metrics:    metrics,
		cache:      make(map[string]cacheEntry),
	}
}

// Resolve returns the full capability set for the given subject. Results are
// cached for the configured TTL.
func (r *Resolver) Resolve(rctx *model.RequestContext) (model.CapabilitySet, error) {
	r.mu.RLock()
	if entry, ok := r.cache[rctx.SubjectID]; ok && time.Now().Before(entry.expires) {
		r.mu.RUnlock()
		if r.metrics != nil {
			r.metrics.RecordCapabilityCacheHit()
		}
		return entry.caps, nil
	}
	r.mu.RUnlock()

	if r.metrics != nil {
		r.metrics.RecordCapabilityCacheMiss()
	}

	caps, err := r.evaluator.ResolveCapabilities(rctx)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.maxEntries > 0 && len(r.cache) >= r.maxEntries {
		r.evictExpiredLocked()
		// Still full after sweeping: drop everything rather than grow
		// without bound. Resolution is cheap enough to repopulate.
		if len(r.cache) >= r.maxEntries {
			r.cache = make(map[string]cacheEntry)
		}
	}
	r.cache[rctx.SubjectID] = cacheEntry{caps: caps, expires: time.Now().Add(r.ttl)}
	r.mu.Unlock()

	return caps, nil
}

// Invalidate clears cached capabilities for the given subject.
func (r *Resolver) Invalidate(subjectID string) {
	r.mu.Lock()
	delete(r.cache, subjectID)
	r.mu.Unlock()
}

func (r *Resolver) evictExpiredLocked() {
	now := time.Now()
	for key, entry := range r.cache {
		if now.After(entry.expires) {
			delete(r.cache, key)
		}
	}
}
