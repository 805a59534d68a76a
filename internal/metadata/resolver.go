package metadata

import (
	"context"
	"strings"
	"sync"
	"time"
)

const (
	resolverCacheMaxEntries = 1024
	resolverCacheTTL        = 10 * time.Minute
)

// Resolver is the caching facade over the resolve engine. Merge results are
// cached by the original input string; callers force eviction after metadata
// writes.
type Resolver struct {
	engine *Engine

	mu      sync.Mutex
	entries map[string]*resolverEntry
}

type resolverEntry struct {
	result  ResolveResult
	expires time.Time
}

// NewResolver constructs a resolver around the engine.
func NewResolver(engine *Engine) *Resolver {
	return &Resolver{
		engine:  engine,
		entries: map[string]*resolverEntry{},
	}
}

// Resolve returns the raw definition for a class or entity type, if any.
func (r *Resolver) Resolve(ctx context.Context, classOrEntityType string) (*Definition, bool) {
	return r.engine.LoadDefinition(ctx, classOrEntityType)
}

// MappingsFor returns the flattened, ordered column→mapping set for a class
// or entity type. Missing metadata yields an empty set, never an error.
func (r *Resolver) MappingsFor(ctx context.Context, classOrEntityType string) *MappingSet {
	return r.load(ctx, classOrEntityType).result.Merged
}

// DiagnosticsFor returns the non-fatal merge diagnostics recorded while
// resolving the class: cycle detections and plain-column type conflicts.
func (r *Resolver) DiagnosticsFor(ctx context.Context, classOrEntityType string) []string {
	result := r.load(ctx, classOrEntityType).result
	var out []string
	for _, msgs := range result.Diagnostics {
		out = append(out, msgs...)
	}
	return out
}

// Evict drops the cached result for one input key.
func (r *Resolver) Evict(key string) {
	key = strings.TrimSpace(key)
	r.mu.Lock()
	delete(r.entries, key)
	r.mu.Unlock()
}

// EvictAll drops every cached result.
func (r *Resolver) EvictAll() {
	r.mu.Lock()
	r.entries = map[string]*resolverEntry{}
	r.mu.Unlock()
}

// load returns the cached entry for key, refilling it on miss or expiry.
// Concurrent miss-fills may race; last write wins, which is fine because
// merge results are deterministic for the same metadata inputs.
func (r *Resolver) load(ctx context.Context, key string) *resolverEntry {
	key = strings.TrimSpace(key)
	now := time.Now()

	r.mu.Lock()
	if entry, ok := r.entries[key]; ok && now.Before(entry.expires) {
		r.mu.Unlock()
		return entry
	}
	r.mu.Unlock()

	result := r.engine.ResolveAndFlatten(ctx, key)
	entry := &resolverEntry{result: result, expires: now.Add(resolverCacheTTL)}

	r.mu.Lock()
	if len(r.entries) >= resolverCacheMaxEntries {
		r.evictStaleLocked(now)
	}
	r.entries[key] = entry
	r.mu.Unlock()
	return entry
}

// evictStaleLocked drops expired entries first; if the cache is still full it
// drops arbitrary entries until under the bound. Callers hold r.mu.
func (r *Resolver) evictStaleLocked(now time.Time) {
	for k, entry := range r.entries {
		if now.After(entry.expires) {
			delete(r.entries, k)
		}
	}
	for k := range r.entries {
		if len(r.entries) < resolverCacheMaxEntries {
			break
		}
		delete(r.entries, k)
	}
}
