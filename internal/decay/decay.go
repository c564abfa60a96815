// Package decay tracks the expiry of continuous commands so that
// motion is self-terminating: a single move_forward produces bounded
// motion even if the interpreter never sends stop.
package decay

import (
	"sort"
	"time"
)

// Registry maps an active command key to its expiry time. It is owned
// by the simulation goroutine and needs no internal locking; everything
// reaching it is marshaled through the tick loop.
type Registry struct {
	entries map[string]time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]time.Time),
	}
}

// Refresh sets or overwrites the expiry for key to now+ttl.
func (r *Registry) Refresh(key string, now time.Time, ttl time.Duration) {
	r.entries[key] = now.Add(ttl)
}

// Tick removes and returns all keys whose expiry is at or before now,
// sorted for deterministic behavior. The caller resets the control
// axes these keys were driving.
func (r *Registry) Tick(now time.Time) []string {
	var expired []string
	for key, deadline := range r.entries {
		if !deadline.After(now) {
			expired = append(expired, key)
		}
	}
	for _, key := range expired {
		delete(r.entries, key)
	}
	sort.Strings(expired)
	return expired
}

// Remove drops a single entry if present.
func (r *Registry) Remove(key string) {
	delete(r.entries, key)
}

// Clear drops every entry. Used by stop.
func (r *Registry) Clear() {
	clear(r.entries)
}

// ActiveKeys returns the currently tracked keys, sorted.
func (r *Registry) ActiveKeys() []string {
	keys := make([]string, 0, len(r.entries))
	for key := range r.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of active entries.
func (r *Registry) Len() int {
	return len(r.entries)
}
