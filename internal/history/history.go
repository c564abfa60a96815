// Package history keeps the bounded, deduplicating log of observed
// entities. The simulation goroutine is the only writer; the HTTP query
// path reads concurrently, so access goes through an RWMutex.
package history

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/skysim-labs/dronepilot/pkg/core"
)

const (
	DefaultCapacity = 100
	DefaultCooldown = 10 * time.Second
)

// Log is an insertion-ordered observation store with a maximum size
// (oldest evicted on overflow) and a per-(name,tag) re-insertion
// cooldown. Lookups match names and tags case-insensitively.
type Log struct {
	mu        sync.RWMutex
	capacity  int
	cooldown  time.Duration
	records   []core.Observation
	lastAdded map[string]time.Time
}

// NewLog creates a log holding at most capacity records. Non-positive
// arguments fall back to the defaults.
func NewLog(capacity int, cooldown time.Duration) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Log{
		capacity:  capacity,
		cooldown:  cooldown,
		records:   make([]core.Observation, 0, capacity),
		lastAdded: make(map[string]time.Time),
	}
}

// Add appends an observation unless the same (name, tag) pair was
// accepted within the cooldown window. Returns false when the record
// was dropped. A zero observation time is stamped with the wall clock.
func (l *Log) Add(obs core.Observation) bool {
	if obs.Time.IsZero() {
		obs.Time = time.Now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := dedupeKey(obs.Name, obs.Tag)
	if last, ok := l.lastAdded[key]; ok && obs.Time.Sub(last) < l.cooldown {
		return false
	}

	l.lastAdded[key] = obs.Time
	l.records = append(l.records, obs)
	if len(l.records) > l.capacity {
		l.records = l.records[1:]
	}
	return true
}

// LastByTag returns the most recent observation with the given tag.
func (l *Log) LastByTag(tag string) (core.Observation, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	tag = strings.ToLower(tag)
	for i := len(l.records) - 1; i >= 0; i-- {
		if strings.ToLower(l.records[i].Tag) == tag {
			return l.records[i], true
		}
	}
	return core.Observation{}, false
}

// ByName returns the most recent observation whose name matches
// exactly, ignoring case.
func (l *Log) ByName(name string) (core.Observation, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	name = strings.ToLower(name)
	for i := len(l.records) - 1; i >= 0; i-- {
		if strings.ToLower(l.records[i].Name) == name {
			return l.records[i], true
		}
	}
	return core.Observation{}, false
}

// Recent returns up to n observations, newest first.
func (l *Log) Recent(n int) []core.Observation {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 || len(l.records) == 0 {
		return nil
	}
	if n > len(l.records) {
		n = len(l.records)
	}
	out := make([]core.Observation, n)
	for i := 0; i < n; i++ {
		out[i] = l.records[len(l.records)-1-i]
	}
	return out
}

// AllTags returns the distinct tags present in the log, sorted. Tags
// differing only in case collapse to the spelling seen most recently.
func (l *Log) AllTags() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	seen := make(map[string]string)
	for i := len(l.records) - 1; i >= 0; i-- {
		tag := l.records[i].Tag
		lower := strings.ToLower(tag)
		if _, ok := seen[lower]; !ok {
			seen[lower] = tag
		}
	}
	tags := make([]string, 0, len(seen))
	for _, tag := range seen {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Len returns the number of stored records.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

func dedupeKey(name, tag string) string {
	return strings.ToLower(name) + "\x00" + strings.ToLower(tag)
}
