// Package cache implements the Tag Cache (spec §4.D): a concurrent
// key→data.Data store where colon-delimited keys form a group
// hierarchy, so deleting a group prefix deletes every descendant in
// O(subtree size). Grounded on
// original_source/src/sys/web/cache.rs — the fingerprint/group
// bookkeeping here (the data map plus a secondary group→edges index)
// mirrors that file's CacheData exactly, translated from its
// async RwLock + spin-wait WrLock pairing to a plain sync.RWMutex: Go's
// RWMutex already gives "readers block nothing, a writer excludes
// everyone" without needing a hand-rolled notify loop (the spin lock
// the Rust code layers on top of its async RwLock exists only to admit
// async task suspension, which has no counterpart in the blocking
// goroutine model here).
package cache

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tryteex/tiny-web-sub001/data"
)

const metricsNamespace = "tiny_web"
const metricsSubsystem = "cache"

var metrics = struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	evictions prometheus.Counter
}{
	hits: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "hits_total",
		Help:      "Number of cache Get calls that found a value.",
	}),
	misses: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "misses_total",
		Help:      "Number of cache Get calls that found nothing.",
	}),
	evictions: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "evictions_total",
		Help:      "Number of leaf entries removed by Remove or Clear.",
	}),
}

// edgeKind distinguishes the two things a group can point to: another
// group one level down, or a leaf element.
type edgeKind uint8

const (
	edgeElement edgeKind = iota
	edgeGroup
)

type edge struct {
	kind edgeKind
	id   uint64
}

// Cache is a concurrent key/value store with hierarchical group
// invalidation. The zero value is not usable; construct with New.
type Cache struct {
	mu     sync.RWMutex
	leaves map[uint64]data.Data
	groups map[uint64]map[edge]struct{}
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{
		leaves: make(map[uint64]data.Data),
		groups: make(map[uint64]map[edge]struct{}),
	}
}

// parsedKey is the result of splitting a key on ':'. For a leaf key
// ("a:b:c") fingerprint is set and groups holds the ancestor chain
// ["a", "a:b"]'s FNV IDs. For a group key ("a:b:") fingerprint is unset
// (hasFingerprint=false) and groups holds the full chain including the group
// itself as its own last element.
type parsedKey struct {
	fingerprint   uint64
	hasFingerprint bool
	groups        []uint64
}

func parseKey(key string) (parsedKey, bool) {
	if key == "" {
		return parsedKey{}, false
	}
	isGroup := strings.HasSuffix(key, ":")

	var groups []uint64
	start := 0
	for i := 0; i < len(key); i++ {
		if key[i] == ':' {
			if i == start {
				return parsedKey{}, false
			}
			groups = append(groups, data.FNV1a64(key[:i]))
			start = i + 1
		}
	}
	if !isGroup && start == len(key) {
		return parsedKey{}, false
	}

	if isGroup {
		return parsedKey{groups: groups}, true
	}
	return parsedKey{
		fingerprint:    data.FNV1a64(key),
		hasFingerprint: true,
		groups:         groups,
	}, true
}

// Get looks up key. Keys ending in ':' (group keys) are invalid and
// always return (None, false).
func (c *Cache) Get(key string) (data.Data, bool) {
	if key == "" || strings.HasSuffix(key, ":") {
		return data.None, false
	}
	fp := data.FNV1a64(key)

	c.mu.RLock()
	v, ok := c.leaves[fp]
	c.mu.RUnlock()

	if ok {
		metrics.hits.Inc()
	} else {
		metrics.misses.Inc()
	}
	return v, ok
}

// Set inserts or overwrites key. Group keys are rejected (returns
// false). On first insertion, the ancestor chain is linked into the
// group index; overwriting an existing leaf does not touch the index,
// since its ancestor edges are already present.
func (c *Cache) Set(key string, v data.Data) bool {
	parsed, ok := parseKey(key)
	if !ok || !parsed.hasFingerprint {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_, existed := c.leaves[parsed.fingerprint]
	c.leaves[parsed.fingerprint] = v
	if existed {
		return true
	}

	chain := append(append([]uint64{}, parsed.groups...), parsed.fingerprint)
	for i := 0; i+1 < len(chain); i++ {
		parent, child := chain[i], chain[i+1]
		kind := edgeGroup
		if i+1 == len(chain)-1 {
			kind = edgeElement
		}
		c.link(parent, edge{kind: kind, id: child})
	}
	return true
}

func (c *Cache) link(parent uint64, e edge) {
	set, ok := c.groups[parent]
	if !ok {
		set = make(map[edge]struct{})
		c.groups[parent] = set
	}
	set[e] = struct{}{}
}

// Remove deletes key. A leaf key removes just that entry and unlinks it
// from its immediate parent group (collapsing empty ancestor groups up
// the chain). A group key recursively deletes every descendant leaf and
// removes the group's own edge from its parent.
func (c *Cache) Remove(key string) {
	parsed, ok := parseKey(key)
	if !ok {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if parsed.hasFingerprint {
		if _, existed := c.leaves[parsed.fingerprint]; existed {
			delete(c.leaves, parsed.fingerprint)
			metrics.evictions.Inc()
		}
		c.cascadeRemove(parsed.groups, edge{kind: edgeElement, id: parsed.fingerprint})
		return
	}

	// Group key: groups holds the chain ending in the group itself.
	if len(parsed.groups) == 0 {
		return
	}
	target := parsed.groups[len(parsed.groups)-1]
	c.removeSubtree(target)
	c.cascadeRemove(parsed.groups[:len(parsed.groups)-1], edge{kind: edgeGroup, id: target})
}

// removeSubtree deletes groupID's own edge set and, recursively, every
// leaf/group it reaches.
func (c *Cache) removeSubtree(groupID uint64) {
	children, ok := c.groups[groupID]
	if !ok {
		return
	}
	delete(c.groups, groupID)
	for e := range children {
		switch e.kind {
		case edgeElement:
			if _, existed := c.leaves[e.id]; existed {
				delete(c.leaves, e.id)
				metrics.evictions.Inc()
			}
		case edgeGroup:
			c.removeSubtree(e.id)
		}
	}
}

// cascadeRemove walks chain from its nearest ancestor (last element) up
// to the root, removing childEdge from the nearest ancestor's set. An
// ancestor whose set becomes empty is erased from the groups map and
// the edge to it is removed from the next one up, and so on. The walk
// stops at the first ancestor that still has other members, so every
// remaining leaf keeps its full chain of group edges up to its root
// group.
func (c *Cache) cascadeRemove(chain []uint64, childEdge edge) {
	current := childEdge
	for i := len(chain) - 1; i >= 0; i-- {
		item := chain[i]
		set, ok := c.groups[item]
		if !ok {
			return
		}
		delete(set, current)
		if len(set) != 0 {
			return
		}
		delete(c.groups, item)
		current = edge{kind: edgeGroup, id: item}
	}
}

// Clear drops every entry and every group edge.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	metrics.evictions.Add(float64(len(c.leaves)))
	c.leaves = make(map[uint64]data.Data)
	c.groups = make(map[uint64]map[edge]struct{})
}
