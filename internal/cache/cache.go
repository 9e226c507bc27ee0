// Package cache implements the per-agent, TTL- and size-weighted content
// cache. A global cache maps agent-id to an isolated pool; each pool owns
// its own entry map and its own exclusive lock, following the two-level
// locking discipline: the top-level lock (guarding the agent-pool map)
// is always acquired before, and never while holding, a pool lock.
package cache

import (
	"container/list"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mcplens/lens-proxy/internal/mcputil"
)

// DefaultAgentID is the pool a legacy, unprefixed cache-id maps to.
const DefaultAgentID = "default"

// Config holds the immutable tunables for the global cache.
type Config struct {
	MaxEntriesPerAgent int
	MaxBytesPerAgent   int64
	TTL                time.Duration
	MaxAgents          int
}

// Entry is one cached payload.
type Entry struct {
	ID         string
	Content    []mcp.Content
	Tool       string
	Arguments  map[string]interface{}
	CreatedAt  time.Time
	LastAccess time.Time
	AccessCnt  int64
	Bytes      int64
}

// Stats summarizes a pool's current state, used for diagnostics (see
// SPEC_FULL.md §4, supplemented cache-statistics visibility).
type Stats struct {
	Entries int
	Bytes   int64
}

// pool is a single agent's isolated cache. entries and bytes are guarded
// by mu; lastAccess is pool metadata guarded by the global's top-level
// lock. mu is never acquired while the global's top-level lock is held
// by the same goroutine (acquisition order is always top-level, then
// pool).
type pool struct {
	mu         sync.Mutex
	entries    map[string]*Entry
	bytes      int64
	lastAccess time.Time
}

// Global is the top-level agent-pool map.
type Global struct {
	cfg Config

	mu       sync.Mutex // guards pools and lru
	pools    map[string]*pool
	lru      *list.List // front = most recently touched
	lruElems map[string]*list.Element
}

// NewGlobal constructs an empty global cache.
func NewGlobal(cfg Config) *Global {
	if cfg.MaxEntriesPerAgent <= 0 {
		cfg.MaxEntriesPerAgent = 50
	}
	if cfg.MaxBytesPerAgent <= 0 {
		cfg.MaxBytesPerAgent = 10 * 1024 * 1024
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.MaxAgents <= 0 {
		cfg.MaxAgents = 100
	}
	return &Global{
		cfg:      cfg,
		pools:    make(map[string]*pool),
		lru:      list.New(),
		lruElems: make(map[string]*list.Element),
	}
}

// ParseID splits an external cache-id of the form "agent:12hex" into its
// agent and suffix parts. A bare 12-hex id (no prefix) belongs to
// DefaultAgentID.
func ParseID(id string) (agent, suffix string) {
	if i := strings.LastIndex(id, ":"); i >= 0 {
		return id[:i], id[i+1:]
	}
	return DefaultAgentID, id
}

func newID() string {
	b := make([]byte, 6)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// touchPoolLocked records agent as most recently used and evicts the
// least-recently-used pool if doing so would exceed MaxAgents. Must be
// called with g.mu held.
func (g *Global) touchPoolLocked(agent string) {
	now := time.Now()
	if el, ok := g.lruElems[agent]; ok {
		g.lru.MoveToFront(el)
	} else {
		el := g.lru.PushFront(agent)
		g.lruElems[agent] = el
	}
	if p, ok := g.pools[agent]; ok {
		p.lastAccess = now
	}

	for len(g.pools) > g.cfg.MaxAgents {
		back := g.lru.Back()
		if back == nil {
			break
		}
		victim := back.Value.(string)
		if victim == agent {
			break // never evict the pool we're about to use
		}
		g.lru.Remove(back)
		delete(g.lruElems, victim)
		delete(g.pools, victim)
	}
}

// getOrCreatePoolLocked returns the pool for agent, creating it if
// absent. Must be called with g.mu held.
func (g *Global) getOrCreatePoolLocked(agent string) *pool {
	p, ok := g.pools[agent]
	if !ok {
		p = &pool{entries: make(map[string]*Entry), lastAccess: time.Now()}
		g.pools[agent] = p
	}
	return p
}

// Put stores content under agent, returning the external cache-id
// "agent:12hex". The pool is fetched-or-created and the agent marked
// most-recently-used before delegating to the pool's own put.
func (g *Global) Put(agent string, content []mcp.Content, tool string, args map[string]interface{}) string {
	if agent == "" {
		agent = DefaultAgentID
	}

	g.mu.Lock()
	p := g.getOrCreatePoolLocked(agent)
	g.touchPoolLocked(agent)
	g.mu.Unlock()

	id := p.put(content, tool, args, g.cfg)
	return agent + ":" + id
}

// Get resolves an external cache-id, returning its content or nil if
// missing/expired. Even on a miss, the owning pool's last-access is
// refreshed so recently-queried pools are not preferentially evicted.
func (g *Global) Get(id string) []mcp.Content {
	agent, suffix := ParseID(id)

	g.mu.Lock()
	p, ok := g.pools[agent]
	if ok {
		g.touchPoolLocked(agent)
	}
	g.mu.Unlock()

	if !ok {
		return nil
	}
	return p.get(suffix, g.cfg.TTL)
}

// Remove deletes a cache-id if present, returning whether it was found.
func (g *Global) Remove(id string) bool {
	agent, suffix := ParseID(id)
	g.mu.Lock()
	p, ok := g.pools[agent]
	g.mu.Unlock()
	if !ok {
		return false
	}
	return p.remove(suffix)
}

// Clear empties every pool.
func (g *Global) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pools = make(map[string]*pool)
	g.lru = list.New()
	g.lruElems = make(map[string]*list.Element)
}

// StatsFor returns the current stats for one agent's pool.
func (g *Global) StatsFor(agent string) Stats {
	g.mu.Lock()
	p, ok := g.pools[agent]
	g.mu.Unlock()
	if !ok {
		return Stats{}
	}
	return p.stats()
}

// --- pool-local operations, all under p.mu ---

func (p *pool) put(content []mcp.Content, tool string, args map[string]interface{}, cfg Config) string {
	size := contentBytes(content)

	p.mu.Lock()
	defer p.mu.Unlock()

	if size > cfg.MaxBytesPerAgent {
		// Refuse to cache, but still return a fresh id so the caller has
		// something to propagate (spec.md §4.3 put behavior on overflow).
		return newID()
	}

	p.sweepExpiredLocked(cfg.TTL)
	p.evictUntilFitsLocked(cfg.MaxEntriesPerAgent, cfg.MaxBytesPerAgent, size)

	id := newID()
	for _, exists := p.entries[id]; exists; _, exists = p.entries[id] {
		id = newID() // tolerate collision by regeneration
	}

	now := time.Now()
	p.entries[id] = &Entry{
		ID:         id,
		Content:    content,
		Tool:       tool,
		Arguments:  args,
		CreatedAt:  now,
		LastAccess: now,
		AccessCnt:  0,
		Bytes:      size,
	}
	p.bytes += size
	return id
}

func (p *pool) get(id string, ttl time.Duration) []mcp.Content {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[id]
	if !ok {
		return nil
	}
	if time.Since(e.CreatedAt) > ttl {
		p.deleteLocked(id)
		return nil
	}
	e.AccessCnt++
	e.LastAccess = time.Now()
	return e.Content
}

func (p *pool) remove(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.entries[id]; !ok {
		return false
	}
	p.deleteLocked(id)
	return true
}

func (p *pool) stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Entries: len(p.entries), Bytes: p.bytes}
}

func (p *pool) deleteLocked(id string) {
	if e, ok := p.entries[id]; ok {
		p.bytes -= e.Bytes
		delete(p.entries, id)
	}
}

func (p *pool) sweepExpiredLocked(ttl time.Duration) {
	now := time.Now()
	for id, e := range p.entries {
		if now.Sub(e.CreatedAt) > ttl {
			p.deleteLocked(id)
		}
	}
}

// evictUntilFitsLocked repeatedly evicts the entry maximizing
// idle_seconds * size_bytes / max(access_count, 1) until both the entry
// count and byte budgets accommodate one more entry of incomingBytes.
func (p *pool) evictUntilFitsLocked(maxEntries int, maxBytes, incomingBytes int64) {
	for len(p.entries) >= maxEntries || p.bytes+incomingBytes > maxBytes {
		var victim string
		var worst float64
		found := false
		now := time.Now()
		for id, e := range p.entries {
			idle := now.Sub(e.LastAccess).Seconds()
			accessCnt := e.AccessCnt
			if accessCnt < 1 {
				accessCnt = 1
			}
			score := idle * float64(e.Bytes) / float64(accessCnt)
			if !found || score > worst {
				worst = score
				victim = id
				found = true
			}
		}
		if !found {
			break
		}
		p.deleteLocked(victim)
	}
}

func contentBytes(content []mcp.Content) int64 {
	return mcputil.Bytes(content)
}

// FormatID is a small helper for callers that need to build the external
// form without going through Put (e.g. drill-in handlers echoing a
// cache-id that was already resolved).
func FormatID(agent, suffix string) string {
	return fmt.Sprintf("%s:%s", agent, suffix)
}
