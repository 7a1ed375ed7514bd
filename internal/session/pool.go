package session

import (
	"context"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultMaxEntries = 10000

// Pool hands out one Manager per client id (browser cookie, chat id).
// Each Manager stores its record under "<baseKey>:<id>". At most maxEntries
// managers are kept; an evicted one is rebuilt from the store on its next Get.
type Pool struct {
	store      Store
	baseKey    string
	log        *slog.Logger
	maxEntries int

	mu       sync.Mutex
	managers *lru.Cache[string, *Manager]
}

func NewPool(store Store, baseKey string, log *slog.Logger) *Pool {
	return newPool(store, baseKey, log, defaultMaxEntries)
}

func newPool(store Store, baseKey string, log *slog.Logger, maxEntries int) *Pool {
	if log == nil {
		log = slog.Default()
	}
	if baseKey == "" {
		baseKey = DefaultKey
	}
	maxEntries = max(maxEntries, 1)
	// only fails for a non-positive size
	cache, _ := lru.New[string, *Manager](maxEntries)

	return &Pool{
		store:      store,
		baseKey:    baseKey,
		log:        log,
		maxEntries: maxEntries,
		managers:   cache,
	}
}

// Get returns the restored Manager for id, creating it on first use.
func (p *Pool) Get(ctx context.Context, id string) *Manager {
	p.mu.Lock()
	m, ok := p.managers.Get(id)
	if !ok {
		if p.managers.Len() >= p.maxEntries {
			p.evictLocked()
		}
		m = NewManager(p.store, WithKey(p.baseKey+":"+id), WithLogger(p.log))
		p.managers.Add(id, m)
	}
	p.mu.Unlock()

	m.restoreIfNeeded(ctx)
	return m
}

// Forget drops the Manager for id. The persisted record is not touched.
func (p *Pool) Forget(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.managers.Remove(id)
}

func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.managers.Len()
}

// evictLocked frees one slot: the least recently used manager without a
// session, or else the least recently used one overall.
func (p *Pool) evictLocked() {
	for _, id := range p.managers.Keys() {
		if m, ok := p.managers.Peek(id); ok && !m.IsAuthenticated() {
			p.managers.Remove(id)
			p.log.Debug("session pool evicted idle manager", slog.String("id", id))
			return
		}
	}
	if id, _, ok := p.managers.RemoveOldest(); ok {
		p.log.Debug("session pool evicted oldest manager", slog.String("id", id))
	}
}
