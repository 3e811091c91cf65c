package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// LRU is the in-process fallback store: bounded item count with
// least-recently-used eviction, and absolute per-entry expiry checked lazily
// on access.
type LRU struct {
	mu    sync.Mutex
	max   int
	order *list.List // front = most recently used
	items map[string]*list.Element

	now func() time.Time
}

type lruEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// NewLRU creates a store bounded to max items. A non-positive max defaults
// to 1024.
func NewLRU(max int) *LRU {
	if max <= 0 {
		max = 1024
	}
	return &LRU{
		max:   max,
		order: list.New(),
		items: make(map[string]*list.Element),
		now:   time.Now,
	}
}

// Get returns the unexpired value for key and refreshes its recency.
func (l *LRU) Get(_ context.Context, key string) ([]byte, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	el, ok := l.items[key]
	if !ok {
		return nil, false, nil
	}
	entry := el.Value.(*lruEntry)
	if entry.expiresAt.Before(l.now()) {
		l.order.Remove(el)
		delete(l.items, key)
		return nil, false, nil
	}
	l.order.MoveToFront(el)
	return entry.value, true, nil
}

// Put stores value under key with the given ttl, evicting from the LRU end
// when over capacity.
func (l *LRU) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	expires := l.now().Add(ttl)
	if el, ok := l.items[key]; ok {
		entry := el.Value.(*lruEntry)
		entry.value = value
		entry.expiresAt = expires
		l.order.MoveToFront(el)
		return nil
	}

	el := l.order.PushFront(&lruEntry{key: key, value: value, expiresAt: expires})
	l.items[key] = el
	for l.order.Len() > l.max {
		oldest := l.order.Back()
		l.order.Remove(oldest)
		delete(l.items, oldest.Value.(*lruEntry).key)
	}
	return nil
}

// Len returns the current number of stored entries, expired or not.
func (l *LRU) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.order.Len()
}

// Backend implements Cache.
func (l *LRU) Backend() string { return "memory" }
