package store

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-memory Store fake, modeled on the teacher's
// mutex-guarded HistoryCache (cmd/server/cache.go): one map per Redis
// data kind, one RWMutex. It backs every test in this module that
// would otherwise need a live Redis, and is good enough to run the
// manager and second-order filter end to end in-process.
type Memory struct {
	mu      sync.RWMutex
	strings map[string][]byte
	sets    map[string]map[string]struct{}
	hashes  map[string]map[string]string
	expiry  map[string]time.Time
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		strings: make(map[string][]byte),
		sets:    make(map[string]map[string]struct{}),
		hashes:  make(map[string]map[string]string),
		expiry:  make(map[string]time.Time),
	}
}

func (m *Memory) expired(key string) bool {
	at, ok := m.expiry[key]
	return ok && time.Now().After(at)
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.expired(key) {
		return nil, false, nil
	}
	v, ok := m.strings[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strings[key] = append([]byte(nil), value...)
	delete(m.expiry, key)
	return nil
}

func (m *Memory) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.strings[key]; ok && !m.expired(key) {
		return false, nil
	}
	m.strings[key] = append([]byte(nil), value...)
	if ttl > 0 {
		m.expiry[key] = time.Now().Add(ttl)
	} else {
		delete(m.expiry, key)
	}
	return true, nil
}

func (m *Memory) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.strings, k)
		delete(m.sets, k)
		delete(m.hashes, k)
		delete(m.expiry, k)
	}
	return nil
}

func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.expired(key) {
		return false, nil
	}
	if _, ok := m.strings[key]; ok {
		return true, nil
	}
	if _, ok := m.sets[key]; ok {
		return true, nil
	}
	if _, ok := m.hashes[key]; ok {
		return true, nil
	}
	return false, nil
}

func (m *Memory) SAdd(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.sets[key]
	if !ok {
		set = make(map[string]struct{})
		m.sets[key] = set
	}
	for _, mem := range members {
		set[mem] = struct{}{}
	}
	return nil
}

func (m *Memory) SMembers(_ context.Context, key string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := m.sets[key]
	out := make([]string, 0, len(set))
	for mem := range set {
		out = append(out, mem)
	}
	return out, nil
}

func (m *Memory) SRem(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.sets[key]
	if !ok {
		return nil
	}
	for _, mem := range members {
		delete(set, mem)
	}
	return nil
}

func (m *Memory) Rename(_ context.Context, oldKey, newKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.strings[oldKey]; ok {
		m.strings[newKey] = v
		delete(m.strings, oldKey)
	}
	if v, ok := m.sets[oldKey]; ok {
		m.sets[newKey] = v
		delete(m.sets, oldKey)
	}
	if v, ok := m.hashes[oldKey]; ok {
		m.hashes[newKey] = v
		delete(m.hashes, oldKey)
	}
	return nil
}

func (m *Memory) SUnionStore(_ context.Context, dest string, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	union := make(map[string]struct{})
	for _, k := range keys {
		for mem := range m.sets[k] {
			union[mem] = struct{}{}
		}
	}
	m.sets[dest] = union
	return nil
}

func (m *Memory) HSet(_ context.Context, key, field, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string]string)
		m.hashes[key] = h
	}
	h[field] = value
	return nil
}

func (m *Memory) HGetAll(_ context.Context, key string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.hashes[key]))
	for k, v := range m.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) HDel(_ context.Context, key string, fields ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[key]
	if !ok {
		return nil
	}
	for _, f := range fields {
		delete(h, f)
	}
	return nil
}

var _ Store = (*Memory)(nil)
var _ Store = (*RedisStore)(nil)
