package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/nextlevelbuilder/researcher/internal/research"
)

const (
	defaultMemoryEntries = 256
	defaultTTL           = time.Hour
)

// Memory is an in-process LRU with per-entry expiry.
type Memory struct {
	lru *expirable.LRU[string, research.Response]
}

func NewMemory(maxEntries int, ttl time.Duration) *Memory {
	if maxEntries <= 0 {
		maxEntries = defaultMemoryEntries
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Memory{lru: expirable.NewLRU[string, research.Response](maxEntries, nil, ttl)}
}

func (m *Memory) Get(_ context.Context, key string) (research.Response, bool) {
	resp, ok := m.lru.Get(key)
	if !ok || resp.IsEmpty() {
		return research.Response{}, false
	}
	return resp, true
}

func (m *Memory) Set(_ context.Context, key string, resp research.Response) error {
	if resp.IsEmpty() {
		return nil
	}
	m.lru.Add(key, resp)
	return nil
}

// Len reports the number of live entries.
func (m *Memory) Len() int { return m.lru.Len() }

func (m *Memory) Close() error {
	m.lru.Purge()
	return nil
}
