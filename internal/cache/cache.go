// Package cache stores research responses keyed by normalized query, so a
// repeated question is answered without another model run.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/nextlevelbuilder/researcher/internal/research"
)

// Cache is a response cache. Implementations are safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) (research.Response, bool)
	Set(ctx context.Context, key string, resp research.Response) error
	Close() error
}

// Key hashes the query after NFKC normalization, case folding and whitespace
// collapsing, so "What is Go?" and "  what is   go? " share an entry.
func Key(query string) string {
	folded := cases.Fold().String(norm.NFKC.String(query))
	sum := sha256.Sum256([]byte(strings.Join(strings.Fields(folded), " ")))
	return hex.EncodeToString(sum[:])
}

// Options configures New.
type Options struct {
	Backend    string // memory, redis, none
	RedisURL   string
	TTL        time.Duration
	MaxEntries int
}

// New builds the configured cache. Backend "none" returns a cache that never hits.
func New(ctx context.Context, opts Options) (Cache, error) {
	switch opts.Backend {
	case "", "memory":
		return NewMemory(opts.MaxEntries, opts.TTL), nil
	case "redis":
		return NewRedis(ctx, opts.RedisURL, opts.TTL)
	case "none":
		return Nop{}, nil
	}
	return nil, fmt.Errorf("unknown cache backend %q", opts.Backend)
}

// Nop never stores anything.
type Nop struct{}

func (Nop) Get(context.Context, string) (research.Response, bool) { return research.Response{}, false }
func (Nop) Set(context.Context, string, research.Response) error  { return nil }
func (Nop) Close() error                                          { return nil }
