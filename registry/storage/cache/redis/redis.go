// Package redis implements the shared cache tier for multi-instance
// deployments. The tier is best-effort: a backend error or an
// unreachable server degrades to a cache miss and the registry keeps
// serving from storage.
//
// Prefix and whole-kind invalidation avoid key scans. Every scope
// (a kind, or a repository within a kind) has a generation counter; keys
// embed the generation they were written under, so bumping the counter
// orphans every existing entry at once and TTL reclaims them.
package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aerugo/aerugo/internal/dcontext"
	"github.com/aerugo/aerugo/registry/storage/cache"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "aerugo::cache"

// maxTTL bounds orphaned entries left behind by generation bumps.
const maxTTL = time.Hour

// Tier is the redis-backed shared cache tier.
type Tier struct {
	client redis.UniversalClient
}

var _ cache.Tier = (*Tier)(nil)
var _ cache.Pinger = (*Tier)(nil)

// NewTier wraps an existing client. The caller owns the client's
// lifecycle.
func NewTier(client redis.UniversalClient) *Tier {
	return &Tier{client: client}
}

func genKey(scope string) string {
	return keyPrefix + "::gen::" + scope
}

// scopes returns the generation scopes a key participates in: always the
// kind itself, plus the repository scope for keys of the form
// "<repository>::<rest>".
func scopes(kind cache.Kind, key string) []string {
	out := []string{string(kind)}
	if i := strings.LastIndex(key, "::"); i > 0 {
		out = append(out, string(kind)+"::"+key[:i])
	}
	return out
}

func (t *Tier) generation(ctx context.Context, scope string) string {
	v, err := t.client.Get(ctx, genKey(scope)).Result()
	if err != nil {
		// Missing counter means generation zero; any other error is
		// treated the same and at worst maps to a miss.
		return "0"
	}
	return v
}

func (t *Tier) entryKey(ctx context.Context, kind cache.Kind, key string) string {
	var b strings.Builder
	b.WriteString(keyPrefix)
	for _, scope := range scopes(kind, key) {
		b.WriteString("::g")
		b.WriteString(t.generation(ctx, scope))
	}
	b.WriteString("::")
	b.WriteString(string(kind))
	b.WriteString("::")
	b.WriteString(key)
	return b.String()
}

func (t *Tier) Get(ctx context.Context, kind cache.Kind, key string) ([]byte, bool) {
	v, err := t.client.Get(ctx, t.entryKey(ctx, kind, key)).Bytes()
	if err != nil {
		if err != redis.Nil {
			dcontext.GetLogger(ctx).Warnf("redis cache: get failed: %v", err)
		}
		return nil, false
	}
	return v, true
}

func (t *Tier) Set(ctx context.Context, kind cache.Kind, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 || ttl > maxTTL {
		ttl = maxTTL
	}
	if err := t.client.Set(ctx, t.entryKey(ctx, kind, key), value, ttl).Err(); err != nil {
		dcontext.GetLogger(ctx).Warnf("redis cache: set failed: %v", err)
	}
}

func (t *Tier) Delete(ctx context.Context, kind cache.Kind, key string) {
	if err := t.client.Del(ctx, t.entryKey(ctx, kind, key)).Err(); err != nil {
		dcontext.GetLogger(ctx).Warnf("redis cache: delete failed: %v", err)
	}
}

// DeletePrefix bumps the generation for the repository scope named by
// prefix, which must be of the form "<repository>::".
func (t *Tier) DeletePrefix(ctx context.Context, kind cache.Kind, prefix string) {
	repo := strings.TrimSuffix(prefix, "::")
	t.bump(ctx, string(kind)+"::"+repo)
}

func (t *Tier) Purge(ctx context.Context, kind cache.Kind) {
	t.bump(ctx, string(kind))
}

func (t *Tier) bump(ctx context.Context, scope string) {
	if err := t.client.Incr(ctx, genKey(scope)).Err(); err != nil {
		dcontext.GetLogger(ctx).Warnf("redis cache: generation bump failed: %v", err)
	}
}

// Ping reports whether the backend currently answers.
func (t *Tier) Ping(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	return t.client.Ping(ctx).Err() == nil
}

// String implements fmt.Stringer for log output.
func (t *Tier) String() string {
	return fmt.Sprintf("redis cache tier (%s)", keyPrefix)
}
