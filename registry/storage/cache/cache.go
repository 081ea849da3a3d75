// Package cache provides the read-through cache for the registry's
// high-read-volume metadata: the catalog, per-repository tag lists, and
// manifests. Two tiers are supported: a local in-process tier that is
// invalidated synchronously on writes, and an optional shared tier for
// multi-instance deployments that is best-effort, bounded by TTL and
// never treated as authoritative for existence checks.
package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/aerugo/aerugo/internal/dcontext"
	"github.com/opencontainers/go-digest"
	"github.com/prometheus/client_golang/prometheus"
)

// Kind partitions the cache key space. Invalidation operates on kinds:
// a repository write clears that repository's tag and tag-resolution
// entries plus the whole catalog kind, while by-digest manifest entries
// survive until that exact manifest is deleted.
type Kind string

const (
	// KindManifest caches manifest content keyed by digest.
	KindManifest Kind = "manifest"

	// KindManifestRef caches tag-to-digest resolutions keyed by
	// "<repository>::<tag>".
	KindManifestRef Kind = "manifestref"

	// KindTags caches tag listings keyed by repository name.
	KindTags Kind = "tags"

	// KindCatalog caches catalog pages keyed by pagination parameters.
	KindCatalog Kind = "catalog"

	// KindBlobMeta caches blob descriptors keyed by
	// "<repository>::<digest>".
	KindBlobMeta Kind = "blobmeta"
)

// Tier is a single cache tier. Implementations must be safe for
// concurrent use. Get misses are indicated by ok == false; tiers never
// return errors to callers, an unreachable backend is simply a miss.
type Tier interface {
	Get(ctx context.Context, kind Kind, key string) (value []byte, ok bool)
	Set(ctx context.Context, kind Kind, key string, value []byte, ttl time.Duration)
	Delete(ctx context.Context, kind Kind, key string)
	DeletePrefix(ctx context.Context, kind Kind, prefix string)
	Purge(ctx context.Context, kind Kind)
}

// Lengther reports entry counts per kind; implemented by the local tier
// for the cache statistics surface.
type Lengther interface {
	Len(kind Kind) int
}

// Pinger reports reachability of a remote tier.
type Pinger interface {
	Ping(ctx context.Context) bool
}

var cacheDuration = prometheus.NewSummaryVec(prometheus.SummaryOpts{
	Namespace: "aerugo",
	Subsystem: "cache",
	Name:      "duration_seconds",
	Help:      "Duration of cache operations in seconds.",
}, []string{"op", "tier"})

func init() {
	prometheus.MustRegister(cacheDuration)
}

// TTLs configures per-kind entry lifetimes.
type TTLs struct {
	Manifest time.Duration
	Tags     time.Duration
	Catalog  time.Duration
	BlobMeta time.Duration
}

// DefaultTTLs returns the default per-kind lifetimes.
func DefaultTTLs() TTLs {
	return TTLs{
		Manifest: 5 * time.Minute,
		Tags:     2 * time.Minute,
		Catalog:  time.Minute,
		BlobMeta: 10 * time.Minute,
	}
}

func (t TTLs) forKind(kind Kind) time.Duration {
	switch kind {
	case KindManifest:
		return t.Manifest
	case KindManifestRef, KindTags:
		return t.Tags
	case KindCatalog:
		return t.Catalog
	case KindBlobMeta:
		return t.BlobMeta
	default:
		return time.Minute
	}
}

// Service is the process-wide cache instance. It is created at startup,
// passed to the handlers by dependency injection and torn down with the
// application; nothing in the registry reaches for ambient cache state.
type Service struct {
	local  Tier
	shared Tier // may be nil
	ttls   TTLs

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewService builds a cache service from the given tiers. local must not
// be nil; shared may be nil for single-instance deployments.
func NewService(local Tier, shared Tier, ttls TTLs) *Service {
	return &Service{
		local:  local,
		shared: shared,
		ttls:   ttls,
	}
}

// GetOrLoad returns the cached value for (kind, key), falling back to the
// loader on miss and populating both tiers with the loaded value. Loader
// errors are returned as-is and never cached.
func (s *Service) GetOrLoad(ctx context.Context, kind Kind, key string, loader func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	if v, ok := s.get(ctx, kind, key); ok {
		s.hits.Add(1)
		return v, nil
	}
	s.misses.Add(1)

	v, err := loader(ctx)
	if err != nil {
		return nil, err
	}

	ttl := s.ttls.forKind(kind)
	s.observe("set", "local", func() { s.local.Set(ctx, kind, key, v, ttl) })
	if s.shared != nil {
		s.observe("set", "shared", func() { s.shared.Set(ctx, kind, key, v, ttl) })
	}
	return v, nil
}

func (s *Service) get(ctx context.Context, kind Kind, key string) ([]byte, bool) {
	var v []byte
	var ok bool
	s.observe("get", "local", func() { v, ok = s.local.Get(ctx, kind, key) })
	if ok {
		return v, true
	}

	if s.shared == nil {
		return nil, false
	}

	s.observe("get", "shared", func() { v, ok = s.shared.Get(ctx, kind, key) })
	if !ok {
		return nil, false
	}

	// Promote the shared hit into the local tier.
	s.local.Set(ctx, kind, key, v, s.ttls.forKind(kind))
	return v, true
}

// Invalidate clears the catalog plus the given repository's tag list and
// tag-resolution entries. It is called synchronously on the write path,
// before success is reported to the caller, so a subsequent read always
// observes the new state through the local tier.
func (s *Service) Invalidate(ctx context.Context, repo string) {
	dcontext.GetLogger(ctx).Debugf("cache: invalidate repo=%s", repo)

	s.observe("invalidate", "local", func() {
		s.local.Purge(ctx, KindCatalog)
		s.local.Delete(ctx, KindTags, repo)
		s.local.DeletePrefix(ctx, KindManifestRef, repo+"::")
	})

	if s.shared != nil {
		s.observe("invalidate", "shared", func() {
			s.shared.Purge(ctx, KindCatalog)
			s.shared.Delete(ctx, KindTags, repo)
			s.shared.DeletePrefix(ctx, KindManifestRef, repo+"::")
		})
	}
}

// InvalidateCatalog clears cached catalog pages. Blob writes use this so a
// repository created by a blob-only push shows up in the catalog without
// waiting out the page TTL.
func (s *Service) InvalidateCatalog(ctx context.Context) {
	s.observe("invalidate", "local", func() { s.local.Purge(ctx, KindCatalog) })
	if s.shared != nil {
		s.observe("invalidate", "shared", func() { s.shared.Purge(ctx, KindCatalog) })
	}
}

// InvalidateManifest clears the by-digest entry for one manifest. Digests
// are immutable, so this only happens when that exact manifest is
// deleted; writes under other tags leave by-digest entries alone.
func (s *Service) InvalidateManifest(ctx context.Context, dgst digest.Digest) {
	s.observe("invalidate", "local", func() { s.local.Delete(ctx, KindManifest, dgst.String()) })
	if s.shared != nil {
		s.observe("invalidate", "shared", func() { s.shared.Delete(ctx, KindManifest, dgst.String()) })
	}
}

// InvalidateBlob clears cached blob descriptors for the digest across all
// repositories.
func (s *Service) InvalidateBlob(ctx context.Context, repo string, dgst digest.Digest) {
	key := repo + "::" + dgst.String()
	s.observe("invalidate", "local", func() { s.local.Delete(ctx, KindBlobMeta, key) })
	if s.shared != nil {
		s.observe("invalidate", "shared", func() { s.shared.Delete(ctx, KindBlobMeta, key) })
	}
}

// Stats reports the state of the cache tiers for the health surface.
func (s *Service) Stats(ctx context.Context) Stats {
	stats := Stats{}

	if l, ok := s.local.(Lengther); ok {
		stats.MemoryCache = MemoryStats{
			ManifestCount:     l.Len(KindManifest) + l.Len(KindManifestRef),
			BlobMetadataCount: l.Len(KindBlobMeta),
			RepositoryCount:   l.Len(KindCatalog),
			TagCount:          l.Len(KindTags),
			Hits:              s.hits.Load(),
			Misses:            s.misses.Load(),
		}
	}

	if p, ok := s.shared.(Pinger); ok {
		stats.RedisConnected = p.Ping(ctx)
	}

	return stats
}

// Stats is the cache statistics document served by the health endpoint.
type Stats struct {
	MemoryCache    MemoryStats `json:"memory_cache"`
	RedisConnected bool        `json:"redis_connected"`
}

// MemoryStats describes the local tier.
type MemoryStats struct {
	ManifestCount     int    `json:"manifest_count"`
	BlobMetadataCount int    `json:"blob_metadata_count"`
	RepositoryCount   int    `json:"repository_count"`
	TagCount          int    `json:"tag_count"`
	Hits              uint64 `json:"hits"`
	Misses            uint64 `json:"misses"`
}

func (s *Service) observe(op, tier string, fn func()) {
	start := time.Now()
	fn()
	cacheDuration.WithLabelValues(op, tier).Observe(time.Since(start).Seconds())
}
