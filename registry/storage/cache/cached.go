package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aerugo/aerugo"
	"github.com/distribution/reference"
	"github.com/opencontainers/go-digest"
)

// WrapRegistry decorates a namespace with read-through caching. Reads of
// manifests, tag listings, tag resolutions, blob descriptors and catalog
// pages are served from the cache; every write passes through to the
// underlying namespace and invalidates the affected entries before the
// write returns. Existence checks and blob content always consult the
// underlying store.
func WrapRegistry(namespace aerugo.Namespace, service *Service) aerugo.Namespace {
	return &cachedNamespace{
		Namespace: namespace,
		cache:     service,
	}
}

type cachedNamespace struct {
	aerugo.Namespace
	cache *Service
}

type catalogPage struct {
	Repositories []string `json:"repositories"`
	Filled       int      `json:"filled"`
	EOF          bool     `json:"eof"`
}

func (ns *cachedNamespace) Repositories(ctx context.Context, repos []string, last string) (int, error) {
	key := fmt.Sprintf("n=%d::last=%s", len(repos), last)

	v, err := ns.cache.GetOrLoad(ctx, KindCatalog, key, func(ctx context.Context) ([]byte, error) {
		page := catalogPage{}
		n, err := ns.Namespace.Repositories(ctx, repos, last)
		if err == io.EOF {
			page.EOF = true
		} else if err != nil {
			return nil, err
		}
		page.Filled = n
		page.Repositories = append(page.Repositories, repos[:n]...)
		return json.Marshal(page)
	})
	if err != nil {
		return 0, err
	}

	var page catalogPage
	if err := json.Unmarshal(v, &page); err != nil {
		return 0, err
	}
	n := copy(repos, page.Repositories)
	if page.EOF {
		return n, io.EOF
	}
	return n, nil
}

func (ns *cachedNamespace) Repository(ctx context.Context, named reference.Named) (aerugo.Repository, error) {
	repo, err := ns.Namespace.Repository(ctx, named)
	if err != nil {
		return nil, err
	}
	return &cachedRepository{
		Repository: repo,
		cache:      ns.cache,
	}, nil
}

type cachedRepository struct {
	aerugo.Repository
	cache *Service
}

func (r *cachedRepository) Manifests(ctx context.Context) (aerugo.ManifestService, error) {
	manifests, err := r.Repository.Manifests(ctx)
	if err != nil {
		return nil, err
	}
	return &cachedManifestStore{
		upstream: manifests,
		repo:     r.Named().Name(),
		cache:    r.cache,
	}, nil
}

func (r *cachedRepository) Tags(ctx context.Context) aerugo.TagService {
	return &cachedTagStore{
		upstream: r.Repository.Tags(ctx),
		repo:     r.Named().Name(),
		cache:    r.cache,
	}
}

func (r *cachedRepository) Blobs(ctx context.Context) aerugo.BlobService {
	return &cachedBlobStore{
		BlobService: r.Repository.Blobs(ctx),
		repo:        r.Named().Name(),
		cache:       r.cache,
	}
}

type cachedManifestStore struct {
	upstream aerugo.ManifestService
	repo     string
	cache    *Service
}

func (ms *cachedManifestStore) Exists(ctx context.Context, dgst digest.Digest) (bool, error) {
	return ms.upstream.Exists(ctx, dgst)
}

func (ms *cachedManifestStore) Get(ctx context.Context, dgst digest.Digest) (aerugo.Manifest, error) {
	v, err := ms.cache.GetOrLoad(ctx, KindManifest, dgst.String(), func(ctx context.Context) ([]byte, error) {
		m, err := ms.upstream.Get(ctx, dgst)
		if err != nil {
			return nil, err
		}
		return json.Marshal(m)
	})
	if err != nil {
		return aerugo.Manifest{}, err
	}

	var m aerugo.Manifest
	if err := json.Unmarshal(v, &m); err != nil {
		return aerugo.Manifest{}, err
	}
	return m, nil
}

func (ms *cachedManifestStore) Put(ctx context.Context, manifest aerugo.Manifest) (digest.Digest, error) {
	dgst, err := ms.upstream.Put(ctx, manifest)
	if err != nil {
		return "", err
	}
	ms.cache.Invalidate(ctx, ms.repo)
	return dgst, nil
}

func (ms *cachedManifestStore) Delete(ctx context.Context, dgst digest.Digest) error {
	if err := ms.upstream.Delete(ctx, dgst); err != nil {
		return err
	}
	ms.cache.InvalidateManifest(ctx, dgst)
	ms.cache.Invalidate(ctx, ms.repo)
	return nil
}

type cachedTagStore struct {
	upstream aerugo.TagService
	repo     string
	cache    *Service
}

func (ts *cachedTagStore) Get(ctx context.Context, tag string) (aerugo.Descriptor, error) {
	v, err := ts.cache.GetOrLoad(ctx, KindManifestRef, ts.repo+"::"+tag, func(ctx context.Context) ([]byte, error) {
		desc, err := ts.upstream.Get(ctx, tag)
		if err != nil {
			return nil, err
		}
		return json.Marshal(desc)
	})
	if err != nil {
		return aerugo.Descriptor{}, err
	}

	var desc aerugo.Descriptor
	if err := json.Unmarshal(v, &desc); err != nil {
		return aerugo.Descriptor{}, err
	}
	return desc, nil
}

func (ts *cachedTagStore) Tag(ctx context.Context, tag string, desc aerugo.Descriptor) error {
	if err := ts.upstream.Tag(ctx, tag, desc); err != nil {
		return err
	}
	ts.cache.Invalidate(ctx, ts.repo)
	return nil
}

func (ts *cachedTagStore) Untag(ctx context.Context, tag string) error {
	if err := ts.upstream.Untag(ctx, tag); err != nil {
		return err
	}
	ts.cache.Invalidate(ctx, ts.repo)
	return nil
}

func (ts *cachedTagStore) All(ctx context.Context) ([]string, error) {
	v, err := ts.cache.GetOrLoad(ctx, KindTags, ts.repo, func(ctx context.Context) ([]byte, error) {
		tags, err := ts.upstream.All(ctx)
		if err != nil {
			return nil, err
		}
		if tags == nil {
			tags = []string{}
		}
		return json.Marshal(tags)
	})
	if err != nil {
		return nil, err
	}

	var tags []string
	if err := json.Unmarshal(v, &tags); err != nil {
		return nil, err
	}
	return tags, nil
}

func (ts *cachedTagStore) Lookup(ctx context.Context, dgst digest.Digest) ([]string, error) {
	return ts.upstream.Lookup(ctx, dgst)
}

type cachedBlobStore struct {
	aerugo.BlobService
	repo  string
	cache *Service
}

func (bs *cachedBlobStore) Stat(ctx context.Context, dgst digest.Digest) (aerugo.Descriptor, error) {
	v, err := bs.cache.GetOrLoad(ctx, KindBlobMeta, bs.repo+"::"+dgst.String(), func(ctx context.Context) ([]byte, error) {
		desc, err := bs.BlobService.Stat(ctx, dgst)
		if err != nil {
			return nil, err
		}
		return json.Marshal(desc)
	})
	if err != nil {
		return aerugo.Descriptor{}, err
	}

	var desc aerugo.Descriptor
	if err := json.Unmarshal(v, &desc); err != nil {
		return aerugo.Descriptor{}, err
	}
	return desc, nil
}

func (bs *cachedBlobStore) Put(ctx context.Context, mediaType string, p []byte) (aerugo.Descriptor, error) {
	desc, err := bs.BlobService.Put(ctx, mediaType, p)
	if err != nil {
		return aerugo.Descriptor{}, err
	}
	bs.cache.InvalidateCatalog(ctx)
	return desc, nil
}

func (bs *cachedBlobStore) Create(ctx context.Context) (aerugo.BlobWriter, error) {
	wr, err := bs.BlobService.Create(ctx)
	if err != nil {
		return nil, err
	}
	return &cachedBlobWriter{BlobWriter: wr, cache: bs.cache}, nil
}

func (bs *cachedBlobStore) Resume(ctx context.Context, id string) (aerugo.BlobWriter, error) {
	wr, err := bs.BlobService.Resume(ctx, id)
	if err != nil {
		return nil, err
	}
	return &cachedBlobWriter{BlobWriter: wr, cache: bs.cache}, nil
}

func (bs *cachedBlobStore) Delete(ctx context.Context, dgst digest.Digest) error {
	if err := bs.BlobService.Delete(ctx, dgst); err != nil {
		return err
	}
	bs.cache.InvalidateBlob(ctx, bs.repo, dgst)
	return nil
}

// cachedBlobWriter purges cached catalog pages when a blob commit lands, so
// a repository whose first write is a blob push appears in the catalog
// without waiting out the page TTL.
type cachedBlobWriter struct {
	aerugo.BlobWriter
	cache *Service
}

func (bw *cachedBlobWriter) Commit(ctx context.Context, desc aerugo.Descriptor) (aerugo.Descriptor, error) {
	committed, err := bw.BlobWriter.Commit(ctx, desc)
	if err != nil {
		return aerugo.Descriptor{}, err
	}
	bw.cache.InvalidateCatalog(ctx)
	return committed, nil
}
