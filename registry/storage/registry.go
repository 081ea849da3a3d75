package storage

import (
	"context"
	"sync"
	"time"

	"github.com/aerugo/aerugo"
	storagedriver "github.com/aerugo/aerugo/registry/storage/driver"
	"github.com/distribution/reference"
	"github.com/opencontainers/go-digest"
)

// registry is the top-level implementation of aerugo.Namespace, serving
// repositories over a storage driver. Shared state is guarded by
// per-repository locks rather than a single global lock so unrelated
// repositories never serialize against each other.
type registry struct {
	driver    storagedriver.StorageDriver
	blobStore *blobStore
	uploads   *uploadManager

	manifestReferenceValidation bool

	repoLocksMu sync.Mutex
	repoLocks   map[string]*sync.Mutex
}

var _ aerugo.Namespace = &registry{}

// RegistryOption configures the registry during creation.
type RegistryOption func(*registry) error

// ManifestReferenceValidation, when enabled, requires every config/layer
// digest referenced by an incoming manifest to already exist in the blob
// store.
func ManifestReferenceValidation(enabled bool) RegistryOption {
	return func(reg *registry) error {
		reg.manifestReferenceValidation = enabled
		return nil
	}
}

// UploadSessionTTL sets how long an idle upload session survives before it
// is reclaimed.
func UploadSessionTTL(ttl time.Duration) RegistryOption {
	return func(reg *registry) error {
		reg.uploads = newUploadManager(ttl)
		return nil
	}
}

// NewRegistry creates a registry namespace backed by the given driver.
func NewRegistry(ctx context.Context, driver storagedriver.StorageDriver, options ...RegistryOption) (aerugo.Namespace, error) {
	reg := &registry{
		driver:    driver,
		blobStore: &blobStore{driver: driver},
		uploads:   newUploadManager(defaultUploadSessionTTL),
		repoLocks: map[string]*sync.Mutex{},
	}

	for _, option := range options {
		if err := option(reg); err != nil {
			return nil, err
		}
	}

	return reg, nil
}

// Repository returns an instance of the repository tied to the registry.
// Instances should not be shared between goroutines but are cheap to
// allocate. In general, they should be request scoped.
func (reg *registry) Repository(ctx context.Context, canonicalName reference.Named) (aerugo.Repository, error) {
	return &repository{
		registry: reg,
		name:     canonicalName,
	}, nil
}

// Blobs returns the registry's global blob store, addressing content by
// digest independent of repository.
func (reg *registry) Blobs() aerugo.BlobService {
	return &globalBlobStore{blobStore: reg.blobStore}
}

// lockFor returns the mutex serializing writes for the named repository.
func (reg *registry) lockFor(name string) *sync.Mutex {
	reg.repoLocksMu.Lock()
	defer reg.repoLocksMu.Unlock()

	mu, ok := reg.repoLocks[name]
	if !ok {
		mu = &sync.Mutex{}
		reg.repoLocks[name] = mu
	}
	return mu
}

// repository provides name-scoped access to the manifest, tag and blob
// services. Repositories come into being implicitly: the first write
// creates the backing paths.
type repository struct {
	registry *registry
	name     reference.Named
}

var _ aerugo.Repository = &repository{}

// Named returns the name of the repository.
func (repo *repository) Named() reference.Named {
	return repo.name
}

// Manifests returns the manifest service for this repository.
func (repo *repository) Manifests(ctx context.Context) (aerugo.ManifestService, error) {
	return &serializedManifestStore{
		manifestStore: &manifestStore{
			repository: repo,
			blobStore:  repo.registry.blobStore,
			tagStore: &tagStore{
				repository: repo,
				blobStore:  repo.registry.blobStore,
			},
			requireReferences: repo.registry.manifestReferenceValidation,
		},
		lock: repo.registry.lockFor(repo.name.Name()),
	}, nil
}

// Tags returns the tag service for this repository.
func (repo *repository) Tags(ctx context.Context) aerugo.TagService {
	return &serializedTagStore{
		tagStore: &tagStore{
			repository: repo,
			blobStore:  repo.registry.blobStore,
		},
		lock: repo.registry.lockFor(repo.name.Name()),
	}
}

// Blobs returns the blob service scoped to this repository.
func (repo *repository) Blobs(ctx context.Context) aerugo.BlobService {
	return &linkedBlobStore{
		blobStore:  repo.registry.blobStore,
		repository: repo,
		uploads:    repo.registry.uploads,
	}
}

// exists reports whether the repository has any content.
func (repo *repository) exists(ctx context.Context) (bool, error) {
	return exists(ctx, repo.registry.driver, pathFor(repositoryRootPathSpec{name: repo.name.Name()}))
}

// serializedManifestStore serializes mutating manifest operations for a
// repository, giving last-writer-wins semantics for concurrent pushes of
// the same tag while leaving reads and other repositories unserialized.
type serializedManifestStore struct {
	*manifestStore
	lock *sync.Mutex
}

func (ms *serializedManifestStore) Put(ctx context.Context, m aerugo.Manifest) (digest.Digest, error) {
	ms.lock.Lock()
	defer ms.lock.Unlock()
	return ms.manifestStore.Put(ctx, m)
}

func (ms *serializedManifestStore) Delete(ctx context.Context, dgst digest.Digest) error {
	ms.lock.Lock()
	defer ms.lock.Unlock()
	return ms.manifestStore.Delete(ctx, dgst)
}

// serializedTagStore serializes tag writes per repository.
type serializedTagStore struct {
	*tagStore
	lock *sync.Mutex
}

func (ts *serializedTagStore) Tag(ctx context.Context, tag string, desc aerugo.Descriptor) error {
	ts.lock.Lock()
	defer ts.lock.Unlock()
	return ts.tagStore.Tag(ctx, tag, desc)
}

func (ts *serializedTagStore) Untag(ctx context.Context, tag string) error {
	ts.lock.Lock()
	defer ts.lock.Unlock()
	return ts.tagStore.Untag(ctx, tag)
}
