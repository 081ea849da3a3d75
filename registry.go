package aerugo

import (
	"context"

	"github.com/distribution/reference"
)

// Namespace represents a collection of repositories, addressable by name.
type Namespace interface {
	// Repository should return a reference to the named repository. The
	// registry may or may not have the repository but should always return
	// a reference; repositories are created implicitly on first write.
	Repository(ctx context.Context, name reference.Named) (Repository, error)

	// Repositories fills repos with a lexicographically sorted catalog of
	// repository names up to the size of repos and returns the value n for
	// the number of entries filled. last contains an offset in the catalog,
	// and io.EOF is returned once the catalog is exhausted.
	Repositories(ctx context.Context, repos []string, last string) (n int, err error)

	// Blobs returns the global blob service, addressing blobs by digest
	// independent of any repository.
	Blobs() BlobService
}

// Repository is a named collection of manifests, tags and blob links.
type Repository interface {
	// Named returns the name of the repository.
	Named() reference.Named

	// Manifests returns a reference to this repository's manifest service.
	Manifests(ctx context.Context) (ManifestService, error)

	// Tags returns a reference to this repository's tag service.
	Tags(ctx context.Context) TagService

	// Blobs returns the blob service scoped to this repository. Writes
	// through this service link the blob into the repository; reads check
	// the global store.
	Blobs(ctx context.Context) BlobService
}
