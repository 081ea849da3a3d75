package storage

import (
	"context"
	"errors"
	"io"

	"github.com/aerugo/aerugo"
	storagedriver "github.com/aerugo/aerugo/registry/storage/driver"
	"github.com/opencontainers/go-digest"
)

// linkedBlobStore provides a full BlobService that namespaces the blobs to
// a repository. Effectively, it manages the links in a given repository
// that grant access to the global blob store: existence checks consult the
// repository's links, while the content itself lives once in the global
// store regardless of how many repositories reference it.
type linkedBlobStore struct {
	*blobStore
	repository *repository
	uploads    *uploadManager
}

var _ aerugo.BlobService = &linkedBlobStore{}

// Stat returns the descriptor of the blob if it is linked into this
// repository, aerugo.ErrBlobUnknown otherwise.
func (lbs *linkedBlobStore) Stat(ctx context.Context, dgst digest.Digest) (aerugo.Descriptor, error) {
	if err := lbs.checkLink(ctx, dgst); err != nil {
		return aerugo.Descriptor{}, err
	}

	desc, err := lbs.blobStore.Stat(ctx, dgst)
	if err != nil {
		return aerugo.Descriptor{}, err
	}

	desc.MediaType = "application/octet-stream"
	return desc, nil
}

// Get returns the blob content if the blob is linked into this repository.
func (lbs *linkedBlobStore) Get(ctx context.Context, dgst digest.Digest) ([]byte, error) {
	if err := lbs.checkLink(ctx, dgst); err != nil {
		return nil, err
	}
	return lbs.blobStore.Get(ctx, dgst)
}

// Open provides a reader for the blob if it is linked into this
// repository.
func (lbs *linkedBlobStore) Open(ctx context.Context, dgst digest.Digest) (io.ReadCloser, error) {
	if err := lbs.checkLink(ctx, dgst); err != nil {
		return nil, err
	}
	return lbs.blobStore.Open(ctx, dgst)
}

// Put stores content directly, linking it into the repository.
func (lbs *linkedBlobStore) Put(ctx context.Context, mediaType string, p []byte) (aerugo.Descriptor, error) {
	return lbs.putAndLink(ctx, mediaType, p)
}

// Create begins a blob upload session, returning a handle.
func (lbs *linkedBlobStore) Create(ctx context.Context) (aerugo.BlobWriter, error) {
	return lbs.uploads.create(ctx, lbs)
}

// Resume continues an in-progress upload identified by id. Sessions belong
// to the repository that started them.
func (lbs *linkedBlobStore) Resume(ctx context.Context, id string) (aerugo.BlobWriter, error) {
	bw, err := lbs.uploads.resume(ctx, id)
	if err != nil {
		return nil, err
	}

	if bw.blobStore.repository.Named().Name() != lbs.repository.Named().Name() {
		return nil, aerugo.ErrBlobUploadUnknown
	}

	return bw, nil
}

// Delete unlinks the blob from this repository. The global content is left
// in place; reclaiming unreferenced data is a garbage collection concern.
func (lbs *linkedBlobStore) Delete(ctx context.Context, dgst digest.Digest) error {
	if err := lbs.checkLink(ctx, dgst); err != nil {
		return err
	}

	linkPath := pathFor(layerLinkPathSpec{name: lbs.repository.Named().Name(), digest: dgst})
	return lbs.driver.Delete(ctx, linkPath)
}

// putAndLink writes the content to the global store (a no-op when the
// digest is already present) and links it into the repository.
func (lbs *linkedBlobStore) putAndLink(ctx context.Context, mediaType string, p []byte) (aerugo.Descriptor, error) {
	desc, err := lbs.blobStore.Put(ctx, mediaType, p)
	if err != nil {
		return aerugo.Descriptor{}, err
	}

	linkPath := pathFor(layerLinkPathSpec{name: lbs.repository.Named().Name(), digest: desc.Digest})
	if err := lbs.blobStore.link(ctx, linkPath, desc.Digest); err != nil {
		return aerugo.Descriptor{}, err
	}

	return desc, nil
}

func (lbs *linkedBlobStore) checkLink(ctx context.Context, dgst digest.Digest) error {
	if err := dgst.Validate(); err != nil {
		return aerugo.ErrBlobInvalidDigest{Digest: dgst, Reason: err}
	}

	linkPath := pathFor(layerLinkPathSpec{name: lbs.repository.Named().Name(), digest: dgst})
	linked, err := lbs.blobStore.readlink(ctx, linkPath)
	if err != nil {
		var pnfe storagedriver.PathNotFoundError
		if errors.As(err, &pnfe) {
			return aerugo.ErrBlobUnknown
		}
		return err
	}

	if linked != dgst {
		return aerugo.ErrBlobUnknown
	}
	return nil
}
