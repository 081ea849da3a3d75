package storage

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/aerugo/aerugo"
	"github.com/aerugo/aerugo/internal/dcontext"
	storagedriver "github.com/aerugo/aerugo/registry/storage/driver"
	"github.com/opencontainers/go-digest"
)

// blobStore implements the registry's global content-addressable store
// over a driver. Content is stored once per unique digest regardless of
// how many repositories link to it. The digest of incoming content is
// always recomputed here; a caller-supplied digest is never trusted.
type blobStore struct {
	driver storagedriver.StorageDriver
}

var _ aerugo.BlobProvider = &blobStore{}

// Get retrieves the blob by digest, returning it as a byte slice.
func (bs *blobStore) Get(ctx context.Context, dgst digest.Digest) ([]byte, error) {
	bp, err := bs.path(dgst)
	if err != nil {
		return nil, err
	}

	p, err := bs.driver.GetContent(ctx, bp)
	if err != nil {
		var pnfe storagedriver.PathNotFoundError
		if errors.As(err, &pnfe) {
			return nil, aerugo.ErrBlobUnknown
		}
		return nil, err
	}

	return p, nil
}

// Open provides a reader for the blob identified by digest.
func (bs *blobStore) Open(ctx context.Context, dgst digest.Digest) (io.ReadCloser, error) {
	p, err := bs.Get(ctx, dgst)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(p)), nil
}

// Stat returns the descriptor of the blob identified by digest. The
// media type is unknown at this level and left to linked stores.
func (bs *blobStore) Stat(ctx context.Context, dgst digest.Digest) (aerugo.Descriptor, error) {
	bp, err := bs.path(dgst)
	if err != nil {
		return aerugo.Descriptor{}, err
	}

	fi, err := bs.driver.Stat(ctx, bp)
	if err != nil {
		var pnfe storagedriver.PathNotFoundError
		if errors.As(err, &pnfe) {
			return aerugo.Descriptor{}, aerugo.ErrBlobUnknown
		}
		return aerugo.Descriptor{}, err
	}

	return aerugo.Descriptor{
		Size:   fi.Size(),
		Digest: dgst,
	}, nil
}

// Put stores the content p in the blob store, calculating the digest. If
// the content is already present, only the digest will be returned. This
// should only be used for small objects, such as manifests.
func (bs *blobStore) Put(ctx context.Context, mediaType string, p []byte) (aerugo.Descriptor, error) {
	dgst := digest.FromBytes(p)
	desc := aerugo.Descriptor{
		MediaType: mediaType,
		Size:      int64(len(p)),
		Digest:    dgst,
	}

	bp, err := bs.path(dgst)
	if err != nil {
		return aerugo.Descriptor{}, err
	}

	// If the content already exists, just return the descriptor.
	if ok, err := exists(ctx, bs.driver, bp); err != nil {
		return aerugo.Descriptor{}, err
	} else if ok {
		return desc, nil
	}

	if err := bs.driver.PutContent(ctx, bp, p); err != nil {
		dcontext.GetLogger(ctx).Errorf("error putting content %v: %v", dgst, err)
		return aerugo.Descriptor{}, err
	}

	return desc, nil
}

// Delete removes the blob data from the global store.
func (bs *blobStore) Delete(ctx context.Context, dgst digest.Digest) error {
	bp, err := bs.path(dgst)
	if err != nil {
		return err
	}

	err = bs.driver.Delete(ctx, bp)
	if err != nil {
		var pnfe storagedriver.PathNotFoundError
		if errors.As(err, &pnfe) {
			return aerugo.ErrBlobUnknown
		}
	}
	return err
}

// link links the path to the provided digest by writing the digest into
// the target file. The blob must already exist in the store.
func (bs *blobStore) link(ctx context.Context, path string, dgst digest.Digest) error {
	// The contents of the "link" file are the exact string contents of the
	// digest.
	return bs.driver.PutContent(ctx, path, []byte(dgst))
}

// readlink returns the linked digest at path.
func (bs *blobStore) readlink(ctx context.Context, path string) (digest.Digest, error) {
	content, err := bs.driver.GetContent(ctx, path)
	if err != nil {
		return "", err
	}

	linked, err := digest.Parse(string(content))
	if err != nil {
		return "", err
	}

	return linked, nil
}

// path returns the canonical path for the blob identified by digest. The
// blob may or may not exist.
func (bs *blobStore) path(dgst digest.Digest) (string, error) {
	if err := dgst.Validate(); err != nil {
		return "", aerugo.ErrBlobInvalidDigest{Digest: dgst, Reason: err}
	}

	return pathFor(blobDataPathSpec{digest: dgst}), nil
}
