package storage

import (
	"context"

	"github.com/aerugo/aerugo"
)

// globalBlobStore exposes the registry-wide blob store as a BlobService.
// Uploads are always repository-scoped, so the ingest session methods are
// unsupported here.
type globalBlobStore struct {
	*blobStore
}

var _ aerugo.BlobService = &globalBlobStore{}

func (gbs *globalBlobStore) Create(ctx context.Context) (aerugo.BlobWriter, error) {
	return nil, aerugo.ErrUnsupported
}

func (gbs *globalBlobStore) Resume(ctx context.Context, id string) (aerugo.BlobWriter, error) {
	return nil, aerugo.ErrUnsupported
}
