package storage

import (
	"context"
	"errors"
	"path"
	"sort"

	"github.com/aerugo/aerugo"
	"github.com/aerugo/aerugo/internal/dcontext"
	storagedriver "github.com/aerugo/aerugo/registry/storage/driver"
	"github.com/opencontainers/go-digest"
)

// tagStore provides methods to manage repository tags in the backend
// storage driver. Tags are link files containing the digest of the
// manifest revision they point at, so repointing a tag is a single
// overwrite and never produces a duplicate entry.
type tagStore struct {
	repository *repository
	blobStore  *blobStore
}

var _ aerugo.TagService = &tagStore{}

// All returns the tag names in the repository in lexicographic order.
func (ts *tagStore) All(ctx context.Context) ([]string, error) {
	pathSpec := pathFor(manifestTagsPathSpec{name: ts.repository.Named().Name()})

	entries, err := ts.blobStore.driver.List(ctx, pathSpec)
	if err != nil {
		var pnfe storagedriver.PathNotFoundError
		if errors.As(err, &pnfe) {
			// The tag directory is only absent when the repository itself
			// is unknown; a known repository with no tags lists empty.
			if ok, eerr := ts.repository.exists(ctx); eerr == nil && ok {
				return []string{}, nil
			}
			return nil, aerugo.ErrRepositoryUnknown{Name: ts.repository.Named().Name()}
		}
		return nil, err
	}

	tags := make([]string, 0, len(entries))
	for _, entry := range entries {
		_, filename := path.Split(entry)
		tags = append(tags, filename)
	}
	sort.Strings(tags)

	return tags, nil
}

// Get resolves the tag to the descriptor of its current manifest revision.
func (ts *tagStore) Get(ctx context.Context, tag string) (aerugo.Descriptor, error) {
	currentPath := pathFor(manifestTagCurrentPathSpec{
		name: ts.repository.Named().Name(),
		tag:  tag,
	})

	revision, err := ts.blobStore.readlink(ctx, currentPath)
	if err != nil {
		var pnfe storagedriver.PathNotFoundError
		if errors.As(err, &pnfe) {
			return aerugo.Descriptor{}, aerugo.ErrTagUnknown{Tag: tag}
		}
		return aerugo.Descriptor{}, err
	}

	return aerugo.Descriptor{Digest: revision}, nil
}

// Tag associates the tag with the provided descriptor, overwriting any
// current association.
func (ts *tagStore) Tag(ctx context.Context, tag string, desc aerugo.Descriptor) error {
	dcontext.GetLogger(ctx).Debugf("(*tagStore).Tag repo=%s tag=%s digest=%s", ts.repository.Named().Name(), tag, desc.Digest)

	if err := desc.Digest.Validate(); err != nil {
		return aerugo.ErrBlobInvalidDigest{Digest: desc.Digest, Reason: err}
	}

	currentPath := pathFor(manifestTagCurrentPathSpec{
		name: ts.repository.Named().Name(),
		tag:  tag,
	})

	return ts.blobStore.link(ctx, currentPath, desc.Digest)
}

// Untag removes the tag association.
func (ts *tagStore) Untag(ctx context.Context, tag string) error {
	tagPath := pathFor(manifestTagPathSpec{
		name: ts.repository.Named().Name(),
		tag:  tag,
	})

	err := ts.blobStore.driver.Delete(ctx, tagPath)
	if err != nil {
		var pnfe storagedriver.PathNotFoundError
		if errors.As(err, &pnfe) {
			return aerugo.ErrTagUnknown{Tag: tag}
		}
	}
	return err
}

// Lookup returns the tags which point at the given digest.
func (ts *tagStore) Lookup(ctx context.Context, dgst digest.Digest) ([]string, error) {
	allTags, err := ts.All(ctx)
	if err != nil {
		var unknown aerugo.ErrRepositoryUnknown
		if errors.As(err, &unknown) {
			return nil, nil
		}
		return nil, err
	}

	var tags []string
	for _, tag := range allTags {
		desc, err := ts.Get(ctx, tag)
		if err != nil {
			var unknown aerugo.ErrTagUnknown
			if errors.As(err, &unknown) {
				continue
			}
			return nil, err
		}

		if desc.Digest == dgst {
			tags = append(tags, tag)
		}
	}

	return tags, nil
}
