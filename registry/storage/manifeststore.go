package storage

import (
	"context"
	"errors"

	"github.com/aerugo/aerugo"
	"github.com/aerugo/aerugo/internal/dcontext"
	storagedriver "github.com/aerugo/aerugo/registry/storage/driver"
	"github.com/opencontainers/go-digest"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
)

// manifestStore persists manifests as content-addressed revisions within a
// repository. The payload bytes live once in the global blob store; the
// repository holds a revision link per digest, so pushing byte-identical
// content under any number of tags stores exactly one manifest.
type manifestStore struct {
	repository *repository
	blobStore  *blobStore
	tagStore   *tagStore

	// requireReferences enables strict validation: every config/layer
	// digest referenced by an incoming manifest must already exist in the
	// blob store.
	requireReferences bool
}

var _ aerugo.ManifestService = &manifestStore{}

// Exists returns true if the manifest revision is present in this
// repository.
func (ms *manifestStore) Exists(ctx context.Context, dgst digest.Digest) (bool, error) {
	linkPath := pathFor(manifestRevisionLinkPathSpec{
		name:     ms.repository.Named().Name(),
		revision: dgst,
	})

	return exists(ctx, ms.blobStore.driver, linkPath)
}

// Get retrieves the manifest identified by digest.
func (ms *manifestStore) Get(ctx context.Context, dgst digest.Digest) (aerugo.Manifest, error) {
	dcontext.GetLogger(ctx).Debugf("(*manifestStore).Get repo=%s digest=%s", ms.repository.Named().Name(), dgst)

	ok, err := ms.Exists(ctx, dgst)
	if err != nil {
		return aerugo.Manifest{}, err
	}
	if !ok {
		return aerugo.Manifest{}, aerugo.ErrManifestUnknownRevision{
			Name:     ms.repository.Named().Name(),
			Revision: dgst,
		}
	}

	payload, err := ms.blobStore.Get(ctx, dgst)
	if err != nil {
		if errors.Is(err, aerugo.ErrBlobUnknown) {
			return aerugo.Manifest{}, aerugo.ErrManifestUnknownRevision{
				Name:     ms.repository.Named().Name(),
				Revision: dgst,
			}
		}
		return aerugo.Manifest{}, err
	}

	return aerugo.Manifest{
		MediaType: ms.mediaType(ctx, dgst),
		Payload:   payload,
	}, nil
}

// Put stores the manifest, returning its digest. A revision already
// present in the repository is reused rather than duplicated.
func (ms *manifestStore) Put(ctx context.Context, m aerugo.Manifest) (digest.Digest, error) {
	dcontext.GetLogger(ctx).Debugf("(*manifestStore).Put repo=%s", ms.repository.Named().Name())

	if err := ms.verify(ctx, m); err != nil {
		return "", err
	}

	revision := m.Digest()

	if ok, err := ms.Exists(ctx, revision); err != nil {
		return "", err
	} else if ok {
		// Byte-identical content already stored; nothing to write.
		return revision, nil
	}

	mediaType := m.MediaType
	if mediaType == "" {
		mediaType = v1.MediaTypeImageManifest
	}

	if _, err := ms.blobStore.Put(ctx, mediaType, m.Payload); err != nil {
		return "", err
	}

	linkPath := pathFor(manifestRevisionLinkPathSpec{
		name:     ms.repository.Named().Name(),
		revision: revision,
	})
	if err := ms.blobStore.link(ctx, linkPath, revision); err != nil {
		return "", err
	}

	mtPath := pathFor(manifestRevisionMediaTypePathSpec{
		name:     ms.repository.Named().Name(),
		revision: revision,
	})
	if err := ms.blobStore.driver.PutContent(ctx, mtPath, []byte(mediaType)); err != nil {
		return "", err
	}

	return revision, nil
}

// Delete removes the manifest revision from this repository. A revision
// still referenced by one or more tags must have its tags removed first.
func (ms *manifestStore) Delete(ctx context.Context, dgst digest.Digest) error {
	dcontext.GetLogger(ctx).Debugf("(*manifestStore).Delete repo=%s digest=%s", ms.repository.Named().Name(), dgst)

	ok, err := ms.Exists(ctx, dgst)
	if err != nil {
		return err
	}
	if !ok {
		return aerugo.ErrManifestUnknownRevision{
			Name:     ms.repository.Named().Name(),
			Revision: dgst,
		}
	}

	tags, err := ms.tagStore.Lookup(ctx, dgst)
	if err != nil {
		return err
	}
	if len(tags) > 0 {
		return aerugo.ErrManifestReferencedInTags{
			Name:     ms.repository.Named().Name(),
			Revision: dgst,
			Tags:     tags,
		}
	}

	revisionPath := pathFor(manifestRevisionPathSpec{
		name:     ms.repository.Named().Name(),
		revision: dgst,
	})
	return ms.blobStore.driver.Delete(ctx, revisionPath)
}

// verify ensures that the manifest content is valid from the perspective
// of the registry. As a policy, the registry only tries to store valid
// content, leaving trust policies of that content up to consumers.
func (ms *manifestStore) verify(ctx context.Context, m aerugo.Manifest) error {
	var errs aerugo.ErrManifestVerification

	if len(m.Payload) == 0 {
		errs = append(errs, errors.New("empty manifest payload"))
	}

	if ms.requireReferences {
		for _, ref := range m.References() {
			bp, err := ms.blobStore.path(ref.Digest)
			if err != nil {
				errs = append(errs, aerugo.ErrBlobInvalidDigest{Digest: ref.Digest, Reason: err})
				continue
			}

			ok, err := exists(ctx, ms.blobStore.driver, bp)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if !ok {
				errs = append(errs, aerugo.ErrManifestBlobUnknown{Digest: ref.Digest})
			}
		}
	}

	if len(errs) != 0 {
		return errs
	}
	return nil
}

// mediaType reads the recorded media type for a stored revision, falling
// back to the OCI manifest media type for revisions written before the
// record existed.
func (ms *manifestStore) mediaType(ctx context.Context, dgst digest.Digest) string {
	mtPath := pathFor(manifestRevisionMediaTypePathSpec{
		name:     ms.repository.Named().Name(),
		revision: dgst,
	})

	content, err := ms.blobStore.driver.GetContent(ctx, mtPath)
	if err != nil {
		var pnfe storagedriver.PathNotFoundError
		if !errors.As(err, &pnfe) {
			dcontext.GetLogger(ctx).Errorf("error reading media type for %s: %v", dgst, err)
		}
		return v1.MediaTypeImageManifest
	}
	return string(content)
}
