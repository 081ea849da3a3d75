package aerugo

import (
	"context"

	"github.com/opencontainers/go-digest"
)

// TagService provides access to the mutable tag index of a repository. A
// tag always resolves to exactly one existing manifest revision; dangling
// tags are not permitted.
type TagService interface {
	// Get resolves the tag to the descriptor of the manifest revision it
	// points at, returning ErrTagUnknown if the tag does not exist.
	Get(ctx context.Context, tag string) (Descriptor, error)

	// Tag associates the tag with the provided descriptor, updating the
	// current association, if needed. The previous target, if any, is
	// overwritten, not duplicated.
	Tag(ctx context.Context, tag string, desc Descriptor) error

	// Untag removes the given tag association.
	Untag(ctx context.Context, tag string) error

	// All returns the tag names in the repository in lexicographic order.
	// A repository with no tags yields an empty slice, not an error;
	// an unknown repository yields ErrRepositoryUnknown.
	All(ctx context.Context) ([]string, error)

	// Lookup returns the tags which point at the given digest.
	Lookup(ctx context.Context, dgst digest.Digest) ([]string, error)
}
