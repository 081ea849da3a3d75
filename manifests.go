package aerugo

import (
	"context"

	"github.com/opencontainers/go-digest"
)

// Manifest is a registry manifest held in its exact serialized byte form.
// Identity is the digest of Payload; two manifests with byte-identical
// serialization are the same entity regardless of which tags point at them.
type Manifest struct {
	// MediaType is the caller-supplied manifest media type. It is recorded
	// but not verified against the payload structure.
	MediaType string

	// Payload is the raw serialized manifest. It must never be re-encoded:
	// the digest is computed over these exact bytes.
	Payload []byte
}

// Digest returns the content digest of the manifest payload.
func (m Manifest) Digest() digest.Digest {
	return digest.FromBytes(m.Payload)
}

// References returns the descriptors of the config and layer blobs named by
// the manifest payload, best effort. A payload that does not structurally
// resemble a known manifest schema yields no references rather than an
// error; strictness is applied by the manifest store's validation policy.
func (m Manifest) References() []Descriptor {
	return manifestReferences(m.Payload)
}

// ManifestService describes operations on image manifests scoped to a
// repository.
type ManifestService interface {
	// Exists returns true if the manifest revision exists in the repository.
	Exists(ctx context.Context, dgst digest.Digest) (bool, error)

	// Get retrieves the manifest identified by digest.
	Get(ctx context.Context, dgst digest.Digest) (Manifest, error)

	// Put stores the manifest, returning its digest. A revision that is
	// already present is reused rather than duplicated.
	Put(ctx context.Context, m Manifest) (digest.Digest, error)

	// Delete removes the manifest revision identified by digest. A revision
	// still referenced by one or more tags cannot be deleted; the tags must
	// be removed first.
	Delete(ctx context.Context, dgst digest.Digest) error
}
