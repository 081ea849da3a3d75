package aerugo

import (
	"errors"
	"fmt"

	"github.com/opencontainers/go-digest"
)

// ErrUnsupported is returned when an operation is not supported.
var ErrUnsupported = errors.New("operation unsupported")

// ErrBlobUnknown is returned when a blob is unknown to the registry. This
// can happen when the blob is not found by digest or a manifest references
// a nonexistent layer.
var ErrBlobUnknown = errors.New("unknown blob")

// ErrBlobUploadUnknown is returned when an upload session is unknown. This
// covers sessions that were never started, already completed, or cancelled.
var ErrBlobUploadUnknown = errors.New("blob upload unknown")

// ErrBlobUploadExpired is returned when an upload session has exceeded its
// idle TTL and been reclaimed.
var ErrBlobUploadExpired = errors.New("blob upload expired")

// ErrRepositoryUnknown is returned if the named repository is not known by
// the registry.
type ErrRepositoryUnknown struct {
	Name string
}

func (err ErrRepositoryUnknown) Error() string {
	return fmt.Sprintf("unknown repository name=%s", err.Name)
}

// ErrRepositoryNameInvalid should be used to denote an invalid repository
// name. Reason may set, indicating the cause of invalidity.
type ErrRepositoryNameInvalid struct {
	Name   string
	Reason error
}

func (err ErrRepositoryNameInvalid) Error() string {
	return fmt.Sprintf("repository name %q invalid: %v", err.Name, err.Reason)
}

// ErrManifestUnknown is returned if the manifest is not known by the
// registry.
type ErrManifestUnknown struct {
	Name string
	Tag  string
}

func (err ErrManifestUnknown) Error() string {
	return fmt.Sprintf("unknown manifest name=%s tag=%s", err.Name, err.Tag)
}

// ErrManifestUnknownRevision is returned when a manifest is not found in
// the revision store by digest.
type ErrManifestUnknownRevision struct {
	Name     string
	Revision digest.Digest
}

func (err ErrManifestUnknownRevision) Error() string {
	return fmt.Sprintf("unknown manifest name=%s revision=%s", err.Name, err.Revision)
}

// ErrManifestReferencedInTags is returned when deleting a manifest revision
// that is still the target of one or more tags.
type ErrManifestReferencedInTags struct {
	Name     string
	Revision digest.Digest
	Tags     []string
}

func (err ErrManifestReferencedInTags) Error() string {
	return fmt.Sprintf("manifest name=%s revision=%s still referenced by tags %v", err.Name, err.Revision, err.Tags)
}

// ErrManifestVerification provides a type to collect errors encountered
// during manifest verification. Currently, it accepts errors of all types,
// but it may be narrowed to those involving manifest verification.
type ErrManifestVerification []error

func (errs ErrManifestVerification) Error() string {
	var parts []string
	for _, err := range errs {
		parts = append(parts, err.Error())
	}
	return fmt.Sprintf("errors verifying manifest: %v", parts)
}

// ErrManifestBlobUnknown is returned when a manifest blob is unknown to
// the registry under strict reference validation.
type ErrManifestBlobUnknown struct {
	Digest digest.Digest
}

func (err ErrManifestBlobUnknown) Error() string {
	return fmt.Sprintf("unknown blob %v referenced by manifest", err.Digest)
}

// ErrTagUnknown is returned if the given tag is not known by the tag
// service.
type ErrTagUnknown struct {
	Tag string
}

func (err ErrTagUnknown) Error() string {
	return fmt.Sprintf("unknown tag=%s", err.Tag)
}

// ErrBlobInvalidDigest is returned when the digest check on blob or
// manifest content fails. Integrity failures are never silently corrected;
// the offending request fails and nothing becomes visible.
type ErrBlobInvalidDigest struct {
	Digest digest.Digest
	Reason error
}

func (err ErrBlobInvalidDigest) Error() string {
	return fmt.Sprintf("invalid digest for referenced layer: %v, %v", err.Digest, err.Reason)
}

// ErrBlobInvalidOffset is returned when a chunk does not start at the
// upload session's current offset. The session state is left unchanged so
// the client can re-query and resume.
type ErrBlobInvalidOffset struct {
	UploadID string
	Offset   int64
	Expected int64
}

func (err ErrBlobInvalidOffset) Error() string {
	return fmt.Sprintf("upload %s: chunk offset %d does not match current offset %d", err.UploadID, err.Offset, err.Expected)
}
