package aerugo

import (
	"context"
	"io"
	"time"

	"github.com/opencontainers/go-digest"
)

// BlobStatter makes blob descriptors available by digest. The service may
// provide a descriptor of a different digest if the provided digest is not
// canonical.
type BlobStatter interface {
	// Stat provides metadata about a blob identified by the digest. If the
	// blob is unknown to the describer, ErrBlobUnknown will be returned.
	Stat(ctx context.Context, dgst digest.Digest) (Descriptor, error)
}

// BlobDeleter enables deleting blobs from storage.
type BlobDeleter interface {
	Delete(ctx context.Context, dgst digest.Digest) error
}

// BlobProvider describes operations for getting blob data.
type BlobProvider interface {
	// Get returns the entire blob identified by digest along with the
	// descriptor.
	Get(ctx context.Context, dgst digest.Digest) ([]byte, error)

	// Open provides an io.ReadCloser for the blob identified by digest.
	Open(ctx context.Context, dgst digest.Digest) (io.ReadCloser, error)
}

// BlobIngester ingests blob data through resumable upload sessions.
type BlobIngester interface {
	// Put inserts the content p into the blob service, returning a
	// descriptor or an error.
	Put(ctx context.Context, mediaType string, p []byte) (Descriptor, error)

	// Create allocates a new blob writer to add a blob to this service. The
	// returned handle can be written to and later resumed using an opaque
	// identifier. With this approach, one can Close and Resume a BlobWriter
	// multiple times until the BlobWriter is committed or cancelled.
	Create(ctx context.Context) (BlobWriter, error)

	// Resume attempts to resume a write to a blob, identified by an id.
	Resume(ctx context.Context, id string) (BlobWriter, error)
}

// BlobWriter provides a handle for inserting data into a blob store.
// Instances should be obtained from BlobIngester.Create and
// BlobIngester.Resume.
type BlobWriter interface {
	io.Writer
	io.Closer

	// ID returns the identifier for this writer. The ID can be used with
	// the Blob service to later resume the write.
	ID() string

	// StartedAt returns the time this blob write was started.
	StartedAt() time.Time

	// Size returns the number of bytes accepted so far.
	Size() int64

	// AppendAt appends content read from r to the session if and only if
	// the session offset equals offset at the time of the append. A chunk
	// declared at any other offset is rejected with ErrBlobInvalidOffset
	// without disturbing the session. The check and the append are atomic
	// with respect to concurrent appends on the same session.
	AppendAt(ctx context.Context, offset int64, r io.Reader) (int64, error)

	// Commit completes the blob writer process. The content is verified
	// against the provided descriptor; on digest mismatch the commit fails
	// with ErrBlobInvalidDigest and nothing becomes visible in the blob
	// store.
	Commit(ctx context.Context, desc Descriptor) (Descriptor, error)

	// Cancel ends the blob write, discarding any spooled content. It is
	// idempotent.
	Cancel(ctx context.Context) error
}

// BlobService combines the operations to access and ingest blobs.
type BlobService interface {
	BlobStatter
	BlobProvider
	BlobIngester
	BlobDeleter
}
