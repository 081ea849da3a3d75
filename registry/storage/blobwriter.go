package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/aerugo/aerugo"
	"github.com/aerugo/aerugo/internal/dcontext"
	"github.com/opencontainers/go-digest"
)

// blobWriter is used to control the various aspects of a resumable blob
// upload session. Content is spooled to a temporary file and digested as
// it arrives; the session offset strictly equals the number of bytes
// accepted so far. Appends on the same session are serialized by the
// session mutex; independent sessions proceed fully in parallel.
type blobWriter struct {
	id        string
	blobStore *linkedBlobStore
	manager   *uploadManager

	mutex     sync.Mutex
	startedAt time.Time
	updatedAt time.Time
	spool     *os.File
	digester  digest.Digester
	size      int64
	committed bool
	cancelled bool
}

var _ aerugo.BlobWriter = &blobWriter{}

// ID returns the identifier for this upload.
func (bw *blobWriter) ID() string {
	return bw.id
}

// StartedAt returns the time this blob write was started.
func (bw *blobWriter) StartedAt() time.Time {
	return bw.startedAt
}

// Size returns the number of bytes accepted so far.
func (bw *blobWriter) Size() int64 {
	bw.mutex.Lock()
	defer bw.mutex.Unlock()
	return bw.size
}

// Write appends p to the spooled content, advancing the session offset by
// len(p).
func (bw *blobWriter) Write(p []byte) (int, error) {
	bw.mutex.Lock()
	defer bw.mutex.Unlock()

	if err := bw.open(); err != nil {
		return 0, err
	}
	return bw.append(p)
}

// AppendAt appends the content of r when the session offset equals offset.
// The offset check and the append happen under the session mutex, so a
// concurrent append declaring the same start can never double-apply: one
// wins, the other observes ErrBlobInvalidOffset.
func (bw *blobWriter) AppendAt(ctx context.Context, offset int64, r io.Reader) (int64, error) {
	bw.mutex.Lock()
	defer bw.mutex.Unlock()

	if err := bw.open(); err != nil {
		return 0, err
	}
	if offset != bw.size {
		return 0, aerugo.ErrBlobInvalidOffset{
			UploadID: bw.id,
			Offset:   offset,
			Expected: bw.size,
		}
	}
	return io.Copy(sessionWriter{bw}, r)
}

// append advances the session by p. Callers hold the session mutex.
func (bw *blobWriter) append(p []byte) (int, error) {
	n, err := bw.spool.Write(p)
	if n > 0 {
		// The digester hash never returns an error.
		bw.digester.Hash().Write(p[:n])
		bw.size += int64(n)
		bw.updatedAt = time.Now()
	}
	return n, err
}

// sessionWriter adapts the unlocked append path to io.Writer for io.Copy.
type sessionWriter struct {
	bw *blobWriter
}

func (w sessionWriter) Write(p []byte) (int, error) {
	return w.bw.append(p)
}

// Close releases per-request resources. The session itself stays resumable
// until committed, cancelled or expired.
func (bw *blobWriter) Close() error {
	return nil
}

// Commit completes the upload, verifying the assembled content against the
// expected descriptor. On success the content is written to the blob store
// under its computed digest (a no-op if already present) and linked into
// the repository; the session is discarded. On digest mismatch nothing
// becomes visible and the session is left intact so the client may retry
// with the correct digest.
func (bw *blobWriter) Commit(ctx context.Context, desc aerugo.Descriptor) (aerugo.Descriptor, error) {
	bw.mutex.Lock()
	defer bw.mutex.Unlock()

	dcontext.GetLogger(ctx).Debugf("(*blobWriter).Commit id=%s", bw.id)

	if bw.committed || bw.cancelled {
		return aerugo.Descriptor{}, aerugo.ErrBlobUploadUnknown
	}

	if desc.Size > 0 && desc.Size != bw.size {
		return aerugo.Descriptor{}, fmt.Errorf("size mismatch: expected %d, got %d", desc.Size, bw.size)
	}

	canonical := bw.digester.Digest()
	if err := desc.Digest.Validate(); err != nil {
		return aerugo.Descriptor{}, aerugo.ErrBlobInvalidDigest{Digest: desc.Digest, Reason: err}
	}
	if desc.Digest != canonical {
		return aerugo.Descriptor{}, aerugo.ErrBlobInvalidDigest{
			Digest: desc.Digest,
			Reason: fmt.Errorf("content does not match digest, computed %s", canonical),
		}
	}

	content, err := bw.assemble()
	if err != nil {
		return aerugo.Descriptor{}, err
	}

	mediaType := desc.MediaType
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}

	committed, err := bw.blobStore.putAndLink(ctx, mediaType, content)
	if err != nil {
		return aerugo.Descriptor{}, err
	}

	bw.committed = true
	bw.releaseSpool(ctx)
	bw.manager.remove(bw.id)

	return committed, nil
}

// Cancel the blob upload process, releasing the spooled content. It is
// idempotent.
func (bw *blobWriter) Cancel(ctx context.Context) error {
	bw.mutex.Lock()
	defer bw.mutex.Unlock()

	if bw.cancelled || bw.committed {
		return nil
	}

	dcontext.GetLogger(ctx).Debugf("(*blobWriter).Cancel id=%s", bw.id)
	bw.cancelled = true
	bw.releaseSpool(ctx)
	bw.manager.remove(bw.id)
	return nil
}

// open verifies the session is still writable.
func (bw *blobWriter) open() error {
	if bw.committed || bw.cancelled {
		return aerugo.ErrBlobUploadUnknown
	}
	return nil
}

// assemble reads back the full spooled content. Callers hold the session
// mutex.
func (bw *blobWriter) assemble() ([]byte, error) {
	if _, err := bw.spool.Seek(0, 0); err != nil {
		return nil, err
	}
	content := make([]byte, bw.size)
	if _, err := io.ReadFull(bw.spool, content); err != nil {
		return nil, err
	}
	return content, nil
}

func (bw *blobWriter) releaseSpool(ctx context.Context) {
	name := bw.spool.Name()
	if err := bw.spool.Close(); err != nil {
		dcontext.GetLogger(ctx).Errorf("error closing upload spool %s: %v", name, err)
	}
	if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
		dcontext.GetLogger(ctx).Errorf("error removing upload spool %s: %v", name, err)
	}
}
