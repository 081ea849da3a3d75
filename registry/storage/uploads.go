package storage

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/aerugo/aerugo"
	"github.com/aerugo/aerugo/internal/dcontext"
	"github.com/google/uuid"
	"github.com/opencontainers/go-digest"
)

// defaultUploadSessionTTL bounds how long an idle upload session survives
// before it is eligible for reclamation.
const defaultUploadSessionTTL = 24 * time.Hour

// uploadManager owns the lifecycle of in-progress blob upload sessions.
// Sessions spool to temporary files and are only promoted into the blob
// store on a digest-verified commit, so partial content never becomes
// externally visible. Expired sessions are reclaimed lazily: on lookup and
// by a sweep whenever a new session is started.
type uploadManager struct {
	mu       sync.Mutex
	sessions map[string]*blobWriter
	ttl      time.Duration
}

func newUploadManager(ttl time.Duration) *uploadManager {
	if ttl <= 0 {
		ttl = defaultUploadSessionTTL
	}
	return &uploadManager{
		sessions: make(map[string]*blobWriter),
		ttl:      ttl,
	}
}

// create allocates a new session at offset 0 for the given repository.
func (um *uploadManager) create(ctx context.Context, lbs *linkedBlobStore) (*blobWriter, error) {
	um.sweep(ctx)

	spool, err := os.CreateTemp("", "aerugo-upload-")
	if err != nil {
		return nil, err
	}

	bw := &blobWriter{
		id:        uuid.NewString(),
		blobStore: lbs,
		startedAt: time.Now(),
		updatedAt: time.Now(),
		spool:     spool,
		digester:  digest.Canonical.Digester(),
		manager:   um,
	}

	um.mu.Lock()
	um.sessions[bw.id] = bw
	um.mu.Unlock()

	dcontext.GetLogger(ctx).Debugf("(*uploadManager).create id=%s repo=%s", bw.id, lbs.repository.Named().Name())
	return bw, nil
}

// resume returns the session identified by id, rejecting sessions that
// have exceeded the idle TTL.
func (um *uploadManager) resume(ctx context.Context, id string) (*blobWriter, error) {
	um.mu.Lock()
	bw, ok := um.sessions[id]
	um.mu.Unlock()

	if !ok {
		return nil, aerugo.ErrBlobUploadUnknown
	}

	if um.expired(bw) {
		if err := bw.Cancel(ctx); err != nil {
			dcontext.GetLogger(ctx).Errorf("error reclaiming expired upload %s: %v", id, err)
		}
		return nil, aerugo.ErrBlobUploadExpired
	}

	return bw, nil
}

// remove drops the session from the manager. Called by the writer itself
// on commit and cancel.
func (um *uploadManager) remove(id string) {
	um.mu.Lock()
	delete(um.sessions, id)
	um.mu.Unlock()
}

// sweep reclaims every expired session.
func (um *uploadManager) sweep(ctx context.Context) {
	um.mu.Lock()
	var stale []*blobWriter
	for _, bw := range um.sessions {
		if um.expired(bw) {
			stale = append(stale, bw)
		}
	}
	um.mu.Unlock()

	for _, bw := range stale {
		if err := bw.Cancel(ctx); err != nil {
			dcontext.GetLogger(ctx).Errorf("error reclaiming expired upload %s: %v", bw.id, err)
		}
	}
}

func (um *uploadManager) expired(bw *blobWriter) bool {
	bw.mutex.Lock()
	idle := time.Since(bw.updatedAt)
	bw.mutex.Unlock()
	return idle > um.ttl
}
