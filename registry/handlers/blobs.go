package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aerugo/aerugo"
	"github.com/aerugo/aerugo/internal/dcontext"
	"github.com/aerugo/aerugo/registry/api/errcode"
	"github.com/gorilla/handlers"
	"github.com/opencontainers/go-digest"
)

// blobDispatcher uses the request context to build a blobHandler.
func blobDispatcher(ctx *Context, r *http.Request) http.Handler {
	dgst, err := getDigest(ctx)
	if err != nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx.Errors = append(ctx.Errors, errcode.ErrorCodeDigestInvalid.WithDetail(err))
		})
	}

	blobHandler := &blobHandler{
		Context: ctx,
		Digest:  dgst,
	}

	return handlers.MethodHandler{
		http.MethodGet:    http.HandlerFunc(blobHandler.GetBlob),
		http.MethodHead:   http.HandlerFunc(blobHandler.GetBlob),
		http.MethodDelete: http.HandlerFunc(blobHandler.DeleteBlob),
	}
}

// blobHandler serves http blob requests.
type blobHandler struct {
	*Context

	Digest digest.Digest
}

// GetBlob fetches the binary data from backend storage returns it in the
// response. HEAD requests share the path and return headers only.
func (bh *blobHandler) GetBlob(w http.ResponseWriter, r *http.Request) {
	blobs := bh.Repository.Blobs(bh)

	desc, err := blobs.Stat(bh, bh.Digest)
	if err != nil {
		if errors.Is(err, aerugo.ErrBlobUnknown) {
			bh.Errors = append(bh.Errors, errcode.ErrorCodeBlobUnknown.WithDetail(bh.Digest))
		} else {
			bh.Errors = append(bh.Errors, errcode.ErrorCodeUnknown.WithDetail(err))
		}
		return
	}

	mediaType := desc.MediaType
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", mediaType)
	w.Header().Set("Docker-Content-Digest", desc.Digest.String())
	w.Header().Set("Etag", desc.Digest.String())

	if r.Method == http.MethodHead {
		w.Header().Set("Content-Length", fmt.Sprint(desc.Size))
		w.WriteHeader(http.StatusOK)
		return
	}

	p, err := blobs.Get(bh, bh.Digest)
	if err != nil {
		dcontext.GetLogger(bh).Errorf("error reading blob %v: %v", bh.Digest, err)
		bh.Errors = append(bh.Errors, errcode.ErrorCodeUnknown.WithDetail(err))
		return
	}

	http.ServeContent(w, r, desc.Digest.String(), time.Time{}, bytes.NewReader(p))
}

// DeleteBlob removes the repository's link to the blob. The underlying
// content remains in the global store until garbage collected.
func (bh *blobHandler) DeleteBlob(w http.ResponseWriter, r *http.Request) {
	blobs := bh.Repository.Blobs(bh)

	if err := blobs.Delete(bh, bh.Digest); err != nil {
		if errors.Is(err, aerugo.ErrBlobUnknown) {
			bh.Errors = append(bh.Errors, errcode.ErrorCodeBlobUnknown.WithDetail(bh.Digest))
		} else {
			bh.Errors = append(bh.Errors, errcode.ErrorCodeUnknown.WithDetail(err))
		}
		return
	}

	w.Header().Set("Content-Length", "0")
	w.WriteHeader(http.StatusAccepted)
}
