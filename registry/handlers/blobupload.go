package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/distribution/reference"

	"github.com/aerugo/aerugo"
	"github.com/aerugo/aerugo/internal/dcontext"
	"github.com/aerugo/aerugo/registry/api/errcode"
	"github.com/gorilla/handlers"
	"github.com/opencontainers/go-digest"
)

// blobUploadDispatcher constructs and returns the blob upload handler for
// the given request context.
func blobUploadDispatcher(ctx *Context, r *http.Request) http.Handler {
	buh := &blobUploadHandler{
		Context: ctx,
		UUID:    getUploadUUID(ctx),
	}

	handler := handlers.MethodHandler{
		http.MethodGet:    http.HandlerFunc(buh.GetUploadStatus),
		http.MethodHead:   http.HandlerFunc(buh.GetUploadStatus),
		http.MethodPost:   http.HandlerFunc(buh.StartBlobUpload),
		http.MethodPatch:  http.HandlerFunc(buh.PatchBlobData),
		http.MethodPut:    http.HandlerFunc(buh.PutBlobUploadComplete),
		http.MethodDelete: http.HandlerFunc(buh.CancelBlobUpload),
	}

	if buh.UUID != "" {
		// Operations on an existing session resolve it up front; the POST
		// route carries no uuid.
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !buh.resumeUpload(w, r) {
				return
			}
			defer buh.Upload.Close()
			handler.ServeHTTP(w, r)
		})
	}

	return handler
}

// blobUploadHandler handles the http blob upload process.
type blobUploadHandler struct {
	*Context

	// UUID identifies the upload session for the current request. Empty on
	// the POST route, which allocates a new session.
	UUID string

	Upload aerugo.BlobWriter
}

// StartBlobUpload begins the blob upload process and allocates a server-
// side upload session.
func (buh *blobUploadHandler) StartBlobUpload(w http.ResponseWriter, r *http.Request) {
	blobs := buh.Repository.Blobs(buh)
	upload, err := blobs.Create(buh)
	if err != nil {
		buh.Errors = append(buh.Errors, errcode.ErrorCodeUnknown.WithDetail(err))
		return
	}

	buh.Upload = upload
	defer buh.Upload.Close()

	if dgstStr := r.FormValue("digest"); dgstStr != "" {
		// Monolithic upload: the entire blob arrives with the initiating
		// request.
		dgst, err := digest.Parse(dgstStr)
		if err != nil {
			buh.Upload.Cancel(buh)
			buh.Errors = append(buh.Errors, errcode.ErrorCodeDigestInvalid.WithDetail(err))
			return
		}

		if err := buh.copyChunk(w, r); err != nil {
			return
		}
		buh.completeUpload(w, r, dgst)
		return
	}

	if err := buh.blobUploadResponse(w, r); err != nil {
		buh.Errors = append(buh.Errors, errcode.ErrorCodeUnknown.WithDetail(err))
		return
	}

	w.Header().Set("Docker-Upload-UUID", buh.Upload.ID())
	w.WriteHeader(http.StatusAccepted)
}

// GetUploadStatus returns the status of a given upload, identified by id.
func (buh *blobUploadHandler) GetUploadStatus(w http.ResponseWriter, r *http.Request) {
	if err := buh.blobUploadResponse(w, r); err != nil {
		buh.Errors = append(buh.Errors, errcode.ErrorCodeUnknown.WithDetail(err))
		return
	}

	w.Header().Set("Docker-Upload-UUID", buh.UUID)
	w.WriteHeader(http.StatusNoContent)
}

// PatchBlobData writes data to an upload. The request body is appended at
// the session's current offset; a chunk that starts anywhere else is
// rejected without disturbing the session.
func (buh *blobUploadHandler) PatchBlobData(w http.ResponseWriter, r *http.Request) {
	if err := buh.copyChunk(w, r); err != nil {
		return
	}

	if err := buh.blobUploadResponse(w, r); err != nil {
		buh.Errors = append(buh.Errors, errcode.ErrorCodeUnknown.WithDetail(err))
		return
	}

	w.Header().Set("Docker-Upload-UUID", buh.Upload.ID())
	w.WriteHeader(http.StatusAccepted)
}

// PutBlobUploadComplete takes the final request of a blob upload. The
// request may include all the blob data or no blob data. Any data provided
// is received and verified. If successful, the blob is linked into the
// repository and the session is destroyed.
func (buh *blobUploadHandler) PutBlobUploadComplete(w http.ResponseWriter, r *http.Request) {
	dgstStr := r.FormValue("digest")
	if dgstStr == "" {
		buh.Errors = append(buh.Errors, errcode.ErrorCodeDigestInvalid.WithDetail("digest missing"))
		return
	}

	dgst, err := digest.Parse(dgstStr)
	if err != nil {
		buh.Errors = append(buh.Errors, errcode.ErrorCodeDigestInvalid.WithDetail("digest parsing failed"))
		return
	}

	if err := buh.copyChunk(w, r); err != nil {
		return
	}

	buh.completeUpload(w, r, dgst)
}

// CancelBlobUpload cancels an in-progress upload of a blob.
func (buh *blobUploadHandler) CancelBlobUpload(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Docker-Upload-UUID", buh.UUID)
	if err := buh.Upload.Cancel(buh); err != nil {
		dcontext.GetLogger(buh).Errorf("error cancelling upload: %v", err)
		buh.Errors = append(buh.Errors, errcode.ErrorCodeUnknown.WithDetail(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// resumeUpload resolves the session named in the request, writing the
// appropriate error response when it is unknown or expired. It returns
// true when the handler may proceed with buh.Upload set.
func (buh *blobUploadHandler) resumeUpload(w http.ResponseWriter, r *http.Request) bool {
	blobs := buh.Repository.Blobs(buh)
	upload, err := blobs.Resume(buh, buh.UUID)
	if err != nil {
		dcontext.GetLogger(buh).Errorf("error resolving upload %q: %v", buh.UUID, err)
		switch {
		case errors.Is(err, aerugo.ErrBlobUploadUnknown), errors.Is(err, aerugo.ErrBlobUploadExpired):
			buh.Errors = append(buh.Errors, errcode.ErrorCodeBlobUploadUnknown.WithDetail(err))
		default:
			buh.Errors = append(buh.Errors, errcode.ErrorCodeUnknown.WithDetail(err))
		}
		errcode.ServeJSON(w, buh.Errors)
		buh.Errors = nil
		return false
	}

	buh.Upload = upload
	return true
}

// copyChunk appends the request body to the session after validating the
// declared range, if any. On an offset mismatch it responds 416 with the
// session's current progress so the client can resynchronize.
func (buh *blobUploadHandler) copyChunk(w http.ResponseWriter, r *http.Request) error {
	rng := r.Header.Get("Content-Range")
	if rng == "" {
		if _, err := io.Copy(buh.Upload, r.Body); err != nil {
			dcontext.GetLogger(buh).Errorf("unknown error copying into upload: %v", err)
			buh.Errors = append(buh.Errors, errcode.ErrorCodeUnknown.WithDetail(err))
			return err
		}
		return nil
	}

	start, _, err := parseContentRange(rng)
	if err != nil {
		buh.Errors = append(buh.Errors, errcode.ErrorCodeRangeInvalid.WithDetail(err))
		return err
	}

	// The offset check and the append are atomic in the writer, so chunks
	// racing for the same start cannot both apply.
	if _, err := buh.Upload.AppendAt(buh, start, r.Body); err != nil {
		var offsetErr aerugo.ErrBlobInvalidOffset
		if errors.As(err, &offsetErr) {
			return buh.writeRangeError(w, offsetErr)
		}
		dcontext.GetLogger(buh).Errorf("unknown error copying into upload: %v", err)
		buh.Errors = append(buh.Errors, errcode.ErrorCodeUnknown.WithDetail(err))
		return err
	}

	return nil
}

// writeRangeError responds 416 with the session's current range so clients
// can requery state and resume.
func (buh *blobUploadHandler) writeRangeError(w http.ResponseWriter, err error) error {
	w.Header().Set("Docker-Upload-UUID", buh.Upload.ID())
	w.Header().Set("Range", rangeHeader(buh.Upload.Size()))
	buh.Errors = append(buh.Errors, errcode.ErrorCodeRangeInvalid.WithDetail(err.Error()))
	errcode.ServeJSON(w, buh.Errors)
	buh.Errors = nil
	return err
}

// completeUpload finishes an upload, verifying the content against the
// declared digest. Responds 201 on success.
func (buh *blobUploadHandler) completeUpload(w http.ResponseWriter, r *http.Request, dgst digest.Digest) {
	desc, err := buh.Upload.Commit(buh, aerugo.Descriptor{Digest: dgst})
	if err != nil {
		switch err := err.(type) {
		case aerugo.ErrBlobInvalidDigest:
			buh.Errors = append(buh.Errors, errcode.ErrorCodeDigestInvalid.WithDetail(err))
		default:
			switch {
			case errors.Is(err, aerugo.ErrBlobUploadUnknown):
				buh.Errors = append(buh.Errors, errcode.ErrorCodeBlobUploadUnknown.WithDetail(err))
			default:
				dcontext.GetLogger(buh).Errorf("unknown error completing upload: %v", err)
				buh.Errors = append(buh.Errors, errcode.ErrorCodeUnknown.WithDetail(err))
			}
		}
		return
	}

	ref, err := reference.WithDigest(buh.Repository.Named(), desc.Digest)
	if err != nil {
		buh.Errors = append(buh.Errors, errcode.ErrorCodeUnknown.WithDetail(err))
		return
	}

	blobURL, err := buh.urlBuilder.BuildBlobURL(ref)
	if err != nil {
		buh.Errors = append(buh.Errors, errcode.ErrorCodeUnknown.WithDetail(err))
		return
	}

	w.Header().Set("Location", blobURL)
	w.Header().Set("Content-Length", "0")
	w.Header().Set("Docker-Content-Digest", desc.Digest.String())
	w.WriteHeader(http.StatusCreated)
}

// blobUploadResponse provides a standard request for uploading blobs and
// chunk responses. This sets the correct headers but the response status is
// left to the caller.
func (buh *blobUploadHandler) blobUploadResponse(w http.ResponseWriter, r *http.Request) error {
	uploadURL, err := buh.urlBuilder.BuildBlobUploadChunkURL(buh.Repository.Named(), buh.Upload.ID())
	if err != nil {
		return err
	}

	w.Header().Set("Location", uploadURL)
	w.Header().Set("Content-Length", "0")
	w.Header().Set("Range", rangeHeader(buh.Upload.Size()))

	return nil
}

// rangeHeader renders the inclusive byte range accepted so far. An empty
// session reports "0-0".
func rangeHeader(size int64) string {
	if size <= 0 {
		return "0-0"
	}
	return fmt.Sprintf("0-%d", size-1)
}

// parseContentRange parses a Content-Range header of the form
// "<start>-<end>", as used by chunked uploads.
func parseContentRange(cr string) (start int64, end int64, err error) {
	parts := strings.SplitN(cr, "-", 2)
	if len(parts) != 2 {
		return -1, -1, fmt.Errorf("invalid content range format, %s", cr)
	}
	start, err = strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return -1, -1, err
	}
	end, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return -1, -1, err
	}
	if start > end {
		return -1, -1, fmt.Errorf("invalid content range format, %s", cr)
	}
	return start, end, nil
}
