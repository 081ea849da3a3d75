package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/aerugo/aerugo"
	"github.com/aerugo/aerugo/internal/dcontext"
	"github.com/aerugo/aerugo/registry/api/errcode"
	"github.com/distribution/reference"
	"github.com/gorilla/handlers"
	"github.com/opencontainers/go-digest"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
)

// manifestDispatcher takes the request context and builds the appropriate
// handler for handling manifest requests.
func manifestDispatcher(ctx *Context, r *http.Request) http.Handler {
	manifestHandler := &manifestHandler{
		Context: ctx,
	}

	ref := getReference(ctx)
	dgst, err := digest.Parse(ref)
	if err != nil {
		// A parse failure means the reference is a tag; the route pattern
		// only admits valid tags and digests.
		manifestHandler.Tag = ref
	} else {
		manifestHandler.Digest = dgst
	}

	return handlers.MethodHandler{
		http.MethodGet:    http.HandlerFunc(manifestHandler.GetManifest),
		http.MethodHead:   http.HandlerFunc(manifestHandler.GetManifest),
		http.MethodPut:    http.HandlerFunc(manifestHandler.PutManifest),
		http.MethodDelete: http.HandlerFunc(manifestHandler.DeleteManifest),
	}
}

// manifestHandler handles http operations on manifests.
type manifestHandler struct {
	*Context

	// One of Tag or Digest gets set, depending on the requested reference.
	Tag    string
	Digest digest.Digest
}

// GetManifest fetches the manifest identified by tag or digest, serving the
// exact stored bytes so the content digest is reproducible.
func (mh *manifestHandler) GetManifest(w http.ResponseWriter, r *http.Request) {
	manifests, err := mh.Repository.Manifests(mh)
	if err != nil {
		mh.Errors = append(mh.Errors, errcode.ErrorCodeUnknown.WithDetail(err))
		return
	}

	dgst := mh.Digest
	if mh.Tag != "" {
		desc, err := mh.Repository.Tags(mh).Get(mh, mh.Tag)
		if err != nil {
			mh.Errors = append(mh.Errors, errcode.ErrorCodeManifestUnknown.WithDetail(err))
			return
		}
		dgst = desc.Digest
	}

	manifest, err := manifests.Get(mh, dgst)
	if err != nil {
		switch {
		case errors.As(err, &aerugo.ErrManifestUnknownRevision{}):
			mh.Errors = append(mh.Errors, errcode.ErrorCodeManifestUnknown.WithDetail(err))
		default:
			mh.Errors = append(mh.Errors, errcode.ErrorCodeUnknown.WithDetail(err))
		}
		return
	}

	mediaType := manifest.MediaType
	if mediaType == "" {
		mediaType = v1.MediaTypeImageManifest
	}

	w.Header().Set("Content-Type", mediaType)
	w.Header().Set("Content-Length", fmt.Sprint(len(manifest.Payload)))
	w.Header().Set("Docker-Content-Digest", dgst.String())
	w.Header().Set("Etag", fmt.Sprintf(`"%s"`, dgst))

	if r.Method == http.MethodHead {
		return
	}

	w.Write(manifest.Payload)
}

// PutManifest validates and stores a manifest in the registry. When the
// reference is a tag, the tag is repointed to the new revision after the
// revision is durably stored.
func (mh *manifestHandler) PutManifest(w http.ResponseWriter, r *http.Request) {
	manifests, err := mh.Repository.Manifests(mh)
	if err != nil {
		mh.Errors = append(mh.Errors, errcode.ErrorCodeUnknown.WithDetail(err))
		return
	}

	payload, err := copyFullPayload(mh.Context, r, maxManifestBodySize)
	if err != nil {
		mh.Errors = append(mh.Errors, errcode.ErrorCodeManifestInvalid.WithDetail(err.Error()))
		return
	}

	manifest := aerugo.Manifest{
		MediaType: r.Header.Get("Content-Type"),
		Payload:   payload,
	}

	if mh.Digest != "" && manifest.Digest() != mh.Digest {
		dcontext.GetLogger(mh).Errorf("payload digest does not match: %q != %q", manifest.Digest(), mh.Digest)
		mh.Errors = append(mh.Errors, errcode.ErrorCodeDigestInvalid.WithDetail("payload digest does not match reference"))
		return
	}

	dgst, err := manifests.Put(mh, manifest)
	if err != nil {
		mh.appendPutError(err)
		return
	}

	if mh.Tag != "" {
		err = mh.Repository.Tags(mh).Tag(mh, mh.Tag, aerugo.Descriptor{
			MediaType: manifest.MediaType,
			Size:      int64(len(payload)),
			Digest:    dgst,
		})
		if err != nil {
			mh.Errors = append(mh.Errors, errcode.ErrorCodeUnknown.WithDetail(err))
			return
		}
	}

	ref := mh.Repository.Named()
	if mh.Tag != "" {
		ref, err = reference.WithTag(ref, mh.Tag)
	} else {
		ref, err = reference.WithDigest(ref, dgst)
	}
	if err != nil {
		mh.Errors = append(mh.Errors, errcode.ErrorCodeUnknown.WithDetail(err))
		return
	}

	location, err := mh.urlBuilder.BuildManifestURL(ref)
	if err != nil {
		// Log and proceed; worst case the location header is empty.
		dcontext.GetLogger(mh).Errorf("error building manifest url: %v", err)
	}

	w.Header().Set("Location", location)
	w.Header().Set("Docker-Content-Digest", dgst.String())
	w.WriteHeader(http.StatusCreated)
}

func (mh *manifestHandler) appendPutError(err error) {
	var verification aerugo.ErrManifestVerification
	if errors.As(err, &verification) {
		for _, verificationErr := range verification {
			var blobErr aerugo.ErrManifestBlobUnknown
			if errors.As(verificationErr, &blobErr) {
				mh.Errors = append(mh.Errors, errcode.ErrorCodeManifestBlobUnknown.WithDetail(blobErr.Digest))
				continue
			}
			mh.Errors = append(mh.Errors, errcode.ErrorCodeManifestInvalid.WithDetail(verificationErr.Error()))
		}
		return
	}

	var digestErr aerugo.ErrBlobInvalidDigest
	if errors.As(err, &digestErr) {
		mh.Errors = append(mh.Errors, errcode.ErrorCodeDigestInvalid.WithDetail(err))
		return
	}

	mh.Errors = append(mh.Errors, errcode.ErrorCodeUnknown.WithDetail(err))
}

// DeleteManifest removes the manifest or, when the reference is a tag, just
// the tag association.
func (mh *manifestHandler) DeleteManifest(w http.ResponseWriter, r *http.Request) {
	if mh.Tag != "" {
		err := mh.Repository.Tags(mh).Untag(mh, mh.Tag)
		if err != nil {
			switch {
			case errors.As(err, &aerugo.ErrTagUnknown{}):
				mh.Errors = append(mh.Errors, errcode.ErrorCodeManifestUnknown.WithDetail(err))
			default:
				mh.Errors = append(mh.Errors, errcode.ErrorCodeUnknown.WithDetail(err))
			}
			return
		}

		w.WriteHeader(http.StatusAccepted)
		return
	}

	manifests, err := mh.Repository.Manifests(mh)
	if err != nil {
		mh.Errors = append(mh.Errors, errcode.ErrorCodeUnknown.WithDetail(err))
		return
	}

	if err := manifests.Delete(mh, mh.Digest); err != nil {
		switch {
		case errors.As(err, &aerugo.ErrManifestUnknownRevision{}):
			mh.Errors = append(mh.Errors, errcode.ErrorCodeManifestUnknown.WithDetail(err))
		case errors.As(err, &aerugo.ErrManifestReferencedInTags{}):
			mh.Errors = append(mh.Errors, errcode.ErrorCodeDenied.WithDetail(err.Error()))
		default:
			mh.Errors = append(mh.Errors, errcode.ErrorCodeUnknown.WithDetail(err))
		}
		return
	}

	w.WriteHeader(http.StatusAccepted)
}
