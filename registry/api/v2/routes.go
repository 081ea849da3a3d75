package v2

import (
	"github.com/distribution/reference"
	"github.com/gorilla/mux"
	"github.com/opencontainers/go-digest"
)

// Route names, used to register handlers and build URLs.
const (
	RouteNameBase            = "base"
	RouteNameManifest        = "manifest"
	RouteNameTags            = "tags"
	RouteNameBlob            = "blob"
	RouteNameBlobUpload      = "blob-upload"
	RouteNameBlobUploadChunk = "blob-upload-chunk"
	RouteNameCatalog         = "catalog"
	RouteNameCacheHealth     = "cache-health"
)

// Router builds a gorilla router with named routes for the various API
// methods. This can be used directly by both server implementations and
// clients.
func Router() *mux.Router {
	return RouterWithPrefix("")
}

// RouterWithPrefix builds a gorilla router with a configured prefix
// on all routes.
func RouterWithPrefix(prefix string) *mux.Router {
	rootRouter := mux.NewRouter()
	router := rootRouter
	if prefix != "" {
		router = router.PathPrefix(prefix).Subrouter()
	}

	router.StrictSlash(true)

	// GET /v2/  Check  Check that the registry implements the API and the
	// client has the minimum capability to operate.
	router.Path("/v2/").Name(RouteNameBase)

	// GET /v2/_catalog  Catalog  List repositories known to the registry.
	router.Path("/v2/_catalog").Name(RouteNameCatalog)

	// GET      /v2/<name>/manifests/<reference>  Manifest  Fetch the manifest identified by name and reference.
	// PUT      /v2/<name>/manifests/<reference>  Manifest  Put the manifest identified by name and reference.
	// DELETE   /v2/<name>/manifests/<reference>  Manifest  Delete the manifest or tag identified by name and reference.
	router.Path("/v2/{name:" + reference.NameRegexp.String() + "}/manifests/{reference:" + reference.TagRegexp.String() + "|" + digest.DigestRegexp.String() + "}").Name(RouteNameManifest)

	// GET  /v2/<name>/tags/list  Tags  Fetch the tags under the repository identified by name.
	router.Path("/v2/{name:" + reference.NameRegexp.String() + "}/tags/list").Name(RouteNameTags)

	// GET|HEAD|DELETE  /v2/<name>/blobs/<digest>  Blob  Operate on the blob identified by name and digest.
	router.Path("/v2/{name:" + reference.NameRegexp.String() + "}/blobs/{digest:" + digest.DigestRegexp.String() + "}").Name(RouteNameBlob)

	// POST  /v2/<name>/blobs/uploads/  Blob Upload  Initiate a resumable blob upload.
	router.Path("/v2/{name:" + reference.NameRegexp.String() + "}/blobs/uploads/").Name(RouteNameBlobUpload)

	// GET|PATCH|PUT|DELETE  /v2/<name>/blobs/uploads/<uuid>  Blob Upload  Operate on the upload session identified by uuid.
	router.Path("/v2/{name:" + reference.NameRegexp.String() + "}/blobs/uploads/{uuid}").Name(RouteNameBlobUploadChunk)

	// GET /health/cache  Cache health  Report cache tier statistics.
	router.Path("/health/cache").Name(RouteNameCacheHealth)

	return rootRouter
}
