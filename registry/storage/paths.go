package storage

import (
	"fmt"
	"path"

	"github.com/opencontainers/go-digest"
)

const storagePathRoot = "/aerugo/v1"

// pathFor maps paths based on "object names" and their ids. The "object
// names" mapped by are internal to the storage system.
//
// The path layout in the storage backend is roughly as follows:
//
//	<root>/
//		blobs/<algorithm>/<first two hex bytes of digest>/<hex digest>/data
//		repositories/<name>/
//			_manifests/
//				revisions/<algorithm>/<hex digest>/link
//				revisions/<algorithm>/<hex digest>/mediatype
//				tags/<tag>/current/link
//			_layers/<algorithm>/<hex digest>/link
//
// The storage backend layout is broken up into a content-addressable blob
// store and repositories. The content-addressable blob store holds most
// data throughout the backend, keyed by algorithm and digest. Manifests and
// layers under repositories are "links" into the blob store, scoping blobs
// to a repository without duplicating content.
//
// Only the recognized pathSpecs below may be passed; any other type panics.
func pathFor(spec pathSpec) string {
	switch v := spec.(type) {
	case blobDataPathSpec:
		return path.Join(blobPathPrefix(v.digest), "data")
	case repositoriesRootPathSpec:
		return path.Join(storagePathRoot, "repositories")
	case repositoryRootPathSpec:
		return path.Join(storagePathRoot, "repositories", v.name)
	case manifestRevisionsPathSpec:
		return path.Join(storagePathRoot, "repositories", v.name, "_manifests", "revisions", digest.Canonical.String())
	case manifestRevisionPathSpec:
		return path.Join(storagePathRoot, "repositories", v.name, "_manifests", "revisions", v.revision.Algorithm().String(), v.revision.Hex())
	case manifestRevisionLinkPathSpec:
		return path.Join(pathFor(manifestRevisionPathSpec{name: v.name, revision: v.revision}), "link")
	case manifestRevisionMediaTypePathSpec:
		return path.Join(pathFor(manifestRevisionPathSpec{name: v.name, revision: v.revision}), "mediatype")
	case manifestTagsPathSpec:
		return path.Join(storagePathRoot, "repositories", v.name, "_manifests", "tags")
	case manifestTagPathSpec:
		return path.Join(pathFor(manifestTagsPathSpec{name: v.name}), v.tag)
	case manifestTagCurrentPathSpec:
		return path.Join(pathFor(manifestTagPathSpec{name: v.name, tag: v.tag}), "current", "link")
	case layerLinkPathSpec:
		return path.Join(storagePathRoot, "repositories", v.name, "_layers", v.digest.Algorithm().String(), v.digest.Hex(), "link")
	default:
		panic(fmt.Sprintf("unknown path spec: %#v", v))
	}
}

func blobPathPrefix(dgst digest.Digest) string {
	hex := dgst.Hex()
	return path.Join(storagePathRoot, "blobs", dgst.Algorithm().String(), hex[:2], hex)
}

// pathSpec is a type to mark structs as path specs. There is no
// implementation because we'd like to keep the specs and the mappers
// decoupled.
type pathSpec interface {
	pathSpec()
}

// blobDataPathSpec contains the path for the registry's global blob store.
type blobDataPathSpec struct {
	digest digest.Digest
}

func (blobDataPathSpec) pathSpec() {}

// repositoriesRootPathSpec returns the root of the repositories tree, used
// by the catalog.
type repositoriesRootPathSpec struct{}

func (repositoriesRootPathSpec) pathSpec() {}

// repositoryRootPathSpec returns the root of a single repository, used for
// existence checks.
type repositoryRootPathSpec struct {
	name string
}

func (repositoryRootPathSpec) pathSpec() {}

// manifestRevisionsPathSpec describes the directory of manifest revisions
// for the canonical algorithm within a repository.
type manifestRevisionsPathSpec struct {
	name string
}

func (manifestRevisionsPathSpec) pathSpec() {}

// manifestRevisionPathSpec describes the components of the directory path
// for a manifest revision.
type manifestRevisionPathSpec struct {
	name     string
	revision digest.Digest
}

func (manifestRevisionPathSpec) pathSpec() {}

// manifestRevisionLinkPathSpec describes the path components required to
// look up the data link for a revision of a manifest.
type manifestRevisionLinkPathSpec struct {
	name     string
	revision digest.Digest
}

func (manifestRevisionLinkPathSpec) pathSpec() {}

// manifestRevisionMediaTypePathSpec describes the path of the recorded
// media type for a manifest revision.
type manifestRevisionMediaTypePathSpec struct {
	name     string
	revision digest.Digest
}

func (manifestRevisionMediaTypePathSpec) pathSpec() {}

// manifestTagsPathSpec describes the path elements required to point to the
// directory of tags for a repository.
type manifestTagsPathSpec struct {
	name string
}

func (manifestTagsPathSpec) pathSpec() {}

// manifestTagPathSpec describes the path elements required to point to the
// directory of a single tag.
type manifestTagPathSpec struct {
	name string
	tag  string
}

func (manifestTagPathSpec) pathSpec() {}

// manifestTagCurrentPathSpec describes the link to the current revision for
// a given tag.
type manifestTagCurrentPathSpec struct {
	name string
	tag  string
}

func (manifestTagCurrentPathSpec) pathSpec() {}

// layerLinkPathSpec specifies a path for a layer link, which is a file with
// a blob id. The layer link links a repository to the global blob store.
type layerLinkPathSpec struct {
	name   string
	digest digest.Digest
}

func (layerLinkPathSpec) pathSpec() {}
