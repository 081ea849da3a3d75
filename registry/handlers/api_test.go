package handlers

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"strings"
	"testing"

	"github.com/aerugo/aerugo/configuration"
	"github.com/aerugo/aerugo/registry/api/errcode"
	v2 "github.com/aerugo/aerugo/registry/api/v2"
	_ "github.com/aerugo/aerugo/registry/storage/driver/inmemory"
	"github.com/distribution/reference"
	"github.com/opencontainers/go-digest"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
)

type testEnv struct {
	server  *httptest.Server
	builder *v2.URLBuilder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	config := configuration.Default()
	app, err := NewApp(context.Background(), config)
	if err != nil {
		t.Fatalf("error creating app: %v", err)
	}

	server := httptest.NewServer(app)
	t.Cleanup(func() {
		server.Close()
		app.Close()
	})

	root, err := url.Parse(server.URL)
	if err != nil {
		t.Fatalf("error parsing server url: %v", err)
	}

	return &testEnv{
		server:  server,
		builder: v2.NewURLBuilder(root),
	}
}

func (env *testEnv) named(t *testing.T, name string) reference.Named {
	t.Helper()
	named, err := reference.WithName(name)
	if err != nil {
		t.Fatalf("error parsing name %q: %v", name, err)
	}
	return named
}

func checkResponse(t *testing.T, msg string, resp *http.Response, expectedStatus int) {
	t.Helper()
	if resp.StatusCode != expectedStatus {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("unexpected status %s: %v != %v, body: %s", msg, resp.StatusCode, expectedStatus, body)
	}
}

func checkErrorCodes(t *testing.T, msg string, resp *http.Response, codes ...errcode.ErrorCode) {
	t.Helper()

	var errs errcode.Errors
	if err := json.NewDecoder(resp.Body).Decode(&errs); err != nil {
		t.Fatalf("%s: error decoding error envelope: %v", msg, err)
	}
	if len(errs) != len(codes) {
		t.Fatalf("%s: unexpected number of errors: %v != %v (%v)", msg, len(errs), len(codes), errs)
	}
	for i, code := range codes {
		coder, ok := errs[i].(errcode.ErrorCoder)
		if !ok {
			t.Fatalf("%s: error %d is not an ErrorCoder: %v", msg, i, errs[i])
		}
		if coder.ErrorCode() != code {
			t.Fatalf("%s: unexpected error code: %v != %v", msg, coder.ErrorCode(), code)
		}
	}
}

func randomLayer(t *testing.T, size int) ([]byte, digest.Digest) {
	t.Helper()
	p := make([]byte, size)
	if _, err := rand.Read(p); err != nil {
		t.Fatalf("error generating layer: %v", err)
	}
	return p, digest.FromBytes(p)
}

// startPushLayer initiates a resumable upload, returning the upload
// location.
func startPushLayer(t *testing.T, env *testEnv, name reference.Named) string {
	t.Helper()

	uploadURL, err := env.builder.BuildBlobUploadURL(name)
	if err != nil {
		t.Fatalf("error building upload url: %v", err)
	}

	resp, err := http.Post(uploadURL, "", nil)
	if err != nil {
		t.Fatalf("error starting upload: %v", err)
	}
	defer resp.Body.Close()

	checkResponse(t, "starting layer push", resp, http.StatusAccepted)
	if resp.Header.Get("Docker-Upload-UUID") == "" {
		t.Fatalf("missing Docker-Upload-UUID header")
	}
	if got := resp.Header.Get("Range"); got != "0-0" {
		t.Fatalf("unexpected initial range: %q", got)
	}

	location := resp.Header.Get("Location")
	if location == "" {
		t.Fatalf("missing Location header on upload start")
	}
	return location
}

// pushChunk PATCHes a chunk at the given starting offset and returns the
// response, which the caller must close.
func pushChunk(t *testing.T, location string, chunk []byte, start int64) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodPatch, location, bytes.NewReader(chunk))
	if err != nil {
		t.Fatalf("error creating patch request: %v", err)
	}
	req.Header.Set("Content-Range", fmt.Sprintf("%d-%d", start, start+int64(len(chunk))-1))
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("error pushing chunk: %v", err)
	}
	return resp
}

func finishUpload(t *testing.T, location string, dgst digest.Digest) *http.Response {
	t.Helper()

	u, err := url.Parse(location)
	if err != nil {
		t.Fatalf("error parsing location: %v", err)
	}
	q := u.Query()
	q.Set("digest", dgst.String())
	u.RawQuery = q.Encode()

	req, err := http.NewRequest(http.MethodPut, u.String(), nil)
	if err != nil {
		t.Fatalf("error creating put request: %v", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("error completing upload: %v", err)
	}
	return resp
}

func pushLayer(t *testing.T, env *testEnv, name reference.Named, content []byte, dgst digest.Digest) {
	t.Helper()

	location := startPushLayer(t, env, name)

	resp := pushChunk(t, location, content, 0)
	location = resp.Header.Get("Location")
	checkResponse(t, "pushing layer chunk", resp, http.StatusAccepted)
	resp.Body.Close()

	resp = finishUpload(t, location, dgst)
	checkResponse(t, "finishing layer push", resp, http.StatusCreated)
	resp.Body.Close()
}

func TestCheckAPI(t *testing.T) {
	env := newTestEnv(t)

	baseURL, err := env.builder.BuildBaseURL()
	if err != nil {
		t.Fatalf("error building base url: %v", err)
	}

	resp, err := http.Get(baseURL)
	if err != nil {
		t.Fatalf("error issuing request: %v", err)
	}
	defer resp.Body.Close()

	checkResponse(t, "api base check", resp, http.StatusOK)
	if got := resp.Header.Get("Docker-Distribution-API-Version"); got != "registry/2.0" {
		t.Fatalf("unexpected api version header: %q", got)
	}
}

func TestBlobAPI(t *testing.T) {
	env := newTestEnv(t)
	name := env.named(t, "foo/bar")

	content, dgst := randomLayer(t, 1<<19)

	ref, err := reference.WithDigest(name, dgst)
	if err != nil {
		t.Fatalf("error building canonical reference: %v", err)
	}
	blobURL, err := env.builder.BuildBlobURL(ref)
	if err != nil {
		t.Fatalf("error building blob url: %v", err)
	}

	// HEAD before upload misses.
	resp, err := http.Head(blobURL)
	if err != nil {
		t.Fatalf("error heading blob: %v", err)
	}
	checkResponse(t, "heading absent blob", resp, http.StatusNotFound)
	resp.Body.Close()

	// Chunked upload: two chunks through the session state machine.
	location := startPushLayer(t, env, name)

	half := len(content) / 2
	resp = pushChunk(t, location, content[:half], 0)
	checkResponse(t, "pushing first chunk", resp, http.StatusAccepted)
	if got, want := resp.Header.Get("Range"), fmt.Sprintf("0-%d", half-1); got != want {
		t.Fatalf("unexpected range after first chunk: %q != %q", got, want)
	}
	location = resp.Header.Get("Location")
	resp.Body.Close()

	// A chunk at the wrong offset is rejected with 416 and does not
	// disturb the session.
	resp = pushChunk(t, location, content[half:], int64(half)+99)
	checkResponse(t, "pushing misaligned chunk", resp, http.StatusRequestedRangeNotSatisfiable)
	if got, want := resp.Header.Get("Range"), fmt.Sprintf("0-%d", half-1); got != want {
		t.Fatalf("session progress disturbed by rejected chunk: %q != %q", got, want)
	}
	resp.Body.Close()

	resp = pushChunk(t, location, content[half:], int64(half))
	checkResponse(t, "pushing second chunk", resp, http.StatusAccepted)
	location = resp.Header.Get("Location")
	resp.Body.Close()

	resp = finishUpload(t, location, dgst)
	checkResponse(t, "completing upload", resp, http.StatusCreated)
	if got := resp.Header.Get("Docker-Content-Digest"); got != dgst.String() {
		t.Fatalf("unexpected content digest: %q != %q", got, dgst)
	}
	resp.Body.Close()

	// Fetch and verify the content.
	resp, err = http.Get(blobURL)
	if err != nil {
		t.Fatalf("error fetching blob: %v", err)
	}
	checkResponse(t, "fetching blob", resp, http.StatusOK)
	fetched, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("error reading blob body: %v", err)
	}
	if !bytes.Equal(fetched, content) {
		t.Fatalf("fetched blob differs from pushed content")
	}

	// Delete unlinks it from the repository.
	req, _ := http.NewRequest(http.MethodDelete, blobURL, nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("error deleting blob: %v", err)
	}
	checkResponse(t, "deleting blob", resp, http.StatusAccepted)
	resp.Body.Close()

	resp, err = http.Head(blobURL)
	if err != nil {
		t.Fatalf("error heading deleted blob: %v", err)
	}
	checkResponse(t, "heading deleted blob", resp, http.StatusNotFound)
	resp.Body.Close()
}

func TestBlobUploadDigestMismatch(t *testing.T) {
	env := newTestEnv(t)
	name := env.named(t, "foo/mismatch")

	content, _ := randomLayer(t, 4096)
	_, wrongDgst := randomLayer(t, 4096)

	location := startPushLayer(t, env, name)
	resp := pushChunk(t, location, content, 0)
	checkResponse(t, "pushing chunk", resp, http.StatusAccepted)
	location = resp.Header.Get("Location")
	resp.Body.Close()

	resp = finishUpload(t, location, wrongDgst)
	checkResponse(t, "completing upload with wrong digest", resp, http.StatusBadRequest)
	checkErrorCodes(t, "completing upload with wrong digest", resp, errcode.ErrorCodeDigestInvalid)
	resp.Body.Close()
}

func TestBlobUploadCancel(t *testing.T) {
	env := newTestEnv(t)
	name := env.named(t, "foo/cancel")

	location := startPushLayer(t, env, name)

	req, _ := http.NewRequest(http.MethodDelete, location, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("error cancelling upload: %v", err)
	}
	checkResponse(t, "cancelling upload", resp, http.StatusNoContent)
	resp.Body.Close()

	resp, err = http.Get(location)
	if err != nil {
		t.Fatalf("error querying cancelled upload: %v", err)
	}
	checkResponse(t, "querying cancelled upload", resp, http.StatusNotFound)
	checkErrorCodes(t, "querying cancelled upload", resp, errcode.ErrorCodeBlobUploadUnknown)
	resp.Body.Close()
}

func TestMonolithicBlobUpload(t *testing.T) {
	env := newTestEnv(t)
	name := env.named(t, "foo/mono")

	content, dgst := randomLayer(t, 2048)

	uploadURL, err := env.builder.BuildBlobUploadURL(name, url.Values{"digest": []string{dgst.String()}})
	if err != nil {
		t.Fatalf("error building upload url: %v", err)
	}

	resp, err := http.Post(uploadURL, "application/octet-stream", bytes.NewReader(content))
	if err != nil {
		t.Fatalf("error issuing monolithic upload: %v", err)
	}
	checkResponse(t, "monolithic upload", resp, http.StatusCreated)
	resp.Body.Close()

	ref, _ := reference.WithDigest(name, dgst)
	blobURL, _ := env.builder.BuildBlobURL(ref)
	resp, err = http.Head(blobURL)
	if err != nil {
		t.Fatalf("error heading blob: %v", err)
	}
	checkResponse(t, "heading blob after monolithic upload", resp, http.StatusOK)
	resp.Body.Close()
}

func testManifestPayload(t *testing.T) []byte {
	t.Helper()

	payload, err := json.Marshal(map[string]interface{}{
		"schemaVersion": 2,
		"mediaType":     v1.MediaTypeImageManifest,
		"config": map[string]interface{}{
			"mediaType": v1.MediaTypeImageConfig,
			"size":      2,
			"digest":    digest.FromBytes([]byte("{}")).String(),
		},
		"layers": []interface{}{},
	})
	if err != nil {
		t.Fatalf("error building manifest payload: %v", err)
	}
	return payload
}

func putManifest(t *testing.T, env *testEnv, ref reference.Named, payload []byte) *http.Response {
	t.Helper()

	manifestURL, err := env.builder.BuildManifestURL(ref)
	if err != nil {
		t.Fatalf("error building manifest url: %v", err)
	}

	req, err := http.NewRequest(http.MethodPut, manifestURL, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("error creating manifest put: %v", err)
	}
	req.Header.Set("Content-Type", v1.MediaTypeImageManifest)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("error putting manifest: %v", err)
	}
	return resp
}

func TestManifestAPI(t *testing.T) {
	env := newTestEnv(t)
	name := env.named(t, "foo/app")

	payload := testManifestPayload(t)
	dgst := digest.FromBytes(payload)

	tagRef, err := reference.WithTag(name, "latest")
	if err != nil {
		t.Fatalf("error building tag reference: %v", err)
	}

	// Fetch before push misses.
	manifestURL, err := env.builder.BuildManifestURL(tagRef)
	if err != nil {
		t.Fatalf("error building manifest url: %v", err)
	}
	resp, err := http.Get(manifestURL)
	if err != nil {
		t.Fatalf("error getting absent manifest: %v", err)
	}
	checkResponse(t, "getting absent manifest", resp, http.StatusNotFound)
	checkErrorCodes(t, "getting absent manifest", resp, errcode.ErrorCodeManifestUnknown)
	resp.Body.Close()

	resp = putManifest(t, env, tagRef, payload)
	checkResponse(t, "putting manifest by tag", resp, http.StatusCreated)
	if got := resp.Header.Get("Docker-Content-Digest"); got != dgst.String() {
		t.Fatalf("unexpected manifest digest header: %q != %q", got, dgst)
	}
	resp.Body.Close()

	// Fetch by tag.
	resp, err = http.Get(manifestURL)
	if err != nil {
		t.Fatalf("error getting manifest by tag: %v", err)
	}
	checkResponse(t, "getting manifest by tag", resp, http.StatusOK)
	fetched, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !bytes.Equal(fetched, payload) {
		t.Fatalf("fetched manifest bytes differ from pushed payload")
	}
	if digest.FromBytes(fetched) != dgst {
		t.Fatalf("fetched manifest digest not reproducible")
	}

	// Fetch by digest.
	digestRef, _ := reference.WithDigest(name, dgst)
	digestURL, _ := env.builder.BuildManifestURL(digestRef)
	resp, err = http.Get(digestURL)
	if err != nil {
		t.Fatalf("error getting manifest by digest: %v", err)
	}
	checkResponse(t, "getting manifest by digest", resp, http.StatusOK)
	if got := resp.Header.Get("Docker-Content-Digest"); got != dgst.String() {
		t.Fatalf("unexpected digest header: %q", got)
	}
	resp.Body.Close()

	// Repoint the tag at different content; the next read must observe the
	// new manifest immediately.
	updated := append(bytes.TrimSuffix(payload, []byte("}")), []byte(`,"annotations":{"v":"2"}}`)...)
	updatedDgst := digest.FromBytes(updated)

	resp = putManifest(t, env, tagRef, updated)
	checkResponse(t, "repointing tag", resp, http.StatusCreated)
	resp.Body.Close()

	resp, err = http.Get(manifestURL)
	if err != nil {
		t.Fatalf("error getting repointed manifest: %v", err)
	}
	checkResponse(t, "getting repointed manifest", resp, http.StatusOK)
	if got := resp.Header.Get("Docker-Content-Digest"); got != updatedDgst.String() {
		t.Fatalf("stale manifest served after tag repoint: %q != %q", got, updatedDgst)
	}
	resp.Body.Close()

	// Tag listing reflects both writes through the cache.
	tagsURL, err := env.builder.BuildTagsURL(name)
	if err != nil {
		t.Fatalf("error building tags url: %v", err)
	}
	resp, err = http.Get(tagsURL)
	if err != nil {
		t.Fatalf("error listing tags: %v", err)
	}
	checkResponse(t, "listing tags", resp, http.StatusOK)

	var tagsBody struct {
		Name string   `json:"name"`
		Tags []string `json:"tags"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tagsBody); err != nil {
		t.Fatalf("error decoding tags response: %v", err)
	}
	resp.Body.Close()
	if tagsBody.Name != name.Name() || !reflect.DeepEqual(tagsBody.Tags, []string{"latest"}) {
		t.Fatalf("unexpected tags response: %+v", tagsBody)
	}

	// Deleting by tag removes just the tag.
	req, _ := http.NewRequest(http.MethodDelete, manifestURL, nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("error deleting tag: %v", err)
	}
	checkResponse(t, "deleting tag", resp, http.StatusAccepted)
	resp.Body.Close()

	// The revision remains fetchable by digest, then deletes cleanly.
	updatedRef, _ := reference.WithDigest(name, updatedDgst)
	updatedURL, _ := env.builder.BuildManifestURL(updatedRef)
	resp, err = http.Get(updatedURL)
	if err != nil {
		t.Fatalf("error getting untagged revision: %v", err)
	}
	checkResponse(t, "getting untagged revision", resp, http.StatusOK)
	resp.Body.Close()

	req, _ = http.NewRequest(http.MethodDelete, updatedURL, nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("error deleting manifest: %v", err)
	}
	checkResponse(t, "deleting manifest by digest", resp, http.StatusAccepted)
	resp.Body.Close()

	resp, err = http.Get(updatedURL)
	if err != nil {
		t.Fatalf("error getting deleted manifest: %v", err)
	}
	checkResponse(t, "getting deleted manifest", resp, http.StatusNotFound)
	resp.Body.Close()
}

func TestManifestTagDeduplication(t *testing.T) {
	env := newTestEnv(t)
	name := env.named(t, "foo/dedup")

	payload := testManifestPayload(t)
	dgst := digest.FromBytes(payload)

	for _, tag := range []string{"one", "two"} {
		tagRef, err := reference.WithTag(name, tag)
		if err != nil {
			t.Fatalf("error building tag reference: %v", err)
		}
		resp := putManifest(t, env, tagRef, payload)
		checkResponse(t, "putting manifest under tag "+tag, resp, http.StatusCreated)
		if got := resp.Header.Get("Docker-Content-Digest"); got != dgst.String() {
			t.Fatalf("tag %s stored under unexpected digest: %q != %q", tag, got, dgst)
		}
		resp.Body.Close()
	}

	// Both tags resolve to the single stored revision.
	for _, tag := range []string{"one", "two"} {
		tagRef, _ := reference.WithTag(name, tag)
		manifestURL, _ := env.builder.BuildManifestURL(tagRef)
		resp, err := http.Get(manifestURL)
		if err != nil {
			t.Fatalf("error getting manifest by tag %s: %v", tag, err)
		}
		checkResponse(t, "getting manifest by tag "+tag, resp, http.StatusOK)
		fetched, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if !bytes.Equal(fetched, payload) {
			t.Fatalf("tag %s returned different payload", tag)
		}
	}
}

func TestManifestPutDigestMismatch(t *testing.T) {
	env := newTestEnv(t)
	name := env.named(t, "foo/badput")

	payload := testManifestPayload(t)
	_, wrongDgst := randomLayer(t, 64)

	digestRef, err := reference.WithDigest(name, wrongDgst)
	if err != nil {
		t.Fatalf("error building digest reference: %v", err)
	}

	resp := putManifest(t, env, digestRef, payload)
	checkResponse(t, "putting manifest under wrong digest", resp, http.StatusBadRequest)
	checkErrorCodes(t, "putting manifest under wrong digest", resp, errcode.ErrorCodeDigestInvalid)
	resp.Body.Close()
}

func TestTagsUnknownRepository(t *testing.T) {
	env := newTestEnv(t)
	name := env.named(t, "foo/void")

	tagsURL, err := env.builder.BuildTagsURL(name)
	if err != nil {
		t.Fatalf("error building tags url: %v", err)
	}

	resp, err := http.Get(tagsURL)
	if err != nil {
		t.Fatalf("error listing tags: %v", err)
	}
	defer resp.Body.Close()

	checkResponse(t, "listing tags of unknown repository", resp, http.StatusNotFound)
	checkErrorCodes(t, "listing tags of unknown repository", resp, errcode.ErrorCodeNameUnknown)
}

func TestCatalogAPI(t *testing.T) {
	env := newTestEnv(t)

	names := []string{"cat/a", "cat/b", "cat/c"}
	for _, n := range names {
		named := env.named(t, n)
		tagRef, _ := reference.WithTag(named, "latest")
		resp := putManifest(t, env, tagRef, testManifestPayload(t))
		checkResponse(t, "seeding catalog", resp, http.StatusCreated)
		resp.Body.Close()
	}

	catalogURL, err := env.builder.BuildCatalogURL(url.Values{"n": []string{"2"}})
	if err != nil {
		t.Fatalf("error building catalog url: %v", err)
	}

	resp, err := http.Get(catalogURL)
	if err != nil {
		t.Fatalf("error fetching catalog: %v", err)
	}
	checkResponse(t, "fetching catalog first page", resp, http.StatusOK)

	var page struct {
		Repositories []string `json:"repositories"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		t.Fatalf("error decoding catalog: %v", err)
	}
	link := resp.Header.Get("Link")
	resp.Body.Close()

	if !reflect.DeepEqual(page.Repositories, names[:2]) {
		t.Fatalf("unexpected first page: %v", page.Repositories)
	}
	if link == "" || !strings.Contains(link, `rel="next"`) {
		t.Fatalf("expected next page link, got %q", link)
	}

	// Follow the link to the final page.
	nextURL := strings.TrimSuffix(strings.TrimPrefix(strings.SplitN(link, ";", 2)[0], "<"), ">")
	resp, err = http.Get(nextURL)
	if err != nil {
		t.Fatalf("error fetching second page: %v", err)
	}
	checkResponse(t, "fetching catalog second page", resp, http.StatusOK)
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		t.Fatalf("error decoding second page: %v", err)
	}
	resp.Body.Close()

	if !reflect.DeepEqual(page.Repositories, names[2:]) {
		t.Fatalf("unexpected second page: %v", page.Repositories)
	}
}

func TestCatalogSeesBlobOnlyRepository(t *testing.T) {
	env := newTestEnv(t)

	named := env.named(t, "catz/a")
	tagRef, _ := reference.WithTag(named, "latest")
	resp := putManifest(t, env, tagRef, testManifestPayload(t))
	checkResponse(t, "seeding catalog", resp, http.StatusCreated)
	resp.Body.Close()

	catalogURL, err := env.builder.BuildCatalogURL()
	if err != nil {
		t.Fatalf("error building catalog url: %v", err)
	}

	fetchCatalog := func(msg string) []string {
		t.Helper()
		resp, err := http.Get(catalogURL)
		if err != nil {
			t.Fatalf("%s: error fetching catalog: %v", msg, err)
		}
		defer resp.Body.Close()
		checkResponse(t, msg, resp, http.StatusOK)
		var page struct {
			Repositories []string `json:"repositories"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
			t.Fatalf("%s: error decoding catalog: %v", msg, err)
		}
		return page.Repositories
	}

	// Warm the catalog page, then create a second repository with nothing
	// but a blob push.
	if got := fetchCatalog("warming catalog"); !reflect.DeepEqual(got, []string{"catz/a"}) {
		t.Fatalf("unexpected warm catalog: %v", got)
	}

	content, dgst := randomLayer(t, 1024)
	pushLayer(t, env, env.named(t, "catz/b"), content, dgst)

	if got := fetchCatalog("fetching catalog after blob push"); !reflect.DeepEqual(got, []string{"catz/a", "catz/b"}) {
		t.Fatalf("catalog missing blob-only repository: %v", got)
	}
}

func TestCacheHealthAPI(t *testing.T) {
	env := newTestEnv(t)

	// Seed one repository so the counters move.
	named := env.named(t, "health/app")
	tagRef, _ := reference.WithTag(named, "latest")
	resp := putManifest(t, env, tagRef, testManifestPayload(t))
	checkResponse(t, "seeding repository", resp, http.StatusCreated)
	resp.Body.Close()

	tagsURL, _ := env.builder.BuildTagsURL(named)
	resp, err := http.Get(tagsURL)
	if err != nil {
		t.Fatalf("error warming cache: %v", err)
	}
	resp.Body.Close()

	resp, err = http.Get(env.server.URL + "/health/cache")
	if err != nil {
		t.Fatalf("error fetching cache health: %v", err)
	}
	defer resp.Body.Close()
	checkResponse(t, "fetching cache health", resp, http.StatusOK)

	var health struct {
		CacheStats struct {
			MemoryCache struct {
				ManifestCount     int    `json:"manifest_count"`
				BlobMetadataCount int    `json:"blob_metadata_count"`
				RepositoryCount   int    `json:"repository_count"`
				TagCount          int    `json:"tag_count"`
				Hits              uint64 `json:"hits"`
				Misses            uint64 `json:"misses"`
			} `json:"memory_cache"`
			RedisConnected bool `json:"redis_connected"`
		} `json:"cache_stats"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("error decoding cache health: %v", err)
	}

	if health.CacheStats.RedisConnected {
		t.Fatalf("redis reported connected without a configured tier")
	}
	if health.CacheStats.MemoryCache.TagCount != 1 {
		t.Fatalf("expected one cached tag listing, got %d", health.CacheStats.MemoryCache.TagCount)
	}
	if health.CacheStats.MemoryCache.Misses == 0 {
		t.Fatalf("expected cache misses after cold reads")
	}
}
