package storage

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aerugo/aerugo"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
)

func testManifest(t *testing.T, layers ...aerugo.Descriptor) aerugo.Manifest {
	t.Helper()

	doc := map[string]interface{}{
		"schemaVersion": 2,
		"mediaType":     v1.MediaTypeImageManifest,
		"config": map[string]interface{}{
			"mediaType": v1.MediaTypeImageConfig,
			"size":      2,
			"digest":    "sha256:44136fa355b3678a1146ad16f7e8649e94fb4fc21fe77e8310c060f61caaff8a",
		},
		"layers": []interface{}{},
	}
	for _, layer := range layers {
		doc["layers"] = append(doc["layers"].([]interface{}), map[string]interface{}{
			"mediaType": v1.MediaTypeImageLayerGzip,
			"size":      layer.Size,
			"digest":    layer.Digest.String(),
		})
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("error marshalling test manifest: %v", err)
	}

	return aerugo.Manifest{
		MediaType: v1.MediaTypeImageManifest,
		Payload:   payload,
	}
}

func TestManifestStorage(t *testing.T) {
	ctx := context.Background()
	reg := testRegistry(t)
	repo := testRepository(t, reg, "foo/manifests")

	manifests, err := repo.Manifests(ctx)
	if err != nil {
		t.Fatalf("error getting manifest service: %v", err)
	}

	m := testManifest(t)
	dgst := m.Digest()

	if ok, err := manifests.Exists(ctx, dgst); err != nil {
		t.Fatalf("error checking existence: %v", err)
	} else if ok {
		t.Fatalf("manifest should not exist before put")
	}

	if _, err := manifests.Get(ctx, dgst); !errors.As(err, &aerugo.ErrManifestUnknownRevision{}) {
		t.Fatalf("expected ErrManifestUnknownRevision, got %v", err)
	}

	putDgst, err := manifests.Put(ctx, m)
	if err != nil {
		t.Fatalf("error putting manifest: %v", err)
	}
	if putDgst != dgst {
		t.Fatalf("put digest mismatch: %v != %v", putDgst, dgst)
	}

	fetched, err := manifests.Get(ctx, dgst)
	if err != nil {
		t.Fatalf("error fetching manifest: %v", err)
	}
	if string(fetched.Payload) != string(m.Payload) {
		t.Fatalf("fetched payload differs from stored payload")
	}
	if fetched.MediaType != v1.MediaTypeImageManifest {
		t.Fatalf("unexpected media type: %q", fetched.MediaType)
	}
	if fetched.Digest() != dgst {
		t.Fatalf("fetched manifest digest not reproducible: %v != %v", fetched.Digest(), dgst)
	}
}

// TestManifestDeduplication verifies that byte-identical manifests tagged
// twice share one revision, and that tags repoint rather than duplicate.
func TestManifestDeduplication(t *testing.T) {
	ctx := context.Background()
	reg := testRegistry(t)
	repo := testRepository(t, reg, "foo/dedupe")

	manifests, err := repo.Manifests(ctx)
	if err != nil {
		t.Fatalf("error getting manifest service: %v", err)
	}
	tags := repo.Tags(ctx)

	m := testManifest(t)
	dgst, err := manifests.Put(ctx, m)
	if err != nil {
		t.Fatalf("error putting manifest: %v", err)
	}

	// Second put of identical bytes reuses the revision.
	dgst2, err := manifests.Put(ctx, m)
	if err != nil {
		t.Fatalf("error re-putting manifest: %v", err)
	}
	if dgst2 != dgst {
		t.Fatalf("identical manifests yielded distinct digests: %v != %v", dgst2, dgst)
	}

	desc := aerugo.Descriptor{MediaType: m.MediaType, Size: int64(len(m.Payload)), Digest: dgst}
	if err := tags.Tag(ctx, "latest", desc); err != nil {
		t.Fatalf("error tagging latest: %v", err)
	}
	if err := tags.Tag(ctx, "stable", desc); err != nil {
		t.Fatalf("error tagging stable: %v", err)
	}

	for _, tag := range []string{"latest", "stable"} {
		resolved, err := tags.Get(ctx, tag)
		if err != nil {
			t.Fatalf("error resolving tag %q: %v", tag, err)
		}
		if resolved.Digest != dgst {
			t.Fatalf("tag %q resolved to %v, want %v", tag, resolved.Digest, dgst)
		}
	}
}

func TestManifestDeleteReferencedByTags(t *testing.T) {
	ctx := context.Background()
	reg := testRegistry(t)
	repo := testRepository(t, reg, "foo/deletion")

	manifests, err := repo.Manifests(ctx)
	if err != nil {
		t.Fatalf("error getting manifest service: %v", err)
	}
	tags := repo.Tags(ctx)

	m := testManifest(t)
	dgst, err := manifests.Put(ctx, m)
	if err != nil {
		t.Fatalf("error putting manifest: %v", err)
	}

	desc := aerugo.Descriptor{Size: int64(len(m.Payload)), Digest: dgst}
	if err := tags.Tag(ctx, "v1", desc); err != nil {
		t.Fatalf("error tagging manifest: %v", err)
	}

	err = manifests.Delete(ctx, dgst)
	var refErr aerugo.ErrManifestReferencedInTags
	if !errors.As(err, &refErr) {
		t.Fatalf("expected ErrManifestReferencedInTags, got %v", err)
	}

	if err := tags.Untag(ctx, "v1"); err != nil {
		t.Fatalf("error untagging: %v", err)
	}
	if err := manifests.Delete(ctx, dgst); err != nil {
		t.Fatalf("error deleting untagged manifest: %v", err)
	}

	if ok, err := manifests.Exists(ctx, dgst); err != nil {
		t.Fatalf("error checking existence: %v", err)
	} else if ok {
		t.Fatalf("manifest still exists after delete")
	}

	if err := manifests.Delete(ctx, dgst); !errors.As(err, &aerugo.ErrManifestUnknownRevision{}) {
		t.Fatalf("expected ErrManifestUnknownRevision on double delete, got %v", err)
	}
}

// TestManifestReferenceValidation exercises the strict write policy: a
// manifest naming absent blobs is rejected.
func TestManifestReferenceValidation(t *testing.T) {
	ctx := context.Background()
	reg := testRegistry(t, ManifestReferenceValidation(true))
	repo := testRepository(t, reg, "foo/strict")

	manifests, err := repo.Manifests(ctx)
	if err != nil {
		t.Fatalf("error getting manifest service: %v", err)
	}

	layer, layerDgst := randomBlob(t, 1024)
	m := testManifest(t, aerugo.Descriptor{Size: int64(len(layer)), Digest: layerDgst})

	_, err = manifests.Put(ctx, m)
	var verificationErr aerugo.ErrManifestVerification
	if !errors.As(err, &verificationErr) {
		t.Fatalf("expected ErrManifestVerification, got %v", err)
	}

	// After uploading the referenced blobs, the same manifest is accepted.
	bs := repo.Blobs(ctx)
	if _, err := bs.Put(ctx, v1.MediaTypeImageLayerGzip, layer); err != nil {
		t.Fatalf("error putting layer: %v", err)
	}
	if _, err := bs.Put(ctx, v1.MediaTypeImageConfig, []byte("{}")); err != nil {
		t.Fatalf("error putting config: %v", err)
	}

	if _, err := manifests.Put(ctx, m); err != nil {
		t.Fatalf("error putting manifest with satisfied references: %v", err)
	}
}
