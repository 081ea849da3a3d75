package storage

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/aerugo/aerugo"
)

func TestTagStoreUnknownRepository(t *testing.T) {
	ctx := context.Background()
	reg := testRegistry(t)
	repo := testRepository(t, reg, "tags/nothere")

	if _, err := repo.Tags(ctx).All(ctx); !errors.As(err, &aerugo.ErrRepositoryUnknown{}) {
		t.Fatalf("expected ErrRepositoryUnknown, got %v", err)
	}
}

func TestTagStore(t *testing.T) {
	ctx := context.Background()
	reg := testRegistry(t)
	repo := testRepository(t, reg, "tags/basic")

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

	// Repository exists now but has no tags yet: empty list, no error.
	all, err := tags.All(ctx)
	if err != nil {
		t.Fatalf("error listing tags of untagged repository: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("expected no tags, got %v", all)
	}

	if _, err := tags.Get(ctx, "latest"); !errors.As(err, &aerugo.ErrTagUnknown{}) {
		t.Fatalf("expected ErrTagUnknown, got %v", err)
	}

	for _, tag := range []string{"latest", "1.0", "1.0.2"} {
		if err := tags.Tag(ctx, tag, desc); err != nil {
			t.Fatalf("error tagging %q: %v", tag, err)
		}
	}

	all, err = tags.All(ctx)
	if err != nil {
		t.Fatalf("error listing tags: %v", err)
	}
	if want := []string{"1.0", "1.0.2", "latest"}; !reflect.DeepEqual(all, want) {
		t.Fatalf("unexpected tag listing: %v != %v", all, want)
	}

	// Repoint one tag at a second revision and check Lookup partitions.
	m2 := testManifest(t, aerugo.Descriptor{Size: 1, Digest: dgst})
	dgst2, err := manifests.Put(ctx, m2)
	if err != nil {
		t.Fatalf("error putting second manifest: %v", err)
	}
	if err := tags.Tag(ctx, "latest", aerugo.Descriptor{Digest: dgst2}); err != nil {
		t.Fatalf("error repointing latest: %v", err)
	}

	resolved, err := tags.Get(ctx, "latest")
	if err != nil {
		t.Fatalf("error resolving latest: %v", err)
	}
	if resolved.Digest != dgst2 {
		t.Fatalf("latest not repointed: %v != %v", resolved.Digest, dgst2)
	}

	lookup, err := tags.Lookup(ctx, dgst)
	if err != nil {
		t.Fatalf("error looking up first revision: %v", err)
	}
	if want := []string{"1.0", "1.0.2"}; !reflect.DeepEqual(lookup, want) {
		t.Fatalf("unexpected lookup result: %v != %v", lookup, want)
	}

	if err := tags.Untag(ctx, "1.0"); err != nil {
		t.Fatalf("error untagging: %v", err)
	}
	if err := tags.Untag(ctx, "1.0"); !errors.As(err, &aerugo.ErrTagUnknown{}) {
		t.Fatalf("expected ErrTagUnknown on double untag, got %v", err)
	}
}
