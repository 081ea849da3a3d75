package storage

import (
	"context"
	"io"
	"reflect"
	"testing"

	"github.com/aerugo/aerugo"
)

func populateRepositories(t *testing.T, reg aerugo.Namespace, names []string) {
	t.Helper()
	ctx := context.Background()

	for _, name := range names {
		repo := testRepository(t, reg, name)
		manifests, err := repo.Manifests(ctx)
		if err != nil {
			t.Fatalf("error getting manifest service: %v", err)
		}
		if _, err := manifests.Put(ctx, testManifest(t)); err != nil {
			t.Fatalf("error seeding repository %q: %v", name, err)
		}
	}
}

func TestCatalog(t *testing.T) {
	ctx := context.Background()
	reg := testRegistry(t)

	names := []string{"bar/baz", "foo", "foo/nested/deep", "zed"}
	populateRepositories(t, reg, names)

	repos := make([]string, 10)
	n, err := reg.Repositories(ctx, repos, "")
	if err != io.EOF {
		t.Fatalf("expected io.EOF on exhausted catalog, got %v", err)
	}
	if !reflect.DeepEqual(repos[:n], names) {
		t.Fatalf("unexpected catalog: %v != %v", repos[:n], names)
	}
}

func TestCatalogPagination(t *testing.T) {
	ctx := context.Background()
	reg := testRegistry(t)

	names := []string{"a/1", "a/2", "b/1", "b/2", "c/1"}
	populateRepositories(t, reg, names)

	page := make([]string, 2)

	n, err := reg.Repositories(ctx, page, "")
	if err != nil {
		t.Fatalf("unexpected error on first page: %v", err)
	}
	if !reflect.DeepEqual(page[:n], []string{"a/1", "a/2"}) {
		t.Fatalf("unexpected first page: %v", page[:n])
	}

	n, err = reg.Repositories(ctx, page, page[n-1])
	if err != nil {
		t.Fatalf("unexpected error on second page: %v", err)
	}
	if !reflect.DeepEqual(page[:n], []string{"b/1", "b/2"}) {
		t.Fatalf("unexpected second page: %v", page[:n])
	}

	n, err = reg.Repositories(ctx, page, page[n-1])
	if err != io.EOF {
		t.Fatalf("expected io.EOF on final page, got %v", err)
	}
	if !reflect.DeepEqual(page[:n], []string{"c/1"}) {
		t.Fatalf("unexpected final page: %v", page[:n])
	}

	// A cursor past the end yields an empty page and io.EOF.
	n, err = reg.Repositories(ctx, page, "zzz")
	if err != io.EOF || n != 0 {
		t.Fatalf("expected empty final page with io.EOF, got n=%d err=%v", n, err)
	}
}
