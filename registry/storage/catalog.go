package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"sort"
	"strings"

	storagedriver "github.com/aerugo/aerugo/registry/storage/driver"
)

// Repositories returns a lexicographically sorted catalog given a prefix,
// filling repos up to its length and returning the number filled. The
// last argument contains an offset in the catalog: only names
// lexicographically after last are returned. io.EOF is returned once the
// catalog is exhausted, so a bounded page is always a prefix of the
// unbounded listing.
func (reg *registry) Repositories(ctx context.Context, repos []string, last string) (int, error) {
	all, err := reg.catalog(ctx)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, name := range all {
		if last != "" && name <= last {
			continue
		}
		if n == len(repos) {
			return n, nil
		}
		repos[n] = name
		n++
	}

	return n, io.EOF
}

// catalog walks the repositories tree, collecting every directory that
// holds repository content. Repository names may contain path separators,
// so the walk descends until it finds the _manifests/_layers marker
// directories.
func (reg *registry) catalog(ctx context.Context) ([]string, error) {
	root := pathFor(repositoriesRootPathSpec{})

	var repos []string
	if err := reg.walkRepos(ctx, root, root, &repos); err != nil {
		return nil, err
	}

	sort.Strings(repos)
	return repos, nil
}

func (reg *registry) walkRepos(ctx context.Context, root, dir string, repos *[]string) error {
	entries, err := reg.driver.List(ctx, dir)
	if err != nil {
		var pnfe storagedriver.PathNotFoundError
		if errors.As(err, &pnfe) {
			// No repositories yet.
			if dir == root {
				return nil
			}
		}
		return err
	}

	isRepo := false
	for _, entry := range entries {
		base := path.Base(entry)
		if base == "_manifests" || base == "_layers" {
			isRepo = true
			break
		}
	}

	if isRepo {
		*repos = append(*repos, strings.TrimPrefix(dir, root+"/"))
	}

	// A repository may itself contain nested repositories, so the walk
	// continues past marker directories into the remaining children.
	for _, entry := range entries {
		if strings.HasPrefix(path.Base(entry), "_") {
			continue
		}
		fi, err := reg.driver.Stat(ctx, entry)
		if err != nil {
			return err
		}
		if !fi.IsDir() {
			continue
		}
		if err := reg.walkRepos(ctx, root, entry, repos); err != nil {
			return err
		}
	}

	return nil
}
