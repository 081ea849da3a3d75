package storage

import (
	"context"
	"errors"

	storagedriver "github.com/aerugo/aerugo/registry/storage/driver"
)

// exists provides a utility method to test whether or not a path exists in
// the given driver.
func exists(ctx context.Context, drv storagedriver.StorageDriver, path string) (bool, error) {
	if _, err := drv.Stat(ctx, path); err != nil {
		var pnfe storagedriver.PathNotFoundError
		if errors.As(err, &pnfe) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}
