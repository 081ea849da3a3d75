// Package inmemory provides a volatile storage driver backed by a local
// map. Intended for testing and single-process deployments.
package inmemory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	storagedriver "github.com/aerugo/aerugo/registry/storage/driver"
	"github.com/aerugo/aerugo/registry/storage/driver/factory"
)

const driverName = "inmemory"

func init() {
	factory.Register(driverName, &inMemoryDriverFactory{})
}

// inMemoryDriverFactory implements the factory.StorageDriverFactory
// interface.
type inMemoryDriverFactory struct{}

func (f *inMemoryDriverFactory) Create(parameters map[string]interface{}) (storagedriver.StorageDriver, error) {
	return New(), nil
}

type file struct {
	data    []byte
	modTime time.Time
}

// Driver is a storagedriver.StorageDriver implementation backed by a local
// map. Directory structure is derived from the stored paths rather than
// tracked separately.
type Driver struct {
	files map[string]file
	mutex sync.RWMutex
}

var _ storagedriver.StorageDriver = &Driver{}

// New constructs a new Driver.
func New() *Driver {
	return &Driver{files: make(map[string]file)}
}

// Name returns the driver name.
func (d *Driver) Name() string {
	return driverName
}

// GetContent retrieves the content stored at "path" as a []byte.
func (d *Driver) GetContent(ctx context.Context, path string) ([]byte, error) {
	if err := checkPath(path); err != nil {
		return nil, err
	}

	d.mutex.RLock()
	defer d.mutex.RUnlock()

	f, ok := d.files[path]
	if !ok {
		return nil, storagedriver.PathNotFoundError{Path: path, DriverName: driverName}
	}

	buf := make([]byte, len(f.data))
	copy(buf, f.data)
	return buf, nil
}

// PutContent stores the []byte content at a location designated by "path".
func (d *Driver) PutContent(ctx context.Context, path string, content []byte) error {
	if err := checkPath(path); err != nil {
		return err
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()

	buf := make([]byte, len(content))
	copy(buf, content)
	d.files[path] = file{data: buf, modTime: time.Now()}
	return nil
}

// Stat returns info about the provided path.
func (d *Driver) Stat(ctx context.Context, path string) (storagedriver.FileInfo, error) {
	if err := checkPath(path); err != nil {
		return nil, err
	}

	d.mutex.RLock()
	defer d.mutex.RUnlock()

	if f, ok := d.files[path]; ok {
		return storagedriver.FileInfoInternal{FileInfoFields: storagedriver.FileInfoFields{
			Path:    path,
			Size:    int64(len(f.data)),
			ModTime: f.modTime,
		}}, nil
	}

	// A path is a directory if any stored key lives beneath it.
	prefix := path + "/"
	for p, f := range d.files {
		if strings.HasPrefix(p, prefix) {
			return storagedriver.FileInfoInternal{FileInfoFields: storagedriver.FileInfoFields{
				Path:    path,
				ModTime: f.modTime,
				IsDir:   true,
			}}, nil
		}
	}

	return nil, storagedriver.PathNotFoundError{Path: path, DriverName: driverName}
}

// List returns the direct descendants of the given path.
func (d *Driver) List(ctx context.Context, path string) ([]string, error) {
	if path != "/" {
		if err := checkPath(path); err != nil {
			return nil, err
		}
	}

	d.mutex.RLock()
	defer d.mutex.RUnlock()

	prefix := path
	if prefix != "/" {
		prefix += "/"
	}

	found := false
	children := map[string]struct{}{}
	for p := range d.files {
		if p == path {
			found = true
			continue
		}
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		found = true
		rest := p[len(prefix):]
		if i := strings.Index(rest, "/"); i >= 0 {
			rest = rest[:i]
		}
		children[prefix+rest] = struct{}{}
	}

	if !found {
		return nil, storagedriver.PathNotFoundError{Path: path, DriverName: driverName}
	}

	keys := make([]string, 0, len(children))
	for k := range children {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete recursively deletes all objects stored at "path" and its subpaths.
func (d *Driver) Delete(ctx context.Context, path string) error {
	if err := checkPath(path); err != nil {
		return err
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()

	prefix := path + "/"
	deleted := false
	for p := range d.files {
		if p == path || strings.HasPrefix(p, prefix) {
			delete(d.files, p)
			deleted = true
		}
	}

	if !deleted {
		return storagedriver.PathNotFoundError{Path: path, DriverName: driverName}
	}
	return nil
}

func checkPath(path string) error {
	if !storagedriver.PathRegexp.MatchString(path) {
		return storagedriver.InvalidPathError{Path: path, DriverName: driverName}
	}
	return nil
}
