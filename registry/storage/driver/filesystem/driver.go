// Package filesystem provides a storage driver rooted at a local
// directory.
package filesystem

import (
	"context"
	"fmt"
	"os"
	"path"
	"sort"

	storagedriver "github.com/aerugo/aerugo/registry/storage/driver"
	"github.com/aerugo/aerugo/registry/storage/driver/factory"
	"github.com/mitchellh/mapstructure"
)

const (
	driverName           = "filesystem"
	defaultRootDirectory = "/var/lib/aerugo"
)

func init() {
	factory.Register(driverName, &filesystemDriverFactory{})
}

type filesystemDriverFactory struct{}

func (f *filesystemDriverFactory) Create(parameters map[string]interface{}) (storagedriver.StorageDriver, error) {
	params, err := fromParameters(parameters)
	if err != nil {
		return nil, err
	}
	return New(*params), nil
}

// DriverParameters represents all configuration options available for the
// filesystem driver.
type DriverParameters struct {
	RootDirectory string `mapstructure:"rootdirectory"`
}

func fromParameters(parameters map[string]interface{}) (*DriverParameters, error) {
	params := &DriverParameters{
		RootDirectory: defaultRootDirectory,
	}
	if parameters != nil {
		if err := mapstructure.Decode(parameters, params); err != nil {
			return nil, fmt.Errorf("decoding filesystem driver parameters: %w", err)
		}
	}
	return params, nil
}

// Driver is a storagedriver.StorageDriver implementation backed by a local
// filesystem. All provided paths will be subpaths of the RootDirectory.
type Driver struct {
	rootDirectory string
}

var _ storagedriver.StorageDriver = &Driver{}

// New constructs a new Driver with the given parameters.
func New(params DriverParameters) *Driver {
	return &Driver{rootDirectory: params.RootDirectory}
}

// Name returns the driver name.
func (d *Driver) Name() string {
	return driverName
}

// GetContent retrieves the content stored at "path" as a []byte.
func (d *Driver) GetContent(ctx context.Context, subPath string) ([]byte, error) {
	p, err := d.fullPath(subPath)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storagedriver.PathNotFoundError{Path: subPath, DriverName: driverName}
		}
		return nil, storagedriver.Error{DriverName: driverName, Detail: err}
	}
	return content, nil
}

// PutContent stores the []byte content at a location designated by "path".
// The content is staged in a temporary file and renamed into place so a
// concurrent reader never observes a partial write.
func (d *Driver) PutContent(ctx context.Context, subPath string, content []byte) error {
	p, err := d.fullPath(subPath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(path.Dir(p), 0o777); err != nil {
		return storagedriver.Error{DriverName: driverName, Detail: err}
	}

	tmp, err := os.CreateTemp(path.Dir(p), ".tmp-")
	if err != nil {
		return storagedriver.Error{DriverName: driverName, Detail: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return storagedriver.Error{DriverName: driverName, Detail: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return storagedriver.Error{DriverName: driverName, Detail: err}
	}

	if err := os.Rename(tmpName, p); err != nil {
		os.Remove(tmpName)
		return storagedriver.Error{DriverName: driverName, Detail: err}
	}
	return nil
}

// Stat retrieves the FileInfo for the given path.
func (d *Driver) Stat(ctx context.Context, subPath string) (storagedriver.FileInfo, error) {
	p, err := d.fullPath(subPath)
	if err != nil {
		return nil, err
	}

	fi, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storagedriver.PathNotFoundError{Path: subPath, DriverName: driverName}
		}
		return nil, storagedriver.Error{DriverName: driverName, Detail: err}
	}

	return storagedriver.FileInfoInternal{FileInfoFields: storagedriver.FileInfoFields{
		Path:    subPath,
		Size:    fi.Size(),
		ModTime: fi.ModTime(),
		IsDir:   fi.IsDir(),
	}}, nil
}

// List returns a list of the objects that are direct descendants of the
// given path.
func (d *Driver) List(ctx context.Context, subPath string) ([]string, error) {
	p, err := d.fullPath(subPath)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storagedriver.PathNotFoundError{Path: subPath, DriverName: driverName}
		}
		return nil, storagedriver.Error{DriverName: driverName, Detail: err}
	}

	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		keys = append(keys, path.Join(subPath, entry.Name()))
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete recursively deletes all objects stored at "path" and its subpaths.
func (d *Driver) Delete(ctx context.Context, subPath string) error {
	p, err := d.fullPath(subPath)
	if err != nil {
		return err
	}

	if _, err := os.Stat(p); err != nil {
		if os.IsNotExist(err) {
			return storagedriver.PathNotFoundError{Path: subPath, DriverName: driverName}
		}
		return storagedriver.Error{DriverName: driverName, Detail: err}
	}

	if err := os.RemoveAll(p); err != nil {
		return storagedriver.Error{DriverName: driverName, Detail: err}
	}
	return nil
}

// fullPath returns the absolute path of a key within the Driver's storage.
func (d *Driver) fullPath(subPath string) (string, error) {
	if !storagedriver.PathRegexp.MatchString(subPath) {
		return "", storagedriver.InvalidPathError{Path: subPath, DriverName: driverName}
	}
	return path.Join(d.rootDirectory, subPath), nil
}
