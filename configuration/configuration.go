// Package configuration holds the registry's YAML configuration surface.
package configuration

import (
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Configuration is a versioned registry configuration, intended to be
// provided as a yaml file.
type Configuration struct {
	// Version is the version which defines the format of the rest of the
	// configuration.
	Version string `yaml:"version"`

	// Log supports setting various parameters related to the logging
	// subsystem.
	Log struct {
		// Level is the granularity at which registry operations are logged.
		Level string `yaml:"level,omitempty"`

		// Formatter overrides the default formatter with another. Options
		// include "text" and "json".
		Formatter string `yaml:"formatter,omitempty"`

		// Fields allows users to specify static string fields to include in
		// the logger context.
		Fields map[string]interface{} `yaml:"fields,omitempty"`
	} `yaml:"log"`

	// Storage is the configuration for the registry's storage driver.
	Storage Storage `yaml:"storage"`

	// Auth allows configuration of various authorization methods.
	Auth Auth `yaml:"auth,omitempty"`

	// HTTP contains configuration parameters for the registry's http
	// interface.
	HTTP struct {
		// Addr specifies the bind address for the registry instance.
		Addr string `yaml:"addr,omitempty"`

		// Prefix specifies a URL path prefix for the http interface. This
		// can be used to serve the registry under a specific path rather
		// than at the root of the domain (e.g., "/registry/").
		Prefix string `yaml:"prefix,omitempty"`

		// DrainTimeout is the maximum amount of time a shutdown waits for
		// in-flight requests to finish.
		DrainTimeout time.Duration `yaml:"draintimeout,omitempty"`
	} `yaml:"http,omitempty"`

	// Uploads configures the chunked upload state machine.
	Uploads struct {
		// SessionTTL is the idle lifetime of an upload session. Sessions
		// untouched for longer are reclaimed.
		SessionTTL time.Duration `yaml:"sessionttl,omitempty"`
	} `yaml:"uploads,omitempty"`

	// Validation configures write-time validation policy.
	Validation struct {
		Manifests struct {
			// RequireReferences rejects manifest writes whose referenced
			// config or layer blobs are not present in the repository.
			RequireReferences bool `yaml:"requirereferences,omitempty"`
		} `yaml:"manifests,omitempty"`
	} `yaml:"validation,omitempty"`

	// Cache configures the metadata cache tiers.
	Cache struct {
		// Memory configures the in-process tier.
		Memory struct {
			// Size is the maximum entry count per cache kind.
			Size int `yaml:"size,omitempty"`
		} `yaml:"memory,omitempty"`

		// Redis configures the optional shared tier.
		Redis struct {
			Enabled  bool   `yaml:"enabled,omitempty"`
			Addr     string `yaml:"addr,omitempty"`
			Password string `yaml:"password,omitempty"`
			DB       int    `yaml:"db,omitempty"`
		} `yaml:"redis,omitempty"`

		// TTL overrides per-kind entry lifetimes. Zero values select the
		// defaults.
		TTL struct {
			Manifest time.Duration `yaml:"manifest,omitempty"`
			Tags     time.Duration `yaml:"tags,omitempty"`
			Catalog  time.Duration `yaml:"catalog,omitempty"`
			BlobMeta time.Duration `yaml:"blobmeta,omitempty"`
		} `yaml:"ttl,omitempty"`
	} `yaml:"cache,omitempty"`
}

// Parameters defines a key-value parameters mapping.
type Parameters map[string]interface{}

// Storage defines the configuration for registry object storage. The yaml
// shape is a single-entry map from driver name to its parameters:
//
//	storage:
//	  filesystem:
//	    rootdirectory: /var/lib/aerugo
type Storage map[string]Parameters

// Type returns the storage driver type, such as filesystem or inmemory.
func (storage Storage) Type() string {
	for k := range storage {
		return k
	}
	return ""
}

// Parameters returns the Parameters map for a Storage configuration.
func (storage Storage) Parameters() Parameters {
	return storage[storage.Type()]
}

// Auth defines the configuration for registry authorization, shaped the
// same way as Storage: a single-entry map from backend name to options.
type Auth map[string]Parameters

// Type returns the auth type, such as htpasswd or none.
func (auth Auth) Type() string {
	for k := range auth {
		return k
	}
	return ""
}

// Parameters returns the Parameters map for an Auth configuration.
func (auth Auth) Parameters() Parameters {
	return auth[auth.Type()]
}

// currentVersion is the most recent configuration format version.
const currentVersion = "0.1"

// Parse parses an input configuration yaml document into a Configuration
// object, applying defaults and validating the result.
func Parse(rd io.Reader) (*Configuration, error) {
	in, err := io.ReadAll(rd)
	if err != nil {
		return nil, err
	}

	config := new(Configuration)
	if err := yaml.Unmarshal(in, config); err != nil {
		return nil, fmt.Errorf("configuration: %w", err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Default returns a configuration suitable for running without a
// configuration file: inmemory storage, no auth, info logging.
func Default() *Configuration {
	config := new(Configuration)
	config.Version = currentVersion
	config.Storage = Storage{"inmemory": Parameters{}}
	config.applyDefaults()
	return config
}

func (config *Configuration) applyDefaults() {
	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Formatter == "" {
		config.Log.Formatter = "text"
	}
	if config.HTTP.Addr == "" {
		config.HTTP.Addr = ":5000"
	}
	if config.HTTP.DrainTimeout == 0 {
		config.HTTP.DrainTimeout = 10 * time.Second
	}
	if config.Uploads.SessionTTL == 0 {
		config.Uploads.SessionTTL = 24 * time.Hour
	}
	if config.Cache.Memory.Size == 0 {
		config.Cache.Memory.Size = 1000
	}
}

// Validate reports configuration errors that would prevent startup.
func (config *Configuration) Validate() error {
	if config.Version != currentVersion {
		return fmt.Errorf("configuration: unsupported version %q, want %q", config.Version, currentVersion)
	}

	if len(config.Storage) != 1 {
		return fmt.Errorf("configuration: exactly one storage driver must be configured, got %d", len(config.Storage))
	}

	if len(config.Auth) > 1 {
		return fmt.Errorf("configuration: at most one auth backend may be configured, got %d", len(config.Auth))
	}

	switch strings.ToLower(config.Log.Level) {
	case "error", "warn", "warning", "info", "debug", "trace":
	default:
		return fmt.Errorf("configuration: invalid log level %q", config.Log.Level)
	}

	switch config.Log.Formatter {
	case "text", "json":
	default:
		return fmt.Errorf("configuration: invalid log formatter %q", config.Log.Formatter)
	}

	if config.HTTP.Prefix != "" {
		if !strings.HasPrefix(config.HTTP.Prefix, "/") || !strings.HasSuffix(config.HTTP.Prefix, "/") {
			return fmt.Errorf("configuration: http prefix %q must begin and end with '/'", config.HTTP.Prefix)
		}
	}

	if config.Cache.Redis.Enabled && config.Cache.Redis.Addr == "" {
		return fmt.Errorf("configuration: cache.redis.addr must be set when the redis tier is enabled")
	}

	return nil
}
