package configuration

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const configYamlV01 = `
version: "0.1"
log:
  level: debug
  formatter: json
  fields:
    service: registry
    environment: staging
storage:
  filesystem:
    rootdirectory: /tmp/registry
auth:
  htpasswd:
    realm: registry
    path: /etc/registry/htpasswd
http:
  addr: :5100
  prefix: /registry/
  draintimeout: 30s
uploads:
  sessionttl: 2h
validation:
  manifests:
    requirereferences: true
cache:
  memory:
    size: 500
  redis:
    enabled: true
    addr: localhost:6379
    db: 2
  ttl:
    manifest: 10m
    tags: 1m
`

func TestParse(t *testing.T) {
	config, err := Parse(strings.NewReader(configYamlV01))
	require.NoError(t, err)

	require.Equal(t, "0.1", config.Version)
	require.Equal(t, "debug", config.Log.Level)
	require.Equal(t, "json", config.Log.Formatter)
	require.Equal(t, "registry", config.Log.Fields["service"])

	require.Equal(t, "filesystem", config.Storage.Type())
	require.Equal(t, "/tmp/registry", config.Storage.Parameters()["rootdirectory"])

	require.Equal(t, "htpasswd", config.Auth.Type())
	require.Equal(t, "registry", config.Auth.Parameters()["realm"])

	require.Equal(t, ":5100", config.HTTP.Addr)
	require.Equal(t, "/registry/", config.HTTP.Prefix)
	require.Equal(t, 30*time.Second, config.HTTP.DrainTimeout)

	require.Equal(t, 2*time.Hour, config.Uploads.SessionTTL)
	require.True(t, config.Validation.Manifests.RequireReferences)

	require.Equal(t, 500, config.Cache.Memory.Size)
	require.True(t, config.Cache.Redis.Enabled)
	require.Equal(t, "localhost:6379", config.Cache.Redis.Addr)
	require.Equal(t, 2, config.Cache.Redis.DB)
	require.Equal(t, 10*time.Minute, config.Cache.TTL.Manifest)
	require.Equal(t, time.Minute, config.Cache.TTL.Tags)
	require.Zero(t, config.Cache.TTL.Catalog)
}

func TestParseDefaults(t *testing.T) {
	config, err := Parse(strings.NewReader(`
version: "0.1"
storage:
  inmemory: {}
`))
	require.NoError(t, err)

	require.Equal(t, "info", config.Log.Level)
	require.Equal(t, "text", config.Log.Formatter)
	require.Equal(t, ":5000", config.HTTP.Addr)
	require.Equal(t, 10*time.Second, config.HTTP.DrainTimeout)
	require.Equal(t, 24*time.Hour, config.Uploads.SessionTTL)
	require.Equal(t, 1000, config.Cache.Memory.Size)
	require.False(t, config.Cache.Redis.Enabled)
	require.Empty(t, config.Auth.Type())
}

func TestParseErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		yaml string
	}{
		{"unsupported version", "version: \"7\"\nstorage:\n  inmemory: {}\n"},
		{"no storage driver", "version: \"0.1\"\n"},
		{
			"two storage drivers",
			"version: \"0.1\"\nstorage:\n  inmemory: {}\n  filesystem:\n    rootdirectory: /tmp\n",
		},
		{"bad log level", "version: \"0.1\"\nlog:\n  level: loud\nstorage:\n  inmemory: {}\n"},
		{"bad prefix", "version: \"0.1\"\nhttp:\n  prefix: registry\nstorage:\n  inmemory: {}\n"},
		{
			"redis without addr",
			"version: \"0.1\"\nstorage:\n  inmemory: {}\ncache:\n  redis:\n    enabled: true\n",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tc.yaml))
			require.Error(t, err)
		})
	}
}
