package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grilobridge/grilobridge/internal/config"
	"github.com/grilobridge/grilobridge/internal/storage/s3"
	"github.com/grilobridge/grilobridge/pkg/errors"
)

const demoCatalog = `
id: demo
name: Demo
resolve: true
items:
  - id: rock
    title: Rock
    children:
      - id: "1"
        title: One
        mime: audio/mpeg
      - id: "2"
        title: Two
        mime: audio/mpeg
`

// writeConfig writes a catalog and a config serving it into a temp dir and
// returns the config path.
func writeConfig(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	catalog := filepath.Join(dir, "demo.yaml")
	require.NoError(t, os.WriteFile(catalog, []byte(demoCatalog), 0600))

	cfg := fmt.Sprintf(`
global:
  log_level: ERROR
  log_file: %s
metrics:
  enabled: false
providers:
  catalogs:
    - %s
`, filepath.Join(dir, "grilobridge.log"), catalog)

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	cfg, err := loadConfig(writeConfig(t))
	require.NoError(t, err)
	assert.Equal(t, "ERROR", cfg.Global.LogLevel)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Len(t, cfg.Providers.Catalogs, 1)
	assert.Equal(t, 3, cfg.Providers.OpenAttempts)
	assert.Equal(t, 30*time.Second, cfg.API.BrowseTimeout)

	_, err = loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("plugin:\n  browse_resolution: slow\n"), 0600))
	_, err = loadConfig(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestS3Config(t *testing.T) {
	t.Parallel()

	cfg := s3Config(config.S3ProviderConfig{Bucket: "music", Prefix: "albums"})
	assert.Equal(t, "music", cfg.Bucket)
	assert.Equal(t, "us-east-1", cfg.Region)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, int32(1000), cfg.PageSize)
	assert.Equal(t, "s3-music", cfg.ProviderID())

	cfg = s3Config(config.S3ProviderConfig{
		ID:             "tapes",
		Bucket:         "music",
		Region:         "eu-west-1",
		Endpoint:       "http://localhost:9000",
		ForcePathStyle: true,
		MaxRetries:     7,
		Resolve:        true,
	})
	assert.Equal(t, "tapes", cfg.ProviderID())
	assert.Equal(t, "eu-west-1", cfg.Region)
	assert.Equal(t, "http://localhost:9000", cfg.Endpoint)
	assert.True(t, cfg.ForcePathStyle)
	assert.Equal(t, 7, cfg.MaxRetries)
	assert.True(t, cfg.Resolve)
}

func TestApp_BucketStats(t *testing.T) {
	t.Parallel()

	p, err := s3.NewProvider(nil, s3Config(config.S3ProviderConfig{Bucket: "media"}), nil)
	require.NoError(t, err)
	a := &app{buckets: map[string]*s3.Provider{p.ID(): p}}

	stats, ok := a.bucketStats(p.ID())
	require.True(t, ok)
	assert.Equal(t, "closed", stats["breaker"])
	assert.EqualValues(t, 0, stats["requests"])
	assert.NotContains(t, stats, "last_error")

	_, ok = a.bucketStats("demo")
	assert.False(t, ok)
	assert.Equal(t, []string{p.ID()}, a.Buckets())
	assert.NoError(t, a.checkSource(context.Background(), "demo"))
}

func TestBrowseCommand(t *testing.T) {
	t.Parallel()

	path := writeConfig(t)

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{name: "root", args: []string{"demo"}, want: []string{"demo::Box:rock"}},
		{name: "box", args: []string{"demo", "demo::Box:rock"}, want: []string{"demo::Audio:1", "demo::Audio:2"}},
		{name: "window", args: []string{"demo", "demo::Box:rock", "--skip", "1", "--count", "1"}, want: []string{"demo::Audio:2"}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			args := append([]string{"--config", path, "browse", "-o", "json"}, tt.args...)
			out, err := run(t, args...)
			require.NoError(t, err)

			var got listing
			require.NoError(t, json.Unmarshal([]byte(out), &got))
			assert.Equal(t, "demo", got.Source)
			ids := make([]string, 0, len(got.Results))
			for _, r := range got.Results {
				ids = append(ids, r.ObjectID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestBrowseCommand_Errors(t *testing.T) {
	t.Parallel()

	path := writeConfig(t)

	_, err := run(t, "--config", path, "browse", "nope")
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))

	_, err = run(t, "--config", path, "browse", "demo", "nonsense")
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidIdentifier))

	_, err = run(t, "--config", path, "browse", "demo", "-o", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
}

func TestMetadataCommand(t *testing.T) {
	t.Parallel()

	path := writeConfig(t)

	out, err := run(t, "--config", path, "metadata", "demo::Audio:1", "-k", "title", "-o", "json")
	require.NoError(t, err)

	var got entry
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "demo::Audio:1", got.ObjectID)
	assert.Equal(t, "One", got.Metadata["title"])

	_, err = run(t, "--config", path, "metadata", "no-separator")
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidIdentifier))
}

func TestSourcesCommand(t *testing.T) {
	t.Parallel()

	out, err := run(t, "--config", writeConfig(t), "sources")
	require.NoError(t, err)
	assert.Contains(t, out, "id: demo")
	assert.Contains(t, out, "demo::")
	assert.Contains(t, out, "browse-resolution")
}

func TestMountCommand_NoMountPoint(t *testing.T) {
	t.Parallel()

	_, err := run(t, "--config", writeConfig(t), "mount")
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidConfig))
}

func TestVersion(t *testing.T) {
	t.Parallel()

	for _, args := range [][]string{{"version"}, {"--version"}} {
		out, err := run(t, args...)
		require.NoError(t, err)
		assert.Contains(t, out, Version)
		assert.Contains(t, out, "Go version")
	}
}
