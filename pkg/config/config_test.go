package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(file, []byte(content), 0644))
	return file
}

func TestReadConfig(t *testing.T) {
	file := writeConfig(t, `
pool_size: 3
poll_timeout: 250ms
backend: fsnotify
resync: "@every 5m"
metrics_address: ":9102"
files:
  - path: /etc/app/whitelist.txt
    format: lines
  - path: /etc/app/routes.yaml
    format: yaml
    skip_unchanged: true
`)

	c, err := ReadConfig(file)
	require.NoError(t, err)

	assert.Equal(t, 3, c.PoolSize)
	assert.Equal(t, 250*time.Millisecond, c.PollTimeout)
	assert.Equal(t, "fsnotify", c.Backend)
	assert.Equal(t, "@every 5m", c.Resync)
	assert.Equal(t, ":9102", c.MetricsAddress)
	assert.Equal(t, []FileConfig{
		{Path: "/etc/app/whitelist.txt", Format: FormatLines},
		{Path: "/etc/app/routes.yaml", Format: FormatYAML, SkipUnchanged: true},
	}, c.Files)
}

func TestReadConfig_Defaults(t *testing.T) {
	file := writeConfig(t, `
files:
  - path: /etc/app/weights.json
    format: json
`)

	c, err := ReadConfig(file)
	require.NoError(t, err)

	assert.Equal(t, DefaultPoolSize, c.PoolSize)
	assert.Equal(t, DefaultPollTimeout, c.PollTimeout)
	assert.Equal(t, DefaultBackend, c.Backend)
}

func TestReadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "no files", content: "pool_size: 2\n"},
		{name: "unknown backend", content: "backend: kqueue\nfiles:\n  - path: /a\n    format: json\n"},
		{name: "unknown format", content: "files:\n  - path: /a\n    format: toml\n"},
		{name: "missing format", content: "files:\n  - path: /a\n"},
		{name: "empty path", content: "files:\n  - format: json\n"},
		{name: "duplicate path", content: "files:\n  - path: /a\n    format: json\n  - path: /a\n    format: yaml\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadConfig(writeConfig(t, tt.content))
			require.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestReadConfig_Errors(t *testing.T) {
	_, err := ReadConfig(filepath.Join(t.TempDir(), "missing.yml"))
	require.ErrorIs(t, err, os.ErrNotExist)

	_, err = ReadConfig(writeConfig(t, "files: [\n"))
	require.Error(t, err)
}

func TestReadConfig_SampleFilesExist(t *testing.T) {
	root := filepath.Join("..", "..")

	c, err := ReadConfig(filepath.Join(root, "config.yml"))
	require.NoError(t, err)
	require.NotEmpty(t, c.Files)

	for _, f := range c.Files {
		require.FileExists(t, filepath.Join(root, f.Path))
	}
}
