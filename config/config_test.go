package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadClientAppliesDefaultsForMissingFields(t *testing.T) {
	path := writeYAML(t, "downloads_dir: /data/downloads\n")

	c, err := LoadClient(path)
	require.NoError(t, err)
	assert.Equal(t, uint16(6881), c.Port)
	assert.Equal(t, "/data/downloads", c.DownloadsDir)
	assert.Equal(t, "torrents", c.TorrentsDir)
}

func TestLoadClientOverridesEveryField(t *testing.T) {
	path := writeYAML(t, `
port: 7000
logs_dir: /var/log/gorent
downloads_dir: /data/downloads
torrents_dir: /data/torrents
seed: true
`)

	c, err := LoadClient(path)
	require.NoError(t, err)
	assert.Equal(t, uint16(7000), c.Port)
	assert.Equal(t, "/var/log/gorent", c.LogsDir)
	assert.Equal(t, "/data/downloads", c.DownloadsDir)
	assert.Equal(t, "/data/torrents", c.TorrentsDir)
	assert.True(t, c.Seed)
}

func TestLoadClientMissingFileReturnsError(t *testing.T) {
	_, err := LoadClient(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	assert.Error(t, err)
}

func TestLoadTrackerAppliesDefaults(t *testing.T) {
	path := writeYAML(t, "listen_addr: 0.0.0.0:6969\n")

	tr, err := LoadTracker(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:6969", tr.ListenAddr)
	assert.Equal(t, 50, tr.NumWant)
}

func TestLoadTrackerRejectsMalformedYAML(t *testing.T) {
	path := writeYAML(t, "listen_addr: [unterminated\n")
	_, err := LoadTracker(path)
	assert.Error(t, err)
}
