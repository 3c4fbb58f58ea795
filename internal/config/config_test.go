package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestParseBool(t *testing.T) {
	for _, in := range []string{"true", "TRUE", "t", "T", "yes", "Yes", "y", "Y", " y "} {
		assert.True(t, ParseBool(in), in)
	}
	for _, in := range []string{"", "false", "1", "on", "no", "n", "enabled", "tru"} {
		assert.False(t, ParseBool(in), in)
	}
}

func TestParseIDSetDropsMalformedTokens(t *testing.T) {
	ids := ParseIDSet("42, 7,abc,,3.5, -1 ,99999999999")

	assert.Len(t, ids, 4)
	for _, id := range []int64{42, 7, -1, 99999999999} {
		assert.Contains(t, ids, id)
	}
	assert.Empty(t, ParseIDSet(""))
}

func TestDefaults(t *testing.T) {
	cfg := FromSource(NewSource(nil, nil))

	assert.False(t, cfg.DoDownload)
	assert.False(t, cfg.DoDelete)
	assert.Empty(t, cfg.ExcludeRecordingIDs)
	assert.Equal(t, DefaultListPageURL, cfg.ListPageURL)
	assert.Equal(t, DefaultGetRecordingURL, cfg.GetRecordingURL)
	assert.Equal(t, DefaultDeleteRecordingURL, cfg.DeleteRecordingURL)
	assert.Equal(t, StorageLocal, cfg.StorageBackend)
	assert.Equal(t, time.Duration(0), cfg.HTTPTimeout)
	assert.Equal(t, float64(0), cfg.RateLimit)
	assert.Equal(t, ".", cfg.ListFolder)
	assert.False(t, cfg.UsePostgres())
	require.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	content := `
AUTH_TOKEN: secret
DOWNLOAD_FOLDER: /srv/recordings
DO_DOWNLOAD: yes
DO_DELETE: true
DO_WRITE_DOWNLOADED_LIST: "n"
EXCLUDE_RECORDING_IDS: "42,43,nope"
RATE_LIMIT: 2.5
HTTP_TIMEOUT: 45s
UNKNOWN_KEY: whatever
nested:
  ignored: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.AuthToken)
	assert.Equal(t, "/srv/recordings", cfg.DownloadFolder)
	assert.True(t, cfg.DoDownload)
	assert.True(t, cfg.DoDelete)
	assert.False(t, cfg.DoWriteDownloadedList)
	assert.True(t, cfg.IsExcluded(42))
	assert.True(t, cfg.IsExcluded(43))
	assert.False(t, cfg.IsExcluded(44))
	assert.Equal(t, 2.5, cfg.RateLimit)
	assert.Equal(t, 45*time.Second, cfg.HTTPTimeout)
}

func TestLoadExclusionList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("EXCLUDE_RECORDING_IDS: [1, 2, x]\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.ExcludeRecordingIDs, 2)
	assert.True(t, cfg.IsExcluded(1))
	assert.True(t, cfg.IsExcluded(2))
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.NotNil(t, cfg)
}

func TestLoadRejectsUnparsableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("AUTH_TOKEN: [unterminated\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse settings")
}

func TestEnvironmentOverridesFile(t *testing.T) {
	src := NewSource(
		map[string]string{"AUTH_TOKEN": "from-file", "DO_DOWNLOAD": "no"},
		envMap(map[string]string{"AUTH_TOKEN": "from-env", "DO_DOWNLOAD": "Y", "DO_DELETE": ""}),
	)
	cfg := FromSource(src)

	assert.Equal(t, "from-env", cfg.AuthToken)
	assert.True(t, cfg.DoDownload)
	assert.False(t, cfg.DoDelete)
}

func TestMalformedNumbersFallBack(t *testing.T) {
	cfg := FromSource(NewSource(map[string]string{
		"RATE_LIMIT":   "fast",
		"HTTP_TIMEOUT": "forever",
	}, nil))

	assert.Equal(t, float64(0), cfg.RateLimit)
	assert.Equal(t, time.Duration(0), cfg.HTTPTimeout)
}

func TestValidate(t *testing.T) {
	cfg := FromSource(NewSource(map[string]string{"STORAGE_BACKEND": "S3"}, nil))
	require.ErrorContains(t, cfg.Validate(), "S3_BUCKET")

	cfg.S3Bucket = "bucket"
	require.NoError(t, cfg.Validate())

	cfg.StorageBackend = "ftp"
	require.ErrorContains(t, cfg.Validate(), "unknown STORAGE_BACKEND")

	cfg = FromSource(NewSource(map[string]string{"URL_LIST_PAGE": "https://x/recordings"}, nil))
	require.ErrorContains(t, cfg.Validate(), "{page}")
}
