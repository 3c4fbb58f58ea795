package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peeteer1245/placetel-recording-downloader/internal/config"
)

func TestLocalCheck(t *testing.T) {
	logger, _ := test.NewNullLogger()
	dir := t.TempDir()

	require.NoError(t, NewLocalStorage(logger, dir).Check(context.Background()))

	err := NewLocalStorage(logger, filepath.Join(dir, "missing")).Check(context.Background())
	require.Error(t, err)
	assert.True(t, os.IsNotExist(err))

	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	require.ErrorContains(t, NewLocalStorage(logger, file).Check(context.Background()), "not a directory")

	require.ErrorContains(t, NewLocalStorage(logger, "").Check(context.Background()), "not configured")
}

func TestLocalCheckNeverCreatesDirectory(t *testing.T) {
	logger, _ := test.NewNullLogger()
	missing := filepath.Join(t.TempDir(), "missing")

	_ = NewLocalStorage(logger, missing).Check(context.Background())

	_, err := os.Stat(missing)
	assert.True(t, os.IsNotExist(err))
}

func TestLocalPutOverwrites(t *testing.T) {
	logger, _ := test.NewNullLogger()
	dir := t.TempDir()
	s := NewLocalStorage(logger, dir)

	loc, err := s.Put(context.Background(), "a.mp3", strings.NewReader("first"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "a.mp3"), loc)

	_, err = s.Put(context.Background(), "a.mp3", strings.NewReader("second"))
	require.NoError(t, err)

	data, err := os.ReadFile(loc)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files are left behind")
}

func TestLocalPutCancelledLeavesNoFile(t *testing.T) {
	logger, _ := test.NewNullLogger()
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLocalStorage(logger, dir).Put(ctx, "a.mp3", strings.NewReader("data"))
	require.ErrorIs(t, err, context.Canceled)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]string
	heads   int
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodHead:
		f.heads++
		if r.URL.Path != "/recordings" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = string(body)
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newS3(t *testing.T, bucket string) (*S3Storage, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: make(map[string]string)}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	cfg := config.FromSource(config.NewSource(map[string]string{
		"STORAGE_BACKEND":       "s3",
		"S3_BUCKET":             bucket,
		"S3_ENDPOINT":           srv.URL,
		"AWS_ACCESS_KEY_ID":     "key",
		"AWS_SECRET_ACCESS_KEY": "secret",
		"DOWNLOAD_FOLDER":       "/calls/",
	}, nil))

	logger, _ := test.NewNullLogger()
	s, err := NewS3Storage(logger, cfg)
	require.NoError(t, err)
	return s, fake
}

func TestS3Put(t *testing.T) {
	s, fake := newS3(t, "recordings")

	require.NoError(t, s.Check(context.Background()))

	loc, err := s.Put(context.Background(), "a.mp3", strings.NewReader("audio"))
	require.NoError(t, err)
	assert.Equal(t, "s3://recordings/calls/a.mp3", loc)
	assert.Equal(t, "audio", fake.objects["/recordings/calls/a.mp3"])
}

func TestS3CheckMissingBucket(t *testing.T) {
	s, fake := newS3(t, "absent")

	require.Error(t, s.Check(context.Background()))
	assert.Equal(t, 1, fake.heads)
}

func TestS3KeyWithoutPrefix(t *testing.T) {
	s := &S3Storage{bucket: "b"}
	assert.Equal(t, "x.mp3", s.key("x.mp3"))
	s.prefix = "calls/2024"
	assert.Equal(t, "calls/2024/x.mp3", s.key("x.mp3"))
}
