package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"github.com/sirupsen/logrus"
)

type LocalStorage struct {
	dir string
	log *logrus.Entry
}

func NewLocalStorage(logger *logrus.Logger, dir string) *LocalStorage {
	return &LocalStorage{
		dir: dir,
		log: logger.WithFields(logrus.Fields{
			"component": "local_storage",
			"dir":       dir,
		}),
	}
}

// Check requires the directory to exist already. It is never created.
func (s *LocalStorage) Check(_ context.Context) error {
	if s.dir == "" {
		return fmt.Errorf("download folder is not configured")
	}
	info, err := os.Stat(s.dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", s.dir)
	}
	return nil
}

// Put replaces any existing file of the same name atomically.
func (s *LocalStorage) Put(ctx context.Context, name string, content io.Reader) (string, error) {
	path := filepath.Join(s.dir, name)

	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return "", fmt.Errorf("create pending file %s: %w", path, err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			s.log.WithError(err).Debug("Cleanup pending file")
		}
	}()

	n, err := io.Copy(pending, &contextReader{ctx: ctx, r: content})
	if err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return "", fmt.Errorf("replace %s: %w", path, err)
	}

	s.log.WithFields(logrus.Fields{
		"file":  name,
		"bytes": n,
	}).Debug("Stored recording")
	return path, nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
