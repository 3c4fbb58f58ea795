// Package ledger keeps the lists of downloaded and deleted recordings.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/peeteer1245/placetel-recording-downloader/internal/config"
	"github.com/peeteer1245/placetel-recording-downloader/internal/database"
	"github.com/peeteer1245/placetel-recording-downloader/internal/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type Ledger interface {
	Record(ctx context.Context, entry models.LedgerEntry) error
	Close() error
}

// Open picks the ledger for cfg: nothing when no list is enabled, Postgres
// when POSTGRES_HOST is set, JSON lines files in LIST_FOLDER otherwise.
func Open(logger *logrus.Logger, cfg *config.Config) (Ledger, error) {
	if !cfg.DoWriteDownloadedList && !cfg.DoWriteDeletedList {
		return Nop{}, nil
	}
	if cfg.UsePostgres() {
		db, err := database.NewPostgresDB(logger, database.PostgresConfigFrom(cfg))
		if err != nil {
			return nil, err
		}
		return NewDBLedger(db), nil
	}
	return NewFileLedger(logger, cfg.ListFolder), nil
}

type Nop struct{}

func (Nop) Record(context.Context, models.LedgerEntry) error { return nil }

func (Nop) Close() error { return nil }

type FileLedger struct {
	mu  sync.Mutex
	dir string
	log *logrus.Entry
}

func NewFileLedger(logger *logrus.Logger, dir string) *FileLedger {
	return &FileLedger{
		dir: dir,
		log: logger.WithFields(logrus.Fields{
			"component": "file_ledger",
			"dir":       dir,
		}),
	}
}

func (l *FileLedger) Path(action models.LedgerAction) string {
	return filepath.Join(l.dir, string(action)+".jsonl")
}

func (l *FileLedger) Record(_ context.Context, entry models.LedgerEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode ledger entry: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	path := l.Path(entry.Action)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger %s: %w", path, err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("append ledger %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync ledger %s: %w", path, err)
	}

	l.log.WithFields(logrus.Fields{
		"recording_id": entry.RecordingID,
		"action":       entry.Action,
	}).Debug("Ledger entry written")
	return f.Close()
}

func (l *FileLedger) Close() error { return nil }

type DBLedger struct {
	db *gorm.DB
}

func NewDBLedger(db *gorm.DB) *DBLedger {
	return &DBLedger{db: db}
}

func (l *DBLedger) Record(ctx context.Context, entry models.LedgerEntry) error {
	if err := l.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("save ledger entry: %w", err)
	}
	return nil
}

func (l *DBLedger) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
