// Package workflow runs the download phase, the confirmation gate and the
// delete phase, in that order, each gated by its own setting.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/peeteer1245/placetel-recording-downloader/internal/audit"
	"github.com/peeteer1245/placetel-recording-downloader/internal/cache"
	"github.com/peeteer1245/placetel-recording-downloader/internal/config"
	"github.com/peeteer1245/placetel-recording-downloader/internal/cursor"
	"github.com/peeteer1245/placetel-recording-downloader/internal/ledger"
	"github.com/peeteer1245/placetel-recording-downloader/internal/models"
	"github.com/peeteer1245/placetel-recording-downloader/internal/storage"
	"github.com/sirupsen/logrus"
)

var ErrDownloadDirMissing = errors.New("download folder does not exist")

const deletePrompt = "All recordings have been downloaded. Verify the files, then confirm deleting them from the server"

type Client interface {
	cursor.PageSource
	Download(ctx context.Context, rec models.Recording) (io.ReadCloser, error)
	Delete(ctx context.Context, id int64) error
}

type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

type Summary struct {
	Downloaded int
	Deleted    int
	// Excluded recordings passed over in each phase.
	DownloadSkipped  int
	DeleteSkipped    int
	DeletionDeclined bool
}

type Runner struct {
	cfg       *config.Config
	client    Client
	audit     *audit.Log
	storage   storage.Storage
	ledger    ledger.Ledger
	confirmer Confirmer
	pages     *cache.PageCache
	logger    *logrus.Logger
	log       *logrus.Entry
	now       func() time.Time
}

type Option func(*Runner)

func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// WithPageCache shares an existing cache with the runner instead of
// starting from an empty one.
func WithPageCache(pages *cache.PageCache) Option {
	return func(r *Runner) {
		r.pages = pages
	}
}

func NewRunner(logger *logrus.Logger, cfg *config.Config, client Client, auditLog *audit.Log,
	store storage.Storage, l ledger.Ledger, confirmer Confirmer, opts ...Option) *Runner {
	r := &Runner{
		cfg:       cfg,
		client:    client,
		audit:     auditLog,
		storage:   store,
		ledger:    l,
		confirmer: confirmer,
		logger:    logger,
		log:       logger.WithField("component", "workflow"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.pages == nil {
		r.pages = cache.NewPageCache(logger)
	}
	return r
}

func (r *Runner) Run(ctx context.Context) (Summary, error) {
	var summary Summary

	if !r.cfg.DoDownload && !r.cfg.DoDelete {
		r.log.Warn("Neither DO_DOWNLOAD nor DO_DELETE is enabled, nothing to do")
		return summary, nil
	}

	if r.cfg.DoDownload {
		if err := CheckDownloadFolder(ctx, r.logger, r.cfg, r.storage); err != nil {
			return summary, err
		}

		if err := r.downloadAll(ctx, &summary); err != nil {
			return summary, err
		}
	}

	if r.cfg.DoDownload && r.cfg.DoDelete {
		ok, err := r.confirmer.Confirm(ctx, deletePrompt)
		if err != nil {
			return summary, fmt.Errorf("confirm deletion: %w", err)
		}
		if !ok {
			r.log.Info("Deletion not confirmed, leaving recordings on the server")
			summary.DeletionDeclined = true
			return summary, nil
		}
	}

	if r.cfg.DoDelete {
		if err := r.deleteAll(ctx, &summary); err != nil {
			return summary, err
		}
	}

	r.log.WithFields(logrus.Fields{
		"downloaded":       summary.Downloaded,
		"deleted":          summary.Deleted,
		"download_skipped": summary.DownloadSkipped,
		"delete_skipped":   summary.DeleteSkipped,
	}).Info("Run complete")
	return summary, nil
}

// CheckDownloadFolder is the precondition of the download phase. Callers
// run it before opening anything that talks to the network.
func CheckDownloadFolder(ctx context.Context, logger *logrus.Logger, cfg *config.Config, store storage.Storage) error {
	if err := store.Check(ctx); err != nil {
		logger.WithField("component", "workflow").WithError(err).
			WithField("download_folder", cfg.DownloadFolder).
			Error("Download folder does not exist, aborting")
		return fmt.Errorf("%w: %s: %v", ErrDownloadDirMissing, cfg.DownloadFolder, err)
	}
	return nil
}

func (r *Runner) downloadAll(ctx context.Context, summary *Summary) error {
	log := r.log.WithField("phase", "download")
	c := cursor.New(r.logger, r.client, r.pages, cursor.WithClock(r.now))

	number := 0
	return cursor.Each(ctx, c, func(rec models.Recording) error {
		if r.cfg.IsExcluded(rec.ID) {
			summary.DownloadSkipped++
			log.WithField("id", rec.ID).Debug("Skipping excluded recording")
			return nil
		}

		number++
		name := FileName(rec)
		log.WithFields(logrus.Fields{
			"number": number,
			"id":     rec.ID,
			"file":   name,
		}).Info("Downloading recording")

		body, err := r.client.Download(ctx, rec)
		if err != nil {
			return err
		}
		location, err := r.storage.Put(ctx, name, body)
		body.Close()
		if err != nil {
			return r.fatal(fmt.Errorf("store recording %d: %w", rec.ID, err))
		}
		summary.Downloaded++

		if r.cfg.DoWriteDownloadedList {
			entry := models.NewLedgerEntry(models.LedgerDownloaded, rec, location, r.now())
			if err := r.ledger.Record(ctx, entry); err != nil {
				return r.fatal(fmt.Errorf("record download of %d: %w", rec.ID, err))
			}
		}
		return nil
	})
}

func (r *Runner) deleteAll(ctx context.Context, summary *Summary) error {
	log := r.log.WithField("phase", "delete")
	c := cursor.New(r.logger, r.client, r.pages, cursor.WithClock(r.now))

	number := 0
	return cursor.Each(ctx, c, func(rec models.Recording) error {
		if r.cfg.IsExcluded(rec.ID) {
			summary.DeleteSkipped++
			log.WithField("id", rec.ID).Debug("Skipping excluded recording")
			return nil
		}

		number++
		log.WithFields(logrus.Fields{
			"number": number,
			"id":     rec.ID,
			"time":   rec.Time.String(),
		}).Info("Deleting recording")

		if err := r.client.Delete(ctx, rec.ID); err != nil {
			return err
		}
		summary.Deleted++

		if r.cfg.DoWriteDeletedList {
			entry := models.NewLedgerEntry(models.LedgerDeleted, rec, "", r.now())
			if err := r.ledger.Record(ctx, entry); err != nil {
				return r.fatal(fmt.Errorf("record deletion of %d: %w", rec.ID, err))
			}
		}
		return nil
	})
}

// fatal dumps the audit trail for failures the transport did not see.
func (r *Runner) fatal(err error) error {
	r.audit.Dump()
	return err
}

var nameReplacer = strings.NewReplacer("/", "_", "\\", "_")

// FileName is {time}_{direction}_{from}_{to}.mp3. Recordings that share all
// four fields map to the same name and overwrite each other.
func FileName(rec models.Recording) string {
	return nameReplacer.Replace(fmt.Sprintf("%s_%s_%s_%s", rec.Time.String(), rec.Direction, rec.From, rec.To)) + ".mp3"
}
