package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/peeteer1245/placetel-recording-downloader/internal/cache"
	"github.com/peeteer1245/placetel-recording-downloader/internal/cursor"
	"github.com/peeteer1245/placetel-recording-downloader/internal/ledger"
	"github.com/peeteer1245/placetel-recording-downloader/internal/models"
	"github.com/peeteer1245/placetel-recording-downloader/internal/workflow"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Download, confirm, then delete past recordings",
	Long:  "Download every recording made before today, ask for confirmation, then delete the same recordings from Placetel. DO_DOWNLOAD and DO_DELETE select the phases.",
	Args:  cobra.NoArgs,
	RunE:  runRun,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List recordings made before today",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup()
		if err != nil {
			return err
		}

		c := cursor.New(a.logger, a.client, cache.NewPageCache(a.logger))
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTIME\tDIRECTION\tFROM\tTO")

		err = cursor.Each(cmd.Context(), c, func(rec models.Recording) error {
			_, err := fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", rec.ID, rec.Time, rec.Direction, rec.From, rec.To)
			return err
		})
		if flushErr := w.Flush(); err == nil {
			err = flushErr
		}
		return err
	},
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print the metadata of one recording",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid recording id %q: %w", args[0], err)
		}

		a, err := setup()
		if err != nil {
			return err
		}

		rec, err := a.client.GetRecording(cmd.Context(), id)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	},
}

func runRun(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	log := a.logger.WithField("component", "main")

	store, err := openStorage(a.logger, a.cfg)
	if err != nil {
		return err
	}
	if a.cfg.DoDownload {
		if err := workflow.CheckDownloadFolder(cmd.Context(), a.logger, a.cfg, store); err != nil {
			return err
		}
	}

	l, err := ledger.Open(a.logger, a.cfg)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer func() {
		if err := l.Close(); err != nil {
			log.WithError(err).Warn("Failed to close ledger")
		}
	}()

	confirmer := workflow.NewPromptConfirmer(cmd.InOrStdin(), cmd.OutOrStdout())
	runner := workflow.NewRunner(a.logger, a.cfg, a.client, a.client.Audit(), store, l, confirmer)

	summary, err := runner.Run(cmd.Context())
	if err != nil {
		log.WithError(err).Error("Run failed")
		return err
	}

	log.WithFields(logrus.Fields{
		"downloaded":        summary.Downloaded,
		"deleted":           summary.Deleted,
		"download_skipped":  summary.DownloadSkipped,
		"delete_skipped":    summary.DeleteSkipped,
		"deletion_declined": summary.DeletionDeclined,
	}).Info("Finished")
	return nil
}
