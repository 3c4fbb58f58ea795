package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/peeteer1245/placetel-recording-downloader/internal/audit"
	"github.com/peeteer1245/placetel-recording-downloader/internal/config"
	"github.com/peeteer1245/placetel-recording-downloader/internal/placetel"
	"github.com/peeteer1245/placetel-recording-downloader/internal/storage"
	"github.com/peeteer1245/placetel-recording-downloader/internal/workflow"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitSetup   = 2
)

var (
	configPath string
	logLevel   string
)

// configError marks failures that come from the settings rather than from
// the remote API or local I/O.
type configError struct {
	err error
}

func (e *configError) Error() string { return e.err.Error() }

func (e *configError) Unwrap() error { return e.err }

var rootCmd = &cobra.Command{
	Use:           "recordings",
	Short:         "Download and delete Placetel call recordings",
	Long:          "Download every call recording made before today, then delete them from Placetel after a manual confirmation.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runRun,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "settings file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level, overrides LOG_LEVEL")

	rootCmd.AddCommand(runCmd, listCmd, showCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	var cfgErr *configError
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, workflow.ErrDownloadDirMissing), errors.As(err, &cfgErr):
		return exitSetup
	default:
		return exitFailure
	}
}

type app struct {
	cfg    *config.Config
	logger *logrus.Logger
	client *placetel.Client
}

func setup() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, &configError{err: err}
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, &configError{err: err}
	}

	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	logger.AddHook(&fieldHook{fields: logrus.Fields{"run_id": uuid.NewString()}})

	auditLog := audit.NewLog(logger)
	return &app{
		cfg:    cfg,
		logger: logger,
		client: placetel.NewClient(logger, cfg, auditLog),
	}, nil
}

// newLogger falls back to info level and text output for unknown values.
func newLogger(level, format string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	if strings.EqualFold(format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	return logger
}

// fieldHook stamps fields onto every entry of the logger it is added to.
type fieldHook struct {
	fields logrus.Fields
}

func (h *fieldHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *fieldHook) Fire(entry *logrus.Entry) error {
	for k, v := range h.fields {
		if _, ok := entry.Data[k]; !ok {
			entry.Data[k] = v
		}
	}
	return nil
}

func openStorage(logger *logrus.Logger, cfg *config.Config) (storage.Storage, error) {
	if cfg.StorageBackend == config.StorageS3 {
		s3Storage, err := storage.NewS3Storage(logger, cfg)
		if err != nil {
			return nil, &configError{err: err}
		}
		return s3Storage, nil
	}
	return storage.NewLocalStorage(logger, cfg.DownloadFolder), nil
}
