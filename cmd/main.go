package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"github.com/MimeLyc/mineru-batch/internal/artifact"
	"github.com/MimeLyc/mineru-batch/internal/config"
	"github.com/MimeLyc/mineru-batch/internal/failure"
	"github.com/MimeLyc/mineru-batch/internal/library"
	"github.com/MimeLyc/mineru-batch/internal/mineru"
	"github.com/MimeLyc/mineru-batch/internal/retry"
	"github.com/MimeLyc/mineru-batch/internal/service"
	"github.com/MimeLyc/mineru-batch/pkg/log"
)

const (
	exitOK       = 0
	exitFailures = 1
	exitConfig   = 2
)

type scheduler interface {
	Schedule(ctx context.Context) error
}

type cronEngine interface {
	Start()
	Stop() context.Context
}

type batchRunner interface {
	Run(ctx context.Context, docs []library.Document) (*service.Report, error)
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Load(args, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitConfig
	}

	closeLog, err := setupLogging(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitConfig
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch, err := newOrchestrator(cfg)
	if err != nil {
		log.Error("Failed to initialize: %v", err)
		return exitConfig
	}

	scanner := library.NewScanner()
	selector := library.Selector{
		URL:       cfg.Input.URL,
		File:      cfg.Input.File,
		Dir:       cfg.Input.Dir,
		URLsFile:  cfg.Input.URLsFile,
		Recursive: cfg.Input.Recursive,
	}
	discover := func() ([]library.Document, error) {
		return scanner.Discover(selector)
	}

	if cfg.Run.Schedule != "" {
		c := cron.New()
		svc := service.NewScheduledService(orch, discover, cfg.Run.Schedule, c)
		if err := runWithComponents(ctx, svc, c); err != nil {
			log.Error("Scheduler failed: %v", err)
			return exitConfig
		}
		return exitOK
	}

	return runBatch(ctx, cfg.Run, discover, orch)
}

func setupLogging(cfg config.LogConfig) (func(), error) {
	level := log.ParseLevel(cfg.Level)
	if cfg.File == "" {
		log.InitLogger(level)
		return func() {}, nil
	}
	fl, err := log.NewFileLogger(cfg.File, level)
	if err != nil {
		return nil, err
	}
	log.SetLogger(fl.Logger)
	return func() { _ = fl.Close() }, nil
}

func newOrchestrator(cfg *config.Config) (*service.Orchestrator, error) {
	policy := retry.Default("request")
	policy.MaxAttempts = cfg.API.MaxAttempts

	client, err := mineru.NewClient(&mineru.Config{
		BaseURL:       cfg.API.BaseURL,
		Token:         cfg.API.Token,
		Timeout:       cfg.API.Timeout,
		UploadTimeout: cfg.API.UploadTimeout,
		Options: mineru.Options{
			ModelVersion:  cfg.Convert.Model,
			EnableFormula: cfg.Convert.EnableFormula,
			EnableTable:   cfg.Convert.EnableTable,
			IsOCR:         cfg.Convert.OCR,
			Language:      cfg.Convert.Language,
		},
		Retry: policy,
	})
	if err != nil {
		return nil, err
	}

	downloads := retry.Default("download")
	downloads.MaxAttempts = cfg.API.MaxAttempts

	return service.NewOrchestrator(service.Options{
		OutputDir:     cfg.Output.Dir,
		Concurrency:   cfg.Run.Concurrency,
		BatchSize:     cfg.Run.BatchSize,
		Resume:        cfg.Output.Resume,
		PollInterval:  cfg.Run.PollInterval,
		JobTimeout:    cfg.Run.JobTimeout,
		DownloadRetry: downloads,
	}, client, artifact.NewMaterializer(cfg.Output.Dir, nil), library.NewPreflighter(library.DefaultLimits)), nil
}

// runBatch converts the discovered documents once and maps the result to
// an exit code.
func runBatch(ctx context.Context, cfg config.RunConfig, discover service.DiscoverFunc, runner batchRunner) int {
	if cfg.BatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.BatchTimeout)
		defer cancel()
	}

	docs, err := discover()
	if err != nil {
		log.Error("Failed to discover documents: %v", err)
		return exitConfig
	}
	if len(docs) == 0 {
		log.Warn("No documents to convert")
		return exitOK
	}
	log.Info("Found %d document(s)", len(docs))

	report, err := runner.Run(ctx, docs)
	if err != nil && failure.IsBatchFatal(err) {
		return exitConfig
	}
	if err != nil || report.HasFailures() {
		return exitFailures
	}
	return exitOK
}

// runWithComponents registers the scheduled job, runs cron until ctx is
// done, then waits for a running job to finish.
func runWithComponents(ctx context.Context, svc scheduler, c cronEngine) error {
	if err := svc.Schedule(ctx); err != nil {
		return err
	}
	c.Start()
	log.Info("Scheduler started, press Ctrl+C to stop")

	<-ctx.Done()
	log.Info("Shutting down scheduler")
	<-c.Stop().Done()
	return nil
}
