// Command caseworker runs the durable job-queue worker pool that drives
// a Case through OCR, classification, extraction, feature assembly,
// eligibility scoring, and report generation (spec.md §4.2-§4.8, §5).
// Tuning knobs live in an optional TOML file (internal/config.WorkerFile),
// the same env+file split the teacher's root config.Load applies.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"casepilot/internal/classify"
	"casepilot/internal/config"
	"casepilot/internal/enrich/bankstatement"
	"casepilot/internal/enrich/gstin"
	"casepilot/internal/jobs"
	"casepilot/internal/observability/logging"
	"casepilot/internal/observability/otelinit"
	"casepilot/internal/ocr"
	"casepilot/internal/ratelimit"
	"casepilot/internal/reporting/export"
	"casepilot/internal/storage"
	"casepilot/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "casepilot-caseworker:", err)
		os.Exit(1)
	}
}

func run() error {
	workerFilePath := flag.String("config", "./casepilot-data/worker.toml", "path to the worker tuning file")
	concurrency := flag.Int("concurrency", 0, "override worker concurrency (0 = use config file)")
	flag.Parse()

	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	wf, err := config.LoadWorkerFile(*workerFilePath)
	if err != nil {
		return fmt.Errorf("load worker file: %w", err)
	}
	if *concurrency > 0 {
		wf.Concurrency = *concurrency
	}

	logFile := cfg.LogFile
	if logFile == "" {
		logFile = wf.LogFile
	}
	logger := logging.Setup("casepilot-caseworker", cfg.Env, logFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := otelinit.Init(ctx, otelinit.Config{
		ServiceName: "casepilot-caseworker",
		Environment: cfg.Env,
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.OTLPInsecure,
		Headers:     cfg.OTLPHeaders,
		Metrics:     cfg.Metrics,
		Traces:      cfg.Traces,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	db, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	if err := store.AutoMigrate(db); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}

	blobs, err := storage.New(cfg.BlobRoot)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	ocrClient, err := ocr.NewClient(ocr.Config{
		BaseURL: cfg.OCREngineURL,
		APIKey:  cfg.OCREngineAPIKey,
		Timeout: cfg.OCRTimeout,
	})
	if err != nil {
		return fmt.Errorf("ocr client: %w", err)
	}

	limiters := ratelimit.New(cfg.RateLimitPerMinute)

	var gstinClient *gstin.Client
	if cfg.GSTINProviderURL != "" {
		gstinClient, err = gstin.NewClient(gstin.Config{
			BaseURL: cfg.GSTINProviderURL,
			APIKey:  cfg.GSTINProviderAPIKey,
			Timeout: cfg.EnricherTimeout,
			Limiter: limiters.For("gstin"),
		})
		if err != nil {
			return fmt.Errorf("gstin client: %w", err)
		}
	}

	var bankClient *bankstatement.Client
	if cfg.BankAnalyzerURL != "" {
		bankClient, err = bankstatement.NewClient(bankstatement.Config{
			BaseURL: cfg.BankAnalyzerURL,
			APIKey:  cfg.BankAnalyzerAPIKey,
			Timeout: cfg.EnricherTimeout,
			Limiter: limiters.For("bankstatement"),
		})
		if err != nil {
			return fmt.Errorf("bankstatement client: %w", err)
		}
	}

	// No example repo ships a trained classification model; the dispatch
	// table falls back to filename+keyword scoring when Model is nil
	// (classify.Classify, spec.md §4.3).
	var model classify.Model

	stages := &jobs.Stages{
		DB:            db,
		Blobs:         blobs,
		OCR:           ocrClient,
		Model:         model,
		GSTIN:         gstinClient,
		BankStatement: bankClient,
	}

	pollInterval := time.Duration(wf.PollIntervalMS) * time.Millisecond
	if cfg.JobPollInterval > 0 {
		pollInterval = cfg.JobPollInterval
	}

	retryCfg := jobs.Config{
		MaxAttempts:   cfg.JobMaxAttempts,
		BackoffBase:   cfg.JobBackoffBase,
		BackoffFactor: cfg.JobBackoffFactor,
	}

	var wg sync.WaitGroup
	for i := 0; i < wf.Concurrency; i++ {
		worker := jobs.NewWorker(jobs.WorkerConfig{
			DB:           db,
			Dispatcher:   stages.Dispatcher(),
			PollInterval: pollInterval,
			JobTimeout:   cfg.EnricherTimeout,
			Retry:        retryCfg,
			Logger:       logger,
		})
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			logger.Info("worker started", "worker", n)
			worker.Run(ctx)
			logger.Info("worker stopped", "worker", n)
		}(i)
	}

	exportScheduler := export.NewScheduler(export.SchedulerConfig{
		DB:        db,
		OutputDir: cfg.ExportDir,
		RunHour:   cfg.ExportRunHour,
		RunMinute: cfg.ExportRunMinute,
		Logger:    logger,
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		exportScheduler.Start(ctx)
	}()

	logger.Info("casepilot-caseworker running", "concurrency", wf.Concurrency)
	wg.Wait()
	return nil
}
