// Command api serves casepilot's HTTP surface: case intake, document
// upload, extraction, eligibility scoring, reports, and the copilot query
// endpoint (spec.md §6). Wiring follows the teacher's services/otc-gateway
// main: load config, open the store, construct collaborators, build the
// router, serve.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"casepilot/internal/api"
	"casepilot/internal/config"
	"casepilot/internal/copilot"
	"casepilot/internal/copilot/llm"
	"casepilot/internal/copilot/whatsapp"
	"casepilot/internal/ingest"
	"casepilot/internal/observability/logging"
	"casepilot/internal/observability/otelinit"
	"casepilot/internal/ocr"
	"casepilot/internal/ratelimit"
	"casepilot/internal/storage"
	"casepilot/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "casepilot-api:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	logger := logging.Setup("casepilot-api", cfg.Env, cfg.LogFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := otelinit.Init(ctx, otelinit.Config{
		ServiceName: "casepilot-api",
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
	if err := store.AutoMigrateCounter(db); err != nil {
		return fmt.Errorf("automigrate counter: %w", err)
	}

	blobs, err := storage.New(cfg.BlobRoot)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	limiters := ratelimit.New(cfg.RateLimitPerMinute)

	ocrClient, err := ocr.NewClient(ocr.Config{
		BaseURL: cfg.OCREngineURL,
		APIKey:  cfg.OCREngineAPIKey,
		Timeout: cfg.OCRTimeout,
	})
	if err != nil {
		logger.Warn("ocr client unconfigured", "error", err)
	}

	llmClient := llm.NewClient(llm.Config{
		BaseURL: cfg.LLMProviderBaseURL,
		APIKey:  cfg.LLMProviderAPIKey,
		Timeout: cfg.LLMTimeout,
		Limiter: limiters.For("llm"),
	})
	copilotHandler := copilot.NewHandler(db, llmClient)
	copilotHandler.ConversationWindow = cfg.ConversationWindow

	ingester := ingest.New(db, blobs, ingest.Limits{
		MaxFileBytes: cfg.MaxUploadFileBytes,
		MaxCaseBytes: cfg.MaxUploadCaseBytes,
	})

	var whatsappClient *whatsapp.Client
	if cfg.WhatsAppGatewayURL != "" {
		whatsappClient, err = whatsapp.NewClient(whatsapp.Config{
			BaseURL: cfg.WhatsAppGatewayURL,
			Timeout: cfg.EnricherTimeout,
			Limiter: limiters.For("whatsapp"),
		})
		if err != nil {
			return fmt.Errorf("whatsapp client: %w", err)
		}
	}

	var authenticator *api.Authenticator
	if secret := os.Getenv("CASEPILOT_JWT_SECRET"); secret != "" {
		authenticator = api.NewAuthenticator(secret, cfg.JWTRoleClaim)
	} else {
		logger.Warn("CASEPILOT_JWT_SECRET unset; API is running without authentication")
	}

	server := api.New(api.Config{
		DB:            db,
		Blobs:         blobs,
		Ingest:        ingester,
		OCR:           ocrClient,
		Copilot:       copilotHandler,
		WhatsApp:      whatsappClient,
		Authenticator: authenticator,
		Logger:        logger,
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("casepilot-api listening", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
