package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"gorm.io/gorm"

	"casepilot/internal/copilot"
	"casepilot/internal/copilot/whatsapp"
	"casepilot/internal/ingest"
	"casepilot/internal/ocr"
	"casepilot/internal/storage"
)

// Config captures every dependency the HTTP surface needs, constructed once
// at process start (spec.md §9: "explicitly passed store handle ... no
// module-level connection singletons").
type Config struct {
	DB            *gorm.DB
	Blobs         *storage.Store
	Ingest        *ingest.Ingester
	OCR           *ocr.Client
	Copilot       *copilot.Handler
	WhatsApp      *whatsapp.Client
	Authenticator *Authenticator
	Logger        *slog.Logger
}

// Server is casepilot's HTTP API, implementing every route spec.md §6
// names under `/api/v1`.
type Server struct {
	cfg    Config
	router http.Handler
}

// New constructs a Server with its router built and ready to serve.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Server{cfg: cfg}
	s.router = s.buildRouter()
	return s
}

// Handler exposes the configured router for use with net/http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(otelhttp.NewMiddleware("casepilot-api"))
	r.Use(requestLogger(s.cfg.Logger))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		if s.cfg.Authenticator != nil {
			api.Use(s.cfg.Authenticator.Middleware)
		}
		api.Post("/cases", s.createCase)
		api.Post("/cases/{case_id}/upload", s.uploadDocuments)
		api.Get("/cases/{case_id}/documents", s.listDocuments)
		api.Get("/cases/{case_id}/checklist", s.checklist)
		api.Get("/cases/{case_id}/progress", s.progressSnapshot)
		api.Get("/cases/{case_id}/progress/stream", s.progressStream)

		api.Post("/extraction/case/{case_id}/extract", s.runExtraction)
		api.Get("/extraction/case/{case_id}/features", s.getFeatures)

		api.Post("/eligibility/case/{case_id}/score", s.scoreEligibility)
		api.Get("/eligibility/case/{case_id}/results", s.latestEligibility)

		api.Post("/reports/case/{case_id}/generate", s.generateReport)
		api.Get("/reports/case/{case_id}/report/pdf", s.downloadReportPDF)
		api.Get("/reports/case/{case_id}/report/whatsapp", s.downloadReportWhatsApp)
		api.Post("/reports/case/{case_id}/report/whatsapp/send", s.sendReportWhatsApp)

		api.Post("/copilot/query", s.copilotQuery)
	})

	return r
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.Info("http request", "method", r.Method, "path", r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}
}
