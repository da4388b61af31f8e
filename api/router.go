// Package api exposes accounts, AI assistance, reports and the dashboard over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c360studio/civicreport/auth"
	"github.com/c360studio/civicreport/category"
	"github.com/c360studio/civicreport/report"
	"github.com/c360studio/civicreport/storage"
)

// Accounts handles signup, login and token verification.
type Accounts interface {
	Signup(ctx context.Context, email, password, name string) (*storage.Profile, error)
	Login(ctx context.Context, email, password string) (*auth.Session, error)
	Verify(token string) (*auth.Claims, error)
}

// Reports submits reports and builds dashboards.
type Reports interface {
	Submit(ctx context.Context, sub report.Submission) (*report.Receipt, error)
	Dashboard(ctx context.Context, userID string) (*report.Dashboard, error)
}

// ReportReader reads stored reports.
type ReportReader interface {
	GetReport(ctx context.Context, id string) (*storage.Report, error)
	ListReportsByUser(ctx context.Context, userID string) ([]*storage.Report, error)
}

// Describer generates formal descriptions.
type Describer interface {
	Generate(ctx context.Context, userText string) (string, error)
}

// Classifier classifies raw image bytes.
type Classifier interface {
	Classify(ctx context.Context, data []byte, mimeType string) (category.Result, error)
}

// Config wires the handler dependencies.
type Config struct {
	Accounts   Accounts
	Reports    Reports
	Reader     ReportReader
	Describer  Describer
	Classifier Classifier

	// UploadDir receives photos uploaded with a report.
	UploadDir string

	// Gatherer backs /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer

	Logger *slog.Logger
}

// Handler is the HTTP adapter over the report services.
type Handler struct {
	accounts   Accounts
	reports    Reports
	reader     ReportReader
	describer  Describer
	classifier Classifier
	uploadDir  string
	gatherer   prometheus.Gatherer
	logger     *slog.Logger
}

// NewHandler constructs a Handler.
func NewHandler(cfg Config) *Handler {
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Handler{
		accounts:   cfg.Accounts,
		reports:    cfg.Reports,
		reader:     cfg.Reader,
		describer:  cfg.Describer,
		classifier: cfg.Classifier,
		uploadDir:  cfg.UploadDir,
		gatherer:   cfg.Gatherer,
		logger:     cfg.Logger.With("module", "http"),
	}
}

// NewRouter registers routes and the middleware stack.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(h.recoverMiddleware)
	r.Use(h.loggingMiddleware)

	r.Get("/healthz", h.healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	r.Route("/auth/v1", func(r chi.Router) {
		r.Post("/signup", h.signup)
		r.Post("/login", h.login)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(h.authMiddleware)

		r.Post("/assist/describe", h.describe)
		r.Post("/assist/classify", h.classify)

		r.Post("/reports", h.submitReport)
		r.Get("/reports", h.listReports)
		r.Get("/reports/{id}", h.getReport)

		r.Get("/dashboard", h.dashboard)
	})

	return r
}
