package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/c360studio/civicreport/api"
	"github.com/c360studio/civicreport/assist"
	"github.com/c360studio/civicreport/auth"
	"github.com/c360studio/civicreport/config"
	"github.com/c360studio/civicreport/llm"
	"github.com/c360studio/civicreport/report"
	"github.com/c360studio/civicreport/storage"
)

// App holds the wired civicreport components.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	registry *prometheus.Registry
	natsConn *nats.Conn
	js       jetstream.JetStream
	store    *storage.Store
	calls    *storage.CallLog

	client     *llm.Client
	describer  *assist.Describer
	classifier *assist.Classifier
	flow       *report.Flow
}

// NewApp creates a new application instance.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &App{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}, nil
}

// Start connects storage and builds the AI helpers and report flow.
func (a *App) Start(ctx context.Context) error {
	if err := a.openStore(ctx); err != nil {
		return err
	}

	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a.client = newAIClient(a.cfg, llm.NewMetrics(a.registry), a.calls, a.logger)
	a.describer = assist.NewDescriber(a.client, taskFromConfig("description", a.cfg.Assist.Description), a.logger)
	a.classifier = assist.NewClassifier(a.client, taskFromConfig("classification", a.cfg.Assist.Classification), a.logger)

	a.flow = report.NewFlow(a.store, a.describer, a.classifier, report.Options{
		Recipient:     a.cfg.Notify.Recipient,
		MinConfidence: a.cfg.Assist.MinConfidence,
		Logger:        a.logger,
	})

	a.logger.Debug("Components initialized",
		"store", a.storeKind(),
		"model", a.cfg.Gemini.Model)
	return nil
}

func (a *App) openStore(ctx context.Context) error {
	if a.cfg.NATS.URL == "" {
		a.logger.Warn("No NATS URL configured, reports are kept in memory only")
		a.store = storage.NewMemoryStore()
		a.calls = storage.NewCallLogWithBucket(storage.NewMemoryBucket())
		return nil
	}

	a.logger.Debug("Connecting to NATS", "url", a.cfg.NATS.URL)
	conn, err := nats.Connect(a.cfg.NATS.URL,
		nats.Name("civicreport"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	a.natsConn = conn

	js, err := jetstream.New(conn)
	if err != nil {
		return fmt.Errorf("create JetStream context: %w", err)
	}
	a.js = js

	store, err := storage.NewStore(ctx, js)
	if err != nil {
		return fmt.Errorf("initialize storage: %w", err)
	}
	a.store = store

	calls, err := storage.NewCallLog(ctx, js)
	if err != nil {
		return fmt.Errorf("initialize call log: %w", err)
	}
	a.calls = calls
	return nil
}

func (a *App) storeKind() string {
	if a.natsConn != nil {
		return "jetstream"
	}
	return "memory"
}

// Handler builds the HTTP API. It needs a token secret.
func (a *App) Handler() (http.Handler, error) {
	accounts, err := auth.NewService(a.store, auth.Config{
		Secret: []byte(a.cfg.Auth.TokenSecret),
		TTL:    a.cfg.Auth.TokenTTL,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("create auth service: %w", err)
	}

	h := api.NewHandler(api.Config{
		Accounts:   accounts,
		Reports:    a.flow,
		Reader:     a.store,
		Describer:  a.describer,
		Classifier: a.classifier,
		UploadDir:  a.cfg.Server.UploadDir,
		Gatherer:   a.registry,
		Logger:     a.logger,
	})
	return api.NewRouter(h), nil
}

// Shutdown releases the NATS connection.
func (a *App) Shutdown() {
	if a.natsConn == nil {
		return
	}
	if err := a.natsConn.Drain(); err != nil {
		a.logger.Warn("Failed to drain NATS connection", "error", err)
	}
	a.natsConn.Close()
	a.natsConn = nil
}

func newAIClient(cfg *config.Config, metrics *llm.Metrics, recorder llm.CallRecorder, logger *slog.Logger) *llm.Client {
	opts := []llm.ClientOption{
		llm.WithHTTPClient(&http.Client{Timeout: cfg.Gemini.Timeout}),
		llm.WithMetrics(metrics),
		llm.WithRecorder(recorder),
		llm.WithLogger(logger),
	}
	if limiter := newLimiter(cfg.Assist); limiter != nil {
		opts = append(opts, llm.WithLimiter(limiter))
	}

	return llm.NewClient(llm.Endpoint{
		Provider: "gemini",
		URL:      cfg.Gemini.Endpoint,
		Model:    cfg.Gemini.Model,
		APIKey:   cfg.Gemini.APIKey,
	}, opts...)
}

// newLimiter returns nil when rate limiting is off.
func newLimiter(cfg config.AssistConfig) *rate.Limiter {
	if cfg.RateLimit <= 0 {
		return nil
	}
	burst := cfg.RateBurst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
}

func taskFromConfig(name string, tc config.TaskConfig) assist.Task {
	return assist.Task{
		Temperature:     tc.Temperature,
		MaxOutputTokens: tc.MaxOutputTokens,
		Policy: llm.RetryPolicy{
			Name:             name,
			Delays:           append([]time.Duration(nil), tc.RetryDelays...),
			ExhaustedMessage: tc.ExhaustedMessage,
		},
	}
}
