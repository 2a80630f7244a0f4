// Package tracehub is the public API for embedding the TraceHub server.
//
// Consumers import this package to construct and extend the server without
// forking it:
//
//	app, err := tracehub.New(
//	    tracehub.WithVersion(version),
//	    tracehub.WithLogger(logger),
//	    tracehub.WithJudgeProvider(myProvider),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: tracehub (root) imports
// internal/*, but internal/* never imports tracehub (root). Public types are
// standalone structs with no internal imports; conversion adapters live here
// because this is the only file that sees both sides of the boundary.
package tracehub

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/tracehub-ai/tracehub/internal/auth"
	"github.com/tracehub-ai/tracehub/internal/cases"
	"github.com/tracehub-ai/tracehub/internal/config"
	"github.com/tracehub-ai/tracehub/internal/decision"
	"github.com/tracehub-ai/tracehub/internal/ingest"
	"github.com/tracehub-ai/tracehub/internal/judge"
	"github.com/tracehub-ai/tracehub/internal/model"
	"github.com/tracehub-ai/tracehub/internal/server"
	"github.com/tracehub-ai/tracehub/internal/storage"
	"github.com/tracehub-ai/tracehub/internal/telemetry"
	"github.com/tracehub-ai/tracehub/migrations"
)

// JudgeVerdict is the outcome of one external judge provider invocation.
type JudgeVerdict struct {
	Action     string
	ReasonCode string
	Confidence float64
	Signals    map[string]any
	Rationale  string
	Model      string
}

// JudgeProvider is the extension point for custom judges. Implementations
// receive the assembled decision context and return a verdict.
type JudgeProvider interface {
	Name() string
	Judge(ctx context.Context, decisionCtx map[string]any) (JudgeVerdict, error)
}

// App is the TraceHub server lifecycle. Construct with New(), run with Run().
// App has no public fields — use New() options to configure it.
type App struct {
	cfg          config.Config
	db           *storage.DB
	srv          *server.Server
	otelShutdown telemetry.ShutdownFunc
	logger       *slog.Logger
	version      string
}

// New initialises the TraceHub server. It connects to the database, runs
// migrations, wires all subsystems, and returns a ready-to-run App.
// It does NOT start any goroutines or accept HTTP connections — call Run().
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	if o.webhookURL != "" {
		cfg.WebhookURL = o.webhookURL
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("tracehub starting", "version", version, "port", cfg.Port)

	otelShutdown, err := telemetry.Init(context.Background(), telemetry.Config{
		Endpoint:    cfg.OTELEndpoint,
		Insecure:    cfg.OTELInsecure,
		ServiceName: cfg.ServiceName,
		Version:     version,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	db, err := storage.New(context.Background(), cfg.DatabaseURL, logger)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("storage: %w", err)
	}
	db.RegisterPoolMetrics()

	if err := db.RunMigrations(context.Background(), migrations.FS); err != nil {
		db.Close()
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("migrations: %w", err)
	}
	for i, extraFS := range o.extraMigrations {
		if err := db.RunMigrations(context.Background(), extraFS); err != nil {
			db.Close()
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("extra migrations[%d]: %w", i, err)
		}
	}

	resolver := auth.NewResolver(db, cfg.InternalAPIKeySeed, cfg.Dev(), logger)

	providers := []judge.Provider{
		judge.Heuristic{},
		judge.NewLLM(cfg.LLMJudgeEndpoint, cfg.LLMJudgeModel, cfg.LLMJudgeTimeout),
	}
	for _, p := range o.judgeProviders {
		providers = append(providers, &judgeProviderAdapter{provider: p})
	}
	registry := judge.NewRegistry(providers...)

	emitter := cases.NewEmitter(db, cfg.WebhookURL, cfg.WebhookTimeout, logger)

	handlers := server.NewHandlers(server.HandlersDeps{
		DB:       db,
		Resolver: resolver,
		Ingest:   ingest.NewService(db, logger),
		Decision: decision.NewService(db, registry, emitter, logger),
		Cases:    cases.NewService(db, logger),
		Logger:   logger,
	})

	srv := server.New(server.ServerConfig{
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	}, handlers, logger)

	return &App{
		cfg:          cfg,
		db:           db,
		srv:          srv,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled or a fatal
// server error occurs. On return, Shutdown is called automatically —
// callers should not call Shutdown separately.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.srv.Start(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		return a.Shutdown(context.Background())
	})

	return g.Wait()
}

// Shutdown drains in-flight HTTP requests, then closes the database pool
// and the OTEL providers.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("tracehub shutting down")

	httpCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := a.srv.Shutdown(httpCtx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}

	_ = a.otelShutdown(context.Background())
	a.db.Close()

	a.logger.Info("tracehub stopped")
	return nil
}

// Handler exposes the fully wrapped HTTP handler, used by embedding tests.
func (a *App) Handler() http.Handler {
	return a.srv.Handler()
}

// judgeProviderAdapter wraps a public JudgeProvider to satisfy the internal
// judge.Provider interface. It converts public verdicts at the boundary.
type judgeProviderAdapter struct {
	provider JudgeProvider
}

func (a *judgeProviderAdapter) Name() string { return a.provider.Name() }

func (a *judgeProviderAdapter) Judge(ctx context.Context, decisionCtx map[string]any) (judge.Verdict, error) {
	v, err := a.provider.Judge(ctx, decisionCtx)
	if err != nil {
		return judge.Verdict{}, &judge.ProviderError{Provider: a.provider.Name(), Err: err}
	}
	out := judge.Verdict{
		Action:     model.Action(v.Action),
		ReasonCode: v.ReasonCode,
		Confidence: v.Confidence,
		Signals:    v.Signals,
	}
	if v.Rationale != "" {
		out.Rationale = &v.Rationale
	}
	if v.Model != "" {
		out.Model = &v.Model
	}
	return out, nil
}
