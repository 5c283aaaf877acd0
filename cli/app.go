package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Nachoram/plataforma-inmobiliaria-sub005/config"
	"github.com/Nachoram/plataforma-inmobiliaria-sub005/handler"
	"github.com/Nachoram/plataforma-inmobiliaria-sub005/provider"
	"github.com/Nachoram/plataforma-inmobiliaria-sub005/render"
	"github.com/Nachoram/plataforma-inmobiliaria-sub005/service"
)

const startupTimeout = 15 * time.Second

// App holds the wired services every command works with.
type App struct {
	Config       *config.Config
	Store        service.Store
	Machine      *service.StateMachine
	Orchestrator *service.Orchestrator
	Exporter     *service.ExportService
}

// Services returns the dependencies of the HTTP API.
func (a *App) Services() handler.Services {
	return handler.Services{
		Store:        a.Store,
		Machine:      a.Machine,
		Orchestrator: a.Orchestrator,
		Exporter:     a.Exporter,
	}
}

func (a *App) Close() error {
	return a.Store.Close()
}

// buildApp connects storage and wires the state machine, orchestrator and
// exporter together.
func buildApp(ctx context.Context, cfg *config.Config) (*App, error) {
	ctx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	store, err := buildStore(ctx, &cfg.Store)
	if err != nil {
		return nil, err
	}

	exporter, err := buildExporter(ctx, cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	prov, err := buildProvider(&cfg.Provider)
	if err != nil {
		store.Close()
		return nil, err
	}

	machine := service.NewStateMachine(store, time.Now)
	orch := service.NewOrchestrator(store, prov, machine, service.OrchestratorOptions{
		CallbackURL:  cfg.Provider.CallbackURL,
		SignatureTTL: cfg.Provider.SignatureTTL,
		Documents:    exporter,
	})

	return &App{
		Config:       cfg,
		Store:        store,
		Machine:      machine,
		Orchestrator: orch,
		Exporter:     exporter,
	}, nil
}

func buildStore(ctx context.Context, cfg *config.StoreConfig) (service.Store, error) {
	switch cfg.Driver {
	case config.StoreMemory:
		slog.Warn("using in-memory store, data is lost on restart", "max_contracts", cfg.MaxContracts)
		return service.NewMemoryStore(cfg.MaxContracts), nil
	case config.StoreSQLite:
		slog.Info("opening sqlite store", "path", cfg.Path)
		return service.OpenSQLite(cfg.Path)
	case config.StorePostgres:
		slog.Info("connecting to postgres store")
		return service.ConnectPostgres(ctx, cfg.DSN)
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

func buildProvider(cfg *config.ProviderConfig) (provider.Provider, error) {
	switch cfg.Mode {
	case config.ProviderSimulated:
		slog.Info("using simulated signature provider")
		return provider.NewSimulated(cfg.SigningBaseURL, nil), nil
	case config.ProviderHTTP:
		if cfg.APIURL == "" {
			return nil, errors.New("provider.api_url is required in http mode")
		}
		slog.Info("using http signature provider", "api_url", cfg.APIURL)
		return provider.NewHTTPProvider(cfg), nil
	}
	return nil, fmt.Errorf("unknown provider mode %q", cfg.Mode)
}

func buildExporter(ctx context.Context, cfg *config.Config) (*service.ExportService, error) {
	renderer, err := render.NewRenderer(render.Options{
		WidthPx:      cfg.Export.WidthPx,
		Oversampling: cfg.Export.Oversampling,
		MaxHeightPx:  cfg.Export.MaxHeightPx,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize renderer: %w", err)
	}
	fit, err := render.ParseFit(cfg.Export.Fit)
	if err != nil {
		return nil, err
	}

	var artifacts service.ArtifactStore
	if cfg.Minio.Enabled {
		minioStore, err := service.NewMinioArtifactStore(&cfg.Minio)
		if err != nil {
			return nil, err
		}
		if err := minioStore.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("failed to ensure MINIO bucket: %w", err)
		}
		artifacts = minioStore
	}

	return service.NewExportService(renderer, service.ExportOptions{
		Page:    render.PageSize{Width: cfg.Export.PageWidth, Height: cfg.Export.PageHeight},
		Fit:     fit,
		Workers: cfg.Export.Workers,
		Author:  "contractsign",
	}, artifacts), nil
}
