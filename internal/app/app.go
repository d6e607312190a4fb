// Package app wires configuration, schema loading, backend adapters, and
// the HTTP API into one runnable service.
package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"

	httpapi "github.com/weftdb/weft/internal/api/http"
	"github.com/weftdb/weft/internal/backend"
	"github.com/weftdb/weft/internal/config"
	"github.com/weftdb/weft/internal/query/executor"
	"github.com/weftdb/weft/internal/schema"
	"github.com/weftdb/weft/internal/server"
	"github.com/weftdb/weft/internal/source"
)

// App owns the service lifecycle: it loads the schema, builds the query
// engine, and serves the HTTP API until shutdown.
type App struct {
	cfg *config.Config

	registry *schema.Registry
	adapters map[string]backend.Adapter
	engine   *executor.Engine
	shutdown *server.ShutdownManager

	httpServer *http.Server

	mu      sync.Mutex
	running bool
}

// New validates the configuration and creates an App.
func New(cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &App{cfg: cfg}, nil
}

// Start loads the schema snapshot, connects backend adapters, and starts
// the HTTP server.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("app is already running")
	}
	a.running = true
	a.mu.Unlock()

	a.shutdown = server.NewShutdownManager(server.DefaultShutdownConfig())

	src, err := a.schemaSource(ctx)
	if err != nil {
		return err
	}

	a.registry = schema.NewRegistry(src)
	if err := a.registry.Load(ctx); err != nil {
		return fmt.Errorf("failed to load schema document: %w", err)
	}

	if err := a.initAdapters(); err != nil {
		a.shutdown.Shutdown(ctx, "adapter init failed")
		return err
	}

	a.engine = executor.NewEngine(a.registry, a.adapters, a.cfg.Datasources, a.cfg.Query)

	handler := server.ShutdownMiddleware(a.shutdown)(
		httpapi.NewRouter(a.engine, a.registry, a.engine.Stats()))

	a.httpServer = &http.Server{
		Addr:         a.cfg.HTTP.Addr,
		Handler:      handler,
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		IdleTimeout:  a.cfg.HTTP.IdleTimeout,
	}

	log.Printf("app: serving on %s with %d datasources", a.cfg.HTTP.Addr, len(a.adapters))
	return nil
}

// Run starts the app and blocks until a shutdown signal or server failure.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.NewGracefulHTTPServer(a.httpServer, a.shutdown).ListenAndServe()
	}()

	go func() {
		if err := a.shutdown.ListenForSignals(ctx); err != nil {
			log.Printf("app: shutdown: %v", err)
		}
	}()

	if err := <-errCh; err != nil {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Stop initiates graceful shutdown.
func (a *App) Stop(ctx context.Context) error {
	if a.shutdown == nil {
		return nil
	}
	return a.shutdown.Shutdown(ctx, "stop requested")
}

// Engine exposes the query engine, once started.
func (a *App) Engine() *executor.Engine {
	return a.engine
}

// schemaSource builds the configured schema document source.
func (a *App) schemaSource(ctx context.Context) (source.Source, error) {
	switch a.cfg.Schema.Source {
	case "local", "":
		return source.NewLocalSource(a.cfg.Schema.Path), nil
	case "s3":
		s3 := a.cfg.Schema.S3
		src, err := source.NewS3Source(ctx, s3.Bucket, s3.Key, source.S3Config{
			Region:       s3.Region,
			Endpoint:     s3.Endpoint,
			UsePathStyle: s3.UsePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize s3 schema source: %w", err)
		}
		return src, nil
	default:
		return nil, fmt.Errorf("unsupported schema source: %s", a.cfg.Schema.Source)
	}
}

// initAdapters connects one backend adapter per configured datasource.
func (a *App) initAdapters() error {
	a.adapters = make(map[string]backend.Adapter, len(a.cfg.Datasources))
	for name, dsCfg := range a.cfg.Datasources {
		adapter, err := backend.New(name, dsCfg)
		if err != nil {
			return fmt.Errorf("failed to initialize datasource %q: %w", name, err)
		}
		a.adapters[name] = adapter
		if closer, ok := adapter.(io.Closer); ok {
			a.shutdown.RegisterCloser(closer)
		}
		log.Printf("app: datasource %q connected (type=%s)", name, dsCfg.Type)
	}
	return nil
}
