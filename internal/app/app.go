// Package app builds and holds the long-lived services of imgscout: the
// session provider, the search pipeline, and the stores behind it.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/imgscout/internal/api"
	"github.com/JakeFAU/imgscout/internal/browser/headless"
	"github.com/JakeFAU/imgscout/internal/browser/static"
	"github.com/JakeFAU/imgscout/internal/clock"
	"github.com/JakeFAU/imgscout/internal/config"
	"github.com/JakeFAU/imgscout/internal/fetcher/httpimage"
	"github.com/JakeFAU/imgscout/internal/id/uuid"
	"github.com/JakeFAU/imgscout/internal/imagesearch"
	"github.com/JakeFAU/imgscout/internal/locator"
	"github.com/JakeFAU/imgscout/internal/logging"
	"github.com/JakeFAU/imgscout/internal/metrics"
	"github.com/JakeFAU/imgscout/internal/pipeline"
	"github.com/JakeFAU/imgscout/internal/policy/ratelimit"
	gcppublisher "github.com/JakeFAU/imgscout/internal/publisher/pubsub"
	"github.com/JakeFAU/imgscout/internal/publisher/zaplog"
	"github.com/JakeFAU/imgscout/internal/saver"
	gcsstorage "github.com/JakeFAU/imgscout/internal/storage/gcs"
	localstorage "github.com/JakeFAU/imgscout/internal/storage/local"
	memorystorage "github.com/JakeFAU/imgscout/internal/storage/memory"
	pgstore "github.com/JakeFAU/imgscout/internal/storage/postgres"
	sqlitestore "github.com/JakeFAU/imgscout/internal/storage/sqlite"
)

// App contains the application's dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	pipeline  *pipeline.Pipeline
	history   imagesearch.HistoryStore
	blobs     imagesearch.BlobStore
	publisher imagesearch.Publisher

	closers []func(context.Context) error
}

// Build creates the application's dependencies from cfg.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(logging.Options{Development: cfg.Logging.Development, Level: cfg.Logging.Level})
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	return BuildWithLogger(ctx, cfg, logger)
}

// BuildWithLogger is Build with a caller-supplied logger.
func BuildWithLogger(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	a := &App{cfg: cfg, logger: logger}
	if err := a.build(ctx); err != nil {
		a.Close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	a.logger.Info("building application dependencies",
		zap.String("browser", a.cfg.Browser.Provider),
		zap.String("output", a.cfg.Output.Backend),
		zap.String("history", a.cfg.History.Backend),
	)
	sessions := a.setupSessions()

	loc, err := locator.New(sessions, strategiesFromConfig(a.cfg.Locator.Strategies), locator.Options{
		SearchURLTemplate: a.cfg.Site.SearchURLTemplate,
		QuerySeparator:    a.cfg.Site.QuerySeparator,
		Domain:            a.cfg.Site.Domain,
		MaxResults:        a.cfg.Locator.MaxResults,
		ReadyTimeout:      a.cfg.Locator.ReadyTimeout(),
		PollInterval:      a.cfg.Locator.PollInterval(),
		CaptureScreenshot: a.cfg.Browser.ScreenshotPath != "",
	}, a.logger.Named("locator"))
	if err != nil {
		return fmt.Errorf("locator init failed: %w", err)
	}

	fetch := a.setupFetcher()

	a.blobs, err = a.setupStorage(ctx)
	if err != nil {
		return err
	}
	if a.history, err = a.setupHistory(ctx); err != nil {
		return err
	}
	if a.publisher, err = a.setupPublisher(ctx); err != nil {
		return err
	}

	clk := clock.New()
	sv, err := saver.New(a.blobs, a.cfg.Output.JPEGQuality, clk)
	if err != nil {
		return fmt.Errorf("saver init failed: %w", err)
	}
	lo, hi := a.cfg.Display.PauseBounds()
	a.pipeline, err = pipeline.New(pipeline.Deps{
		Locator:   loc,
		Fetcher:   fetch,
		Pacer:     pipeline.NewRandomPacer(lo, hi),
		Saver:     sv,
		History:   a.history,
		Publisher: a.publisher,
		Clock:     clk,
		IDs:       uuid.New(),
		Logger:    a.logger.Named("pipeline"),
	})
	if err != nil {
		return fmt.Errorf("pipeline init failed: %w", err)
	}
	return nil
}

func (a *App) setupSessions() imagesearch.SessionProvider {
	b := a.cfg.Browser
	if b.Provider == "static" {
		a.logger.Info("using static page sessions")
		return static.NewProvider(static.Config{
			UserAgent: b.UserAgent,
			Timeout:   b.NavTimeout(),
		}, a.logger.Named("static"))
	}
	a.logger.Info("using headless chrome sessions", zap.Bool("headless", b.Headless))
	provider := headless.NewProvider(headless.Config{
		Headless:          b.Headless,
		NoSandbox:         b.NoSandbox,
		DisableGPU:        b.DisableGPU,
		DisableDevShm:     b.DisableDevShm,
		WindowWidth:       b.WindowWidth,
		WindowHeight:      b.WindowHeight,
		UserAgent:         b.UserAgent,
		ExecPath:          b.ExecPath,
		NavigationTimeout: b.NavTimeout(),
	}, a.logger.Named("headless"))
	a.onClose(func(context.Context) error {
		provider.Close()
		return nil
	})
	return provider
}

func (a *App) setupFetcher() *httpimage.Fetcher {
	f := a.cfg.Fetcher
	var limiter httpimage.Waiter
	if f.RatePerSecond > 0 {
		limiter = ratelimit.New(ratelimit.Config{RPS: f.RatePerSecond, Burst: f.Burst})
		a.logger.Info("fetch rate limiter enabled",
			zap.Float64("rps", f.RatePerSecond),
			zap.Int("burst", f.Burst),
		)
	}
	return httpimage.New(httpimage.Config{
		UserAgent: f.UserAgent,
		Referer:   a.cfg.Site.Referer,
		Timeout:   f.Timeout(),
		MaxBytes:  f.MaxBytes,
	}, nil, limiter, a.logger.Named("fetcher"))
}

func (a *App) setupStorage(ctx context.Context) (imagesearch.BlobStore, error) {
	out := a.cfg.Output
	switch out.Backend {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.onClose(func(context.Context) error { return client.Close() })
		store, err := gcsstorage.New(client, gcsstorage.Config{Bucket: out.GCSBucket, Prefix: out.Prefix})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.logger.Info("using GCS output", zap.String("bucket", out.GCSBucket), zap.String("prefix", out.Prefix))
		return store, nil
	case "memory":
		a.logger.Info("using in-memory output")
		return memorystorage.NewBlobStore(), nil
	default:
		store, err := localstorage.New(localstorage.Config{BaseDir: out.Dir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("using local output", zap.String("dir", store.Dir()))
		return store, nil
	}
}

func (a *App) setupHistory(ctx context.Context) (imagesearch.HistoryStore, error) {
	h := a.cfg.History
	switch h.Backend {
	case "memory":
		return memorystorage.NewHistoryStore(), nil
	case "sqlite":
		store, err := sqlitestore.NewHistoryStore(ctx, sqlitestore.Config{
			DSN:           h.DSN,
			SearchesTable: h.SearchesTable,
			SavesTable:    h.SavesTable,
		})
		if err != nil {
			return nil, fmt.Errorf("sqlite history init failed: %w", err)
		}
		a.onClose(func(context.Context) error { return store.Close() })
		a.logger.Info("sqlite history initialized", zap.String("table", h.SearchesTable))
		return store, nil
	case "postgres":
		store, err := pgstore.NewHistoryStore(ctx, pgstore.Config{
			DSN:           h.DSN,
			SearchesTable: h.SearchesTable,
			SavesTable:    h.SavesTable,
		})
		if err != nil {
			return nil, fmt.Errorf("postgres history init failed: %w", err)
		}
		a.onClose(func(context.Context) error {
			store.Close()
			return nil
		})
		a.logger.Info("postgres history initialized", zap.String("table", h.SearchesTable))
		return store, nil
	default:
		a.logger.Debug("search history disabled")
		return nil, nil
	}
}

func (a *App) setupPublisher(ctx context.Context) (imagesearch.Publisher, error) {
	n := a.cfg.Notify
	switch n.Backend {
	case "none":
		a.logger.Debug("notifications disabled")
		return nil, nil
	case "log":
		return zaplog.New(a.logger.Named("notify")), nil
	}
	if n.Topic == "" {
		a.logger.Warn("no Pub/Sub topic configured, notifications disabled")
		return nil, nil
	}
	pub, err := gcppublisher.Dial(ctx, n.ProjectID, n.Topic)
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.onClose(func(context.Context) error { return pub.Close() })
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", n.ProjectID),
		zap.String("topic", n.Topic),
	)
	return pub, nil
}

func strategiesFromConfig(specs []config.StrategyConfig) []locator.Strategy {
	if len(specs) == 0 {
		specs = config.DefaultStrategies()
	}
	css := make([]locator.CSSStrategy, 0, len(specs))
	for _, s := range specs {
		css = append(css, locator.CSSStrategy{Label: s.Name, Selector: s.Selector, Attribute: s.Attribute})
	}
	return locator.Strategies(css...)
}

func (a *App) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Pipeline returns the search pipeline.
func (a *App) Pipeline() *pipeline.Pipeline { return a.pipeline }

// History returns the history store, or nil when history is disabled.
func (a *App) History() imagesearch.HistoryStore { return a.history }

// APIServer builds the HTTP API over the pipeline.
func (a *App) APIServer() *api.Server {
	return api.NewServer(a.pipeline, a.history, api.Options{
		RequestTimeout: a.cfg.Server.RequestTimeout(),
		CacheSize:      a.cfg.Server.CacheSize,
		CacheTTL:       a.cfg.Server.CacheTTL(),
		JPEGQuality:    a.cfg.Output.JPEGQuality,
	}, a.logger.Named("api"))
}

// Serve runs the HTTP API until ctx is canceled.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.APIServer().Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	a.logger.Info("shutdown initiated")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// Close releases clients in reverse order of creation and flushes the logger.
func (a *App) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
	a.closers = nil
	_ = a.logger.Sync()
}
