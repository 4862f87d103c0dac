// Package app wires configuration into storage backends, caches, services
// and HTTP handlers. The binaries under cmd/ share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"qr-tracker/pkg/cache"
	"qr-tracker/pkg/config"
	"qr-tracker/pkg/geo"
	httphandler "qr-tracker/pkg/http"
	"qr-tracker/pkg/logging"
	"qr-tracker/pkg/middleware"
	"qr-tracker/pkg/service"
	"qr-tracker/pkg/storage"
)

type App struct {
	Config    *config.Config
	Logger    *logging.Logger
	Redirects *service.RedirectService
	Tracker   *service.Tracker
	Dashboard *service.DashboardService
	// Synchronizer is nil when no scan archive is configured.
	Synchronizer *service.Synchronizer

	redirectStore storage.RedirectStorage
	localScans    storage.ScanStorage
	redisClient   *redis.Client
	closers       []func()
}

// New connects every configured backend. Close releases them.
func New(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}
	if err := a.setupStorage(ctx); err != nil {
		a.Close()
		return nil, err
	}
	a.setupRedis(ctx)

	scans := a.localScans
	if cfg.ArchiveEnabled() {
		sheet, err := storage.NewGoogleSheet(ctx, cfg.Sheets.CredentialsFile, cfg.Sheets.ArchiveSpreadsheetID, cfg.Sheets.ArchiveSheet)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to open scan archive: %w", err)
		}
		archive := storage.NewSheetScanArchive(sheet)
		scans = storage.NewMirroredScanLog(a.localScans, archive, logger)
		a.Synchronizer = service.NewSynchronizer(archive, a.localScans, logger)
	}

	var redirectCache cache.RedirectCacheInterface = cache.NopRedirectCache{}
	if a.redisClient != nil {
		redirectCache = cache.NewRedirectCache(a.redisClient)
	}

	a.Redirects = service.NewRedirectService(a.redirectStore, scans, redirectCache, cfg.Redis.TTL, logger)
	a.Tracker = service.NewTracker(a.Redirects, scans, a.locator(), cfg.Geo.Timeout, logger)
	a.Dashboard = service.NewDashboardService(a.Redirects, scans)
	return a, nil
}

func (a *App) setupStorage(ctx context.Context) error {
	cfg := a.Config

	var pg *storage.PostgresStorage
	if cfg.Storage.Redirects == "postgres" || cfg.Storage.Scans == "postgres" {
		poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("invalid database url: %w", err)
		}
		if cfg.Database.MaxConns > 0 {
			poolCfg.MaxConns = cfg.Database.MaxConns
		}
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("failed to reach postgres: %w", err)
		}
		pg = storage.NewPostgresStorage(pool)
		if err := pg.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}

	mem := storage.NewMemoryStorage()

	switch cfg.Storage.Scans {
	case "postgres":
		a.localScans = pg
	default:
		a.localScans = mem
	}

	switch cfg.Storage.Redirects {
	case "postgres":
		a.redirectStore = pg
	case "sheets":
		sheet, err := storage.NewGoogleSheet(ctx, cfg.Sheets.CredentialsFile, cfg.Sheets.RedirectsSpreadsheetID, cfg.Sheets.RedirectsSheet)
		if err != nil {
			return fmt.Errorf("failed to open redirects sheet: %w", err)
		}
		a.redirectStore = storage.NewSheetRedirectStorage(sheet)
	default:
		a.redirectStore = mem
	}

	a.Logger.Info(ctx, "storage ready",
		"redirects", cfg.Storage.Redirects,
		"scans", cfg.Storage.Scans,
		"archive", cfg.ArchiveEnabled())
	return nil
}

// setupRedis connects the optional cache. An unreachable server is logged
// and kept; cache errors degrade to store reads.
func (a *App) setupRedis(ctx context.Context) {
	if a.Config.Redis.URL == "" {
		return
	}
	opt, err := redis.ParseURL(a.Config.Redis.URL)
	if err != nil {
		a.Logger.Warn(ctx, "invalid redis url, caching disabled", "error", err)
		return
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		a.Logger.Warn(ctx, "redis unreachable", "error", err)
	}
	a.redisClient = client
	a.closers = append(a.closers, func() { _ = client.Close() })
}

func (a *App) locator() geo.Locator {
	if !a.Config.Geo.Enabled {
		return geo.Disabled{}
	}
	var loc geo.Locator = geo.NewBreakerLocator(geo.NewIPAPIProvider(a.Config.Geo.BaseURL, a.Config.Geo.Timeout))
	if a.redisClient != nil {
		loc = geo.NewCachedLocator(loc, cache.NewGeoCache(a.redisClient), a.Config.Geo.CacheTTL)
	}
	return loc
}

// Prepare seeds configured redirects and, when enabled, restores the local
// scan log from the archive. A failed restore is logged, not fatal.
func (a *App) Prepare(ctx context.Context) error {
	if len(a.Config.Seed) > 0 {
		entries := make([]storage.Redirect, 0, len(a.Config.Seed))
		for _, s := range a.Config.Seed {
			entries = append(entries, storage.Redirect{ShortCode: s.ShortCode, Destination: s.Destination, Owner: s.Owner})
		}
		added, err := a.Redirects.Seed(ctx, entries)
		if err != nil {
			return fmt.Errorf("failed to seed redirects: %w", err)
		}
		a.Logger.Info(ctx, "seeded redirects", "added", added, "configured", len(entries))
	}

	if a.Synchronizer != nil && a.Config.Sheets.RestoreOnStart {
		if _, err := a.Synchronizer.Restore(ctx); err != nil {
			a.Logger.Error(ctx, "restore from archive failed", "error", err)
		}
	}
	return nil
}

// Authenticator builds the dashboard auth stack from config.
func (a *App) Authenticator(ctx context.Context) (*middleware.Authenticator, error) {
	auth := a.Config.Auth
	if !auth.Enabled {
		a.Logger.Warn(ctx, "authentication disabled; dashboard is open to everyone")
		return middleware.NewAuthenticator(false, nil, nil, a.Logger), nil
	}

	users := make(map[string]string, len(auth.Users))
	for _, u := range auth.Users {
		users[u.Username] = u.PasswordHash
	}
	sessions, err := middleware.NewSessionManager(middleware.SessionConfig{
		Secret:     []byte(auth.SessionSecret),
		TTL:        auth.SessionTTL,
		CookieName: auth.CookieName,
		Users:      users,
	})
	if err != nil {
		return nil, err
	}

	var oauth *middleware.OAuthMiddleware
	if auth.OIDC.IssuerURL != "" {
		oauth, err = middleware.NewOAuthMiddleware(ctx, middleware.OAuthConfig{
			IssuerURL:      auth.OIDC.IssuerURL,
			Audience:       auth.OIDC.Audience,
			RequiredScopes: auth.OIDC.RequiredScopes,
		})
		if err != nil {
			return nil, err
		}
	}
	return middleware.NewAuthenticator(true, sessions, oauth, a.Logger), nil
}

// Handler returns the HTTP handlers for the services.
func (a *App) Handler(auth *middleware.Authenticator) (*httphandler.Handler, error) {
	return httphandler.NewHandler(httphandler.HandlerDeps{
		Tracker:   a.Tracker,
		Redirects: a.Redirects,
		Dashboard: a.Dashboard,
		Auth:      auth,
		PublicURL: a.Config.Server.PublicURL,
		Logger:    a.Logger,
	})
}

func (a *App) RouteOptions() httphandler.RouteOptions {
	return httphandler.RouteOptions{
		TrackRateLimit:  a.Config.Server.TrackRateLimit,
		TrackRateWindow: a.Config.Server.TrackRateWindow,
		TrustProxy:      a.Config.Server.TrustProxy,
	}
}

// Serve runs the HTTP server until ctx is cancelled, then drains in-flight
// requests for up to server.shutdown_timeout.
func (a *App) Serve(ctx context.Context, h http.Handler) error {
	srv := &http.Server{
		Addr:              a.Config.Server.Addr,
		Handler:           h,
		ReadTimeout:       a.Config.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      a.Config.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info(ctx, "http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancel()
	a.Logger.Info(shutdownCtx, "shutting down http server")
	return srv.Shutdown(shutdownCtx)
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
