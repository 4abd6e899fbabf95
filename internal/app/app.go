// Package app initializes and holds long-lived services for the CLI, acting as a dependency
// injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	gcsclient "cloud.google.com/go/storage"
	"github.com/spf13/afero"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/cfdi-sat-scraper/internal/captcha"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/captcha/console"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/captcha/web"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/config"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/downloader"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/gateway"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/gateway/collyclient"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/gateway/restyclient"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/policy/ratelimit"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/portal"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/publisher/pubsub"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/resource"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/scraper"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/session"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/storage/gcs"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/storage/local"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/storage/memory"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/store"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/store/postgres"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/telemetry"
)

// ErrNotConfigured is returned when an optional service is requested but not configured.
var ErrNotConfigured = errors.New("service not configured")

// Options override the process-level dependencies, mostly for tests.
type Options struct {
	FS     afero.Fs
	In     io.Reader
	Out    io.Writer
	Client gateway.Client
}

// App holds the shared services of one CLI invocation.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	fs      afero.Fs
	jar     *gateway.CookieJar
	gateway *gateway.Gateway
	limits  *downloader.CollectingLimitHandler
	session *session.Manager
	scraper *scraper.Scraper
	tracer  *sdktrace.TracerProvider

	stopCaptcha context.CancelFunc
	captchaDone chan error

	mu        sync.Mutex
	blobs     resource.BlobStore
	gcs       *gcsclient.Client
	publisher *pubsub.Publisher
	repo      store.MetadataRepository
}

// New builds the gateway, session and scraper. Storage, database and Pub/Sub clients are
// created on first use.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.RequireCredentials(); err != nil {
		return nil, err
	}
	if opts.FS == nil {
		opts.FS = afero.NewOsFs()
	}
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stderr
	}

	a := &App{
		cfg:    cfg,
		logger: logger,
		fs:     opts.FS,
		jar:    gateway.NewCookieJar(),
		limits: downloader.NewCollectingLimitHandler(logger),
	}
	if cfg.HTTP.CookieFile != "" {
		if err := a.jar.Load(a.fs, cfg.HTTP.CookieFile); err != nil {
			return nil, fmt.Errorf("load cookies: %w", err)
		}
	}

	client := opts.Client
	if client == nil {
		client = a.newClient()
	}
	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerSecond: cfg.HTTP.RequestsPerSecond,
		Burst:             cfg.HTTP.Burst,
	})
	a.gateway = gateway.New(client, a.jar, logger, gateway.WithLimiter(limiter))

	resolver, err := a.newCaptchaResolver(ctx, opts)
	if err != nil {
		return nil, err
	}
	data, err := session.NewData(cfg.SAT.RFC, cfg.SAT.CIEC, resolver, cfg.SAT.MaxTriesCaptcha, cfg.SAT.MaxTriesLogin)
	if err != nil {
		a.shutdownCaptcha()
		return nil, err
	}
	a.session = session.NewManager(data, a.gateway, logger)
	a.scraper = scraper.New(a.session, a.gateway, logger, scraper.WithLimitHandler(a.limits))

	tp, err := telemetry.InitTracerProvider(ctx, telemetry.ServiceName)
	if err != nil {
		a.shutdownCaptcha()
		return nil, err
	}
	a.tracer = tp

	logger.Debug("application services initialized",
		zap.String("rfc", data.RFC()),
		zap.String("http_backend", cfg.HTTP.Backend),
		zap.String("captcha_mode", cfg.Captcha.Mode),
	)
	return a, nil
}

func (a *App) newClient() gateway.Client {
	userAgent := a.cfg.HTTP.UserAgent
	if userAgent == "" {
		userAgent = portal.UserAgent
	}
	if a.cfg.HTTP.Backend == "colly" {
		return collyclient.New(collyclient.Config{
			UserAgent: userAgent,
			Timeout:   a.cfg.HTTPTimeout(),
		}, a.jar, a.logger)
	}
	return restyclient.New(restyclient.Config{
		UserAgent:    userAgent,
		Timeout:      a.cfg.HTTPTimeout(),
		MaxRedirects: a.cfg.HTTP.MaxRedirects,
	}, a.jar, a.logger)
}

func (a *App) newCaptchaResolver(ctx context.Context, opts Options) (captcha.Resolver, error) {
	if a.cfg.Captcha.Mode != "web" {
		return console.New(a.fs, a.cfg.Captcha.ImageDir, opts.In, opts.Out, a.logger), nil
	}
	resolver := web.New(a.cfg.CaptchaTimeout(), a.logger)
	serveCtx, cancel := context.WithCancel(ctx)
	a.stopCaptcha = cancel
	a.captchaDone = make(chan error, 1)
	go func() {
		a.captchaDone <- resolver.ListenAndServe(serveCtx, a.cfg.Captcha.ListenAddr)
	}()
	return resolver, nil
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// FS returns the filesystem used for cookies, CAPTCHA images and local documents.
func (a *App) FS() afero.Fs { return a.fs }

// Scraper returns the configured scraper.
func (a *App) Scraper() *scraper.Scraper { return a.scraper }

// Session returns the session manager.
func (a *App) Session() *session.Manager { return a.session }

// LimitHits returns the instants whose rows exceeded the portal cap so far.
func (a *App) LimitHits() []downloader.LimitHit { return a.limits.Hits() }

// BlobStore returns the document store selected by storage.backend.
func (a *App) BlobStore(ctx context.Context) (resource.BlobStore, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.blobs != nil {
		return a.blobs, nil
	}
	switch a.cfg.Storage.Backend {
	case "memory":
		a.blobs = memory.NewBlobStore()
	case "gcs":
		client, err := gcsclient.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		store, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Storage.GCSBucket})
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		a.gcs = client
		a.blobs = store
	default:
		store, err := local.New(a.fs, local.Config{BaseDir: a.cfg.Download.OutputDir, CreateDir: a.cfg.Download.CreateDir})
		if err != nil {
			return nil, err
		}
		a.blobs = store
	}
	return a.blobs, nil
}

// Publisher returns the Pub/Sub publisher, or ErrNotConfigured when no topic is set.
func (a *App) Publisher(ctx context.Context) (resource.Publisher, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.publisher != nil {
		return a.publisher, nil
	}
	if a.cfg.PubSub.TopicName == "" {
		return nil, ErrNotConfigured
	}
	pub, err := pubsub.New(ctx, pubsub.Config{ProjectID: a.cfg.PubSub.ProjectID, TopicName: a.cfg.PubSub.TopicName}, a.logger)
	if err != nil {
		return nil, err
	}
	a.publisher = pub
	return pub, nil
}

// MetadataRepository connects to Postgres and ensures the table exists, or returns
// ErrNotConfigured when db.dsn is empty.
func (a *App) MetadataRepository(ctx context.Context) (store.MetadataRepository, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.repo != nil {
		return a.repo, nil
	}
	if a.cfg.DB.DSN == "" {
		return nil, ErrNotConfigured
	}
	repo, err := postgres.New(ctx, postgres.Config{DSN: a.cfg.DB.DSN, Table: a.cfg.DB.Table, MaxConns: a.cfg.DB.MaxConns})
	if err != nil {
		return nil, err
	}
	if err := repo.EnsureSchema(ctx); err != nil {
		repo.Close()
		return nil, err
	}
	a.repo = repo
	return repo, nil
}

// SaveCookies writes the cookie jar when http.cookie_file is set.
func (a *App) SaveCookies() error {
	if a.cfg.HTTP.CookieFile == "" {
		return nil
	}
	if err := a.jar.Save(a.fs, a.cfg.HTTP.CookieFile); err != nil {
		return fmt.Errorf("save cookies: %w", err)
	}
	return nil
}

func (a *App) shutdownCaptcha() {
	if a.stopCaptcha == nil {
		return
	}
	a.stopCaptcha()
	if err := <-a.captchaDone; err != nil {
		a.logger.Warn("captcha server stopped with error", zap.Error(err))
	}
	a.stopCaptcha = nil
}

// Close persists cookies and releases every client.
func (a *App) Close(ctx context.Context) {
	if err := a.SaveCookies(); err != nil {
		a.logger.Warn("error saving cookies", zap.Error(err))
	}
	a.shutdownCaptcha()

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("error closing pubsub client", zap.Error(err))
		}
	}
	if a.repo != nil {
		a.repo.Close()
	}
	if a.gcs != nil {
		if err := a.gcs.Close(); err != nil {
			a.logger.Warn("error closing storage client", zap.Error(err))
		}
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("error shutting down tracer provider", zap.Error(err))
		}
	}
}
