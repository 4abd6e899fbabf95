// Package scraper is the entry point for library users: it keeps the session alive and exposes
// metadata listing and resource downloading over a shared gateway.
package scraper

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/cfdi-sat-scraper/internal/downloader"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/extractor"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/gateway"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/metadata"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/portal"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/query"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/resolver"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/resource"
)

const tracerName = "github.com/JakeFAU/cfdi-sat-scraper/internal/scraper"

// Session is the part of the session manager the scraper drives.
type Session interface {
	HasLogin(ctx context.Context) (bool, error)
	Login(ctx context.Context) error
	RegisterOnPortalMainPage(ctx context.Context) error
	Logout(ctx context.Context)
}

// Scraper wires session, resolver and downloaders together.
type Scraper struct {
	session  Session
	gateway  *gateway.Gateway
	limit    downloader.LimitHandler
	resolver downloader.QueryResolver
	logger   *zap.Logger
	tracer   trace.Tracer
}

// Option customizes a Scraper.
type Option func(*Scraper)

// WithLimitHandler receives the instants whose rows could not all be listed.
func WithLimitHandler(limit downloader.LimitHandler) Option {
	return func(s *Scraper) {
		s.limit = limit
	}
}

// WithResolver replaces the postback resolver, mostly for tests.
func WithResolver(r downloader.QueryResolver) Option {
	return func(s *Scraper) {
		s.resolver = r
	}
}

// New builds a Scraper. The resolver defaults to the portal resolver over gw with the
// standard column captions.
func New(sess Session, gw *gateway.Gateway, logger *zap.Logger, opts ...Option) *Scraper {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scraper{
		session: sess,
		gateway: gw,
		limit:   downloader.NopLimitHandler{},
		logger:  logger,
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.resolver == nil {
		s.resolver = resolver.New(gw, extractor.DefaultCaptions(), logger)
	}
	return s
}

// ConfirmSessionIsAlive logs in when the stored cookies do not hold a session and then
// registers on the portal main page.
func (s *Scraper) ConfirmSessionIsAlive(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "scraper.ConfirmSessionIsAlive")
	defer span.End()

	alive, err := s.session.HasLogin(ctx)
	if err != nil {
		return s.fail(span, err)
	}
	if !alive {
		s.logger.Info("session not alive, logging in")
		if err := s.session.Login(ctx); err != nil {
			return s.fail(span, err)
		}
	}
	if err := s.session.RegisterOnPortalMainPage(ctx); err != nil {
		return s.fail(span, err)
	}
	span.SetAttributes(attribute.Bool("satscraper.session_reused", alive))
	return nil
}

// Logout ends the session and clears the cookie jar.
func (s *Scraper) Logout(ctx context.Context) {
	s.session.Logout(ctx)
}

func (s *Scraper) downloader() *downloader.Downloader {
	return downloader.New(s.resolver, s.limit, s.logger)
}

// ListByUuids lists the metadata of each UUID.
func (s *Scraper) ListByUuids(ctx context.Context, uuids []string, downloadType portal.DownloadType) (metadata.List, error) {
	ctx, span := s.tracer.Start(ctx, "scraper.ListByUuids", trace.WithAttributes(
		attribute.Int("satscraper.uuids", len(uuids)),
		attribute.String("satscraper.download_type", downloadType.String()),
	))
	defer span.End()

	if err := s.ConfirmSessionIsAlive(ctx); err != nil {
		return metadata.List{}, s.fail(span, err)
	}
	list, err := s.downloader().DownloadByUuids(ctx, uuids, downloadType)
	if err != nil {
		return metadata.List{}, s.fail(span, err)
	}
	span.SetAttributes(attribute.Int("satscraper.rows", list.Len()))
	return list, nil
}

// ListByPeriod lists every document in the whole days covered by q.
func (s *Scraper) ListByPeriod(ctx context.Context, q query.ByFilters) (metadata.List, error) {
	return s.list(ctx, "scraper.ListByPeriod", q, (*downloader.Downloader).DownloadByDate)
}

// ListByDateTime lists every document in the exact instants covered by q.
func (s *Scraper) ListByDateTime(ctx context.Context, q query.ByFilters) (metadata.List, error) {
	return s.list(ctx, "scraper.ListByDateTime", q, (*downloader.Downloader).DownloadByDateTime)
}

func (s *Scraper) list(
	ctx context.Context,
	name string,
	q query.ByFilters,
	run func(*downloader.Downloader, context.Context, query.ByFilters) (metadata.List, error),
) (metadata.List, error) {
	ctx, span := s.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("satscraper.download_type", q.DownloadType().String()),
		attribute.String("satscraper.start", q.Start().Format("2006-01-02T15:04:05")),
		attribute.String("satscraper.end", q.End().Format("2006-01-02T15:04:05")),
	))
	defer span.End()

	if err := s.ConfirmSessionIsAlive(ctx); err != nil {
		return metadata.List{}, s.fail(span, err)
	}
	list, err := run(s.downloader(), ctx, q)
	if err != nil {
		return metadata.List{}, s.fail(span, err)
	}
	span.SetAttributes(attribute.Int("satscraper.rows", list.Len()))
	s.logger.Info("metadata listed",
		zap.Stringer("download_type", q.DownloadType()),
		zap.Int("count", list.Len()),
	)
	return list, nil
}

// ResourceDownloader prepares a download of resourceType for every linked row of list. The
// session must already be alive.
func (s *Scraper) ResourceDownloader(resourceType portal.ResourceType, list metadata.List, concurrency int) *resource.Downloader {
	return resource.NewDownloader(s.gateway, resourceType, list, concurrency, s.logger)
}

func (s *Scraper) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
