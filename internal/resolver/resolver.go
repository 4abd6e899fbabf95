// Package resolver turns a query into metadata by replaying the three postbacks of the
// portal search page: load the form, select the search mode, run the search.
package resolver

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/cfdi-sat-scraper/internal/extractor"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/htmlform"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/metadata"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/metrics"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/postback"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/query"
)

// Gateway is the part of gateway.Gateway the resolver needs.
type Gateway interface {
	GetPortalPage(ctx context.Context, pageURL string) (string, error)
	PostAjaxSearch(ctx context.Context, pageURL string, form map[string]string) (string, error)
}

// Resolver executes queries against an authenticated session.
type Resolver struct {
	gateway  Gateway
	captions map[string]string
	logger   *zap.Logger
}

// New builds a Resolver. A nil captions map uses extractor.DefaultCaptions.
func New(gw Gateway, captions map[string]string, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{gateway: gw, captions: captions, logger: logger}
}

// Resolve runs q and returns the extracted rows. Any failing step fails the whole call.
func (r *Resolver) Resolve(ctx context.Context, q query.Query) (metadata.List, error) {
	start := time.Now()
	downloadType := q.DownloadType()
	list, err := r.resolve(ctx, q)
	if err != nil {
		metrics.ObserveQuery(downloadType.String(), metrics.OutcomeError, 0)
		return metadata.List{}, err
	}
	metrics.ObserveQuery(downloadType.String(), metrics.OutcomeSuccess, list.Len())
	r.logger.Debug("query resolved",
		zap.Stringer("download_type", downloadType),
		zap.String("mode", q.CentralFilter()),
		zap.Int("count", list.Len()),
		zap.Duration("duration", time.Since(start)),
	)
	return list, nil
}

func (r *Resolver) resolve(ctx context.Context, q query.Query) (metadata.List, error) {
	pageURL := q.DownloadType().URL()

	html, err := r.gateway.GetPortalPage(ctx, pageURL)
	if err != nil {
		return metadata.List{}, fmt.Errorf("load search form: %w", err)
	}
	baseFields, err := htmlform.Fields(html, "form", htmlform.SearchFormExclusions...)
	if err != nil {
		return metadata.List{}, fmt.Errorf("read search form: %w", err)
	}

	modeFields := query.ModeFields(q)
	delta, err := r.gateway.PostAjaxSearch(ctx, pageURL, merge(baseFields, modeFields))
	if err != nil {
		return metadata.List{}, fmt.Errorf("select search mode: %w", err)
	}
	state := postback.Parse(delta)

	results, err := r.gateway.PostAjaxSearch(ctx, pageURL, merge(baseFields, modeFields, state.Map(), q.SearchFields()))
	if err != nil {
		return metadata.List{}, fmt.Errorf("run search: %w", err)
	}
	return extractor.Extract(results, r.captions), nil
}

// merge returns a new map where later maps override earlier ones.
func merge(maps ...map[string]string) map[string]string {
	size := 0
	for _, m := range maps {
		size += len(m)
	}
	out := make(map[string]string, size)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}
