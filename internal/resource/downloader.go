// Package resource downloads the files linked from metadata rows (XML, PDF and cancellation
// receipts) with bounded concurrency. Failures are isolated per item and reported to a Handler.
package resource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/cfdi-sat-scraper/internal/gateway"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/metadata"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/metrics"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/portal"
)

// DefaultConcurrency is the number of in-flight requests used by the scraper facade.
const DefaultConcurrency = 10

// xmlMarker must appear in every CFDI document.
var xmlMarker = []byte(`UUID="`)

// Fetcher performs the GET of a resource link. A non-nil error means no response was received.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (gateway.Response, error)
}

// Handler receives the outcome of every item. Both methods may be called concurrently.
type Handler interface {
	OnSuccess(ctx context.Context, uuid string, content []byte, res gateway.Response) error
	OnError(ctx context.Context, err *DownloadError)
}

// HandlerFuncs adapts a pair of functions to Handler. Nil functions are skipped.
type HandlerFuncs struct {
	Success func(ctx context.Context, uuid string, content []byte, res gateway.Response) error
	Error   func(ctx context.Context, err *DownloadError)
}

// OnSuccess implements Handler.
func (h HandlerFuncs) OnSuccess(ctx context.Context, uuid string, content []byte, res gateway.Response) error {
	if h.Success == nil {
		return nil
	}
	return h.Success(ctx, uuid, content, res)
}

// OnError implements Handler.
func (h HandlerFuncs) OnError(ctx context.Context, err *DownloadError) {
	if h.Error != nil {
		h.Error(ctx, err)
	}
}

// Downloader fetches one resource type for every row of a metadata list.
type Downloader struct {
	fetcher      Fetcher
	resourceType portal.ResourceType
	list         metadata.List
	concurrency  int
	logger       *zap.Logger
}

// NewDownloader builds a Downloader. Concurrency below one is raised to one.
func NewDownloader(fetcher Fetcher, resourceType portal.ResourceType, list metadata.List, concurrency int, logger *zap.Logger) *Downloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Downloader{
		fetcher:      fetcher,
		resourceType: resourceType,
		list:         list,
		concurrency:  max(1, concurrency),
		logger:       logger,
	}
}

// ResourceType returns the type being downloaded.
func (d *Downloader) ResourceType() portal.ResourceType { return d.resourceType }

// Concurrency returns the maximum number of in-flight requests.
func (d *Downloader) Concurrency() int { return d.concurrency }

// List returns the metadata the downloader was built with.
func (d *Downloader) List() metadata.List { return d.list }

type job struct {
	uuid string
	url  string
}

func (d *Downloader) jobs() ([]job, error) {
	if !d.resourceType.Valid() {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResourceType, d.resourceType)
	}
	linked := d.list.FilterWithResourceLink(d.resourceType)
	jobs := make([]job, 0, linked.Len())
	for _, item := range linked.Items() {
		link := item.ResourceURL(d.resourceType)
		if _, err := url.ParseRequestURI(link); err != nil {
			return nil, fmt.Errorf("resource link of %s: %w", item.UUID(), err)
		}
		jobs = append(jobs, job{uuid: item.UUID(), url: link})
	}
	return jobs, nil
}

// Download fetches every linked resource and blocks until all requests complete. Item failures
// go to handler.OnError and never abort the batch; the returned UUIDs are the items whose
// success path finished without error, in completion order. An error is returned only when
// the batch cannot be built.
func (d *Downloader) Download(ctx context.Context, handler Handler) ([]string, error) {
	jobs, err := d.jobs()
	if err != nil {
		return nil, err
	}
	batch := uuid.NewString()
	logger := d.logger.With(
		zap.String("batch_id", batch),
		zap.Stringer("resource", d.resourceType),
	)
	logger.Debug("resource download started", zap.Int("count", len(jobs)), zap.Int("concurrency", d.concurrency))

	var (
		mu        sync.Mutex
		succeeded = make([]string, 0, len(jobs))
	)
	g := new(errgroup.Group)
	g.SetLimit(d.concurrency)
	for _, j := range jobs {
		g.Go(func() error {
			if d.run(ctx, logger, j, handler) {
				mu.Lock()
				succeeded = append(succeeded, j.uuid)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	logger.Info("resource download finished",
		zap.Int("count", len(jobs)),
		zap.Int("succeeded", len(succeeded)),
	)
	return succeeded, nil
}

func (d *Downloader) run(ctx context.Context, logger *zap.Logger, j job, handler Handler) (ok bool) {
	metrics.IncActiveDownloads()
	defer metrics.DecActiveDownloads()

	var size int
	dlErr := d.fetch(ctx, j, handler, &size)
	if dlErr == nil {
		metrics.ObserveDownload(d.resourceType.String(), metrics.OutcomeSuccess, size)
		return true
	}
	if dlErr.UUID == "" {
		dlErr.UUID = j.uuid
	}
	metrics.ObserveDownload(d.resourceType.String(), metrics.OutcomeError, size)
	logger.Warn("resource download failed", zap.String("uuid", j.uuid), zap.Error(dlErr))
	d.notifyError(ctx, logger, handler, dlErr)
	return false
}

func (d *Downloader) fetch(ctx context.Context, j job, handler Handler, size *int) (dlErr *DownloadError) {
	defer func() {
		if r := recover(); r != nil {
			dlErr = &DownloadError{UUID: j.uuid, Kind: ErrDownload, Reason: ReasonOf(r)}
		}
	}()

	res, err := d.fetcher.Fetch(ctx, j.url)
	if err != nil {
		kind := ErrDownload
		if errors.Is(err, gateway.ErrTransport) {
			kind = ErrRequest
		}
		return &DownloadError{UUID: j.uuid, Kind: kind, Reason: ReasonOf(err)}
	}
	*size = len(res.Body)
	if verr := d.validate(j.uuid, res); verr != nil {
		return verr
	}
	return d.success(ctx, j.uuid, res, handler)
}

func (d *Downloader) validate(id string, res gateway.Response) *DownloadError {
	fail := func(kind error, reason Reason) *DownloadError {
		return &DownloadError{UUID: id, Kind: kind, Reason: reason, Response: &res}
	}
	if res.StatusCode != http.StatusOK {
		return fail(ErrInvalidStatus, reasonf("unexpected status code %d", res.StatusCode))
	}
	if len(res.Body) == 0 {
		return fail(ErrEmptyContent, reasonf("response body is empty"))
	}
	switch {
	case d.resourceType.IsXML():
		if !bytes.Contains(res.Body, xmlMarker) {
			return fail(ErrContentMismatch, reasonf("content is not a CFDI document"))
		}
	case d.resourceType.IsPDF():
		detected := mimetype.Detect(res.Body)
		if !detected.Is("application/pdf") {
			return fail(ErrContentMismatch, reasonf("expected application/pdf, got %s", detected.String()))
		}
	}
	return nil
}

func (d *Downloader) success(ctx context.Context, id string, res gateway.Response, handler Handler) (dlErr *DownloadError) {
	defer func() {
		if r := recover(); r != nil {
			dlErr = &DownloadError{UUID: id, Kind: ErrHandler, Reason: ReasonOf(r), Response: &res}
		}
	}()
	err := handler.OnSuccess(ctx, id, res.Body, res)
	if err == nil {
		return nil
	}
	var typed *DownloadError
	if errors.As(err, &typed) && errors.Is(typed.Kind, ErrResponse) {
		return typed
	}
	return &DownloadError{UUID: id, Kind: ErrHandler, Reason: ReasonOf(err), Response: &res}
}

func (d *Downloader) notifyError(ctx context.Context, logger *zap.Logger, handler Handler, dlErr *DownloadError) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("error handler panicked", zap.String("uuid", dlErr.UUID), zap.Any("panic", r))
		}
	}()
	handler.OnError(ctx, dlErr)
}
