package downloader

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/cfdi-sat-scraper/internal/portal"
)

// LimitHandler is told about every single-second window that still returned the row cap,
// meaning some documents issued at that instant could not be listed.
type LimitHandler interface {
	HandleLimit(ctx context.Context, downloadType portal.DownloadType, moment time.Time)
}

// LimitHandlerFunc adapts a function to LimitHandler.
type LimitHandlerFunc func(ctx context.Context, downloadType portal.DownloadType, moment time.Time)

// HandleLimit implements LimitHandler.
func (f LimitHandlerFunc) HandleLimit(ctx context.Context, downloadType portal.DownloadType, moment time.Time) {
	f(ctx, downloadType, moment)
}

// NopLimitHandler ignores limit hits.
type NopLimitHandler struct{}

// HandleLimit implements LimitHandler.
func (NopLimitHandler) HandleLimit(context.Context, portal.DownloadType, time.Time) {}

// LimitHit is one recorded limit hit.
type LimitHit struct {
	DownloadType portal.DownloadType
	Moment       time.Time
}

// CollectingLimitHandler records every hit and optionally logs it.
type CollectingLimitHandler struct {
	mu     sync.Mutex
	hits   []LimitHit
	logger *zap.Logger
}

// NewCollectingLimitHandler builds a CollectingLimitHandler. A nil logger disables logging.
func NewCollectingLimitHandler(logger *zap.Logger) *CollectingLimitHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CollectingLimitHandler{logger: logger}
}

// HandleLimit implements LimitHandler.
func (h *CollectingLimitHandler) HandleLimit(_ context.Context, downloadType portal.DownloadType, moment time.Time) {
	h.mu.Lock()
	h.hits = append(h.hits, LimitHit{DownloadType: downloadType, Moment: moment})
	h.mu.Unlock()
	h.logger.Debug("limit hit recorded",
		zap.Stringer("download_type", downloadType),
		zap.Time("moment", moment),
	)
}

// Hits returns the recorded hits in arrival order.
func (h *CollectingLimitHandler) Hits() []LimitHit {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]LimitHit, len(h.hits))
	copy(out, h.hits)
	return out
}
