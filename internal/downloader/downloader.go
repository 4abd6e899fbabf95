// Package downloader lists metadata over arbitrary periods or UUID sets while keeping every
// single portal query under the server's row cap.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/cfdi-sat-scraper/internal/metadata"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/metrics"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/portal"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/query"
)

// MaxRecordsPerQuery is the number of rows at which the portal silently truncates a result.
const MaxRecordsPerQuery = 500

// ErrQuerySpansDays is returned when DownloadQuery receives a period crossing midnight.
var ErrQuerySpansDays = errors.New("query must start and end on the same day")

// QueryResolver runs a single portal query.
type QueryResolver interface {
	Resolve(ctx context.Context, q query.Query) (metadata.List, error)
}

// Downloader orchestrates queries. Resolver failures are returned unmodified.
type Downloader struct {
	resolver QueryResolver
	limit    LimitHandler
	logger   *zap.Logger
}

// New builds a Downloader. A nil limit handler ignores limit hits.
func New(resolver QueryResolver, limit LimitHandler, logger *zap.Logger) *Downloader {
	if limit == nil {
		limit = NopLimitHandler{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Downloader{resolver: resolver, limit: limit, logger: logger}
}

// DownloadByUuids resolves each distinct UUID, compared case-insensitively, and merges the
// results in input order.
func (d *Downloader) DownloadByUuids(ctx context.Context, uuids []string, downloadType portal.DownloadType) (metadata.List, error) {
	result := metadata.NewList()
	for _, uuid := range dedupeUuids(uuids) {
		q, err := query.NewByUUID(downloadType, uuid)
		if err != nil {
			return metadata.List{}, err
		}
		list, err := d.resolver.Resolve(ctx, q)
		if err != nil {
			return metadata.List{}, err
		}
		result = result.Merge(list)
	}
	return result, nil
}

// dedupeUuids keeps one entry per UUID at its first position, spelled as its last occurrence.
func dedupeUuids(uuids []string) []string {
	index := make(map[string]int, len(uuids))
	out := make([]string, 0, len(uuids))
	for _, uuid := range uuids {
		key := strings.ToLower(strings.TrimSpace(uuid))
		if i, seen := index[key]; seen {
			out[i] = uuid
			continue
		}
		index[key] = len(out)
		out = append(out, uuid)
	}
	return out
}

// DownloadByDate widens the query period to whole days and downloads it.
func (d *Downloader) DownloadByDate(ctx context.Context, q query.ByFilters) (metadata.List, error) {
	start, end := q.Start(), q.End()
	widened, err := q.WithPeriod(startOfDay(start), endOfDay(end))
	if err != nil {
		return metadata.List{}, err
	}
	return d.DownloadByDateTime(ctx, widened)
}

// DownloadByDateTime splits the exact query period into calendar days and downloads each one
// in order.
func (d *Downloader) DownloadByDateTime(ctx context.Context, q query.ByFilters) (metadata.List, error) {
	start := q.Start().Truncate(time.Second)
	end := q.End().Truncate(time.Second)

	result := metadata.NewList()
	for day := startOfDay(start); !day.After(end); day = nextDay(day) {
		dayStart := latest(start, day)
		dayEnd := earliest(end, endOfDay(day))
		dayQuery, err := q.WithPeriod(dayStart, dayEnd)
		if err != nil {
			return metadata.List{}, err
		}
		list, err := d.DownloadQuery(ctx, dayQuery)
		if err != nil {
			return metadata.List{}, err
		}
		result = result.Merge(list)
	}
	return result, nil
}

// DownloadQuery downloads a period inside one day. Windows reaching the row cap are halved
// until they fit; a single second that still reaches the cap is reported to the limit
// handler and kept as is.
func (d *Downloader) DownloadQuery(ctx context.Context, q query.ByFilters) (metadata.List, error) {
	day := startOfDay(q.Start())
	if !startOfDay(q.End()).Equal(day) {
		return metadata.List{}, fmt.Errorf("%w: %s - %s", ErrQuerySpansDays,
			q.Start().Format(time.DateTime), q.End().Format(time.DateTime))
	}
	downloadType := q.DownloadType()
	lowerBound := secondOfDay(q.Start())
	upperBound := secondOfDay(q.End())

	result := metadata.NewList()
	secondInitial, secondEnd := lowerBound, upperBound
	for {
		window, err := q.WithPeriod(atSecond(day, secondInitial), atSecond(day, secondEnd))
		if err != nil {
			return metadata.List{}, err
		}
		list, err := d.resolver.Resolve(ctx, window)
		if err != nil {
			return metadata.List{}, err
		}
		count := list.Len()
		d.logger.Debug("window resolved",
			zap.Stringer("download_type", downloadType),
			zap.Time("start", window.Start()),
			zap.Time("end", window.End()),
			zap.Int("count", count),
		)

		if count >= MaxRecordsPerQuery && secondEnd == secondInitial {
			metrics.ObserveLimitHit(downloadType.String())
			d.logger.Warn("row limit reached on a single second",
				zap.Stringer("download_type", downloadType),
				zap.Time("moment", window.Start()),
				zap.Int("count", count),
			)
			d.limit.HandleLimit(ctx, downloadType, window.Start())
		}
		if count >= MaxRecordsPerQuery && secondEnd > secondInitial {
			metrics.ObserveBisectionSplit(downloadType.String())
			secondEnd = secondInitial + (secondEnd-secondInitial)/2
			continue
		}

		result = result.Merge(list)
		if secondEnd >= upperBound {
			return result, nil
		}
		secondInitial, secondEnd = secondEnd+1, upperBound
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
}

func nextDay(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day()+1, 0, 0, 0, 0, day.Location())
}

func secondOfDay(t time.Time) int {
	return t.Hour()*3600 + t.Minute()*60 + t.Second()
}

func atSecond(day time.Time, second int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, second, 0, day.Location())
}

func latest(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func earliest(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
