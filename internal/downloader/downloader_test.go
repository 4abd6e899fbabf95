package downloader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cfdi-sat-scraper/internal/metadata"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/portal"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/query"
)

var day = time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

type window struct {
	start, end int
	count      int
}

// fakeResolver serves a fixed number of rows per second of the test day.
type fakeResolver struct {
	mu       sync.Mutex
	perSec   func(second int) int
	windows  []window
	periods  [][2]time.Time
	uuidArgs []string
	err      error
}

func (f *fakeResolver) Resolve(_ context.Context, q query.Query) (metadata.List, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return metadata.List{}, f.err
	}
	switch typed := q.(type) {
	case query.ByUUID:
		f.uuidArgs = append(f.uuidArgs, typed.UUID().Value())
		item, err := metadata.New(typed.UUID().Value(), nil)
		if err != nil {
			return metadata.List{}, err
		}
		return metadata.NewList(item), nil
	case query.ByFilters:
		f.periods = append(f.periods, [2]time.Time{typed.Start(), typed.End()})
		if f.perSec == nil {
			return metadata.NewList(), nil
		}
		start, end := secondOfDay(typed.Start()), secondOfDay(typed.End())
		var items []metadata.Metadata
		for sec := start; sec <= end; sec++ {
			for i := 0; i < f.perSec(sec); i++ {
				item, err := metadata.New(fmt.Sprintf("%s-%05d-%04d", typed.Start().Format("20060102"), sec, i), nil)
				if err != nil {
					return metadata.List{}, err
				}
				items = append(items, item)
			}
		}
		f.windows = append(f.windows, window{start: start, end: end, count: len(items)})
		return metadata.NewList(items...), nil
	}
	return metadata.List{}, errors.New("unexpected query")
}

func filters(t *testing.T, start, end time.Time) query.ByFilters {
	t.Helper()
	q, err := query.NewByFilters(portal.Issued, start, end)
	require.NoError(t, err)
	return q
}

func at(second int) time.Time {
	return day.Add(time.Duration(second) * time.Second)
}

func TestDownloadQueryBisectionSequence(t *testing.T) {
	t.Parallel()

	spikes := map[int]int{10: 250, 25: 250, 40: 250, 55: 250}
	resolver := &fakeResolver{perSec: func(s int) int { return spikes[s] }}
	limits := NewCollectingLimitHandler(nil)
	d := New(resolver, limits, nil)

	list, err := d.DownloadQuery(context.Background(), filters(t, at(1), at(58)))
	require.NoError(t, err)
	assert.Equal(t, 1000, list.Len())
	assert.Empty(t, limits.Hits())
	assert.Equal(t, []window{
		{1, 58, 1000},
		{1, 29, 500},
		{1, 15, 250},
		{16, 58, 750},
		{16, 37, 250},
		{38, 58, 500},
		{38, 48, 250},
		{49, 58, 250},
	}, resolver.windows)
}

func TestDownloadQueryCoversEverySecond(t *testing.T) {
	t.Parallel()

	const perSecond = 3
	resolver := &fakeResolver{perSec: func(int) int { return perSecond }}
	limits := NewCollectingLimitHandler(nil)
	d := New(resolver, limits, nil)

	list, err := d.DownloadQuery(context.Background(), filters(t, at(100), at(1099)))
	require.NoError(t, err)
	assert.Equal(t, perSecond*1000, list.Len())
	assert.Empty(t, limits.Hits())

	// Accumulated windows are contiguous and disjoint.
	next := 100
	for _, w := range resolver.windows {
		if w.count >= MaxRecordsPerQuery {
			continue
		}
		assert.Equal(t, next, w.start)
		next = w.end + 1
	}
	assert.Equal(t, 1100, next)
}

func TestDownloadQueryReportsUnsplittableSeconds(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{perSec: func(s int) int {
		if s == 30 || s == 70 {
			return MaxRecordsPerQuery
		}
		return 0
	}}
	limits := NewCollectingLimitHandler(nil)
	d := New(resolver, limits, nil)

	list, err := d.DownloadQuery(context.Background(), filters(t, at(0), at(99)))
	require.NoError(t, err)
	assert.Equal(t, 2*MaxRecordsPerQuery, list.Len())

	hits := limits.Hits()
	require.Len(t, hits, 2)
	assert.Equal(t, at(30), hits[0].Moment)
	assert.Equal(t, at(70), hits[1].Moment)
	assert.Equal(t, portal.Issued, hits[0].DownloadType)
}

func TestDownloadQuerySingleSecondPeriod(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{perSec: func(int) int { return 2 }}
	d := New(resolver, nil, nil)

	list, err := d.DownloadQuery(context.Background(), filters(t, at(5), at(5)))
	require.NoError(t, err)
	assert.Equal(t, 2, list.Len())
	assert.Len(t, resolver.windows, 1)
}

func TestDownloadQueryRejectsMultiDayPeriod(t *testing.T) {
	t.Parallel()

	d := New(&fakeResolver{}, nil, nil)
	_, err := d.DownloadQuery(context.Background(), filters(t, at(0), at(86400)))
	require.ErrorIs(t, err, ErrQuerySpansDays)
}

func TestDownloadByDateTimeSplitsDays(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{}
	d := New(resolver, nil, nil)
	start := time.Date(2024, 1, 1, 22, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 3, 1, 0, 0, 0, time.UTC)

	_, err := d.DownloadByDateTime(context.Background(), filters(t, start, end))
	require.NoError(t, err)
	assert.Equal(t, [][2]time.Time{
		{start, time.Date(2024, 1, 1, 23, 59, 59, 0, time.UTC)},
		{time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 2, 23, 59, 59, 0, time.UTC)},
		{time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), end},
	}, resolver.periods)
}

func TestDownloadByDateWidensToWholeDays(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{}
	d := New(resolver, nil, nil)
	start := time.Date(2024, 1, 1, 13, 14, 15, 0, time.UTC)

	_, err := d.DownloadByDate(context.Background(), filters(t, start, start.Add(time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, [][2]time.Time{
		{time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 1, 23, 59, 59, 0, time.UTC)},
	}, resolver.periods)
}

func TestDownloadByDateTimeMergesDaysInOrder(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{perSec: func(s int) int {
		if s == 0 {
			return 1
		}
		return 0
	}}
	d := New(resolver, nil, nil)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 2, 0, 0, 10, 0, time.UTC)

	list, err := d.DownloadByDateTime(context.Background(), filters(t, start, end))
	require.NoError(t, err)
	assert.Equal(t, []string{"20240101-00000-0000", "20240102-00000-0000"}, list.Uuids())
}

func TestDownloadByUuidsDeduplicates(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{}
	d := New(resolver, nil, nil)

	list, err := d.DownloadByUuids(context.Background(), []string{"A", "a", "B"}, portal.Received)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "B"}, resolver.uuidArgs)
	assert.Equal(t, 2, list.Len())
	assert.True(t, list.Has("a"))
	assert.True(t, list.Has("b"))

	assert.Equal(t, []string{"a", "B"}, dedupeUuids([]string{"A", "a", "B"}))
	assert.Empty(t, dedupeUuids(nil))
}

func TestResolverErrorsPropagate(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	d := New(&fakeResolver{err: boom}, nil, nil)

	_, err := d.DownloadByUuids(context.Background(), []string{"x"}, portal.Issued)
	require.ErrorIs(t, err, boom)
	_, err = d.DownloadQuery(context.Background(), filters(t, at(0), at(10)))
	require.ErrorIs(t, err, boom)

	_, err = d.DownloadByUuids(context.Background(), []string{" "}, portal.Issued)
	require.ErrorIs(t, err, query.ErrEmptyUUID)
}

func TestLimitHandlerFunc(t *testing.T) {
	t.Parallel()

	var got time.Time
	var h LimitHandler = LimitHandlerFunc(func(_ context.Context, _ portal.DownloadType, moment time.Time) {
		got = moment
	})
	h.HandleLimit(context.Background(), portal.Issued, at(3))
	assert.Equal(t, at(3), got)
}
