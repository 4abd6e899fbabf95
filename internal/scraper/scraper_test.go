package scraper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cfdi-sat-scraper/internal/downloader"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/metadata"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/portal"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/query"
)

type mockSession struct {
	mock.Mock
}

func (m *mockSession) HasLogin(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *mockSession) Login(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockSession) RegisterOnPortalMainPage(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockSession) Logout(ctx context.Context) {
	m.Called(ctx)
}

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) Resolve(ctx context.Context, q query.Query) (metadata.List, error) {
	args := m.Called(ctx, q)
	return args.Get(0).(metadata.List), args.Error(1)
}

func list(t *testing.T, uuids ...string) metadata.List {
	t.Helper()
	items := make([]metadata.Metadata, 0, len(uuids))
	for _, id := range uuids {
		item, err := metadata.New(id, nil)
		require.NoError(t, err)
		items = append(items, item)
	}
	return metadata.NewList(items...)
}

func TestConfirmSessionIsAliveReusesSession(t *testing.T) {
	t.Parallel()

	sess := &mockSession{}
	sess.On("HasLogin", mock.Anything).Return(true, nil)
	sess.On("RegisterOnPortalMainPage", mock.Anything).Return(nil)

	require.NoError(t, New(sess, nil, nil, WithResolver(&mockResolver{})).ConfirmSessionIsAlive(context.Background()))
	sess.AssertExpectations(t)
	sess.AssertNotCalled(t, "Login", mock.Anything)
}

func TestConfirmSessionIsAliveLogsIn(t *testing.T) {
	t.Parallel()

	sess := &mockSession{}
	sess.On("HasLogin", mock.Anything).Return(false, nil)
	sess.On("Login", mock.Anything).Return(nil)
	sess.On("RegisterOnPortalMainPage", mock.Anything).Return(nil)

	require.NoError(t, New(sess, nil, nil, WithResolver(&mockResolver{})).ConfirmSessionIsAlive(context.Background()))
	sess.AssertExpectations(t)
}

func TestConfirmSessionIsAlivePropagatesLoginFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("captcha unresolved")
	sess := &mockSession{}
	sess.On("HasLogin", mock.Anything).Return(false, nil)
	sess.On("Login", mock.Anything).Return(boom)

	err := New(sess, nil, nil, WithResolver(&mockResolver{})).ConfirmSessionIsAlive(context.Background())
	require.ErrorIs(t, err, boom)
	sess.AssertNotCalled(t, "RegisterOnPortalMainPage", mock.Anything)
}

func TestListByUuids(t *testing.T) {
	t.Parallel()

	sess := &mockSession{}
	sess.On("HasLogin", mock.Anything).Return(true, nil)
	sess.On("RegisterOnPortalMainPage", mock.Anything).Return(nil)
	res := &mockResolver{}
	res.On("Resolve", mock.Anything, mock.MatchedBy(func(q query.ByUUID) bool { return q.UUID().Value() == "a" })).
		Return(list(t, "a"), nil)
	res.On("Resolve", mock.Anything, mock.MatchedBy(func(q query.ByUUID) bool { return q.UUID().Value() == "b" })).
		Return(list(t, "b"), nil)

	got, err := New(sess, nil, nil, WithResolver(res)).ListByUuids(context.Background(), []string{"a", "b"}, portal.Received)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got.Uuids())
	res.AssertNumberOfCalls(t, "Resolve", 2)
}

func TestListByPeriodWidensAndReportsLimits(t *testing.T) {
	t.Parallel()

	sess := &mockSession{}
	sess.On("HasLogin", mock.Anything).Return(true, nil)
	sess.On("RegisterOnPortalMainPage", mock.Anything).Return(nil)

	var windows [][2]time.Time
	res := &mockResolver{}
	res.On("Resolve", mock.Anything, mock.AnythingOfType("query.ByFilters")).
		Run(func(args mock.Arguments) {
			q := args.Get(1).(query.ByFilters)
			windows = append(windows, [2]time.Time{q.Start(), q.End()})
		}).
		Return(list(t, "x"), nil)

	limits := downloader.NewCollectingLimitHandler(nil)
	start := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	q, err := query.NewByFilters(portal.Issued, start, start.Add(time.Hour))
	require.NoError(t, err)

	got, err := New(sess, nil, nil, WithResolver(res), WithLimitHandler(limits)).ListByPeriod(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Len())
	require.Len(t, windows, 1)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), windows[0][0])
	assert.Equal(t, time.Date(2024, 6, 1, 23, 59, 59, 0, time.UTC), windows[0][1])
	assert.Empty(t, limits.Hits())
}

func TestListStopsWhenSessionFails(t *testing.T) {
	t.Parallel()

	boom := errors.New("not registered")
	sess := &mockSession{}
	sess.On("HasLogin", mock.Anything).Return(true, nil)
	sess.On("RegisterOnPortalMainPage", mock.Anything).Return(boom)
	res := &mockResolver{}

	q, err := query.NewByFilters(portal.Issued, time.Now(), time.Now())
	require.NoError(t, err)
	_, err = New(sess, nil, nil, WithResolver(res)).ListByDateTime(context.Background(), q)
	require.ErrorIs(t, err, boom)
	res.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything)
}

func TestResourceDownloader(t *testing.T) {
	t.Parallel()

	d := New(&mockSession{}, nil, nil, WithResolver(&mockResolver{})).
		ResourceDownloader(portal.ResourcePDF, list(t, "a"), 0)
	assert.Equal(t, portal.ResourcePDF, d.ResourceType())
	assert.Equal(t, 1, d.Concurrency())
	assert.Equal(t, 1, d.List().Len())
}
