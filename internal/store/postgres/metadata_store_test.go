package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cfdi-sat-scraper/internal/metadata"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/portal"
)

func newStore(t *testing.T) (*MetadataStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewWithPool(mock, "")
	require.NoError(t, err)
	store.now = func() time.Time { return time.Unix(1700000000, 0) }
	return store, mock
}

func TestSaveMetadataUpsertsRows(t *testing.T) {
	t.Parallel()

	store, mock := newStore(t)
	item, err := metadata.New("ABC-1", map[string]string{"rfcEmisor": "AAA010101AAA"})
	require.NoError(t, err)
	listedAt := time.Unix(1700000000, 0).UTC()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO cfdi_metadata").
		WithArgs("abc-1", "issued", []byte(`{"rfcEmisor":"AAA010101AAA","uuid":"ABC-1"}`), listedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := store.SaveMetadata(context.Background(), portal.Issued, metadata.NewList(item))
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveMetadataRollsBackOnFailure(t *testing.T) {
	t.Parallel()

	store, mock := newStore(t)
	item, err := metadata.New("x", nil)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO cfdi_metadata").
		WithArgs("x", "received", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err = store.SaveMetadata(context.Background(), portal.Received, metadata.NewList(item))
	require.ErrorContains(t, err, "disk full")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveMetadataEmptyListIsNoop(t *testing.T) {
	t.Parallel()

	store, mock := newStore(t)
	n, err := store.SaveMetadata(context.Background(), portal.Issued, metadata.NewList())
	require.NoError(t, err)
	require.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	store, mock := newStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS cfdi_metadata").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewWithPoolValidatesTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewWithPool(mock, "drop table;")
	require.Error(t, err)
	_, err = NewWithPool(nil, "")
	require.Error(t, err)
}
