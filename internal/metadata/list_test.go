package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cfdi-sat-scraper/internal/portal"
)

func mustMetadata(t *testing.T, uuid string, data map[string]string) Metadata {
	t.Helper()
	m, err := New(uuid, data)
	require.NoError(t, err)
	return m
}

func TestNewRequiresUUID(t *testing.T) {
	t.Parallel()

	_, err := New("  ", nil)
	require.ErrorIs(t, err, ErrEmptyUUID)

	m := mustMetadata(t, "abc", map[string]string{"total": "10.00", "uuid": "ignored"})
	assert.Equal(t, "abc", m.UUID())
	assert.Equal(t, "abc", m.Get("uuid"))
	assert.Equal(t, "10.00", m.Get("total"))
	assert.Empty(t, m.Get("missing"))
	assert.False(t, m.Has("missing"))
}

func TestMetadataDataIsCopied(t *testing.T) {
	t.Parallel()

	source := map[string]string{"total": "1"}
	m := mustMetadata(t, "abc", source)
	source["total"] = "2"
	data := m.Data()
	data["total"] = "3"
	assert.Equal(t, "1", m.Get("total"))
}

func TestMergeDisjointAddsCounts(t *testing.T) {
	t.Parallel()

	a := NewList(mustMetadata(t, "a1", nil), mustMetadata(t, "a2", nil))
	b := NewList(mustMetadata(t, "b1", nil))

	merged := a.Merge(b)
	assert.Equal(t, a.Len()+b.Len(), merged.Len())
	assert.Equal(t, []string{"a1", "a2", "b1"}, merged.Uuids())
}

func TestMergeOverlappingLastWriterWins(t *testing.T) {
	t.Parallel()

	a := NewList(
		mustMetadata(t, "X", map[string]string{"source": "a"}),
		mustMetadata(t, "y", map[string]string{"source": "a"}),
	)
	b := NewList(mustMetadata(t, "x", map[string]string{"source": "b"}))

	merged := a.Merge(b)
	require.Equal(t, 2, merged.Len())
	item, err := merged.Get("X")
	require.NoError(t, err)
	assert.Equal(t, "b", item.Get("source"))
	assert.Equal(t, "x", item.UUID())

	// Operands stay untouched.
	original, ok := a.Find("x")
	require.True(t, ok)
	assert.Equal(t, "a", original.Get("source"))
	assert.Equal(t, 2, a.Len())
	assert.Equal(t, 1, b.Len())
}

func TestNewListDeduplicatesCaseInsensitive(t *testing.T) {
	t.Parallel()

	l := NewList(mustMetadata(t, "ABC", nil), mustMetadata(t, "abc", nil))
	assert.Equal(t, 1, l.Len())
	assert.True(t, l.Has("AbC"))
	assert.Equal(t, []string{"abc"}, l.Uuids())
}

func TestGetMissingFails(t *testing.T) {
	t.Parallel()

	_, err := NewList().Get("nope")
	require.True(t, errors.Is(err, ErrNotFound))

	_, ok := NewList().Find("nope")
	assert.False(t, ok)
}

func TestFilters(t *testing.T) {
	t.Parallel()

	l := NewList(
		mustMetadata(t, "a", map[string]string{portal.ResourceXML.MetadataKey(): "https://x/a"}),
		mustMetadata(t, "b", nil),
		mustMetadata(t, "c", map[string]string{portal.ResourceXML.MetadataKey(): "https://x/c"}),
	)

	assert.Equal(t, []string{"a", "c"}, l.FilterWithUuids([]string{"A", "C", "z"}).Uuids())
	assert.Equal(t, []string{"b"}, l.FilterWithOutUuids([]string{"a", "C"}).Uuids())
	assert.Equal(t, []string{"a", "c"}, l.FilterWithResourceLink(portal.ResourceXML).Uuids())
	assert.Zero(t, l.FilterWithResourceLink(portal.ResourcePDF).Len())
	assert.Equal(t, 3, l.Len())
}

func TestZeroListIsUsable(t *testing.T) {
	t.Parallel()

	var l List
	assert.Zero(t, l.Len())
	assert.Empty(t, l.Items())
	merged := l.Merge(NewList(mustMetadata(t, "a", nil)))
	assert.Equal(t, 1, merged.Len())
}

func TestMetadataJSONRoundTrip(t *testing.T) {
	t.Parallel()

	m := mustMetadata(t, "abc", map[string]string{"total": "5"})
	raw, err := json.Marshal(m)
	require.NoError(t, err)

	var decoded Metadata
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, m.Data(), decoded.Data())

	require.Error(t, json.Unmarshal([]byte(`{"total":"5"}`), &decoded))
}

func TestLargeMergeKeepsInsertionOrder(t *testing.T) {
	t.Parallel()

	var items []Metadata
	for i := 0; i < 50; i++ {
		items = append(items, mustMetadata(t, fmt.Sprintf("u%02d", i), nil))
	}
	l := NewList(items[:25]...).Merge(NewList(items[25:]...))
	uuids := l.Uuids()
	require.Len(t, uuids, 50)
	assert.Equal(t, "u00", uuids[0])
	assert.Equal(t, "u49", uuids[49])
}
