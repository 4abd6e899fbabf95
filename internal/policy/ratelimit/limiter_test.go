package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterWaitsBetweenTokens(t *testing.T) {
	t.Parallel()

	l := New(Config{RequestsPerSecond: 10, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://portalcfdi.facturaelectronica.sat.gob.mx/"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://portalcfdi.facturaelectronica.sat.gob.mx/ConsultaEmisor.aspx"))
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestLimiterHostsAreIndependent(t *testing.T) {
	t.Parallel()

	l := New(Config{RequestsPerSecond: 1, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://a.test/1"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://b.test/1"))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, 2, l.Hosts())
}

func TestLimiterHonorsContext(t *testing.T) {
	t.Parallel()

	l := New(Config{RequestsPerSecond: 0.1, Burst: 1})
	require.NoError(t, l.Wait(context.Background(), "https://a.test/"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx, "https://a.test/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a.test")
}

func TestLimiterUnlimitedAndUnparsable(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	ctx := context.Background()
	for range 50 {
		require.NoError(t, l.Wait(ctx, "::not a url"))
	}
	assert.Equal(t, 1, l.Hosts())
	assert.Equal(t, "unknown", hostOf("::not a url"))
}
