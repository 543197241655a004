package reports

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TCaken/loancrm/internal/reconcile"
)

func newTestCache(t *testing.T) (*SummaryCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSummaryCache(client, nil), mr
}

func TestPutAndGetRoundTrip(t *testing.T) {
	cache, mr := newTestCache(t)

	sum := &reconcile.Summary{
		Mode:       reconcile.ModeRealtime,
		TargetDate: "2025-03-10",
		Processed:  4,
		Updated:    2,
		Skipped:    1,
		Errors:     1,
		Notes:      []string{"row 3: bad date"},
	}
	require.NoError(t, cache.Put(context.Background(), sum))

	got, err := cache.Get(context.Background(), reconcile.ModeRealtime, "2025-03-10")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, sum.Processed, got.Processed)
	assert.Equal(t, sum.Notes, got.Notes)

	// Keys expire after the retention window.
	ttl := mr.TTL("reconcile:summary:realtime:2025-03-10")
	assert.Equal(t, summaryTTL, ttl)
}

func TestGetMissReturnsNil(t *testing.T) {
	cache, _ := newTestCache(t)

	got, err := cache.Get(context.Background(), reconcile.ModeEndOfDay, "2025-03-09")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLatestPassWins(t *testing.T) {
	cache, _ := newTestCache(t)

	require.NoError(t, cache.Put(context.Background(), &reconcile.Summary{Mode: reconcile.ModeEndOfDay, TargetDate: "2025-03-10", Processed: 1}))
	require.NoError(t, cache.Put(context.Background(), &reconcile.Summary{Mode: reconcile.ModeEndOfDay, TargetDate: "2025-03-10", Processed: 9}))

	got, err := cache.Get(context.Background(), reconcile.ModeEndOfDay, "2025-03-10")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 9, got.Processed)
}
