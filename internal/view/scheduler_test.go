package view

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vzahanych/weather-timeline/internal/gateway"
	"github.com/vzahanych/weather-timeline/internal/storage"
	"go.uber.org/zap/zaptest"
)

func newCountingView(t *testing.T, interval time.Duration) (*View, *atomic.Int32) {
	t.Helper()
	var fetches atomic.Int32
	gw := &fakeGateway{respond: func(location string) (*gateway.RawResponse, error) {
		fetches.Add(1)
		return echo(location)
	}}
	v := New(gw, storage.NewMemory(), Options{RefreshInterval: interval}, zaptest.NewLogger(t), nil)
	return v, &fetches
}

func TestScheduler_RefreshesWhileDataPresent(t *testing.T) {
	v, fetches := newCountingView(t, 50*time.Millisecond)
	withKey(t, v)
	v.SetQuery("Cali")
	v.Search(context.Background())
	require.Equal(t, int32(1), fetches.Load())

	require.NoError(t, v.Start(context.Background()))
	defer v.Stop()

	assert.Eventually(t, func() bool { return fetches.Load() >= 3 }, 2*time.Second, 10*time.Millisecond)
}

func TestScheduler_IdleWithoutData(t *testing.T) {
	v, fetches := newCountingView(t, 20*time.Millisecond)
	withKey(t, v)

	require.NoError(t, v.Start(context.Background()))
	time.Sleep(150 * time.Millisecond)
	v.Stop()

	assert.Zero(t, fetches.Load())
}

func TestScheduler_StopHaltsRefresh(t *testing.T) {
	v, fetches := newCountingView(t, 20*time.Millisecond)
	withKey(t, v)
	v.SetQuery("Pasto")
	v.Search(context.Background())

	require.NoError(t, v.Start(context.Background()))
	require.Eventually(t, func() bool { return fetches.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)

	v.Stop()
	time.Sleep(30 * time.Millisecond)
	settled := fetches.Load()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, settled, fetches.Load())
}

func TestScheduler_StartStopIdempotent(t *testing.T) {
	v, _ := newCountingView(t, time.Hour)

	require.NoError(t, v.Start(context.Background()))
	first := v.scheduler
	require.NoError(t, v.Start(context.Background()))
	assert.Same(t, first, v.scheduler)

	v.Stop()
	v.Stop()
	assert.Nil(t, v.scheduler)

	require.NoError(t, v.Start(context.Background()))
	v.Stop()
}
