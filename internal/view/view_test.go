package view

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vzahanych/weather-timeline/internal/config"
	"github.com/vzahanych/weather-timeline/internal/gateway"
	"github.com/vzahanych/weather-timeline/internal/geo"
	"github.com/vzahanych/weather-timeline/internal/storage"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

type fakeGateway struct {
	mu      sync.Mutex
	queries []string
	coords  []geo.Position
	keys    []string
	respond func(location string) (*gateway.RawResponse, error)
}

func (f *fakeGateway) FetchByQuery(_ context.Context, location, apiKey string) (*gateway.RawResponse, error) {
	f.mu.Lock()
	f.queries = append(f.queries, location)
	f.keys = append(f.keys, apiKey)
	respond := f.respond
	f.mu.Unlock()
	return respond(location)
}

func (f *fakeGateway) FetchByCoordinates(_ context.Context, lat, lng float64, apiKey string) (*gateway.RawResponse, error) {
	pos := geo.Position{Latitude: lat, Longitude: lng}
	f.mu.Lock()
	f.coords = append(f.coords, pos)
	f.keys = append(f.keys, apiKey)
	respond := f.respond
	f.mu.Unlock()
	return respond(pos.String())
}

func (f *fakeGateway) Normalize(raw *gateway.RawResponse) gateway.WeatherBundle {
	return gateway.Normalize(raw, time.Now())
}

func (f *fakeGateway) calls() (queries []string, coords []geo.Position) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.queries...), append([]geo.Position{}, f.coords...)
}

// echo answers every location with a bundle resolved to that location.
func echo(location string) (*gateway.RawResponse, error) {
	addr := location
	return &gateway.RawResponse{ResolvedAddress: &addr}, nil
}

func newTestView(t *testing.T, respond func(string) (*gateway.RawResponse, error)) (*View, *fakeGateway, *storage.MemoryStore) {
	t.Helper()
	if respond == nil {
		respond = echo
	}
	gw := &fakeGateway{respond: respond}
	store := storage.NewMemory()
	v := New(gw, store, Options{}, zaptest.NewLogger(t), nil)
	return v, gw, store
}

func withKey(t *testing.T, v *View) {
	t.Helper()
	v.mu.Lock()
	v.apiKey = "key"
	v.mu.Unlock()
}

type emptyError struct{}

func (emptyError) Error() string { return "" }

func TestSearch_BlankIsNoop(t *testing.T) {
	v, gw, _ := newTestView(t, nil)
	withKey(t, v)

	before := v.Snapshot()
	for _, q := range []string{"", "   ", "\t\n"} {
		v.SetQuery(q)
		v.Search(context.Background())
	}

	queries, _ := gw.calls()
	assert.Empty(t, queries)
	after := v.Snapshot()
	assert.Equal(t, before.Loading, after.Loading)
	assert.Equal(t, before.Error, after.Error)
	assert.Equal(t, before.Data, after.Data)
}

func TestSearch_Success(t *testing.T) {
	v, gw, _ := newTestView(t, nil)
	withKey(t, v)

	v.SetQuery("  Lima  ")
	v.Search(context.Background())

	queries, _ := gw.calls()
	assert.Equal(t, []string{"Lima"}, queries)

	s := v.Snapshot()
	assert.False(t, s.Loading)
	assert.Nil(t, s.Error)
	require.NotNil(t, s.Data)
	assert.Equal(t, "Lima", s.Data.Address())
	assert.Equal(t, "  Lima  ", s.Query)
}

func TestSearch_WithoutKey(t *testing.T) {
	v, gw, _ := newTestView(t, nil)

	v.SetQuery("Lima")
	v.Search(context.Background())

	queries, _ := gw.calls()
	assert.Empty(t, queries)
	s := v.Snapshot()
	require.NotNil(t, s.Error)
	assert.Equal(t, MsgMissingAPIKey, *s.Error)
	assert.False(t, s.Loading)
}

func TestFetchFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"quota", &gateway.FetchError{StatusCode: http.StatusTooManyRequests, Message: "whatever the body says"}, MsgQuotaExceeded},
		{"provider message", &gateway.FetchError{StatusCode: http.StatusBadRequest, Message: "Bad API Request: Invalid location"}, "Bad API Request: Invalid location"},
		{"plain error", errors.New("connection reset"), "connection reset"},
		{"empty message", emptyError{}, MsgGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, _, _ := newTestView(t, nil)
			withKey(t, v)

			v.SetQuery("Quito")
			v.Search(context.Background())
			previous := v.Snapshot().Data
			require.NotNil(t, previous)

			v.gw.(*fakeGateway).respond = func(string) (*gateway.RawResponse, error) { return nil, tt.err }
			v.Refresh(context.Background())

			s := v.Snapshot()
			require.NotNil(t, s.Error)
			assert.Equal(t, tt.want, *s.Error)
			assert.False(t, s.Loading)
			assert.Equal(t, previous, s.Data, "data is kept on failure")
		})
	}
}

func TestUseMyLocation_WithoutKey(t *testing.T) {
	v, gw, _ := newTestView(t, nil)

	called := false
	v.UseMyLocation(context.Background(), geo.LocatorFunc(func(context.Context, geo.Options) (geo.Position, error) {
		called = true
		return geo.Position{}, nil
	}))

	assert.False(t, called)
	queries, coords := gw.calls()
	assert.Empty(t, queries)
	assert.Empty(t, coords)
	s := v.Snapshot()
	require.NotNil(t, s.Error)
	assert.Equal(t, MsgMissingAPIKey, *s.Error)
}

func TestUseMyLocation_Denied(t *testing.T) {
	v, gw, store := newTestView(t, nil)
	withKey(t, v)

	v.UseMyLocation(context.Background(), geo.Reported{Err: geo.ErrDenied})

	_, coords := gw.calls()
	assert.Empty(t, coords)
	s := v.Snapshot()
	require.NotNil(t, s.Error)
	assert.Equal(t, MsgNoLocation, *s.Error)
	assert.False(t, s.Loading)
	assert.Nil(t, s.Data)

	_, ok, _ := store.Get(context.Background(), storage.KeyLastLocation)
	assert.False(t, ok)
}

func TestUseMyLocation_Success(t *testing.T) {
	v, gw, store := newTestView(t, nil)
	withKey(t, v)

	var gotOpts geo.Options
	v.UseMyLocation(context.Background(), geo.LocatorFunc(func(_ context.Context, opts geo.Options) (geo.Position, error) {
		gotOpts = opts
		return geo.Position{Latitude: 6.2442, Longitude: -75.5812}, nil
	}))

	assert.Equal(t, geo.DefaultOptions, gotOpts)
	_, coords := gw.calls()
	assert.Equal(t, []geo.Position{{Latitude: 6.2442, Longitude: -75.5812}}, coords)

	last, ok, err := store.Get(context.Background(), storage.KeyLastLocation)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "6.2442,-75.5812", last)

	s := v.Snapshot()
	assert.Nil(t, s.Error)
	assert.Equal(t, "6.2442,-75.5812", s.Data.Address())
}

func TestRefresh(t *testing.T) {
	v, gw, _ := newTestView(t, nil)
	withKey(t, v)

	v.Refresh(context.Background())
	queries, _ := gw.calls()
	assert.Empty(t, queries, "nothing to refresh without data")

	v.gw.(*fakeGateway).respond = func(string) (*gateway.RawResponse, error) {
		addr := "Cartagena, Bolívar, Colombia"
		return &gateway.RawResponse{ResolvedAddress: &addr}, nil
	}
	v.SetQuery("cartagena")
	v.Search(context.Background())
	v.Refresh(context.Background())

	queries, _ = gw.calls()
	assert.Equal(t, []string{"cartagena", "Cartagena, Bolívar, Colombia"}, queries)
}

func TestSaveAPIKey(t *testing.T) {
	v, gw, store := newTestView(t, nil)
	v.SetQuery("x")
	v.Search(context.Background())
	require.NotNil(t, v.Snapshot().Error)

	v.SaveAPIKey(context.Background(), "  abc123  ")

	saved, ok, err := store.Get(context.Background(), storage.KeyAPIKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc123", saved)

	queries, _ := gw.calls()
	assert.Equal(t, []string{"Medellín"}, queries)
	assert.Equal(t, []string{"abc123"}, gw.keys)

	s := v.Snapshot()
	assert.True(t, s.HasAPIKey)
	assert.Nil(t, s.Error)
	assert.Equal(t, "Medellín", s.Data.Address())
}

func TestSaveAPIKey_Blank(t *testing.T) {
	v, gw, store := newTestView(t, nil)
	withKey(t, v)

	v.SaveAPIKey(context.Background(), "   ")

	queries, _ := gw.calls()
	assert.Empty(t, queries)
	_, ok, _ := store.Get(context.Background(), storage.KeyAPIKey)
	assert.False(t, ok)
	assert.False(t, v.Snapshot().HasAPIKey)
}

func TestInit(t *testing.T) {
	ctx := context.Background()

	t.Run("no saved key", func(t *testing.T) {
		v, gw, _ := newTestView(t, nil)
		v.Init(ctx)
		queries, _ := gw.calls()
		assert.Empty(t, queries)
		assert.False(t, v.Snapshot().HasAPIKey)
	})

	t.Run("saved key, default location", func(t *testing.T) {
		v, gw, store := newTestView(t, nil)
		require.NoError(t, store.Set(ctx, storage.KeyAPIKey, "k"))
		v.Init(ctx)
		queries, _ := gw.calls()
		assert.Equal(t, []string{"Medellín"}, queries)
	})

	t.Run("saved key and last location", func(t *testing.T) {
		v, gw, store := newTestView(t, nil)
		require.NoError(t, store.Set(ctx, storage.KeyAPIKey, "k"))
		require.NoError(t, store.Set(ctx, storage.KeyLastLocation, "4.711,-74.0721"))
		v.Init(ctx)
		queries, _ := gw.calls()
		assert.Equal(t, []string{"4.711,-74.0721"}, queries)
		assert.True(t, v.Snapshot().HasAPIKey)
	})
}

func TestToggleTheme(t *testing.T) {
	v, _, _ := newTestView(t, nil)
	assert.Equal(t, ThemeLight, v.Snapshot().Theme)
	assert.Equal(t, ThemeDark, v.ToggleTheme())
	assert.Equal(t, ThemeLight, v.ToggleTheme())
}

func TestSnapshot_IsACopy(t *testing.T) {
	v, _, _ := newTestView(t, func(location string) (*gateway.RawResponse, error) {
		return &gateway.RawResponse{Days: []gateway.RawDay{{Hours: []gateway.RawHour{
			{Datetime: "2000-01-01T00:00:00"},
		}}}}, nil
	})
	withKey(t, v)
	v.SetQuery("a")
	v.Search(context.Background())

	s := v.Snapshot()
	require.Len(t, s.Data.HoursPrev24, 1)
	s.Data.HoursPrev24[0].Datetime = "mutated"

	assert.Equal(t, "2000-01-01T00:00:00", v.Snapshot().Data.HoursPrev24[0].Datetime)
}

// blockingGateway lets a test hold specific locations until released.
type blockingGateway struct {
	started map[string]chan struct{}
	release map[string]chan struct{}
}

func newBlocking(locations ...string) *blockingGateway {
	b := &blockingGateway{started: map[string]chan struct{}{}, release: map[string]chan struct{}{}}
	for _, l := range locations {
		b.started[l] = make(chan struct{})
		b.release[l] = make(chan struct{})
	}
	return b
}

func (b *blockingGateway) respond(location string) (*gateway.RawResponse, error) {
	if ch, ok := b.started[location]; ok {
		close(ch)
		<-b.release[location]
	}
	return echo(location)
}

func TestFencing_LateOlderResponseIsDiscarded(t *testing.T) {
	b := newBlocking("slow")
	v, _, _ := newTestView(t, b.respond)
	withKey(t, v)

	done := make(chan struct{})
	go func() {
		defer close(done)
		v.SetQuery("slow")
		v.Search(context.Background())
	}()
	<-b.started["slow"]

	v.SetQuery("fast")
	v.Search(context.Background())

	s := v.Snapshot()
	assert.False(t, s.Loading)
	assert.Equal(t, "fast", s.Data.Address())

	close(b.release["slow"])
	<-done

	s = v.Snapshot()
	assert.False(t, s.Loading)
	assert.Equal(t, "fast", s.Data.Address(), "older response must not overwrite newer data")
}

func TestFencing_LoadingUntilLatestCompletes(t *testing.T) {
	b := newBlocking("second")
	v, _, _ := newTestView(t, b.respond)
	withKey(t, v)

	v.SetQuery("first")
	v.Search(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		v.SetQuery("second")
		v.Search(context.Background())
	}()
	<-b.started["second"]

	s := v.Snapshot()
	assert.True(t, s.Loading)
	assert.Equal(t, "first", s.Data.Address())

	close(b.release["second"])
	<-done

	s = v.Snapshot()
	assert.False(t, s.Loading)
	assert.Equal(t, "second", s.Data.Address())
}

func TestFencing_LateFailureIsDiscarded(t *testing.T) {
	b := newBlocking("slow")
	v, _, _ := newTestView(t, func(location string) (*gateway.RawResponse, error) {
		if location == "slow" {
			_, _ = b.respond(location)
			return nil, &gateway.FetchError{StatusCode: http.StatusTooManyRequests}
		}
		return echo(location)
	})
	withKey(t, v)

	done := make(chan struct{})
	go func() {
		defer close(done)
		v.SetQuery("slow")
		v.Search(context.Background())
	}()
	<-b.started["slow"]

	v.SetQuery("ok")
	v.Search(context.Background())
	close(b.release["slow"])
	<-done

	s := v.Snapshot()
	assert.Nil(t, s.Error)
	assert.Equal(t, "ok", s.Data.Address())
}

func TestView_WithProviderGateway(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") == "exhausted" {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte("You have exceeded the maximum number of daily result records"))
			return
		}
		now := time.Now().UTC().Truncate(time.Hour)
		_, _ = w.Write([]byte(`{"resolvedAddress":"Medellín, Antioquia, Colombia","timezone":"America/Bogota","days":[{"hours":[` +
			`{"datetimeEpoch":` + itoa(now.Add(-time.Hour).Unix()) + `,"temp":21},` +
			`{"datetimeEpoch":` + itoa(now.Add(2*time.Hour).Unix()) + `,"tempC":24}]}]}`))
	}))
	defer srv.Close()

	cfg := config.NewDefaultConfig()
	cfg.Weather.BaseURL = srv.URL
	gw := gateway.New(cfg.Weather, zaptest.NewLogger(t), nil)
	v := New(gw, storage.NewMemory(), OptionsFromConfig(cfg.View), zaptest.NewLogger(t), nil)

	v.SaveAPIKey(context.Background(), "good")
	s := v.Snapshot()
	require.Nil(t, s.Error)
	require.NotNil(t, s.Data)
	assert.Equal(t, "Medellín, Antioquia, Colombia", s.Data.Address())
	require.Len(t, s.Data.HoursPrev24, 1)
	require.Len(t, s.Data.HoursNext24, 1)
	assert.Equal(t, 24.0, *s.Data.HoursNext24[0].Temp)

	v.SaveAPIKey(context.Background(), "exhausted")
	s = v.Snapshot()
	require.NotNil(t, s.Error)
	assert.Equal(t, MsgQuotaExceeded, *s.Error)
	assert.Equal(t, "Medellín, Antioquia, Colombia", s.Data.Address())
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

func TestView_UnreachableProviderKeepsKeyOutOfState(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	cfg := config.NewDefaultConfig()
	cfg.Weather.BaseURL = srv.URL
	cfg.Weather.Timeout = 1
	gw := gateway.New(cfg.Weather, logger, nil)
	v := New(gw, storage.NewMemory(), OptionsFromConfig(cfg.View), logger, nil)

	v.SaveAPIKey(context.Background(), "SUPERSECRETKEY")

	s := v.Snapshot()
	assert.True(t, s.HasAPIKey)
	assert.False(t, s.Loading)
	require.NotNil(t, s.Error)
	assert.NotContains(t, *s.Error, "SUPERSECRETKEY")
	assert.NotContains(t, *s.Error, "key=")

	encoded, err := json.Marshal(s)
	require.NoError(t, err)
	assert.NotContains(t, string(encoded), "SUPERSECRETKEY")

	require.NotZero(t, logs.Len())
	for _, entry := range logs.All() {
		assert.NotContains(t, entry.Message, "SUPERSECRETKEY")
		for k, val := range entry.ContextMap() {
			assert.NotContains(t, fmt.Sprint(val), "SUPERSECRETKEY", "field %s", k)
		}
	}
}
