package view

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/vzahanych/weather-timeline/internal/config"
	"github.com/vzahanych/weather-timeline/internal/gateway"
	"github.com/vzahanych/weather-timeline/internal/geo"
	"github.com/vzahanych/weather-timeline/internal/storage"
	"github.com/vzahanych/weather-timeline/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// Gateway is what the view needs from the provider client.
type Gateway interface {
	FetchByQuery(ctx context.Context, location, apiKey string) (*gateway.RawResponse, error)
	FetchByCoordinates(ctx context.Context, lat, lng float64, apiKey string) (*gateway.RawResponse, error)
	Normalize(raw *gateway.RawResponse) gateway.WeatherBundle
}

// State is a point-in-time copy of the view for rendering.
type State struct {
	Query     string                 `json:"query"`
	Loading   bool                   `json:"loading"`
	Error     *string                `json:"error"`
	Data      *gateway.WeatherBundle `json:"data"`
	HasAPIKey bool                   `json:"has_api_key"`
	Theme     Theme                  `json:"theme"`
}

type Options struct {
	DefaultLocation string
	RefreshInterval time.Duration
	Locate          geo.Options
}

func OptionsFromConfig(cfg config.ViewConfig) Options {
	return Options{
		DefaultLocation: cfg.DefaultLocation,
		RefreshInterval: cfg.RefreshEvery(),
		Locate: geo.Options{
			HighAccuracy: false,
			Timeout:      time.Duration(cfg.GeolocationTimeout) * time.Second,
			MaximumAge:   time.Duration(cfg.GeolocationMaxAge) * time.Second,
		},
	}
}

// View owns the user-facing weather state. Every action is safe for
// concurrent use; when actions overlap, only the most recently started one
// may write its outcome.
type View struct {
	mu      sync.RWMutex
	query   string
	loading bool
	errMsg  *string
	data    *gateway.WeatherBundle
	apiKey  string
	theme   Theme
	// seq identifies the latest started fetch; older completions are dropped.
	seq uint64

	gw     Gateway
	store  storage.Store
	opts   Options
	logger *zap.Logger
	tele   *telemetry.Telemetry

	schedMu   sync.Mutex
	scheduler *gocron.Scheduler
	cancelRun context.CancelFunc
}

func New(gw Gateway, store storage.Store, opts Options, logger *zap.Logger, tele *telemetry.Telemetry) *View {
	if logger == nil {
		logger = zap.NewNop()
	}
	if store == nil {
		store = storage.NewMemory()
	}
	if opts.DefaultLocation == "" {
		opts.DefaultLocation = "Medellín"
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = 5 * time.Minute
	}
	if opts.Locate == (geo.Options{}) {
		opts.Locate = geo.DefaultOptions
	}

	return &View{
		theme:  ThemeLight,
		gw:     gw,
		store:  store,
		opts:   opts,
		logger: logger.Named("view"),
		tele:   tele,
	}
}

// Init restores the saved API key and, when one exists, loads the last
// geolocated position or the default location.
func (v *View) Init(ctx context.Context) {
	key, ok, err := v.store.Get(ctx, storage.KeyAPIKey)
	if err != nil {
		v.logger.Warn("Failed to read saved API key", zap.Error(err))
		return
	}
	if !ok || key == "" {
		return
	}

	v.mu.Lock()
	v.apiKey = key
	v.mu.Unlock()

	location := v.opts.DefaultLocation
	if last, ok, err := v.store.Get(ctx, storage.KeyLastLocation); err != nil {
		v.logger.Warn("Failed to read last location", zap.Error(err))
	} else if ok && last != "" {
		location = last
	}

	v.logger.Info("Restored saved API key", zap.String("location", location))
	v.fetchQuery(ctx, location)
}

func (v *View) Snapshot() State {
	v.mu.RLock()
	defer v.mu.RUnlock()

	s := State{
		Query:     v.query,
		Loading:   v.loading,
		Data:      v.data.Clone(),
		HasAPIKey: v.apiKey != "",
		Theme:     v.theme,
	}
	if v.errMsg != nil {
		msg := *v.errMsg
		s.Error = &msg
	}
	return s
}

func (v *View) HasData() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.data != nil
}

func (v *View) SetQuery(query string) {
	v.mu.Lock()
	v.query = query
	v.mu.Unlock()
}

// Search fetches the current query text. Blank queries are ignored.
func (v *View) Search(ctx context.Context) {
	v.mu.RLock()
	q := strings.TrimSpace(v.query)
	v.mu.RUnlock()

	if q == "" {
		return
	}
	v.fetchQuery(ctx, q)
}

// Refresh re-fetches the address of the bundle on screen, if any.
func (v *View) Refresh(ctx context.Context) {
	v.mu.RLock()
	address := v.data.Address()
	v.mu.RUnlock()

	if address == "" {
		return
	}
	v.fetchQuery(ctx, address)
}

// UseMyLocation asks the locator for the current position and fetches the
// weather there. Without an API key the locator is never consulted.
func (v *View) UseMyLocation(ctx context.Context, locator geo.Locator) {
	ctx, span := v.tele.GetTracer().Start(ctx, "view.UseMyLocation")
	defer span.End()

	v.mu.Lock()
	if v.apiKey == "" {
		v.setError(MsgMissingAPIKey)
		v.mu.Unlock()
		return
	}
	seq := v.begin()
	v.mu.Unlock()

	pos, err := locator.CurrentPosition(ctx, v.opts.Locate)
	if err != nil {
		v.logger.Info("Geolocation failed", zap.Error(err))
		v.mu.Lock()
		if seq == v.seq {
			v.setError(MsgNoLocation)
			v.loading = false
		}
		v.mu.Unlock()
		return
	}

	v.mu.RLock()
	stale := seq != v.seq
	v.mu.RUnlock()
	if stale {
		v.logger.Debug("Discarding position for superseded request", zap.Uint64("seq", seq))
		return
	}

	location := pos.String()
	span.SetAttributes(attribute.String("location", location))
	if err := v.store.Set(ctx, storage.KeyLastLocation, location); err != nil {
		v.logger.Warn("Failed to persist last location", zap.Error(err))
	}

	v.run(ctx, "coordinates", location, func(ctx context.Context, apiKey string) (*gateway.RawResponse, error) {
		return v.gw.FetchByCoordinates(ctx, pos.Latitude, pos.Longitude, apiKey)
	})
}

// SaveAPIKey stores the trimmed key. A non-empty key is persisted, clears
// any error and loads the default location.
func (v *View) SaveAPIKey(ctx context.Context, key string) {
	key = strings.TrimSpace(key)

	v.mu.Lock()
	v.apiKey = key
	if key != "" {
		v.errMsg = nil
	}
	v.mu.Unlock()

	if key == "" {
		return
	}

	if err := v.store.Set(ctx, storage.KeyAPIKey, key); err != nil {
		v.logger.Warn("Failed to persist API key", zap.Error(err))
	}

	v.fetchQuery(ctx, v.opts.DefaultLocation)
}

func (v *View) ToggleTheme() Theme {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.theme == ThemeLight {
		v.theme = ThemeDark
	} else {
		v.theme = ThemeLight
	}
	return v.theme
}

func (v *View) fetchQuery(ctx context.Context, location string) {
	v.run(ctx, "query", location, func(ctx context.Context, apiKey string) (*gateway.RawResponse, error) {
		return v.gw.FetchByQuery(ctx, location, apiKey)
	})
}

func (v *View) run(ctx context.Context, kind, location string, call func(ctx context.Context, apiKey string) (*gateway.RawResponse, error)) {
	ctx, span := v.tele.GetTracer().Start(ctx, "view.fetch")
	defer span.End()

	v.mu.Lock()
	apiKey := v.apiKey
	if apiKey == "" {
		v.seq++
		v.setError(MsgMissingAPIKey)
		v.loading = false
		v.mu.Unlock()
		return
	}
	seq := v.begin()
	v.mu.Unlock()

	span.SetAttributes(
		attribute.String("kind", kind),
		attribute.String("location", location),
		attribute.Int64("seq", int64(seq)),
	)

	raw, err := call(ctx, apiKey)

	var bundle gateway.WeatherBundle
	if err == nil {
		bundle = v.gw.Normalize(raw)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if seq != v.seq {
		v.logger.Debug("Discarding superseded response",
			zap.Uint64("seq", seq),
			zap.Uint64("latest", v.seq),
			zap.String("location", location))
		span.SetAttributes(attribute.Bool("discarded", true))
		return
	}

	v.loading = false
	if err != nil {
		msg := errorMessage(err)
		v.setError(msg)
		v.tele.RecordError(ctx, err, map[string]string{"location": location})
		v.logger.Warn("Weather fetch failed",
			zap.String("kind", kind),
			zap.String("location", location),
			zap.Int("status", gateway.StatusCode(err)),
			zap.Error(err))
		return
	}

	v.data = &bundle
	v.errMsg = nil
	v.logger.Info("Weather updated",
		zap.String("kind", kind),
		zap.String("location", location),
		zap.String("resolved_address", bundle.Address()),
		zap.Int("hours_prev", len(bundle.HoursPrev24)),
		zap.Int("hours_next", len(bundle.HoursNext24)))
}

// begin starts a new request generation. Caller holds mu.
func (v *View) begin() uint64 {
	v.seq++
	v.loading = true
	v.errMsg = nil
	return v.seq
}

// setError requires mu to be held.
func (v *View) setError(msg string) {
	v.errMsg = &msg
}

func errorMessage(err error) string {
	if gateway.IsQuotaExceeded(err) {
		return MsgQuotaExceeded
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return MsgGeneric
}
