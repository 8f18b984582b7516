package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/vzahanych/weather-timeline/internal/config"
	"github.com/vzahanych/weather-timeline/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// MetricsRecorder receives one call per provider request.
type MetricsRecorder interface {
	RecordProviderCall(ctx context.Context, operation string, statusCode int, success bool)
}

// Gateway talks to the timeline endpoint. It keeps no per-call state: every
// fetch computes a fresh window and returns the raw payload to the caller.
type Gateway struct {
	client    *resty.Client
	baseURL   string
	unitGroup string
	lang      string
	limiter   *rate.Limiter
	logger    *zap.Logger
	tele      *telemetry.Telemetry
	metrics   MetricsRecorder
	now       func() time.Time
}

func New(cfg config.WeatherConfig, logger *zap.Logger, tele *telemetry.Telemetry) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}

	g := &Gateway{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		unitGroup: cfg.UnitGroup,
		lang:      cfg.Lang,
		logger:    logger.Named("gateway"),
		tele:      tele,
		now:       time.Now,
	}

	if g.unitGroup == "" {
		g.unitGroup = "metric"
	}
	if g.lang == "" {
		g.lang = "es"
	}

	if cfg.RateLimitRPS > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), max(1, cfg.RateLimitBurst))
	}

	g.client = resty.New().
		SetTimeout(cfg.TimeoutDuration()).
		SetHeader("Accept", "application/json")

	g.client.OnAfterResponse(func(c *resty.Client, resp *resty.Response) error {
		g.logger.Debug("Provider response",
			zap.String("method", resp.Request.Method),
			zap.String("path", resp.Request.RawRequest.URL.Path),
			zap.Int("status", resp.StatusCode()),
			zap.Duration("latency", resp.Time()),
			zap.Int("body_size", len(resp.Body())))
		return nil
	})

	return g
}

func (g *Gateway) SetMetricsRecorder(metrics MetricsRecorder) {
	g.metrics = metrics
}

// Window is BuildWindow anchored to the gateway clock.
func (g *Gateway) Window() TimeWindow {
	return BuildWindow(g.now())
}

// Normalize applies the package-level Normalize with the split instant taken
// once from the gateway clock.
func (g *Gateway) Normalize(raw *RawResponse) WeatherBundle {
	bundle, dropped := normalize(raw, g.now())
	if dropped > 0 {
		g.logger.Warn("Dropped hours with unparseable timestamps",
			zap.Int("dropped", dropped),
			zap.String("resolved_address", bundle.Address()))
	}
	return bundle
}

// FetchByQuery queries the provider for a free-text location.
func (g *Gateway) FetchByQuery(ctx context.Context, location, apiKey string) (*RawResponse, error) {
	if location == "" {
		return nil, ErrEmptyLocation
	}
	return g.fetch(ctx, "gateway.FetchByQuery", EscapeSegment(location), apiKey)
}

// FetchByCoordinates queries the provider for a "lat,lng" pair. Coordinates
// are passed through without range checks.
func (g *Gateway) FetchByCoordinates(ctx context.Context, lat, lng float64, apiKey string) (*RawResponse, error) {
	segment := strconv.FormatFloat(lat, 'f', -1, 64) + "," + strconv.FormatFloat(lng, 'f', -1, 64)
	return g.fetch(ctx, "gateway.FetchByCoordinates", segment, apiKey)
}

// RequestURL builds the provider URL for an already-encoded path segment.
func (g *Gateway) RequestURL(segment string, window TimeWindow, apiKey string) string {
	return fmt.Sprintf("%s/%s/%s/%s?unitGroup=%s&lang=%s&key=%s&contentType=json",
		g.baseURL, segment, window.Start, window.End,
		url.QueryEscape(g.unitGroup), url.QueryEscape(g.lang), url.QueryEscape(apiKey))
}

func (g *Gateway) fetch(ctx context.Context, operation, segment, apiKey string) (*RawResponse, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	ctx, span := g.tele.GetTracer().Start(ctx, operation)
	defer span.End()

	window := g.Window()
	span.SetAttributes(
		attribute.String("location", segment),
		attribute.String("window.start", window.Start),
		attribute.String("window.end", window.End),
	)

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("rate limit wait canceled: %w", err)
		}
	}

	resp, err := g.client.R().SetContext(ctx).Get(g.RequestURL(segment, window, apiKey))
	if err != nil {
		fetchErr := transportError(err)
		g.record(ctx, operation, 0, false)
		span.RecordError(fetchErr)
		span.SetStatus(codes.Error, fetchErr.Error())
		g.logger.Warn("Provider request failed", zap.String("operation", operation), zap.Error(fetchErr))
		return nil, fetchErr
	}

	status := resp.StatusCode()
	span.SetAttributes(attribute.Int("http.status_code", status))

	if resp.IsError() {
		fetchErr := &FetchError{
			StatusCode: status,
			Message:    strings.TrimSpace(resp.String()),
		}
		if fetchErr.Message == "" {
			fetchErr.Message = http.StatusText(status)
		}
		g.record(ctx, operation, status, false)
		span.SetStatus(codes.Error, fetchErr.Error())
		g.logger.Warn("Provider returned an error",
			zap.String("operation", operation),
			zap.Int("status", status),
			zap.String("message", fetchErr.Message))
		return nil, fetchErr
	}

	var raw RawResponse
	if err := json.Unmarshal(resp.Body(), &raw); err != nil {
		g.record(ctx, operation, status, false)
		span.SetStatus(codes.Error, err.Error())
		return nil, &FetchError{
			StatusCode: status,
			Message:    fmt.Sprintf("invalid provider response: %v", err),
			Err:        err,
		}
	}

	g.record(ctx, operation, status, true)
	g.logger.Info("Fetched timeline",
		zap.String("operation", operation),
		zap.String("resolved_address", derefString(raw.ResolvedAddress)),
		zap.Int("days", len(raw.Days)))

	return &raw, nil
}

// transportError drops the request URL from a client error; the URL carries
// the API key in its query string.
func transportError(err error) *FetchError {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}
	return &FetchError{
		Message: "provider request failed: " + err.Error(),
		Err:     err,
	}
}

// segmentEscaper turns url.QueryEscape output into the segment form: spaces
// as %20 and the marks !'()* left literal.
var segmentEscaper = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// EscapeSegment encodes a location as a single path segment. Only
// A-Z a-z 0-9 and -_.!~*'() stay literal.
func EscapeSegment(s string) string {
	return segmentEscaper.Replace(url.QueryEscape(s))
}

func (g *Gateway) record(ctx context.Context, operation string, status int, success bool) {
	if g.metrics != nil {
		g.metrics.RecordProviderCall(ctx, operation, status, success)
	}
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
