package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/vzahanych/weather-timeline/internal/gateway"
	"github.com/vzahanych/weather-timeline/internal/server/utils"
	"github.com/vzahanych/weather-timeline/internal/view"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const APIKeyHeader = "X-API-Key"

// TimelineHandler is the stateless face of the gateway: fetch and normalize
// in one request, nothing remembered.
type TimelineHandler struct {
	gateway view.Gateway
	logger  *zap.Logger
}

func NewTimelineHandler(gw view.Gateway, logger *zap.Logger) *TimelineHandler {
	return &TimelineHandler{
		gateway: gw,
		logger:  logger,
	}
}

func (h *TimelineHandler) GetTimeline(c *gin.Context) {
	ctx := utils.GetContextFromGinContext(c)
	reqLogger := h.logger.With(zap.String("request_id", utils.GetRequestIDFromGinContext(c)))

	apiKey := strings.TrimSpace(c.GetHeader(APIKeyHeader))
	if apiKey == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error: view.MsgMissingAPIKey,
			Code:  "MISSING_API_KEY",
		})
		return
	}

	var req TimelineRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request parameters",
			Code:    "INVALID_PARAMS",
			Details: err.Error(),
		})
		return
	}
	if errs := utils.ValidateStruct(req); errs != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:  "Invalid request parameters",
			Code:   "INVALID_PARAMS",
			Fields: errs,
		})
		return
	}

	span := utils.GetSpanFromGinContext(c)

	var (
		raw *gateway.RawResponse
		err error
	)
	if req.Lat != nil {
		span.SetAttributes(
			attribute.String("timeline.lookup", "coordinates"),
			attribute.Float64("timeline.lat", *req.Lat),
			attribute.Float64("timeline.lng", *req.Lng),
		)
		reqLogger.Info("Processing timeline request", zap.Float64("lat", *req.Lat), zap.Float64("lng", *req.Lng))
		raw, err = h.gateway.FetchByCoordinates(ctx, *req.Lat, *req.Lng, apiKey)
	} else {
		span.SetAttributes(
			attribute.String("timeline.lookup", "query"),
			attribute.String("timeline.location", req.Location),
		)
		reqLogger.Info("Processing timeline request", zap.String("location", req.Location))
		raw, err = h.gateway.FetchByQuery(ctx, req.Location, apiKey)
	}

	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Int("provider.status_code", gateway.StatusCode(err)))
		reqLogger.Warn("Timeline fetch failed", zap.Error(err))
		h.writeFetchError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.gateway.Normalize(raw))
}

func (h *TimelineHandler) writeFetchError(c *gin.Context, err error) {
	var fe *gateway.FetchError
	switch {
	case gateway.IsQuotaExceeded(err):
		c.JSON(http.StatusTooManyRequests, ErrorResponse{
			Error: view.MsgQuotaExceeded,
			Code:  "QUOTA_EXCEEDED",
		})
	case errors.As(err, &fe) && fe.StatusCode >= 400 && fe.StatusCode < 500:
		c.JSON(fe.StatusCode, ErrorResponse{
			Error: fe.Error(),
			Code:  "PROVIDER_REJECTED",
		})
	default:
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "Failed to fetch weather data",
			Code:    "PROVIDER_ERROR",
			Details: err.Error(),
		})
	}
}
