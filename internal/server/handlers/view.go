package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vzahanych/weather-timeline/internal/geo"
	"github.com/vzahanych/weather-timeline/internal/server/utils"
	"github.com/vzahanych/weather-timeline/internal/view"
	"go.uber.org/zap"
)

// ViewHandler exposes the view's actions. Every action answers with the
// resulting snapshot.
type ViewHandler struct {
	view   *view.View
	logger *zap.Logger
}

func NewViewHandler(v *view.View, logger *zap.Logger) *ViewHandler {
	return &ViewHandler{
		view:   v,
		logger: logger,
	}
}

func (h *ViewHandler) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, h.view.Snapshot())
}

func (h *ViewHandler) Search(c *gin.Context) {
	var req SearchRequest
	if !h.bind(c, &req) {
		return
	}

	h.view.SetQuery(req.Query)
	h.view.Search(utils.GetContextFromGinContext(c))

	c.JSON(http.StatusOK, h.view.Snapshot())
}

func (h *ViewHandler) UseLocation(c *gin.Context) {
	var req LocationRequest
	if !h.bind(c, &req) {
		return
	}

	locator := geo.Reported{Err: geo.ParseError(req.Error)}
	if req.Latitude != nil && req.Longitude != nil {
		locator.Position = &geo.Position{Latitude: *req.Latitude, Longitude: *req.Longitude}
	}

	h.view.UseMyLocation(utils.GetContextFromGinContext(c), locator)

	c.JSON(http.StatusOK, h.view.Snapshot())
}

func (h *ViewHandler) Refresh(c *gin.Context) {
	h.view.Refresh(utils.GetContextFromGinContext(c))
	c.JSON(http.StatusOK, h.view.Snapshot())
}

func (h *ViewHandler) SaveAPIKey(c *gin.Context) {
	var req APIKeyRequest
	if !h.bind(c, &req) {
		return
	}

	h.view.SaveAPIKey(utils.GetContextFromGinContext(c), req.APIKey)

	c.JSON(http.StatusOK, h.view.Snapshot())
}

func (h *ViewHandler) ToggleTheme(c *gin.Context) {
	h.view.ToggleTheme()
	c.JSON(http.StatusOK, h.view.Snapshot())
}

func (h *ViewHandler) bind(c *gin.Context, req interface{}) bool {
	reqLogger := h.logger.With(zap.String("request_id", utils.GetRequestIDFromGinContext(c)))

	if err := c.ShouldBindJSON(req); err != nil {
		reqLogger.Warn("Invalid request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Code:    "INVALID_BODY",
			Details: err.Error(),
		})
		return false
	}

	if errs := utils.ValidateStruct(req); errs != nil {
		reqLogger.Warn("Request validation failed", zap.Int("fields", len(errs)))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:  "Invalid request parameters",
			Code:   "INVALID_PARAMS",
			Fields: errs,
		})
		return false
	}

	return true
}
