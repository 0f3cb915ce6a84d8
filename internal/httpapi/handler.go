// Package httpapi exposes operator actions over a local HTTP API.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rewired-gh/signalwatch/internal/control"
	"github.com/rewired-gh/signalwatch/internal/models"
	"github.com/rewired-gh/signalwatch/internal/signalapi"
	"github.com/rewired-gh/signalwatch/internal/storage"
)

const maxLimit = 100

// Operator is the set of actions served over HTTP.
type Operator interface {
	Preferences(ctx context.Context) (models.Preferences, error)
	Set(ctx context.Context, key, value string) (models.Preferences, error)
	Latest(ctx context.Context, limit int) ([]models.Signal, error)
	Opportunities(ctx context.Context, limit int) ([]models.Signal, error)
	Health(ctx context.Context) (*signalapi.HealthResponse, error)
	TriggerCycle() error
	Status(ctx context.Context) (control.Status, error)
}

type Handler struct {
	op Operator
}

func New(op Operator) *Handler {
	return &Handler{op: op}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", h.Healthz)
	r.GET("/settings", h.GetSettings)
	r.PUT("/settings/:key", h.PutSetting)
	r.GET("/signals/latest", h.GetLatest)
	r.GET("/signals/opportunities", h.GetOpportunities)
	r.GET("/status", h.GetStatus)
	r.POST("/cycle", h.PostCycle)
}

// NewRouter returns a gin engine with every route registered.
func NewRouter(op Operator) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	New(op).RegisterRoutes(r)
	return r
}

// Healthz reports local liveness and the upstream signal service health.
func (h *Handler) Healthz(c *gin.Context) {
	resp := gin.H{"status": "ok"}
	upstream, err := h.op.Health(c.Request.Context())
	if err != nil {
		resp["upstream_error"] = err.Error()
	} else {
		resp["upstream"] = upstream
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetSettings(c *gin.Context) {
	prefs, err := h.op.Preferences(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"settings": prefs, "warning": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": prefs})
}

type setRequest struct {
	Value *string `json:"value"`
}

func (h *Handler) PutSetting(c *gin.Context) {
	var req setRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Value == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": `body must be {"value": "..."}`})
		return
	}

	prefs, err := h.op.Set(c.Request.Context(), c.Param("key"), *req.Value)
	if err != nil {
		var storageErr *storage.StorageError
		if errors.As(err, &storageErr) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": prefs})
}

func (h *Handler) GetLatest(c *gin.Context) {
	h.listSignals(c, h.op.Latest)
}

func (h *Handler) GetOpportunities(c *gin.Context) {
	h.listSignals(c, h.op.Opportunities)
}

func (h *Handler) listSignals(c *gin.Context, fetch func(context.Context, int) ([]models.Signal, error)) {
	limit := 0
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 100"})
			return
		}
		limit = n
	}

	signals, err := fetch(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	if signals == nil {
		signals = []models.Signal{}
	}
	c.JSON(http.StatusOK, gin.H{"signals": signals})
}

func (h *Handler) GetStatus(c *gin.Context) {
	st, err := h.op.Status(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) PostCycle(c *gin.Context) {
	if err := h.op.TriggerCycle(); err != nil {
		if errors.Is(err, control.ErrCycleRunning) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "started"})
}
