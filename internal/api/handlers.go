package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"arvscout/config"
	"arvscout/internal/app"
	"arvscout/internal/geometry"
	"arvscout/internal/listing"
	"arvscout/internal/models"
	"arvscout/internal/scheduler"
	"arvscout/internal/valuation"
)

type Handler struct {
	app       *app.App
	scheduler *scheduler.Scheduler
	defaults  *config.AppConfig
	logger    *logrus.Logger
}

// ValuationRequest values one subject against caller-supplied comps. Config
// overrides are applied field by field over the server defaults.
type ValuationRequest struct {
	Subject map[string]any   `json:"subject" binding:"required"`
	Comps   []map[string]any `json:"comps"`
	Config  json.RawMessage  `json:"config"`
}

// NewHandler creates a handler. sched may be nil when scheduled runs are
// disabled; defaults supplies the valuation settings and daily limit.
func NewHandler(a *app.App, sched *scheduler.Scheduler, defaults *config.AppConfig, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	if defaults == nil {
		defaults = config.DefaultAppConfig()
	}
	return &Handler{app: a, scheduler: sched, defaults: defaults, logger: logger}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "engine": valuation.Version})
}

func (h *Handler) EstimateValuation(c *gin.Context) {
	var req ValuationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	arvCfg := h.defaults.ArvConfig
	profitCfg := h.defaults.ProfitConfig
	// Overrides decode through pointer fields; copy them so a request never
	// writes into the shared defaults.
	if rb := profitCfg.RehabBudget; rb != nil {
		v := *rb
		profitCfg.RehabBudget = &v
	}
	if len(req.Config) > 0 && string(req.Config) != "null" {
		overrides := struct {
			ArvConfig    *config.ArvConfig    `json:"arv_config"`
			ProfitConfig *config.ProfitConfig `json:"profit_config"`
		}{&arvCfg, &profitCfg}
		if err := json.Unmarshal(req.Config, &overrides); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid config: " + err.Error()})
			return
		}
	}
	if err := errors.Join(arvCfg.Validate(), profitCfg.Validate()); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	subject := listing.NormalizeSubject(models.RawRecord(req.Subject))
	raw := make([]models.RawRecord, 0, len(req.Comps))
	for _, rc := range req.Comps {
		raw = append(raw, models.RawRecord(rc))
	}
	comps, _ := geometry.ScreenByRadius(subject, listing.NormalizeComps(raw), arvCfg.CompRadiusMi)

	v, err := valuation.EstimateARVAndProfit(subject, comps, arvCfg, profitCfg)
	if err != nil {
		var missing *valuation.MissingFieldError
		switch {
		case errors.As(err, &missing):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "kind": "missing_field", "field": missing.Field})
		case errors.Is(err, valuation.ErrNoComps):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "kind": "no_comps"})
		default:
			h.logger.WithError(err).Error("Failed to estimate valuation")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to estimate valuation"})
		}
		return
	}

	c.JSON(http.StatusOK, v)
}

func (h *Handler) GetCacheStats(c *gin.Context) {
	report, err := h.app.CacheReport(c.Request.Context(), h.defaults.RateLimit.DailyLimit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get cache stats")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get cache stats"})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) ClearCache(c *gin.Context) {
	namespace := c.DefaultQuery("namespace", "all")
	if err := h.app.ClearCache(c.Request.Context(), namespace); err != nil {
		if errors.Is(err, app.ErrUnknownNamespace) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.WithError(err).Error("Failed to clear cache")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear cache"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cleared": namespace})
}

func (h *Handler) GetRateLimit(c *gin.Context) {
	report, err := h.app.CacheReport(c.Request.Context(), h.defaults.RateLimit.DailyLimit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get rate limit")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get rate limit"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"day":   report.Day,
		"count": report.RateLimitCount,
		"limit": report.RateLimit,
	})
}

// TriggerRun starts a batch run in the background.
func (h *Handler) TriggerRun(c *gin.Context) {
	if h.scheduler == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Batch runs are not enabled"})
		return
	}
	if err := h.scheduler.Trigger(); err != nil {
		if errors.Is(err, scheduler.ErrRunInProgress) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start run"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "started"})
}

func (h *Handler) GetLastRun(c *gin.Context) {
	if h.scheduler == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Batch runs are not enabled"})
		return
	}
	last := h.scheduler.Last()
	if last == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No run has completed yet"})
		return
	}
	c.JSON(http.StatusOK, last)
}
