package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"twse_alert_backend/models"
	"twse_alert_backend/services/history"
	"twse_alert_backend/services/watchlist"
)

// WatchlistController handles watchlist and monitor requests
type WatchlistController struct {
	store   *watchlist.Store
	engine  *watchlist.Engine
	history *history.Service
}

// NewWatchlistController creates a new watchlist controller. history
// may be nil when no history database is configured.
func NewWatchlistController(store *watchlist.Store, engine *watchlist.Engine, hist *history.Service) *WatchlistController {
	return &WatchlistController{
		store:   store,
		engine:  engine,
		history: hist,
	}
}

// alertRuleRequest is the wire shape of one alert rule. ID is empty for
// new rules; clients echo it back on edit so fired state stays attached.
type alertRuleRequest struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind" binding:"required"`
	Threshold decimal.Decimal `json:"threshold"`
	Enabled   *bool           `json:"enabled"`
}

type addItemRequest struct {
	Code  string             `json:"code" binding:"required"`
	Name  string             `json:"name"`
	Rules []alertRuleRequest `json:"rules" binding:"required"`
}

type updateItemRequest struct {
	Rules []alertRuleRequest `json:"rules" binding:"required"`
}

func toRules(reqs []alertRuleRequest) []models.AlertRule {
	rules := make([]models.AlertRule, len(reqs))
	for i, r := range reqs {
		enabled := true
		if r.Enabled != nil {
			enabled = *r.Enabled
		}
		rules[i] = models.AlertRule{
			ID:        r.ID,
			Kind:      models.RuleKind(r.Kind),
			Threshold: r.Threshold,
			Enabled:   enabled,
		}
	}
	return rules
}

// GetWatchlist returns all watch items in insertion order
// GET /api/v1/watchlist
func (wc *WatchlistController) GetWatchlist(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": wc.store.GetAll()})
}

// GetWatchItem returns a single watch item
// GET /api/v1/watchlist/:id
func (wc *WatchlistController) GetWatchItem(c *gin.Context) {
	item, err := wc.store.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Watch item not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": item})
}

// AddWatchItem creates a new watch item
// POST /api/v1/watchlist
func (wc *WatchlistController) AddWatchItem(c *gin.Context) {
	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	item, err := wc.store.Add(req.Code, req.Name, toRules(req.Rules))
	if err != nil {
		wc.writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": item})
}

// UpdateWatchItem replaces the item's rule set
// PUT /api/v1/watchlist/:id
func (wc *WatchlistController) UpdateWatchItem(c *gin.Context) {
	var req updateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	item, err := wc.store.Update(c.Param("id"), toRules(req.Rules))
	if err != nil {
		wc.writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": item})
}

// RemoveWatchItem deletes a watch item. Removing an unknown id succeeds.
// DELETE /api/v1/watchlist/:id
func (wc *WatchlistController) RemoveWatchItem(c *gin.Context) {
	if err := wc.store.Remove(c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}

// StartMonitor starts the polling engine
// POST /api/v1/monitor/start
func (wc *WatchlistController) StartMonitor(c *gin.Context) {
	wc.engine.Start()
	c.JSON(http.StatusOK, gin.H{"running": true, "status": wc.engine.Status()})
}

// StopMonitor stops the polling engine
// POST /api/v1/monitor/stop
func (wc *WatchlistController) StopMonitor(c *gin.Context) {
	wc.engine.Stop()
	c.JSON(http.StatusOK, gin.H{"running": false, "status": wc.engine.Status()})
}

// CheckNow performs one out-of-cycle poll, regardless of scheduler
// state or market hours
// POST /api/v1/monitor/check
func (wc *WatchlistController) CheckNow(c *gin.Context) {
	if err := wc.engine.Check(); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "status": wc.engine.Status()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": wc.engine.Status()})
}

// MonitorStatus returns the engine state and status string
// GET /api/v1/monitor/status
func (wc *WatchlistController) MonitorStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"running": wc.engine.Running(),
		"status":  wc.engine.Status(),
	})
}

// GetAlertHistory returns recent fired alerts
// GET /api/v1/alerts/history
func (wc *WatchlistController) GetAlertHistory(c *gin.Context) {
	if wc.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Alert history database not configured"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	entries, err := wc.history.Recent(c.Query("code"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch alert history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": entries})
}

func (wc *WatchlistController) writeStoreError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, watchlist.ErrEmptyRuleSet), errors.Is(err, watchlist.ErrInvalidRuleKind):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, watchlist.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Watch item not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
