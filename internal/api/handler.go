package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"inventory-service/internal/models"
	"inventory-service/internal/service"
	"inventory-service/internal/units"
	"inventory-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AdjustmentPublisher announces committed adjustments
type AdjustmentPublisher interface {
	PublishAdjustment(ctx context.Context, item *models.InventoryItem, adj *models.StockAdjustment)
}

// ReadinessCheck reports whether a dependency is usable
type ReadinessCheck func(ctx context.Context) error

// Handler contains HTTP handlers
type Handler struct {
	inventory *service.InventoryService
	publisher AdjustmentPublisher
	checks    map[string]ReadinessCheck
	logger    *zap.Logger
}

// NewHandler creates a new HTTP handler. publisher may be nil.
func NewHandler(inventory *service.InventoryService, publisher AdjustmentPublisher) *Handler {
	return &Handler{
		inventory: inventory,
		publisher: publisher,
		checks:    make(map[string]ReadinessCheck),
		logger:    util.GetLogger(),
	}
}

// AddReadinessCheck registers a dependency probed by /ready
func (h *Handler) AddReadinessCheck(name string, check ReadinessCheck) {
	h.checks[name] = check
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/items", h.createItem)
		v1.GET("/items/:id", h.getItem)
		v1.POST("/items/:id/adjustments", h.applyAdjustment)
		v1.GET("/items/:id/history", h.getHistory)
		v1.GET("/items/:id/reconcile", h.reconcile)

		v1.POST("/adjustments/:id/rollback", h.rollback)
		v1.POST("/orders/consume", h.consumeOrder)

		v1.GET("/alerts/critical", h.criticalItems)
		v1.GET("/alerts/low-stock", h.lowStockItems)

		v1.GET("/units", h.listUnits)
		v1.POST("/convert", h.convert)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck probes every registered dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// itemView is an item together with its stock in the display unit
type itemView struct {
	models.InventoryItem
	Display string `json:"display"`
}

func newItemView(item *models.InventoryItem) itemView {
	display, err := units.FormatQuantity(item.CurrentStock, item.DisplayUnit)
	if err != nil {
		display = item.CurrentStock.String() + " " + string(item.Unit)
	}
	return itemView{InventoryItem: *item, Display: display}
}

func actor(c *gin.Context) string {
	if id := c.GetHeader("X-User-ID"); id != "" {
		return id
	}
	return "system"
}

// createItem handles item creation
func (h *Handler) createItem(c *gin.Context) {
	var input models.InventoryInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	input.PerformedBy = actor(c)

	item, err := h.inventory.CreateItem(c.Request.Context(), &input)
	if err != nil {
		h.respondError(c, "Failed to create item", err)
		return
	}

	c.JSON(http.StatusCreated, newItemView(item))
}

// getItem handles get item by ID
func (h *Handler) getItem(c *gin.Context) {
	item, err := h.inventory.GetItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "Failed to get item", err)
		return
	}

	c.JSON(http.StatusOK, newItemView(item))
}

// applyAdjustment records a stock change
func (h *Handler) applyAdjustment(c *gin.Context) {
	var req models.AdjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	req.ItemID = c.Param("id")
	req.PerformedBy = actor(c)

	item, adj, err := h.inventory.ApplyAdjustment(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, "Failed to apply adjustment", err)
		return
	}
	h.publish(c.Request.Context(), item, adj)

	c.JSON(http.StatusCreated, gin.H{
		"item":       newItemView(item),
		"adjustment": adj,
	})
}

type rollbackRequest struct {
	Notes string `json:"notes"`
}

// rollback reverses a ledger entry
func (h *Handler) rollback(c *gin.Context) {
	var req rollbackRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}

	item, adj, err := h.inventory.Rollback(c.Request.Context(), c.Param("id"), actor(c), req.Notes)
	if err != nil {
		h.respondError(c, "Failed to roll back adjustment", err)
		return
	}
	h.publish(c.Request.Context(), item, adj)

	c.JSON(http.StatusCreated, gin.H{
		"item":       newItemView(item),
		"adjustment": adj,
	})
}

// getHistory pages through an item's ledger
func (h *Handler) getHistory(c *gin.Context) {
	req := service.HistoryRequest{
		ItemID: c.Param("id"),
		Cursor: c.Query("cursor"),
	}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, err)
			return
		}
		req.Limit = limit
	}
	for name, dst := range map[string]**time.Time{"from": &req.From, "to": &req.To} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			badRequest(c, err)
			return
		}
		*dst = &t
	}

	page, err := h.inventory.History(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, "Failed to get history", err)
		return
	}

	c.JSON(http.StatusOK, page)
}

// reconcile replays an item's ledger against its stock
func (h *Handler) reconcile(c *gin.Context) {
	report, err := h.inventory.Reconcile(c.Request.Context(), c.Param("id"))
	var consistency *service.ConsistencyError
	if errors.As(err, &consistency) {
		c.JSON(http.StatusConflict, report)
		return
	}
	if err != nil {
		h.respondError(c, "Failed to reconcile item", err)
		return
	}

	c.JSON(http.StatusOK, report)
}

// consumeOrder deducts the ingredients of an order in one transaction
func (h *Handler) consumeOrder(c *gin.Context) {
	var order models.OrderCompletedEvent
	if err := c.ShouldBindJSON(&order); err != nil {
		badRequest(c, err)
		return
	}
	if order.PerformedBy == "" {
		order.PerformedBy = actor(c)
	}

	result, err := h.inventory.ConsumeOrder(c.Request.Context(), &order)
	if err != nil {
		h.respondError(c, "Failed to consume order", err)
		return
	}
	if result.Replayed {
		c.JSON(http.StatusOK, result)
		return
	}
	for i := range result.Adjustments {
		h.publish(c.Request.Context(), &result.Items[i], &result.Adjustments[i])
	}

	c.JSON(http.StatusCreated, result)
}

// criticalItems lists items at critical status
func (h *Handler) criticalItems(c *gin.Context) {
	items, err := h.inventory.CriticalItems(c.Request.Context())
	if err != nil {
		h.respondError(c, "Failed to list critical items", err)
		return
	}

	views := make([]itemView, 0, len(items))
	for i := range items {
		views = append(views, newItemView(&items[i]))
	}
	c.JSON(http.StatusOK, gin.H{"items": views})
}

// lowStockItems lists low and warning items with restock hints
func (h *Handler) lowStockItems(c *gin.Context) {
	items, err := h.inventory.LowStockItems(c.Request.Context())
	if err != nil {
		h.respondError(c, "Failed to list low stock items", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

// listUnits returns the unit catalog
func (h *Handler) listUnits(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"units": units.Catalog()})
}

type convertRequest struct {
	Quantity   decimal.Decimal  `json:"quantity"`
	From       string           `json:"from" binding:"required"`
	To         string           `json:"to" binding:"required"`
	Density    *decimal.Decimal `json:"density,omitempty"`
	Ingredient string           `json:"ingredient,omitempty"`
}

// convert converts a quantity between two units
func (h *Handler) convert(c *gin.Context) {
	var req convertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	from, err := units.Parse(req.From)
	if err != nil {
		h.respondError(c, "Failed to convert", err)
		return
	}
	to, err := units.Parse(req.To)
	if err != nil {
		h.respondError(c, "Failed to convert", err)
		return
	}

	density := units.ForIngredient(req.Ingredient)
	if req.Density != nil {
		density = units.WithDensity(*req.Density)
	}

	result, err := units.Convert(req.Quantity, from, to, density)
	if err != nil {
		h.respondError(c, "Failed to convert", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"quantity": result,
		"unit":     to,
		"note":     units.ConversionNote(req.Quantity, from, result, to, density),
	})
}

func (h *Handler) publish(ctx context.Context, item *models.InventoryItem, adj *models.StockAdjustment) {
	if h.publisher == nil {
		return
	}
	h.publisher.PublishAdjustment(ctx, item, adj)
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request body",
		"details": err.Error(),
	})
}

// statusFor maps a service error onto an HTTP status
func statusFor(err error) int {
	switch service.RejectReason(err) {
	case "unknown_unit", "incompatible_units", "invalid_quantity", "validation":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "insufficient_stock", "concurrent_modification":
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) respondError(c *gin.Context, message string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(message, zap.String("path", c.FullPath()), zap.Error(err))
	}

	c.JSON(status, gin.H{
		"error":   message,
		"reason":  service.RejectReason(err),
		"details": err.Error(),
	})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
