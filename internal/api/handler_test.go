package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"inventory-service/internal/models"
	"inventory-service/internal/service"
	"inventory-service/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu          sync.Mutex
	adjustments []string
}

func (p *recordingPublisher) PublishAdjustment(ctx context.Context, item *models.InventoryItem, adj *models.StockAdjustment) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.adjustments = append(p.adjustments, adj.ID)
}

func setupRouter(t *testing.T) (*gin.Engine, *recordingPublisher) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc := service.NewInventoryService(store.NewMemoryStore(), nil, service.DefaultOptions())
	publisher := &recordingPublisher{}
	handler := NewHandler(svc, publisher)

	router := gin.New()
	handler.SetupRoutes(router)
	return router, publisher
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "barista-7")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func createItem(t *testing.T, router *gin.Engine) map[string]interface{} {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/api/v1/items", gin.H{
		"name":          "Flour",
		"unit":          "kg",
		"current_stock": gin.H{"value": "5"},
		"min_stock":     gin.H{"value": "1"},
		"max_stock":     gin.H{"value": "10"},
		"reorder_point": gin.H{"value": "2"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var item map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &item))
	return item
}

func TestHealthCheck(t *testing.T) {
	router, _ := setupRouter(t)

	w := doJSON(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReadinessReportsFailedDependency(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := service.NewInventoryService(store.NewMemoryStore(), nil, service.DefaultOptions())
	handler := NewHandler(svc, nil)
	handler.AddReadinessCheck("database", func(ctx context.Context) error { return errors.New("connection refused") })

	router := gin.New()
	handler.SetupRoutes(router)

	w := doJSON(t, router, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestCreateAndGetItem(t *testing.T) {
	router, _ := setupRouter(t)
	item := createItem(t, router)

	assert.Equal(t, "g", item["unit"])
	assert.Equal(t, "5 kg", item["display"])
	assert.Equal(t, "ok", item["status"])

	w := doJSON(t, router, http.MethodGet, "/api/v1/items/"+item["id"].(string), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/items/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateItemRejectsUnknownUnit(t *testing.T) {
	router, _ := setupRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/items", gin.H{"name": "Flour", "unit": "sack"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unknown_unit")
}

func TestApplyAdjustmentAndRollback(t *testing.T) {
	router, publisher := setupRouter(t)
	item := createItem(t, router)
	id := item["id"].(string)

	w := doJSON(t, router, http.MethodPost, "/api/v1/items/"+id+"/adjustments", gin.H{
		"type": "usage", "quantity": "4.5", "unit": "kg",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Item       map[string]interface{} `json:"item"`
		Adjustment models.StockAdjustment `json:"adjustment"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "critical", resp.Item["status"])
	assert.Equal(t, "0.5 kg", resp.Item["display"])
	assert.Equal(t, "barista-7", resp.Adjustment.PerformedBy)

	w = doJSON(t, router, http.MethodPost, "/api/v1/items/"+id+"/adjustments", gin.H{
		"type": "usage", "quantity": "1", "unit": "kg",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "insufficient_stock")

	w = doJSON(t, router, http.MethodPost, "/api/v1/adjustments/"+resp.Adjustment.ID+"/rollback", gin.H{"notes": "wrong bag"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = doJSON(t, router, http.MethodPost, "/api/v1/adjustments/"+resp.Adjustment.ID+"/rollback", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Len(t, publisher.adjustments, 2)

	w = doJSON(t, router, http.MethodGet, "/api/v1/items/"+id+"/history?limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page service.HistoryPage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Len(t, page.Adjustments, 2)
	assert.NotEmpty(t, page.NextCursor)

	w = doJSON(t, router, http.MethodGet, "/api/v1/items/"+id+"/reconcile", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHistoryRejectsBadQuery(t *testing.T) {
	router, _ := setupRouter(t)
	item := createItem(t, router)
	id := item["id"].(string)

	w := doJSON(t, router, http.MethodGet, "/api/v1/items/"+id+"/history?from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/items/"+id+"/history?from=2024-02-01T00:00:00Z&to=2024-01-01T00:00:00Z", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAlerts(t *testing.T) {
	router, _ := setupRouter(t)
	item := createItem(t, router)
	id := item["id"].(string)

	w := doJSON(t, router, http.MethodPost, "/api/v1/items/"+id+"/adjustments", gin.H{
		"type": "correction", "quantity": "1.8", "unit": "kg",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = doJSON(t, router, http.MethodGet, "/api/v1/alerts/low-stock", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var low struct {
		Items []models.LowStockItem `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &low))
	require.Len(t, low.Items, 1)
	assert.Equal(t, "18", low.Items[0].Percentage.String())
	assert.True(t, low.Items[0].NeedsImmediateRestock)

	w = doJSON(t, router, http.MethodGet, "/api/v1/alerts/critical", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"items":[]`)
}

func TestConsumeOrderEndpoint(t *testing.T) {
	router, publisher := setupRouter(t)
	item := createItem(t, router)

	w := doJSON(t, router, http.MethodPost, "/api/v1/orders/consume", gin.H{
		"order_id": "order-1",
		"ingredients": []gin.H{
			{"item_id": item["id"], "quantity": "250", "unit": "g"},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Len(t, publisher.adjustments, 1)

	w = doJSON(t, router, http.MethodPost, "/api/v1/orders/consume", gin.H{
		"order_id": "order-1",
		"ingredients": []gin.H{
			{"item_id": item["id"], "quantity": "250", "unit": "g"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"replayed":true`)
	assert.Len(t, publisher.adjustments, 1)

	w = doJSON(t, router, http.MethodGet, "/api/v1/items/"+item["id"].(string), nil)
	assert.Contains(t, w.Body.String(), `"display":"4.75 kg"`)

	w = doJSON(t, router, http.MethodPost, "/api/v1/orders/consume", gin.H{"order_id": "order-2"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConvert(t *testing.T) {
	router, _ := setupRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/convert", gin.H{
		"quantity": "250", "from": "mL", "to": "g", "ingredient": "milk",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"quantity":"257.5"`)
	assert.Contains(t, w.Body.String(), "density 1.03 g/mL")

	w = doJSON(t, router, http.MethodPost, "/api/v1/convert", gin.H{
		"quantity": "250", "from": "mL", "to": "g", "ingredient": "milk", "density": "-1",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_quantity")

	w = doJSON(t, router, http.MethodPost, "/api/v1/convert", gin.H{
		"quantity": "1", "from": "pieces", "to": "g",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "incompatible_units")

	w = doJSON(t, router, http.MethodGet, "/api/v1/units", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"symbol":"tbsp"`)
}
