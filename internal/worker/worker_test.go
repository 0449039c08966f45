package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"inventory-service/internal/models"
	"inventory-service/internal/service"
	"inventory-service/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryClaims struct {
	mu     sync.Mutex
	claims map[string]bool
	err    error
}

func (m *memoryClaims) ClaimIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if m.claims == nil {
		m.claims = make(map[string]bool)
	}
	if m.claims[key] {
		return false, nil
	}
	m.claims[key] = true
	return true, nil
}

func (m *memoryClaims) ForgetIdempotencyKey(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.claims, key)
	return nil
}

type countingPublisher struct {
	published int
}

func (p *countingPublisher) PublishAdjustment(ctx context.Context, item *models.InventoryItem, adj *models.StockAdjustment) {
	p.published++
}

type failingConsumer struct {
	err error
}

func (f failingConsumer) ConsumeOrder(ctx context.Context, order *models.OrderCompletedEvent) (*service.ConsumptionResult, error) {
	return nil, f.err
}

func newInventory(t *testing.T) (*service.InventoryService, *models.InventoryItem) {
	t.Helper()
	svc := service.NewInventoryService(store.NewMemoryStore(), nil, service.DefaultOptions())
	item, err := svc.CreateItem(context.Background(), &models.InventoryInput{
		Name:         "Espresso beans",
		Unit:         "g",
		CurrentStock: models.Quantity{Value: decimal.NewFromInt(100)},
	})
	require.NoError(t, err)
	return svc, item
}

func orderEvent(eventID string, itemID string) *models.OrderCompletedEvent {
	return &models.OrderCompletedEvent{
		BaseEvent: models.BaseEvent{EventID: eventID, EventType: models.EventTypeOrderCompleted},
		OrderID:   "order-" + eventID,
		Ingredients: []models.IngredientUsageData{
			{ItemID: itemID, Quantity: decimal.NewFromInt(18), Unit: "g"},
		},
	}
}

func TestHandleOrderCompletedIsIdempotent(t *testing.T) {
	svc, item := newInventory(t)
	claims := &memoryClaims{}
	publisher := &countingPublisher{}
	w := NewOrderWorker(nil, svc, claims, publisher)
	ctx := context.Background()

	require.NoError(t, w.HandleOrderCompleted(ctx, orderEvent("evt-1", item.ID)))
	require.NoError(t, w.HandleOrderCompleted(ctx, orderEvent("evt-1", item.ID)))

	stored, err := svc.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(82).Equal(stored.CurrentStock))
	assert.Equal(t, 1, publisher.published)
}

func TestHandleOrderCompletedAcknowledgesPermanentFailures(t *testing.T) {
	svc, item := newInventory(t)
	claims := &memoryClaims{}
	w := NewOrderWorker(nil, svc, claims, nil)

	event := orderEvent("evt-2", item.ID)
	event.Ingredients[0].Quantity = decimal.NewFromInt(500)

	assert.NoError(t, w.HandleOrderCompleted(context.Background(), event))
	assert.True(t, claims.claims["order-consumed:evt-2"])
}

func TestHandleOrderCompletedReleasesClaimOnTransientFailure(t *testing.T) {
	claims := &memoryClaims{}
	w := NewOrderWorker(nil, failingConsumer{err: errors.New("connection reset")}, claims, nil)

	err := w.HandleOrderCompleted(context.Background(), orderEvent("evt-3", "item"))
	assert.Error(t, err)
	assert.False(t, claims.claims["order-consumed:evt-3"])

	w = NewOrderWorker(nil, failingConsumer{err: &service.ConcurrentModificationError{ItemID: "item", Attempts: 5}}, claims, nil)
	assert.Error(t, w.HandleOrderCompleted(context.Background(), orderEvent("evt-3", "item")))

	incomplete := &service.CompensationError{
		OrderID: "order-evt-3",
		Cause:   &service.InsufficientStockError{ItemID: "item"},
		Pending: []string{"adj-1"},
	}
	w = NewOrderWorker(nil, failingConsumer{err: incomplete}, claims, nil)
	assert.Error(t, w.HandleOrderCompleted(context.Background(), orderEvent("evt-3", "item")))
	assert.False(t, claims.claims["order-consumed:evt-3"])
}

func TestHandleOrderCompletedRedeliveryWithoutClaims(t *testing.T) {
	svc, item := newInventory(t)
	publisher := &countingPublisher{}
	w := NewOrderWorker(nil, svc, nil, publisher)
	ctx := context.Background()

	require.NoError(t, w.HandleOrderCompleted(ctx, orderEvent("evt-6", item.ID)))
	require.NoError(t, w.HandleOrderCompleted(ctx, orderEvent("evt-6", item.ID)))

	stored, err := svc.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(82).Equal(stored.CurrentStock))
	assert.Equal(t, 1, publisher.published)
}

func TestHandleOrderCompletedWithoutRedis(t *testing.T) {
	svc, item := newInventory(t)
	w := NewOrderWorker(nil, svc, nil, nil)

	require.NoError(t, w.HandleOrderCompleted(context.Background(), orderEvent("evt-4", item.ID)))

	claims := &memoryClaims{err: errors.New("redis down")}
	w = NewOrderWorker(nil, svc, claims, nil)
	assert.Error(t, w.HandleOrderCompleted(context.Background(), orderEvent("evt-5", item.ID)))
}
