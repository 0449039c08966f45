package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"inventory-service/internal/broker"
	"inventory-service/internal/models"
	"inventory-service/internal/service"
	"inventory-service/internal/util"

	"go.uber.org/zap"
)

const processedTTL = 7 * 24 * time.Hour

// IdempotencyStore remembers which events were already handled
type IdempotencyStore interface {
	ClaimIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
	ForgetIdempotencyKey(ctx context.Context, key string) error
}

// AdjustmentPublisher announces committed adjustments
type AdjustmentPublisher interface {
	PublishAdjustment(ctx context.Context, item *models.InventoryItem, adj *models.StockAdjustment)
}

// OrderConsumer deducts the ingredients of a completed order
type OrderConsumer interface {
	ConsumeOrder(ctx context.Context, order *models.OrderCompletedEvent) (*service.ConsumptionResult, error)
}

// OrderWorker deducts stock for completed orders arriving on Kafka
type OrderWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	inventory    OrderConsumer
	idempotency  IdempotencyStore
	publisher    AdjustmentPublisher
	logger       *zap.Logger
}

// NewOrderWorker creates a new order worker. idempotency and publisher may be nil.
func NewOrderWorker(
	consumer *broker.Consumer,
	inventory OrderConsumer,
	idempotency IdempotencyStore,
	publisher AdjustmentPublisher,
) *OrderWorker {
	w := &OrderWorker{
		consumer:    consumer,
		inventory:   inventory,
		idempotency: idempotency,
		publisher:   publisher,
		logger:      util.GetLogger(),
	}

	w.eventHandler = broker.NewEventHandler()
	w.eventHandler.OnOrderCompleted(w.HandleOrderCompleted)
	return w
}

// Start starts the worker
func (w *OrderWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting order worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *OrderWorker) Stop() error {
	w.logger.Info("Stopping order worker")
	return w.consumer.Close()
}

// HandleOrderCompleted consumes an order's ingredients once per event.
// Orders that can never succeed are logged and acknowledged; other failures
// are returned so the message is not committed.
func (w *OrderWorker) HandleOrderCompleted(ctx context.Context, event *models.OrderCompletedEvent) error {
	ctx, span := util.StartSpan(ctx, "OrderWorker.HandleOrderCompleted")
	defer span.End()

	key := "order-consumed:" + event.EventID
	if event.EventID == "" {
		key = "order-consumed:" + event.OrderID
	}

	if w.idempotency != nil {
		claimed, err := w.idempotency.ClaimIdempotencyKey(ctx, key, event.OrderID, processedTTL)
		if err != nil {
			return fmt.Errorf("failed to claim event: %w", err)
		}
		if !claimed {
			w.logger.Info("Event already processed", zap.String("event_id", event.EventID), zap.String("order_id", event.OrderID))
			return nil
		}
	}

	result, err := w.inventory.ConsumeOrder(ctx, event)
	if err != nil {
		util.RecordError(span, err)
		if permanent(err) {
			w.logger.Warn("Order could not be consumed",
				zap.String("order_id", event.OrderID),
				zap.String("reason", service.RejectReason(err)),
				zap.Error(err))
			return nil
		}
		if w.idempotency != nil {
			if ferr := w.idempotency.ForgetIdempotencyKey(ctx, key); ferr != nil {
				w.logger.Error("Failed to release event claim", zap.String("key", key), zap.Error(ferr))
			}
		}
		return fmt.Errorf("failed to consume order %s: %w", event.OrderID, err)
	}

	if w.publisher != nil && !result.Replayed {
		for i := range result.Adjustments {
			w.publisher.PublishAdjustment(ctx, &result.Items[i], &result.Adjustments[i])
		}
	}
	return nil
}

// permanent reports whether retrying err can never succeed. An order whose
// compensation did not finish is retried; the next attempt rolls back the
// leftovers before applying the order again.
func permanent(err error) bool {
	var concurrent *service.ConcurrentModificationError
	if errors.As(err, &concurrent) {
		return false
	}
	switch service.RejectReason(err) {
	case "internal", "consistency", "compensation_incomplete":
		return false
	}
	return true
}
