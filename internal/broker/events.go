package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"inventory-service/internal/models"
	"inventory-service/internal/units"
	"inventory-service/internal/util"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer, logger: util.GetLogger()}
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}

// PublishStockAdjusted publishes StockAdjusted event
func (ep *EventPublisher) PublishStockAdjusted(ctx context.Context, event *models.StockAdjustedEvent) error {
	return ep.producer.PublishEvent(ctx, "item-"+event.ItemID, event)
}

// PublishLowStockAlert publishes LowStockAlert event
func (ep *EventPublisher) PublishLowStockAlert(ctx context.Context, event *models.LowStockAlertEvent) error {
	return ep.producer.PublishEvent(ctx, "item-"+event.ItemID, event)
}

// PublishAdjustment announces a committed adjustment, followed by a low stock
// alert when the item left the ok band. Publishing failures are logged; the
// adjustment itself is already durable.
func (ep *EventPublisher) PublishAdjustment(ctx context.Context, item *models.InventoryItem, adj *models.StockAdjustment) {
	adjusted := &models.StockAdjustedEvent{
		BaseEvent:    newBaseEvent(models.EventTypeStockAdjusted),
		ItemID:       item.ID,
		AdjustmentID: adj.ID,
		Type:         adj.Type,
		Delta:        adj.SignedDelta(),
		NewStock:     adj.NewStock,
		Unit:         string(item.Unit),
		Status:       item.Status,
	}
	if adj.TransactionID != nil {
		adjusted.TransactionID = *adj.TransactionID
	}
	if err := ep.PublishStockAdjusted(ctx, adjusted); err != nil {
		ep.logger.Error("Failed to publish stock adjusted event", zap.String("adjustment_id", adj.ID), zap.Error(err))
	}

	if item.Status == models.StatusOK {
		return
	}

	display, err := units.FormatQuantity(item.CurrentStock, item.DisplayUnit)
	if err != nil {
		display = fmt.Sprintf("%s %s", item.CurrentStock, item.Unit)
	}
	alert := &models.LowStockAlertEvent{
		BaseEvent:    newBaseEvent(models.EventTypeLowStockAlert),
		ItemID:       item.ID,
		Name:         item.Name,
		Status:       item.Status,
		CurrentStock: item.CurrentStock,
		ReorderPoint: item.ReorderPoint,
		Display:      display,
	}
	util.LowStockAlertsTotal.WithLabelValues(string(item.Status)).Inc()
	if err := ep.PublishLowStockAlert(ctx, alert); err != nil {
		ep.logger.Error("Failed to publish low stock alert", zap.String("item_id", item.ID), zap.Error(err))
	}
}

// EventHandler handles incoming events
type EventHandler struct {
	onOrderCompleted func(context.Context, *models.OrderCompletedEvent) error
	logger           *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnOrderCompleted registers a handler for OrderCompleted events
func (eh *EventHandler) OnOrderCompleted(handler func(context.Context, *models.OrderCompletedEvent) error) {
	eh.onOrderCompleted = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeOrderCompleted:
		if eh.onOrderCompleted != nil {
			var event models.OrderCompletedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal OrderCompleted event: %w", err)
			}
			return eh.onOrderCompleted(ctx, &event)
		}

	default:
		eh.logger.Debug("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
