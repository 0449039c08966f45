package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderCompleted = "ORDER_COMPLETED"
	EventTypeStockAdjusted  = "STOCK_ADJUSTED"
	EventTypeLowStockAlert  = "LOW_STOCK_ALERT"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCompletedEvent is published by the checkout service once an order is
// handed over; each line is one recipe ingredient to consume.
type OrderCompletedEvent struct {
	BaseEvent
	OrderID     string                `json:"order_id"`
	PerformedBy string                `json:"performed_by"`
	Ingredients []IngredientUsageData `json:"ingredients"`
}

// IngredientUsageData represents one consumed ingredient in events
type IngredientUsageData struct {
	ItemID   string          `json:"item_id"`
	Quantity decimal.Decimal `json:"quantity"`
	Unit     string          `json:"unit"`
}

// StockAdjustedEvent published after a ledger entry is committed
type StockAdjustedEvent struct {
	BaseEvent
	ItemID        string          `json:"item_id"`
	AdjustmentID  string          `json:"adjustment_id"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Type          AdjustmentType  `json:"type"`
	Delta         decimal.Decimal `json:"delta"`
	NewStock      decimal.Decimal `json:"new_stock"`
	Unit          string          `json:"unit"`
	Status        Status          `json:"status"`
}

// LowStockAlertEvent published when an adjustment leaves an item below its thresholds
type LowStockAlertEvent struct {
	BaseEvent
	ItemID       string          `json:"item_id"`
	Name         string          `json:"name"`
	Status       Status          `json:"status"`
	CurrentStock decimal.Decimal `json:"current_stock"`
	ReorderPoint decimal.Decimal `json:"reorder_point"`
	Display      string          `json:"display"`
}
