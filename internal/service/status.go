package service

import (
	"inventory-service/internal/models"

	"github.com/shopspring/decimal"
)

// StatusPolicy configures the thresholds used by DeriveStatus.
type StatusPolicy struct {
	// WarningBuffer widens the reorder point into a warning band, as a
	// fraction of the reorder point (0.25 warns up to 125%).
	WarningBuffer decimal.Decimal
}

// DefaultStatusPolicy warns within 25% above the reorder point.
func DefaultStatusPolicy() StatusPolicy {
	return StatusPolicy{WarningBuffer: decimal.RequireFromString("0.25")}
}

// DeriveStatus computes an item's status from its stored fields alone.
func DeriveStatus(item *models.InventoryItem, policy StatusPolicy) models.Status {
	stock := item.CurrentStock

	switch {
	case !stock.IsPositive():
		return models.StatusCritical
	case item.MinStock.IsPositive() && stock.LessThanOrEqual(item.MinStock):
		return models.StatusCritical
	case stock.LessThanOrEqual(item.ReorderPoint):
		return models.StatusLow
	case item.ReorderPoint.IsPositive() &&
		stock.LessThanOrEqual(item.ReorderPoint.Mul(decimal.NewFromInt(1).Add(policy.WarningBuffer))):
		return models.StatusWarning
	default:
		return models.StatusOK
	}
}
