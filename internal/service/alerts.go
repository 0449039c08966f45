package service

import (
	"context"
	"fmt"

	"inventory-service/internal/models"
	"inventory-service/internal/util"

	"github.com/shopspring/decimal"
)

var (
	hundred     = decimal.NewFromInt(100)
	daysInMonth = decimal.NewFromInt(30)
)

// CriticalItems returns every item whose status is critical, lowest stock first.
func (s *InventoryService) CriticalItems(ctx context.Context) ([]models.InventoryItem, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.CriticalItems")
	defer span.End()

	items, err := s.repo.QueryByStatus(ctx, models.StatusCritical)
	if err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to query critical items: %w", err)
	}
	if items == nil {
		items = []models.InventoryItem{}
	}
	return items, nil
}

// LowStockItems returns low and warning items that still have stock, with
// fill percentage and a reorder estimate.
func (s *InventoryService) LowStockItems(ctx context.Context) ([]models.LowStockItem, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.LowStockItems")
	defer span.End()

	items, err := s.repo.QueryByStatus(ctx, models.StatusLow, models.StatusWarning)
	if err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to query low stock items: %w", err)
	}

	out := make([]models.LowStockItem, 0, len(items))
	for _, item := range items {
		if !item.CurrentStock.IsPositive() {
			continue
		}
		out = append(out, annotate(item))
	}
	return out, nil
}

func annotate(item models.InventoryItem) models.LowStockItem {
	low := models.LowStockItem{
		InventoryItem:         item,
		Percentage:            decimal.Zero,
		NeedsImmediateRestock: item.CurrentStock.LessThanOrEqual(item.ReorderPoint),
	}

	if item.MaxStock.IsPositive() {
		pct := item.CurrentStock.Div(item.MaxStock).Mul(hundred)
		if pct.GreaterThan(hundred) {
			pct = hundred
		}
		low.Percentage = pct.Round(2)
	}

	if item.MinStock.IsPositive() {
		daily := item.MinStock.Div(daysInMonth)
		headroom := decimal.Max(decimal.Zero, item.CurrentStock.Sub(item.ReorderPoint))
		days := headroom.Div(daily).Floor().IntPart()
		low.DaysUntilReorder = &days
	}
	return low
}
