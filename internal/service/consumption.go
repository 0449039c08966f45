package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"inventory-service/internal/models"
	"inventory-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// compensationTimeout bounds the rollbacks that undo a failed order. They run
// detached from the caller's context so a cancelled request still restores
// the stock it took.
const compensationTimeout = 30 * time.Second

// ConsumptionResult lists what an order took from stock. Replayed is set when
// the order had already been consumed and nothing new was written.
type ConsumptionResult struct {
	TransactionID string                   `json:"transaction_id"`
	OrderID       string                   `json:"order_id"`
	Adjustments   []models.StockAdjustment `json:"adjustments"`
	Items         []models.InventoryItem   `json:"items"`
	Replayed      bool                     `json:"replayed"`
}

// ConsumeOrder deducts every ingredient line of an order as usage under one
// transaction id. When a line fails, the lines already applied are rolled
// back before the error is returned.
//
// Consuming the same order id again is safe: a complete earlier consumption is
// returned as is, and the leftovers of an interrupted one are rolled back
// before the order is applied afresh.
func (s *InventoryService) ConsumeOrder(ctx context.Context, order *models.OrderCompletedEvent) (*ConsumptionResult, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.ConsumeOrder")
	defer span.End()

	if order.OrderID == "" {
		return nil, &ValidationError{Field: "order_id", Reason: "is required"}
	}
	if len(order.Ingredients) == 0 {
		return nil, &ValidationError{Field: "ingredients", Reason: "must not be empty"}
	}

	earlier, err := s.outstandingUsage(ctx, order.OrderID)
	if err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to look up earlier consumption of order %s: %w", order.OrderID, err)
	}
	for _, group := range earlier {
		if len(group) == len(order.Ingredients) {
			return s.replay(ctx, order, group)
		}
	}
	for _, group := range earlier {
		s.logger.Warn("Rolling back partial consumption from an earlier attempt",
			zap.String("order_id", order.OrderID),
			zap.String("transaction_id", *group[0].TransactionID),
			zap.Int("lines", len(group)))
		if err := s.compensate(ctx, order, group, errors.New("interrupted earlier attempt")); err != nil {
			util.RecordError(span, err)
			return nil, err
		}
	}

	result := &ConsumptionResult{
		TransactionID: uuid.New().String(),
		OrderID:       order.OrderID,
	}

	s.logger.Info("Consuming order ingredients",
		zap.String("order_id", order.OrderID),
		zap.String("transaction_id", result.TransactionID),
		zap.Int("lines", len(order.Ingredients)))

	for i, line := range order.Ingredients {
		item, adj, err := s.ApplyAdjustment(ctx, &models.AdjustmentRequest{
			ItemID:        line.ItemID,
			Type:          models.AdjustmentUsage,
			Quantity:      line.Quantity,
			Unit:          line.Unit,
			TransactionID: result.TransactionID,
			Reference:     order.OrderID,
			Notes:         fmt.Sprintf("order %s", order.OrderID),
			PerformedBy:   order.PerformedBy,
		})
		if err != nil {
			s.logger.Warn("Order line failed, compensating",
				zap.String("order_id", order.OrderID),
				zap.String("item_id", line.ItemID),
				zap.Int("line", i),
				zap.Error(err))
			err = fmt.Errorf("failed to consume line %d (item %s) of order %s: %w", i, line.ItemID, order.OrderID, err)
			if cerr := s.compensate(ctx, order, result.Adjustments, err); cerr != nil {
				err = cerr
			}
			util.RecordError(span, err)
			return nil, err
		}
		result.Adjustments = append(result.Adjustments, *adj)
		result.Items = append(result.Items, *item)
	}

	util.OrdersConsumedTotal.Inc()
	s.logger.Info("Order consumed",
		zap.String("order_id", order.OrderID),
		zap.String("transaction_id", result.TransactionID))
	return result, nil
}

// outstandingUsage returns the usage entries recorded for an order that have
// not been rolled back, grouped by transaction id in ledger order.
func (s *InventoryService) outstandingUsage(ctx context.Context, orderID string) ([][]models.StockAdjustment, error) {
	entries, err := s.repo.QueryByReference(ctx, orderID)
	if err != nil {
		return nil, err
	}

	var groups [][]models.StockAdjustment
	index := make(map[string]int)
	for _, e := range entries {
		if e.Type != models.AdjustmentUsage || e.TransactionID == nil {
			continue
		}
		done, err := s.alreadyRolledBack(ctx, e.ID)
		if err != nil {
			return nil, err
		}
		if done {
			continue
		}
		i, ok := index[*e.TransactionID]
		if !ok {
			i = len(groups)
			index[*e.TransactionID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], e)
	}
	return groups, nil
}

// replay rebuilds the result of an order that was already fully consumed.
func (s *InventoryService) replay(ctx context.Context, order *models.OrderCompletedEvent, applied []models.StockAdjustment) (*ConsumptionResult, error) {
	result := &ConsumptionResult{
		TransactionID: *applied[0].TransactionID,
		OrderID:       order.OrderID,
		Adjustments:   applied,
		Replayed:      true,
	}
	for _, adj := range applied {
		item, err := s.GetItem(ctx, adj.ItemID)
		if err != nil {
			return nil, err
		}
		result.Items = append(result.Items, *item)
	}

	s.logger.Info("Order already consumed",
		zap.String("order_id", order.OrderID),
		zap.String("transaction_id", result.TransactionID))
	return result, nil
}

// compensate rolls back applied adjustments, newest first. It returns a
// *CompensationError naming the adjustments it could not undo.
func (s *InventoryService) compensate(ctx context.Context, order *models.OrderCompletedEvent, applied []models.StockAdjustment, cause error) error {
	if len(applied) == 0 {
		return nil
	}
	util.OrderCompensationsTotal.Inc()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	var pending []string
	for i := len(applied) - 1; i >= 0; i-- {
		adj := applied[i]
		_, _, err := s.Rollback(ctx, adj.ID, order.PerformedBy, fmt.Sprintf("compensation for order %s", order.OrderID))
		if err == nil || errors.Is(err, ErrAlreadyRolledBack) {
			continue
		}
		s.logger.Error("Failed to roll back order line during compensation",
			zap.String("order_id", order.OrderID),
			zap.String("adjustment_id", adj.ID),
			zap.Error(err))
		pending = append(pending, adj.ID)
	}

	if len(pending) > 0 {
		return &CompensationError{OrderID: order.OrderID, Cause: cause, Pending: pending}
	}
	return nil
}
