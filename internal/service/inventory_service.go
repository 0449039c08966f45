package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"inventory-service/internal/models"
	"inventory-service/internal/store"
	"inventory-service/internal/units"
	"inventory-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// StockPlaces is the number of decimals base-unit quantities are kept at.
const StockPlaces int32 = 6

// ItemLocker provides an optional cross-instance single-writer scope per item.
type ItemLocker interface {
	AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// Options tunes the inventory service.
type Options struct {
	MaxRetries      int
	LockTTL         time.Duration
	HistoryPageSize int
	Policy          StatusPolicy
}

// DefaultOptions returns the production defaults
func DefaultOptions() Options {
	return Options{
		MaxRetries:      5,
		LockTTL:         5 * time.Second,
		HistoryPageSize: 50,
		Policy:          DefaultStatusPolicy(),
	}
}

// InventoryService owns stock levels and their adjustment ledger
type InventoryService struct {
	repo   store.Repository
	locker ItemLocker
	opts   Options
	logger *zap.Logger
	now    func() time.Time
}

// NewInventoryService creates a new inventory service. locker may be nil.
func NewInventoryService(repo store.Repository, locker ItemLocker, opts Options) *InventoryService {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 1
	}
	if opts.HistoryPageSize <= 0 {
		opts.HistoryPageSize = 50
	}
	return &InventoryService{
		repo:   repo,
		locker: locker,
		opts:   opts,
		logger: util.GetLogger(),
		now:    time.Now,
	}
}

func (s *InventoryService) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// GetItem retrieves an item by ID
func (s *InventoryService) GetItem(ctx context.Context, itemID string) (*models.InventoryItem, error) {
	item, err := s.repo.GetItem(ctx, itemID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrItemNotFound
	}
	return item, err
}

// CreateItem stocks a new item. Every quantity is normalized to the base unit
// of the input unit's category; a non-zero opening stock is recorded as the
// first ledger entry.
func (s *InventoryService) CreateItem(ctx context.Context, input *models.InventoryInput) (*models.InventoryItem, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.CreateItem")
	defer span.End()

	item, opening, err := s.buildItem(input)
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	err = s.repo.InTx(ctx, func(r store.Repository) error {
		if err := r.CreateItem(ctx, item); err != nil {
			return err
		}
		if opening != nil {
			return r.AppendAdjustment(ctx, opening)
		}
		return nil
	})
	if err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to create item: %w", err)
	}

	util.ItemsCreatedTotal.Inc()
	s.logger.Info("Inventory item created",
		zap.String("item_id", item.ID),
		zap.String("name", item.Name),
		zap.String("stock", item.CurrentStock.String()),
		zap.String("unit", string(item.Unit)),
		zap.String("status", string(item.Status)))

	return item, nil
}

func (s *InventoryService) buildItem(input *models.InventoryInput) (*models.InventoryItem, *models.StockAdjustment, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, nil, &ValidationError{Field: "name", Reason: "is required"}
	}

	displayUnit, err := units.Parse(input.Unit)
	if err != nil {
		return nil, nil, err
	}
	category, err := units.CategoryOf(displayUnit)
	if err != nil {
		return nil, nil, err
	}
	base := category.BaseUnit()

	var density decimal.NullDecimal
	if input.Density != nil {
		if !input.Density.IsPositive() {
			return nil, nil, &ValidationError{Field: "density", Reason: "must be positive"}
		}
		density = decimal.NullDecimal{Decimal: *input.Density, Valid: true}
	}

	now := s.timestamp()
	item := &models.InventoryItem{
		ID:          uuid.New().String(),
		Name:        name,
		Category:    input.Category,
		Unit:        base,
		DisplayUnit: displayUnit,
		Density:     density,
		Supplier:    input.Supplier,
		Location:    input.Location,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	bridge := item.DensitySource()

	fields := []struct {
		name string
		in   models.Quantity
		out  *decimal.Decimal
	}{
		{"current_stock", input.CurrentStock, &item.CurrentStock},
		{"min_stock", input.MinStock, &item.MinStock},
		{"max_stock", input.MaxStock, &item.MaxStock},
		{"reorder_point", input.ReorderPoint, &item.ReorderPoint},
	}
	var openingUnit units.Unit
	for _, f := range fields {
		u := displayUnit
		if f.in.Unit != "" {
			if u, err = units.Parse(f.in.Unit); err != nil {
				return nil, nil, err
			}
		}
		if f.name == "current_stock" {
			openingUnit = u
		}
		v, err := units.Convert(f.in.Value, u, base, bridge)
		var invalid *units.InvalidQuantityError
		if errors.As(err, &invalid) {
			return nil, nil, &ValidationError{Field: f.name, Reason: invalid.Reason, Err: err}
		}
		if err != nil {
			return nil, nil, err
		}
		*f.out = v.Round(StockPlaces)
	}

	// a zero max_stock leaves the item without an upper bound
	if item.MaxStock.IsPositive() && item.MaxStock.LessThan(item.MinStock) {
		return nil, nil, &ValidationError{Field: "max_stock", Reason: "must not be below min_stock"}
	}

	item.Status = DeriveStatus(item, s.opts.Policy)

	if !item.CurrentStock.IsPositive() {
		return item, nil, nil
	}

	item.LastRestockedAt = &now
	opening := &models.StockAdjustment{
		ID:               uuid.New().String(),
		ItemID:           item.ID,
		Type:             models.AdjustmentRestock,
		Quantity:         item.CurrentStock,
		Unit:             base,
		OriginalQuantity: input.CurrentStock.Value,
		OriginalUnit:     openingUnit,
		PreviousStock:    decimal.Zero,
		NewStock:         item.CurrentStock,
		Notes:            "opening stock",
		ConversionNote:   units.ConversionNote(input.CurrentStock.Value, openingUnit, item.CurrentStock, base, bridge),
		PerformedBy:      input.PerformedBy,
		CreatedAt:        now,
	}
	return item, opening, nil
}

// plan is the outcome of evaluating an adjustment against one stock snapshot.
type plan struct {
	delta    decimal.Decimal
	quantity decimal.Decimal
}

// draft holds everything about an adjustment that does not depend on the
// stock snapshot.
type draft struct {
	itemID           string
	adjType          models.AdjustmentType
	originalQuantity decimal.Decimal
	originalUnit     units.Unit
	conversionNote   string
	transactionID    *string
	reference        string
	notes            string
	performedBy      string
	// evaluate turns the snapshot into a delta; it may reject the adjustment.
	evaluate func(item *models.InventoryItem) (plan, error)
}

// ApplyAdjustment converts the requested quantity to the item's base unit and
// applies it. Concurrent adjustments of the same item are serialized through a
// conditional update, retried a bounded number of times.
func (s *InventoryService) ApplyAdjustment(ctx context.Context, req *models.AdjustmentRequest) (*models.InventoryItem, *models.StockAdjustment, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.ApplyAdjustment", req.ItemID)
	defer span.End()

	item, err := s.GetItem(ctx, req.ItemID)
	if err != nil {
		util.RecordError(span, err)
		return nil, nil, err
	}

	d, err := s.draftAdjustment(item, req)
	if err != nil {
		s.rejected(err)
		util.RecordError(span, err)
		return nil, nil, err
	}

	updated, adj, err := s.commit(ctx, item, d)
	if err != nil {
		util.RecordError(span, err)
		return nil, nil, err
	}
	return updated, adj, nil
}

func (s *InventoryService) draftAdjustment(item *models.InventoryItem, req *models.AdjustmentRequest) (*draft, error) {
	adjType, ok := models.ParseAdjustmentType(string(req.Type))
	if !ok {
		return nil, &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown adjustment type %q", req.Type)}
	}
	if adjType == models.AdjustmentRollback {
		return nil, &ValidationError{Field: "type", Reason: "rollbacks must reference an existing adjustment"}
	}

	inUnit := item.DisplayUnit
	if req.Unit != "" {
		u, err := units.Parse(req.Unit)
		if err != nil {
			return nil, err
		}
		inUnit = u
	}

	magnitude := req.Quantity
	if adjType == models.AdjustmentAdjustment {
		magnitude = req.Quantity.Abs()
	}
	bridge := item.DensitySource()
	converted, err := units.Convert(magnitude, inUnit, item.Unit, bridge)
	if err != nil {
		return nil, err
	}
	converted = converted.Round(StockPlaces)

	if adjType != models.AdjustmentCorrection && !converted.IsPositive() {
		return nil, &units.InvalidQuantityError{Value: req.Quantity.String(), Reason: "must be greater than zero"}
	}

	d := &draft{
		itemID:           item.ID,
		adjType:          adjType,
		originalQuantity: req.Quantity,
		originalUnit:     inUnit,
		conversionNote:   units.ConversionNote(magnitude, inUnit, converted, item.Unit, bridge),
		reference:        req.Reference,
		notes:            req.Notes,
		performedBy:      req.PerformedBy,
	}
	if req.TransactionID != "" {
		tx := req.TransactionID
		d.transactionID = &tx
	}

	switch adjType {
	case models.AdjustmentRestock:
		d.evaluate = func(*models.InventoryItem) (plan, error) {
			return plan{delta: converted, quantity: converted}, nil
		}
	case models.AdjustmentUsage, models.AdjustmentWaste, models.AdjustmentDeduction:
		d.evaluate = func(*models.InventoryItem) (plan, error) {
			return plan{delta: converted.Neg(), quantity: converted}, nil
		}
	case models.AdjustmentAdjustment:
		delta := converted
		if req.Quantity.IsNegative() {
			delta = converted.Neg()
		}
		d.evaluate = func(*models.InventoryItem) (plan, error) {
			return plan{delta: delta, quantity: delta}, nil
		}
	case models.AdjustmentCorrection:
		// the correction quantity is the counted stock level
		d.evaluate = func(it *models.InventoryItem) (plan, error) {
			delta := converted.Sub(it.CurrentStock)
			return plan{delta: delta, quantity: delta}, nil
		}
	}
	return d, nil
}

// commit runs the read-evaluate-conditional-write loop for one adjustment.
func (s *InventoryService) commit(ctx context.Context, item *models.InventoryItem, d *draft) (*models.InventoryItem, *models.StockAdjustment, error) {
	start := time.Now()
	defer func() {
		util.AdjustmentLatency.Observe(time.Since(start).Seconds())
	}()

	release, err := s.lockItem(ctx, d.itemID)
	if err != nil {
		s.rejected(err)
		return nil, nil, err
	}
	defer release()

	for attempt := 1; attempt <= s.opts.MaxRetries; attempt++ {
		if attempt > 1 {
			if item, err = s.GetItem(ctx, d.itemID); err != nil {
				return nil, nil, err
			}
		}

		p, err := d.evaluate(item)
		if err != nil {
			s.rejected(err)
			return nil, nil, err
		}

		previous := item.CurrentStock
		next := previous.Add(p.delta)
		if next.IsNegative() {
			err := &InsufficientStockError{
				ItemID:    item.ID,
				Available: previous,
				Requested: p.delta.Abs(),
				Unit:      string(item.Unit),
			}
			s.rejected(err)
			s.logger.Warn("Adjustment rejected",
				zap.String("item_id", item.ID),
				zap.String("type", string(d.adjType)),
				zap.Error(err))
			return nil, nil, err
		}

		now := s.timestamp()
		updated := *item
		updated.CurrentStock = next
		updated.Status = DeriveStatus(&updated, s.opts.Policy)
		updated.UpdatedAt = now
		if d.adjType == models.AdjustmentRestock {
			updated.LastRestockedAt = &now
		}

		adj := &models.StockAdjustment{
			ID:               uuid.New().String(),
			ItemID:           item.ID,
			TransactionID:    d.transactionID,
			Type:             d.adjType,
			Quantity:         p.quantity,
			Unit:             item.Unit,
			OriginalQuantity: d.originalQuantity,
			OriginalUnit:     d.originalUnit,
			PreviousStock:    previous,
			NewStock:         next,
			Notes:            d.notes,
			ConversionNote:   d.conversionNote,
			Reference:        d.reference,
			PerformedBy:      d.performedBy,
			CreatedAt:        now,
		}

		err = s.repo.InTx(ctx, func(r store.Repository) error {
			if err := r.AtomicUpdateStock(ctx, &updated, previous); err != nil {
				return err
			}
			return r.AppendAdjustment(ctx, adj)
		})
		switch {
		case err == nil:
			util.AdjustmentsAppliedTotal.WithLabelValues(string(d.adjType)).Inc()
			s.logger.Info("Stock adjusted",
				zap.String("item_id", item.ID),
				zap.String("adjustment_id", adj.ID),
				zap.String("type", string(d.adjType)),
				zap.String("previous_stock", previous.String()),
				zap.String("new_stock", next.String()),
				zap.String("status", string(updated.Status)),
				zap.Int("attempt", attempt))
			return &updated, adj, nil
		case errors.Is(err, store.ErrStockConflict):
			util.AdjustmentConflictsTotal.Inc()
			s.logger.Debug("Stock changed concurrently, retrying",
				zap.String("item_id", item.ID),
				zap.Int("attempt", attempt))
			s.backoff(attempt)
		case errors.Is(err, store.ErrNotFound):
			return nil, nil, ErrItemNotFound
		case errors.Is(err, store.ErrDuplicate) && d.adjType == models.AdjustmentRollback:
			s.rejected(ErrAlreadyRolledBack)
			return nil, nil, ErrAlreadyRolledBack
		default:
			return nil, nil, fmt.Errorf("failed to write adjustment: %w", err)
		}
	}

	err = &ConcurrentModificationError{ItemID: d.itemID, Attempts: s.opts.MaxRetries}
	s.rejected(err)
	s.logger.Warn("Adjustment retry budget exhausted", zap.String("item_id", d.itemID), zap.Error(err))
	return nil, nil, err
}

// lockItem takes the optional distributed lock for the item. Lock backend
// failures fall back to the conditional update alone.
func (s *InventoryService) lockItem(ctx context.Context, itemID string) (func(), error) {
	noop := func() {}
	if s.locker == nil {
		return noop, nil
	}

	key := "inventory:item:" + itemID
	token := uuid.New().String()
	for attempt := 1; attempt <= s.opts.MaxRetries; attempt++ {
		ok, err := s.locker.AcquireLock(ctx, key, token, s.opts.LockTTL)
		if err != nil {
			s.logger.Warn("Item lock unavailable, relying on conditional update",
				zap.String("item_id", itemID),
				zap.Error(err))
			return noop, nil
		}
		if ok {
			return func() {
				if err := s.locker.ReleaseLock(context.Background(), key, token); err != nil {
					s.logger.Error("Failed to release item lock", zap.String("item_id", itemID), zap.Error(err))
				}
			}, nil
		}
		s.backoff(attempt)
	}
	return nil, &ConcurrentModificationError{ItemID: itemID, Attempts: s.opts.MaxRetries}
}

func (s *InventoryService) backoff(attempt int) {
	base := time.Duration(attempt) * 2 * time.Millisecond
	time.Sleep(base + time.Duration(rand.Int63n(int64(base))))
}

func (s *InventoryService) rejected(err error) {
	util.AdjustmentsRejectedTotal.WithLabelValues(RejectReason(err)).Inc()
}

// RejectReason names the error kind for metrics and API responses.
func RejectReason(err error) string {
	var (
		unknown      *units.UnknownUnitError
		incompatible *units.IncompatibleUnitsError
		invalid      *units.InvalidQuantityError
		validation   *ValidationError
		insufficient *InsufficientStockError
		concurrent   *ConcurrentModificationError
		consistency  *ConsistencyError
		compensation *CompensationError
	)
	switch {
	case errors.As(err, &compensation):
		return "compensation_incomplete"
	case errors.As(err, &unknown):
		return "unknown_unit"
	case errors.As(err, &incompatible):
		return "incompatible_units"
	case errors.As(err, &validation):
		return "validation"
	case errors.As(err, &invalid):
		return "invalid_quantity"
	case errors.As(err, &insufficient):
		return "insufficient_stock"
	case errors.As(err, &concurrent):
		return "concurrent_modification"
	case errors.As(err, &consistency):
		return "consistency"
	case errors.Is(err, ErrItemNotFound), errors.Is(err, ErrAdjustmentNotFound):
		return "not_found"
	default:
		return "internal"
	}
}

// Rollback reverses a previous adjustment with a new rollback entry.
func (s *InventoryService) Rollback(ctx context.Context, adjustmentID, performedBy, notes string) (*models.InventoryItem, *models.StockAdjustment, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.Rollback")
	defer span.End()

	original, err := s.repo.GetAdjustment(ctx, adjustmentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, ErrAdjustmentNotFound
	}
	if err != nil {
		return nil, nil, err
	}

	item, err := s.GetItem(ctx, original.ItemID)
	if err != nil {
		util.RecordError(span, err)
		return nil, nil, err
	}

	reversal := original.SignedDelta().Neg()
	d := &draft{
		itemID:           item.ID,
		adjType:          models.AdjustmentRollback,
		originalQuantity: reversal.Abs(),
		originalUnit:     item.Unit,
		conversionNote:   fmt.Sprintf("reverses %s %s of %s %s", original.Type, original.ID, original.Quantity.String(), original.Unit),
		transactionID:    original.TransactionID,
		reference:        original.ID,
		notes:            notes,
		performedBy:      performedBy,
		evaluate: func(*models.InventoryItem) (plan, error) {
			done, err := s.alreadyRolledBack(ctx, adjustmentID)
			if err != nil {
				return plan{}, err
			}
			if done {
				return plan{}, ErrAlreadyRolledBack
			}
			return plan{delta: reversal, quantity: reversal}, nil
		},
	}

	updated, adj, err := s.commit(ctx, item, d)
	if err != nil {
		util.RecordError(span, err)
		return nil, nil, err
	}
	return updated, adj, nil
}

// alreadyRolledBack is a fast path only; the store refuses a second rollback
// entry for the same adjustment at write time.
func (s *InventoryService) alreadyRolledBack(ctx context.Context, adjustmentID string) (bool, error) {
	entries, err := s.repo.QueryByReference(ctx, adjustmentID)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.Type == models.AdjustmentRollback {
			return true, nil
		}
	}
	return false, nil
}
