package models

import (
	"time"

	"inventory-service/internal/units"

	"github.com/shopspring/decimal"
)

// Status is the derived stock health of an item.
type Status string

// Item statuses
const (
	StatusCritical Status = "critical"
	StatusLow      Status = "low"
	StatusWarning  Status = "warning"
	StatusOK       Status = "ok"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusCritical, StatusLow, StatusWarning, StatusOK:
		return true
	}
	return false
}

// AdjustmentType classifies a ledger entry.
type AdjustmentType string

// Adjustment types
const (
	AdjustmentRestock    AdjustmentType = "restock"
	AdjustmentUsage      AdjustmentType = "usage"
	AdjustmentWaste      AdjustmentType = "waste"
	AdjustmentCorrection AdjustmentType = "correction"
	AdjustmentDeduction  AdjustmentType = "deduction"
	AdjustmentAdjustment AdjustmentType = "adjustment"
	AdjustmentRollback   AdjustmentType = "rollback"
)

// ParseAdjustmentType validates a raw type string.
func ParseAdjustmentType(s string) (AdjustmentType, bool) {
	t := AdjustmentType(s)
	switch t {
	case AdjustmentRestock, AdjustmentUsage, AdjustmentWaste, AdjustmentCorrection,
		AdjustmentDeduction, AdjustmentAdjustment, AdjustmentRollback:
		return t, true
	}
	return "", false
}

// Depleting reports whether the type always removes stock.
func (t AdjustmentType) Depleting() bool {
	switch t {
	case AdjustmentUsage, AdjustmentWaste, AdjustmentDeduction:
		return true
	}
	return false
}

// Signed reports whether Quantity holds a signed delta rather than a magnitude.
func (t AdjustmentType) Signed() bool {
	switch t {
	case AdjustmentCorrection, AdjustmentAdjustment, AdjustmentRollback:
		return true
	}
	return false
}

// InventoryItem is the stock projection of one ingredient or material.
// CurrentStock, MinStock, MaxStock and ReorderPoint are in Unit, the base unit
// of the item's unit category.
type InventoryItem struct {
	ID              string              `db:"id" json:"id"`
	Name            string              `db:"name" json:"name"`
	Category        string              `db:"category" json:"category"`
	CurrentStock    decimal.Decimal     `db:"current_stock" json:"current_stock"`
	MinStock        decimal.Decimal     `db:"min_stock" json:"min_stock"`
	MaxStock        decimal.Decimal     `db:"max_stock" json:"max_stock"`
	ReorderPoint    decimal.Decimal     `db:"reorder_point" json:"reorder_point"`
	Unit            units.Unit          `db:"unit" json:"unit"`
	DisplayUnit     units.Unit          `db:"display_unit" json:"display_unit"`
	Density         decimal.NullDecimal `db:"density" json:"density"`
	Supplier        string              `db:"supplier" json:"supplier,omitempty"`
	Location        string              `db:"location" json:"location,omitempty"`
	LastRestockedAt *time.Time          `db:"last_restocked_at" json:"last_restocked_at,omitempty"`
	Status          Status              `db:"status" json:"status"`
	CreatedAt       time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time           `db:"updated_at" json:"updated_at"`
}

// DensitySource returns the density used to bridge weight and volume for
// this item: its own density when set, otherwise the ingredient table.
func (i *InventoryItem) DensitySource() units.Density {
	if i.Density.Valid {
		return units.WithDensity(i.Density.Decimal)
	}
	return units.ForIngredient(i.Name)
}

// StockAdjustment is one immutable ledger entry.
type StockAdjustment struct {
	ID               string          `db:"id" json:"id"`
	Seq              int64           `db:"seq" json:"seq"`
	ItemID           string          `db:"item_id" json:"item_id"`
	TransactionID    *string         `db:"transaction_id" json:"transaction_id,omitempty"`
	Type             AdjustmentType  `db:"type" json:"type"`
	Quantity         decimal.Decimal `db:"quantity" json:"quantity"`
	Unit             units.Unit      `db:"unit" json:"unit"`
	OriginalQuantity decimal.Decimal `db:"original_quantity" json:"original_quantity"`
	OriginalUnit     units.Unit      `db:"original_unit" json:"original_unit"`
	PreviousStock    decimal.Decimal `db:"previous_stock" json:"previous_stock"`
	NewStock         decimal.Decimal `db:"new_stock" json:"new_stock"`
	Notes            string          `db:"notes" json:"notes,omitempty"`
	ConversionNote   string          `db:"conversion_note" json:"conversion_note"`
	Reference        string          `db:"reference" json:"reference,omitempty"`
	PerformedBy      string          `db:"performed_by" json:"performed_by"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
}

// SignedDelta is the change this entry applied to the item's stock.
func (a *StockAdjustment) SignedDelta() decimal.Decimal {
	switch {
	case a.Type == AdjustmentRestock:
		return a.Quantity
	case a.Type.Depleting():
		return a.Quantity.Neg()
	default:
		return a.Quantity
	}
}

// Quantity is a value together with the unit the user stated it in.
type Quantity struct {
	Value decimal.Decimal `json:"value"`
	Unit  string          `json:"unit,omitempty"`
}

// InventoryInput describes a newly stocked item. Quantities without a unit
// are read in Unit. A zero MaxStock means the item has no upper bound; a
// positive one must not be below MinStock.
type InventoryInput struct {
	Name         string           `json:"name" binding:"required"`
	Category     string           `json:"category"`
	Unit         string           `json:"unit" binding:"required"`
	CurrentStock Quantity         `json:"current_stock"`
	MinStock     Quantity         `json:"min_stock"`
	MaxStock     Quantity         `json:"max_stock"`
	ReorderPoint Quantity         `json:"reorder_point"`
	Density      *decimal.Decimal `json:"density,omitempty"`
	Supplier     string           `json:"supplier,omitempty"`
	Location     string           `json:"location,omitempty"`
	PerformedBy  string           `json:"-"`
}

// AdjustmentRequest is a stock change stated in a user-chosen unit. For
// corrections Quantity is the counted stock level; for the generic adjustment
// type it may be negative.
type AdjustmentRequest struct {
	ItemID        string          `json:"-"`
	Type          AdjustmentType  `json:"type" binding:"required"`
	Quantity      decimal.Decimal `json:"quantity"`
	Unit          string          `json:"unit"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Reference     string          `json:"reference,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	PerformedBy   string          `json:"-"`
}

// HistoryQuery selects a page of an item's ledger, newest first.
type HistoryQuery struct {
	ItemID string
	From   *time.Time
	To     *time.Time
	Limit  int
	Cursor *Cursor
}

// Cursor marks the last entry of a previous page.
type Cursor struct {
	CreatedAt time.Time
	Seq       int64
}

// LowStockItem annotates a low or warning item for dashboards.
// DaysUntilReorder estimates the days left before stock falls to the reorder
// point, assuming a daily usage of MinStock/30. It is nil when no usage rate
// can be derived. Low items are already at or below the reorder point, so for
// them it is always 0; only warning items get a non-zero estimate.
type LowStockItem struct {
	InventoryItem
	Percentage            decimal.Decimal `json:"percentage"`
	DaysUntilReorder      *int64          `json:"days_until_reorder"`
	NeedsImmediateRestock bool            `json:"needs_immediate_restock"`
}
