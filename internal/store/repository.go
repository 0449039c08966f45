package store

import (
	"context"
	"errors"

	"inventory-service/internal/models"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when an item or adjustment does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrStockConflict is returned by AtomicUpdateStock when the stored stock
	// no longer matches the value the caller read.
	ErrStockConflict = errors.New("stock changed since it was read")
	// ErrDuplicate is returned when an id is already taken, or when an
	// adjustment already has a rollback.
	ErrDuplicate = errors.New("record already exists")
)

// Repository is the storage surface the inventory engine needs. Stock writes
// and ledger appends that belong together must run inside InTx.
type Repository interface {
	GetItem(ctx context.Context, id string) (*models.InventoryItem, error)
	CreateItem(ctx context.Context, item *models.InventoryItem) error
	// AtomicUpdateStock persists CurrentStock, Status, LastRestockedAt and
	// UpdatedAt of item only if the stored stock still equals expected.
	AtomicUpdateStock(ctx context.Context, item *models.InventoryItem, expected decimal.Decimal) error
	// AppendAdjustment inserts a ledger entry and sets its Seq. At most one
	// rollback entry may reference a given adjustment.
	AppendAdjustment(ctx context.Context, adj *models.StockAdjustment) error
	GetAdjustment(ctx context.Context, id string) (*models.StockAdjustment, error)
	// QueryByReference returns every ledger entry whose Reference equals
	// reference, in Seq order.
	QueryByReference(ctx context.Context, reference string) ([]models.StockAdjustment, error)
	// QueryByStatus returns items in any of statuses, lowest stock first.
	QueryByStatus(ctx context.Context, statuses ...models.Status) ([]models.InventoryItem, error)
	// QueryHistory returns ledger entries newest first by (CreatedAt, Seq).
	// A zero Limit returns every matching entry.
	QueryHistory(ctx context.Context, q models.HistoryQuery) ([]models.StockAdjustment, error)
	// InTx runs fn in a single atomic unit; nothing fn wrote is visible if it
	// returns an error.
	InTx(ctx context.Context, fn func(Repository) error) error
}
