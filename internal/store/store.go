package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"inventory-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

//go:embed schema.sql
var schema string

// dbtx is the query surface shared by *sqlx.DB and *sqlx.Tx.
type dbtx interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
	QueryRowxContext(ctx context.Context, query string, args ...interface{}) *sqlx.Row
}

// Store is the PostgreSQL implementation of Repository
type Store struct {
	db *sqlx.DB
	q  dbtx
	tx bool
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db, q: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// EnsureSchema creates the inventory tables if they do not exist
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// InTx runs fn inside a database transaction
func (s *Store) InTx(ctx context.Context, fn func(Repository) error) error {
	if s.tx {
		return fn(s)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Store{db: s.db, q: tx, tx: true}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetItem retrieves an inventory item by ID
func (s *Store) GetItem(ctx context.Context, id string) (*models.InventoryItem, error) {
	var item models.InventoryItem
	err := s.q.GetContext(ctx, &item, "SELECT * FROM inventory_items WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// CreateItem inserts a new inventory item
func (s *Store) CreateItem(ctx context.Context, item *models.InventoryItem) error {
	query := `
		INSERT INTO inventory_items (
			id, name, category, current_stock, min_stock, max_stock, reorder_point,
			unit, display_unit, density, supplier, location, last_restocked_at,
			status, created_at, updated_at
		)
		VALUES (
			:id, :name, :category, :current_stock, :min_stock, :max_stock, :reorder_point,
			:unit, :display_unit, :density, :supplier, :location, :last_restocked_at,
			:status, :created_at, :updated_at
		)`

	_, err := s.q.NamedExecContext(ctx, query, item)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// AtomicUpdateStock writes the stock projection only if it still holds expected
func (s *Store) AtomicUpdateStock(ctx context.Context, item *models.InventoryItem, expected decimal.Decimal) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE inventory_items
		SET current_stock = $1, status = $2, last_restocked_at = $3, updated_at = $4
		WHERE id = $5 AND current_stock = $6`,
		item.CurrentStock, item.Status, item.LastRestockedAt, item.UpdatedAt, item.ID, expected)
	if err != nil {
		return fmt.Errorf("failed to update stock: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists bool
		if err := s.q.GetContext(ctx, &exists,
			"SELECT EXISTS(SELECT 1 FROM inventory_items WHERE id = $1)", item.ID); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrStockConflict
	}
	return nil
}

// AppendAdjustment inserts a ledger entry
func (s *Store) AppendAdjustment(ctx context.Context, adj *models.StockAdjustment) error {
	query := `
		INSERT INTO stock_adjustments (
			id, item_id, transaction_id, type, quantity, unit, original_quantity, original_unit,
			previous_stock, new_stock, notes, conversion_note, reference, performed_by, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING seq`

	err := s.q.QueryRowxContext(ctx, query,
		adj.ID, adj.ItemID, adj.TransactionID, adj.Type, adj.Quantity, adj.Unit,
		adj.OriginalQuantity, adj.OriginalUnit, adj.PreviousStock, adj.NewStock,
		adj.Notes, adj.ConversionNote, adj.Reference, adj.PerformedBy, adj.CreatedAt,
	).Scan(&adj.Seq)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to append adjustment: %w", err)
	}
	return nil
}

// GetAdjustment retrieves a ledger entry by ID
func (s *Store) GetAdjustment(ctx context.Context, id string) (*models.StockAdjustment, error) {
	var adj models.StockAdjustment
	err := s.q.GetContext(ctx, &adj, "SELECT * FROM stock_adjustments WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &adj, nil
}

// QueryByReference retrieves the ledger entries carrying reference
func (s *Store) QueryByReference(ctx context.Context, reference string) ([]models.StockAdjustment, error) {
	var adjustments []models.StockAdjustment
	err := s.q.SelectContext(ctx, &adjustments,
		"SELECT * FROM stock_adjustments WHERE reference = $1 ORDER BY seq ASC", reference)
	return adjustments, err
}

// QueryByStatus retrieves items by derived status, lowest stock first
func (s *Store) QueryByStatus(ctx context.Context, statuses ...models.Status) ([]models.InventoryItem, error) {
	raw := make([]string, len(statuses))
	for i, st := range statuses {
		raw[i] = string(st)
	}

	var items []models.InventoryItem
	err := s.q.SelectContext(ctx, &items,
		"SELECT * FROM inventory_items WHERE status = ANY($1) ORDER BY current_stock ASC, id ASC",
		pq.Array(raw))
	return items, err
}

// QueryHistory retrieves an item's ledger, newest first
func (s *Store) QueryHistory(ctx context.Context, q models.HistoryQuery) ([]models.StockAdjustment, error) {
	conditions := []string{"item_id = $1"}
	args := []interface{}{q.ItemID}

	if q.From != nil {
		args = append(args, *q.From)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if q.To != nil {
		args = append(args, *q.To)
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if q.Cursor != nil {
		args = append(args, q.Cursor.CreatedAt, q.Cursor.Seq)
		conditions = append(conditions, fmt.Sprintf("(created_at, seq) < ($%d, $%d)", len(args)-1, len(args)))
	}

	query := "SELECT * FROM stock_adjustments WHERE " + strings.Join(conditions, " AND ") +
		" ORDER BY created_at DESC, seq DESC"
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	var adjustments []models.StockAdjustment
	err := s.q.SelectContext(ctx, &adjustments, query, args...)
	return adjustments, err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
