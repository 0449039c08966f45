package store

import (
	"context"
	"sort"
	"sync"

	"inventory-service/internal/models"

	"github.com/shopspring/decimal"
)

// MemoryStore is an in-process Repository used in tests and when no database
// is configured. Transactions hold the write lock and stage their writes until
// fn succeeds.
type MemoryStore struct {
	mu          sync.RWMutex
	items       map[string]models.InventoryItem
	adjustments []models.StockAdjustment
	adjByID     map[string]int
	// rolledBack maps an adjustment id to the id of its rollback entry
	rolledBack map[string]string
	seq        int64
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:      make(map[string]models.InventoryItem),
		adjByID:    make(map[string]int),
		rolledBack: make(map[string]string),
	}
}

func (m *MemoryStore) GetItem(ctx context.Context, id string) (*models.InventoryItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getItem(id)
}

func (m *MemoryStore) CreateItem(ctx context.Context, item *models.InventoryItem) error {
	return m.InTx(ctx, func(r Repository) error { return r.CreateItem(ctx, item) })
}

func (m *MemoryStore) AtomicUpdateStock(ctx context.Context, item *models.InventoryItem, expected decimal.Decimal) error {
	return m.InTx(ctx, func(r Repository) error { return r.AtomicUpdateStock(ctx, item, expected) })
}

func (m *MemoryStore) AppendAdjustment(ctx context.Context, adj *models.StockAdjustment) error {
	return m.InTx(ctx, func(r Repository) error { return r.AppendAdjustment(ctx, adj) })
}

func (m *MemoryStore) GetAdjustment(ctx context.Context, id string) (*models.StockAdjustment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getAdjustment(id)
}

func (m *MemoryStore) QueryByStatus(ctx context.Context, statuses ...models.Status) ([]models.InventoryItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.queryByStatus(statuses), nil
}

func (m *MemoryStore) QueryHistory(ctx context.Context, q models.HistoryQuery) ([]models.StockAdjustment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.queryHistory(q), nil
}

func (m *MemoryStore) QueryByReference(ctx context.Context, reference string) ([]models.StockAdjustment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.queryByReference(reference), nil
}

func (m *MemoryStore) queryByReference(reference string) []models.StockAdjustment {
	out := []models.StockAdjustment{}
	for _, adj := range m.adjustments {
		if adj.Reference == reference {
			out = append(out, adj)
		}
	}
	return out
}

func (m *MemoryStore) queryByStatus(statuses []models.Status) []models.InventoryItem {
	wanted := make(map[models.Status]bool, len(statuses))
	for _, s := range statuses {
		wanted[s] = true
	}

	out := []models.InventoryItem{}
	for _, item := range m.items {
		if wanted[item.Status] {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].CurrentStock.Cmp(out[j].CurrentStock); c != 0 {
			return c < 0
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *MemoryStore) queryHistory(q models.HistoryQuery) []models.StockAdjustment {
	out := []models.StockAdjustment{}
	for _, adj := range m.adjustments {
		if adj.ItemID != q.ItemID {
			continue
		}
		if q.From != nil && adj.CreatedAt.Before(*q.From) {
			continue
		}
		if q.To != nil && adj.CreatedAt.After(*q.To) {
			continue
		}
		if q.Cursor != nil && !before(adj, *q.Cursor) {
			continue
		}
		out = append(out, adj)
	}

	// newest first
	sort.Slice(out, func(i, j int) bool {
		return before(out[j], models.Cursor{CreatedAt: out[i].CreatedAt, Seq: out[i].Seq})
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

// before reports whether adj sorts strictly before c in (CreatedAt, Seq) order.
func before(adj models.StockAdjustment, c models.Cursor) bool {
	if adj.CreatedAt.Equal(c.CreatedAt) {
		return adj.Seq < c.Seq
	}
	return adj.CreatedAt.Before(c.CreatedAt)
}

func (m *MemoryStore) InTx(ctx context.Context, fn func(Repository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memoryTx{
		parent: m,
		items:  make(map[string]models.InventoryItem),
		seq:    m.seq,
	}
	if err := fn(tx); err != nil {
		return err
	}

	for id, item := range tx.items {
		m.items[id] = item
	}
	for _, adj := range tx.adjustments {
		m.adjByID[adj.ID] = len(m.adjustments)
		m.adjustments = append(m.adjustments, adj)
		if adj.Type == models.AdjustmentRollback {
			m.rolledBack[adj.Reference] = adj.ID
		}
	}
	m.seq = tx.seq
	return nil
}

func (m *MemoryStore) getItem(id string) (*models.InventoryItem, error) {
	item, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &item, nil
}

func (m *MemoryStore) getAdjustment(id string) (*models.StockAdjustment, error) {
	idx, ok := m.adjByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	adj := m.adjustments[idx]
	return &adj, nil
}

// memoryTx stages writes on top of a locked MemoryStore.
type memoryTx struct {
	parent      *MemoryStore
	items       map[string]models.InventoryItem
	adjustments []models.StockAdjustment
	seq         int64
}

func (t *memoryTx) GetItem(ctx context.Context, id string) (*models.InventoryItem, error) {
	if item, ok := t.items[id]; ok {
		return &item, nil
	}
	return t.parent.getItem(id)
}

func (t *memoryTx) CreateItem(ctx context.Context, item *models.InventoryItem) error {
	if _, err := t.GetItem(ctx, item.ID); err == nil {
		return ErrDuplicate
	}
	t.items[item.ID] = *item
	return nil
}

func (t *memoryTx) AtomicUpdateStock(ctx context.Context, item *models.InventoryItem, expected decimal.Decimal) error {
	current, err := t.GetItem(ctx, item.ID)
	if err != nil {
		return err
	}
	if !current.CurrentStock.Equal(expected) {
		return ErrStockConflict
	}
	current.CurrentStock = item.CurrentStock
	current.Status = item.Status
	current.LastRestockedAt = item.LastRestockedAt
	current.UpdatedAt = item.UpdatedAt
	t.items[item.ID] = *current
	return nil
}

func (t *memoryTx) AppendAdjustment(ctx context.Context, adj *models.StockAdjustment) error {
	if _, err := t.GetAdjustment(ctx, adj.ID); err == nil {
		return ErrDuplicate
	}
	if _, err := t.GetItem(ctx, adj.ItemID); err != nil {
		return err
	}
	if adj.Type == models.AdjustmentRollback && t.hasRollback(adj.Reference) {
		return ErrDuplicate
	}
	t.seq++
	adj.Seq = t.seq
	t.adjustments = append(t.adjustments, *adj)
	return nil
}

func (t *memoryTx) GetAdjustment(ctx context.Context, id string) (*models.StockAdjustment, error) {
	for i := range t.adjustments {
		if t.adjustments[i].ID == id {
			adj := t.adjustments[i]
			return &adj, nil
		}
	}
	return t.parent.getAdjustment(id)
}

func (t *memoryTx) hasRollback(reference string) bool {
	if _, ok := t.parent.rolledBack[reference]; ok {
		return true
	}
	for _, staged := range t.adjustments {
		if staged.Type == models.AdjustmentRollback && staged.Reference == reference {
			return true
		}
	}
	return false
}

// QueryByStatus, QueryHistory and QueryByReference read the committed state only.
func (t *memoryTx) QueryByStatus(ctx context.Context, statuses ...models.Status) ([]models.InventoryItem, error) {
	return t.parent.queryByStatus(statuses), nil
}

func (t *memoryTx) QueryHistory(ctx context.Context, q models.HistoryQuery) ([]models.StockAdjustment, error) {
	return t.parent.queryHistory(q), nil
}

func (t *memoryTx) QueryByReference(ctx context.Context, reference string) ([]models.StockAdjustment, error) {
	return t.parent.queryByReference(reference), nil
}

func (t *memoryTx) InTx(ctx context.Context, fn func(Repository) error) error {
	return fn(t)
}
