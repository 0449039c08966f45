package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"inventory-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testItem(id string, stock int64, status models.Status) *models.InventoryItem {
	now := time.Now().UTC()
	return &models.InventoryItem{
		ID:           id,
		Name:         "item " + id,
		CurrentStock: decimal.NewFromInt(stock),
		Unit:         "g",
		DisplayUnit:  "kg",
		Status:       status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func testAdjustment(id, itemID string, at time.Time) *models.StockAdjustment {
	return &models.StockAdjustment{
		ID:        id,
		ItemID:    itemID,
		Type:      models.AdjustmentRestock,
		Quantity:  decimal.NewFromInt(1),
		Unit:      "g",
		CreatedAt: at,
	}
}

func TestMemoryCreateAndGet(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, m.CreateItem(ctx, testItem("a", 10, models.StatusOK)))
	assert.ErrorIs(t, m.CreateItem(ctx, testItem("a", 10, models.StatusOK)), ErrDuplicate)

	item, err := m.GetItem(ctx, "a")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(10).Equal(item.CurrentStock))

	_, err = m.GetItem(ctx, "b")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryAtomicUpdateStock(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, m.CreateItem(ctx, testItem("a", 10, models.StatusOK)))

	update := testItem("a", 4, models.StatusLow)
	require.NoError(t, m.AtomicUpdateStock(ctx, update, decimal.NewFromInt(10)))

	assert.ErrorIs(t, m.AtomicUpdateStock(ctx, update, decimal.NewFromInt(10)), ErrStockConflict)
	assert.ErrorIs(t, m.AtomicUpdateStock(ctx, testItem("x", 1, models.StatusOK), decimal.Zero), ErrNotFound)

	item, err := m.GetItem(ctx, "a")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(4).Equal(item.CurrentStock))
	assert.Equal(t, models.StatusLow, item.Status)
	assert.Equal(t, "item a", item.Name)
}

func TestMemoryInTxIsAtomic(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, m.CreateItem(ctx, testItem("a", 10, models.StatusOK)))

	boom := errors.New("boom")
	err := m.InTx(ctx, func(r Repository) error {
		if err := r.AtomicUpdateStock(ctx, testItem("a", 3, models.StatusOK), decimal.NewFromInt(10)); err != nil {
			return err
		}
		if err := r.AppendAdjustment(ctx, testAdjustment("adj-1", "a", time.Now())); err != nil {
			return err
		}
		staged, err := r.GetItem(ctx, "a")
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(3).Equal(staged.CurrentStock))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	item, err := m.GetItem(ctx, "a")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(10).Equal(item.CurrentStock))
	_, err = m.GetAdjustment(ctx, "adj-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryAppendAssignsSeq(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, m.CreateItem(ctx, testItem("a", 0, models.StatusCritical)))

	first := testAdjustment("adj-1", "a", time.Now())
	second := testAdjustment("adj-2", "a", time.Now())
	require.NoError(t, m.AppendAdjustment(ctx, first))
	require.NoError(t, m.AppendAdjustment(ctx, second))
	assert.Equal(t, int64(1), first.Seq)
	assert.Equal(t, int64(2), second.Seq)

	assert.ErrorIs(t, m.AppendAdjustment(ctx, testAdjustment("adj-1", "a", time.Now())), ErrDuplicate)
	assert.ErrorIs(t, m.AppendAdjustment(ctx, testAdjustment("adj-3", "missing", time.Now())), ErrNotFound)
}

func TestMemoryQueryByStatus(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, m.CreateItem(ctx, testItem("a", 30, models.StatusLow)))
	require.NoError(t, m.CreateItem(ctx, testItem("b", 5, models.StatusWarning)))
	require.NoError(t, m.CreateItem(ctx, testItem("c", 0, models.StatusCritical)))
	require.NoError(t, m.CreateItem(ctx, testItem("d", 90, models.StatusOK)))

	items, err := m.QueryByStatus(ctx, models.StatusLow, models.StatusWarning)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "b", items[0].ID)
	assert.Equal(t, "a", items[1].ID)

	items, err = m.QueryByStatus(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestMemoryQueryHistory(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, m.CreateItem(ctx, testItem("a", 0, models.StatusCritical)))
	require.NoError(t, m.CreateItem(ctx, testItem("b", 0, models.StatusCritical)))

	base := time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC)
	for i, at := range []time.Time{base, base.Add(time.Hour), base.Add(time.Hour), base.Add(2 * time.Hour)} {
		require.NoError(t, m.AppendAdjustment(ctx, testAdjustment(string(rune('p'+i)), "a", at)))
	}
	require.NoError(t, m.AppendAdjustment(ctx, testAdjustment("other", "b", base)))

	all, err := m.QueryHistory(ctx, models.HistoryQuery{ItemID: "a"})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, []string{"s", "r", "q", "p"}, []string{all[0].ID, all[1].ID, all[2].ID, all[3].ID})

	from, to := base.Add(30*time.Minute), base.Add(time.Hour)
	window, err := m.QueryHistory(ctx, models.HistoryQuery{ItemID: "a", From: &from, To: &to})
	require.NoError(t, err)
	assert.Len(t, window, 2)

	page, err := m.QueryHistory(ctx, models.HistoryQuery{
		ItemID: "a",
		Limit:  2,
		Cursor: &models.Cursor{CreatedAt: all[1].CreatedAt, Seq: all[1].Seq},
	})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "q", page[0].ID)
	assert.Equal(t, "p", page[1].ID)
}

func TestMemoryRefusesSecondRollback(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, m.CreateItem(ctx, testItem("a", 10, models.StatusOK)))

	at := time.Now().UTC()
	require.NoError(t, m.AppendAdjustment(ctx, testAdjustment("u", "a", at)))

	rollback := func(id string) *models.StockAdjustment {
		adj := testAdjustment(id, "a", at)
		adj.Type = models.AdjustmentRollback
		adj.Reference = "u"
		return adj
	}
	require.NoError(t, m.AppendAdjustment(ctx, rollback("r1")))
	assert.ErrorIs(t, m.AppendAdjustment(ctx, rollback("r2")), ErrDuplicate)

	// two rollbacks staged in one transaction are refused as well
	require.NoError(t, m.AppendAdjustment(ctx, testAdjustment("v", "a", at)))
	err := m.InTx(ctx, func(r Repository) error {
		first := rollback("r3")
		first.Reference = "v"
		if err := r.AppendAdjustment(ctx, first); err != nil {
			return err
		}
		second := rollback("r4")
		second.Reference = "v"
		return r.AppendAdjustment(ctx, second)
	})
	assert.ErrorIs(t, err, ErrDuplicate)

	refs, err := m.QueryByReference(ctx, "u")
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "r1", refs[0].ID)

	refs, err = m.QueryByReference(ctx, "v")
	require.NoError(t, err)
	assert.Empty(t, refs)
}
