package store

import (
	"context"
	"os"
	"testing"
	"time"

	"inventory-service/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestStore connects to INVENTORY_TEST_DATABASE_URL or skips.
func openTestStore(t *testing.T) *Store {
	t.Helper()

	url := os.Getenv("INVENTORY_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("Integration test - requires database")
	}

	s, err := NewStore(url)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.EnsureSchema(context.Background()))
	return s
}

func newPostgresItem(stock string) *models.InventoryItem {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.InventoryItem{
		ID:           uuid.New().String(),
		Name:         "Oat milk " + uuid.New().String()[:8],
		CurrentStock: decimal.RequireFromString(stock),
		Unit:         "mL",
		DisplayUnit:  "L",
		Status:       models.StatusOK,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestPostgresCreateAndGetItem(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	item := newPostgresItem("1500.25")
	item.Density = decimal.NewNullDecimal(decimal.RequireFromString("1.03"))
	require.NoError(t, s.CreateItem(ctx, item))
	assert.ErrorIs(t, s.CreateItem(ctx, item), ErrDuplicate)

	got, err := s.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, item.CurrentStock.Equal(got.CurrentStock))
	assert.True(t, got.Density.Valid)
	assert.Equal(t, item.DisplayUnit, got.DisplayUnit)

	_, err = s.GetItem(ctx, uuid.New().String())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStockUpdateAndLedgerCommitTogether(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	item := newPostgresItem("1000")
	require.NoError(t, s.CreateItem(ctx, item))

	updated := *item
	updated.CurrentStock = decimal.RequireFromString("750")
	adj := &models.StockAdjustment{
		ID:            uuid.New().String(),
		ItemID:        item.ID,
		Type:          models.AdjustmentUsage,
		Quantity:      decimal.RequireFromString("250"),
		Unit:          "mL",
		PreviousStock: item.CurrentStock,
		NewStock:      updated.CurrentStock,
		CreatedAt:     time.Now().UTC().Truncate(time.Microsecond),
	}

	err := s.InTx(ctx, func(r Repository) error {
		if err := r.AtomicUpdateStock(ctx, &updated, item.CurrentStock); err != nil {
			return err
		}
		return r.AppendAdjustment(ctx, adj)
	})
	require.NoError(t, err)
	assert.NotZero(t, adj.Seq)

	// the stored stock moved on, so the same expectation now conflicts
	assert.ErrorIs(t, s.AtomicUpdateStock(ctx, &updated, item.CurrentStock), ErrStockConflict)

	history, err := s.QueryHistory(ctx, models.HistoryQuery{ItemID: item.ID})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, adj.ID, history[0].ID)
}

func TestPostgresQueryByStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	item := newPostgresItem("0")
	item.Status = models.StatusCritical
	require.NoError(t, s.CreateItem(ctx, item))

	items, err := s.QueryByStatus(ctx, models.StatusCritical)
	require.NoError(t, err)

	found := false
	for _, it := range items {
		assert.Equal(t, models.StatusCritical, it.Status)
		found = found || it.ID == item.ID
	}
	assert.True(t, found)
}

func TestPostgresRefusesSecondRollback(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	item := newPostgresItem("100")
	require.NoError(t, s.CreateItem(ctx, item))

	entry := func(adjType models.AdjustmentType, reference string) *models.StockAdjustment {
		return &models.StockAdjustment{
			ID:        uuid.New().String(),
			ItemID:    item.ID,
			Type:      adjType,
			Quantity:  decimal.Zero,
			Unit:      "mL",
			Reference: reference,
			CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
		}
	}

	correction := entry(models.AdjustmentCorrection, "")
	require.NoError(t, s.AppendAdjustment(ctx, correction))

	first := entry(models.AdjustmentRollback, correction.ID)
	require.NoError(t, s.AppendAdjustment(ctx, first))
	assert.ErrorIs(t, s.AppendAdjustment(ctx, entry(models.AdjustmentRollback, correction.ID)), ErrDuplicate)

	refs, err := s.QueryByReference(ctx, correction.ID)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, first.ID, refs[0].ID)
}
