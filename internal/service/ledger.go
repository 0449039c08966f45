package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"inventory-service/internal/models"
	"inventory-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MaxHistoryPageSize caps a single history page.
const MaxHistoryPageSize = 500

// HistoryRequest selects a page of an item's ledger.
type HistoryRequest struct {
	ItemID string
	From   *time.Time
	To     *time.Time
	Limit  int
	Cursor string
}

// HistoryPage is one page of ledger entries, newest first.
type HistoryPage struct {
	Adjustments []models.StockAdjustment `json:"adjustments"`
	NextCursor  string                   `json:"next_cursor,omitempty"`
}

// EncodeCursor renders a page position as an opaque token.
func EncodeCursor(c models.Cursor) string {
	raw := fmt.Sprintf("%d:%d", c.CreatedAt.UnixNano(), c.Seq)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a token produced by EncodeCursor.
func DecodeCursor(token string) (*models.Cursor, error) {
	invalid := &ValidationError{Field: "cursor", Reason: "is malformed"}

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, invalid
	}
	nanos, seq, ok := strings.Cut(string(raw), ":")
	if !ok {
		return nil, invalid
	}
	n, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return nil, invalid
	}
	sq, err := strconv.ParseInt(seq, 10, 64)
	if err != nil {
		return nil, invalid
	}
	return &models.Cursor{CreatedAt: time.Unix(0, n).UTC(), Seq: sq}, nil
}

// History returns a page of an item's adjustments, newest first.
func (s *InventoryService) History(ctx context.Context, req HistoryRequest) (*HistoryPage, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.History", req.ItemID)
	defer span.End()

	if req.From != nil && req.To != nil && req.From.After(*req.To) {
		return nil, &ValidationError{Field: "from", Reason: "must not be after to"}
	}
	limit := req.Limit
	switch {
	case limit < 0:
		return nil, &ValidationError{Field: "limit", Reason: "must not be negative"}
	case limit == 0:
		limit = s.opts.HistoryPageSize
	case limit > MaxHistoryPageSize:
		limit = MaxHistoryPageSize
	}

	q := models.HistoryQuery{ItemID: req.ItemID, From: req.From, To: req.To, Limit: limit + 1}
	if req.Cursor != "" {
		c, err := DecodeCursor(req.Cursor)
		if err != nil {
			return nil, err
		}
		q.Cursor = c
	}

	if _, err := s.GetItem(ctx, req.ItemID); err != nil {
		return nil, err
	}

	rows, err := s.repo.QueryHistory(ctx, q)
	if err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to query history: %w", err)
	}

	page := &HistoryPage{Adjustments: rows}
	if len(rows) > limit {
		page.Adjustments = rows[:limit]
		last := page.Adjustments[limit-1]
		page.NextCursor = EncodeCursor(models.Cursor{CreatedAt: last.CreatedAt, Seq: last.Seq})
	}
	if page.Adjustments == nil {
		page.Adjustments = []models.StockAdjustment{}
	}
	return page, nil
}

// ReconcileReport is the outcome of replaying an item's ledger.
type ReconcileReport struct {
	ItemID        string          `json:"item_id"`
	StoredStock   decimal.Decimal `json:"stored_stock"`
	ReplayedStock decimal.Decimal `json:"replayed_stock"`
	Entries       int             `json:"entries"`
	Consistent    bool            `json:"consistent"`
	Problems      []string        `json:"problems,omitempty"`
}

// Reconcile replays an item's ledger from zero and compares the result with
// the stored stock. A mismatch returns the report together with a
// *ConsistencyError.
func (s *InventoryService) Reconcile(ctx context.Context, itemID string) (*ReconcileReport, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.Reconcile", itemID)
	defer span.End()

	for attempt := 1; attempt <= s.opts.MaxRetries; attempt++ {
		item, err := s.GetItem(ctx, itemID)
		if err != nil {
			return nil, err
		}
		entries, err := s.repo.QueryHistory(ctx, models.HistoryQuery{ItemID: itemID})
		if err != nil {
			return nil, fmt.Errorf("failed to load ledger: %w", err)
		}
		again, err := s.GetItem(ctx, itemID)
		if err != nil {
			return nil, err
		}
		if !again.UpdatedAt.Equal(item.UpdatedAt) || !again.CurrentStock.Equal(item.CurrentStock) {
			s.backoff(attempt)
			continue
		}

		report := replay(item, entries)
		if report.Consistent {
			util.ReconciliationsTotal.WithLabelValues("consistent").Inc()
			return report, nil
		}

		util.ReconciliationsTotal.WithLabelValues("inconsistent").Inc()
		err = &ConsistencyError{
			ItemID:   itemID,
			Stored:   report.StoredStock,
			Replayed: report.ReplayedStock,
			Detail:   strings.Join(report.Problems, "; "),
		}
		util.RecordError(span, err)
		s.logger.Error("Ledger does not reconcile", zap.String("item_id", itemID), zap.Error(err))
		return report, err
	}

	return nil, &ConcurrentModificationError{ItemID: itemID, Attempts: s.opts.MaxRetries}
}

// replay walks entries in application order, which is ascending Seq.
func replay(item *models.InventoryItem, entries []models.StockAdjustment) *ReconcileReport {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Seq < entries[j].Seq })

	report := &ReconcileReport{
		ItemID:      item.ID,
		StoredStock: item.CurrentStock,
		Entries:     len(entries),
	}

	running := decimal.Zero
	for _, e := range entries {
		if !e.PreviousStock.Equal(running) {
			report.Problems = append(report.Problems,
				fmt.Sprintf("entry %s starts at %s, expected %s", e.ID, e.PreviousStock, running))
		}
		running = running.Add(e.SignedDelta())
		if !e.NewStock.Equal(running) {
			report.Problems = append(report.Problems,
				fmt.Sprintf("entry %s ends at %s, replay gives %s", e.ID, e.NewStock, running))
		}
		if running.IsNegative() {
			report.Problems = append(report.Problems,
				fmt.Sprintf("entry %s drives stock negative", e.ID))
		}
	}

	report.ReplayedStock = running
	if !running.Equal(item.CurrentStock) {
		report.Problems = append(report.Problems,
			fmt.Sprintf("replayed %s differs from stored %s", running, item.CurrentStock))
	}
	report.Consistent = len(report.Problems) == 0
	return report
}
