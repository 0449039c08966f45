package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ItemsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_items_created_total",
		Help: "Total number of inventory items created",
	})

	AdjustmentsAppliedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_adjustments_applied_total",
		Help: "Total number of stock adjustments committed",
	}, []string{"type"})

	AdjustmentsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_adjustments_rejected_total",
		Help: "Total number of stock adjustments rejected",
	}, []string{"reason"})

	AdjustmentConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_adjustment_conflicts_total",
		Help: "Total number of conditional stock updates that lost a race and retried",
	})

	AdjustmentLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stock_adjustment_latency_seconds",
		Help:    "Latency of stock adjustment operations",
		Buckets: prometheus.DefBuckets,
	})

	ReconciliationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_reconciliations_total",
		Help: "Total number of ledger reconciliations by result",
	}, []string{"result"})

	OrdersConsumedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_consumed_total",
		Help: "Total number of completed orders whose ingredients were deducted",
	})

	OrderCompensationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "order_consumption_compensations_total",
		Help: "Total number of order consumptions rolled back after a failed line",
	})

	LowStockAlertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "low_stock_alerts_total",
		Help: "Total number of low stock alerts published",
	}, []string{"status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
