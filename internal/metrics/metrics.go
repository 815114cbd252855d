package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	OrdersPlaced = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ordercore",
		Name:      "orders_placed_total",
		Help:      "Order placement attempts by result.",
	}, []string{"result"})

	Deductions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ordercore",
		Name:      "inventory_deductions_total",
		Help:      "Inventory deduction attempts by result.",
	}, []string{"result"})

	Restorations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ordercore",
		Name:      "inventory_restorations_total",
		Help:      "Inventory restoration attempts by result.",
	}, []string{"result"})

	ReversalStepFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ordercore",
		Name:      "reversal_step_failures_total",
		Help:      "Compensating steps that failed during cancellation or refund.",
	}, []string{"step"})

	ReconciliationEvents = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ordercore",
		Name:      "reconciliation_events_total",
		Help:      "Orders flagged for manual reconciliation.",
	})
)

func init() {
	prometheus.MustRegister(OrdersPlaced, Deductions, Restorations, ReversalStepFailures, ReconciliationEvents)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
