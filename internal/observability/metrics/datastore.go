// Package metrics provides prometheus metric collectors for the service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DatastoreMetrics contains Prometheus metrics for datastore operations
type DatastoreMetrics struct {
	dbTransactionsTotal      *prometheus.CounterVec
	dbTransactionDuration    prometheus.Histogram
	dbTransactionErrorsTotal prometheus.Counter
}

// NewDatastoreMetrics creates and registers datastore metric collectors.
func NewDatastoreMetrics(registry *prometheus.Registry) (*DatastoreMetrics, error) {
	m := &DatastoreMetrics{
		dbTransactionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clinreview_db_transactions_total",
				Help: "Total number of database transactions by result",
			},
			[]string{"result"},
		),
		dbTransactionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "clinreview_db_transaction_duration_seconds",
				Help:    "Database transaction duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		dbTransactionErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "clinreview_db_transaction_errors_total",
				Help: "Total number of failed database transactions",
			},
		),
	}

	collectors := []prometheus.Collector{
		m.dbTransactionsTotal,
		m.dbTransactionDuration,
		m.dbTransactionErrorsTotal,
	}
	for _, collector := range collectors {
		if err := registry.Register(collector); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveTransaction records the outcome and duration of one transaction.
func (m *DatastoreMetrics) ObserveTransaction(duration time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "error"
		m.dbTransactionErrorsTotal.Inc()
	}
	m.dbTransactionsTotal.WithLabelValues(result).Inc()
	m.dbTransactionDuration.Observe(duration.Seconds())
}
