package handlers

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gavincwyant/traintrack/internal/ledger"
	"github.com/gavincwyant/traintrack/pkg/logging"
)

var (
	db      *sql.DB
	logger  logging.Logger
	engine  *ledger.Engine
	metrics *BursarMetrics
)

// BursarMetrics holds all Prometheus metrics for Bursar
type BursarMetrics struct {
	SessionDeductions *prometheus.CounterVec
	CreditOperations  *prometheus.CounterVec
	InvoiceOperations *prometheus.CounterVec
	DBQueries         *prometheus.CounterVec
	DBDuration        *prometheus.HistogramVec
	DBConnections     *prometheus.GaugeVec
}

// Init initializes the handlers with database, logger and billing engine
func Init(database *sql.DB, log logging.Logger, billingEngine *ledger.Engine, bursarMetrics *BursarMetrics) {
	db = database
	logger = log
	engine = billingEngine
	metrics = bursarMetrics
}

func countDeduction(outcome string) {
	if metrics != nil && metrics.SessionDeductions != nil {
		metrics.SessionDeductions.WithLabelValues(outcome).Inc()
	}
}

func countCredit(source, status string) {
	if metrics != nil && metrics.CreditOperations != nil {
		metrics.CreditOperations.WithLabelValues(source, status).Inc()
	}
}

func countInvoice(operation, status string) {
	if metrics != nil && metrics.InvoiceOperations != nil {
		metrics.InvoiceOperations.WithLabelValues(operation, status).Inc()
	}
}
