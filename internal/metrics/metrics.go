package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SalesProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_sales_processed_total",
		Help: "Total number of sales committed",
	})

	SalesFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_sales_failed_total",
		Help: "Total number of rejected sales",
	}, []string{"reason"})

	ReturnsProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_returns_processed_total",
		Help: "Total number of returns committed",
	})

	ReturnsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_returns_failed_total",
		Help: "Total number of rejected returns",
	}, []string{"reason"})

	RegistersOpenedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_registers_opened_total",
		Help: "Total number of cash register sessions opened",
	})

	RegistersClosedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_registers_closed_total",
		Help: "Total number of cash register sessions closed",
	})

	HeldSalesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_held_sales_total",
		Help: "Total number of carts parked",
	})

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
