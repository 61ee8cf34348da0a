package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type MetricsCollector struct {
	registry           *prometheus.Registry
	claimsInitiated    prometheus.Counter
	claimsReleased     prometheus.Counter
	claimsCompleted    prometheus.Counter
	claimsDisputed     prometheus.Counter
	claimsFailed       prometheus.Counter
	settlementDuration prometheus.Histogram
	stakePct           *prometheus.GaugeVec
	reserveBalance     prometheus.Gauge
	premiumVolume      prometheus.Counter
	mu                 sync.RWMutex
	logger             *slog.Logger
}

func NewMetricsCollector(logger *slog.Logger) *MetricsCollector {
	if logger == nil {
		logger = slog.Default()
	}

	registry := prometheus.NewRegistry()

	collector := &MetricsCollector{
		registry: registry,
		claimsInitiated: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "claims_initiated_total",
			Help: "Total number of claims admitted into escrow",
		}),
		claimsReleased: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "claims_initial_released_total",
			Help: "Total number of initial payouts released to doctors",
		}),
		claimsCompleted: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "claims_completed_total",
			Help: "Total number of claims completed cleanly",
		}),
		claimsDisputed: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "claims_disputed_total",
			Help: "Total number of claims disputed within the review window",
		}),
		claimsFailed: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "claims_failed_total",
			Help: "Total number of failed settlement operations",
		}),
		settlementDuration: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "settlement_operation_duration_seconds",
			Help:    "Time taken by one settlement operation",
			Buckets: prometheus.DefBuckets,
		}),
		stakePct: promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
			Name: "stake_percentage",
			Help: "Current collateral percentage per account and role",
		}, []string{"account", "role"}),
		reserveBalance: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
			Name: "reserve_balance",
			Help: "Current custodied reserve balance",
		}),
		premiumVolume: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "premium_volume_total",
			Help: "Cumulative premium income",
		}),
		logger: logger,
	}

	return collector
}

func (m *MetricsCollector) RecordOperation(op string, duration time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !success {
		m.claimsFailed.Inc()
	} else {
		switch op {
		case "initiate":
			m.claimsInitiated.Inc()
		case "release":
			m.claimsReleased.Inc()
		case "complete":
			m.claimsCompleted.Inc()
		case "dispute":
			m.claimsDisputed.Inc()
		}
	}

	m.settlementDuration.Observe(duration.Seconds())
}

func (m *MetricsCollector) UpdateStakePct(account, role string, pct int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stakePct.WithLabelValues(account, role).Set(float64(pct))
}

func (m *MetricsCollector) UpdateReserve(balance int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reserveBalance.Set(float64(balance))
}

func (m *MetricsCollector) RecordPremium(amount int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.premiumVolume.Add(float64(amount))
}

func (m *MetricsCollector) GetHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *MetricsCollector) StartMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.GetHandler())

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		m.logger.Info("Starting metrics server", slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.logger.Error("Metrics server failed", slog.String("error", err.Error()))
		}
	}()

	return server
}

func (m *MetricsCollector) Shutdown(ctx context.Context) error {
	m.logger.Info("Metrics collector shutdown complete")
	return nil
}
