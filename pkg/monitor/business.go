package monitor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BusinessMetrics 定义业务监控指标
type BusinessMetrics struct {
	TxTotal         *prometheus.CounterVec
	TxDuration      *prometheus.HistogramVec
	LockWait        prometheus.Histogram
	RPCErrorsTotal  *prometheus.CounterVec
	PendingNonces   prometheus.Gauge
	OutboxPublished *prometheus.CounterVec
}

// Global Metrics Instance (未初始化时下面的记录函数都是空操作，测试无需注册)
var Business *BusinessMetrics

// InitBusinessMetrics 初始化业务指标
func InitBusinessMetrics() {
	Business = &BusinessMetrics{
		TxTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_tx_total",
			Help: "Transactions submitted through the pipeline, by contract method and result",
		}, []string{"method", "result"}),
		TxDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_tx_duration_seconds",
			Help:    "Time from submit to receipt (or failure)",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"method"}),
		LockWait: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "ledger_account_lock_wait_seconds",
			Help:    "Time spent waiting for the per-account lock",
			Buckets: prometheus.DefBuckets,
		}),
		RPCErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_rpc_errors_total",
			Help: "Failed RPC round trips, by operation",
		}, []string{"op"}),
		PendingNonces: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "ledger_pending_nonces",
			Help: "Nonces reserved after a confirmation timeout",
		}),
		OutboxPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_outbox_published_total",
			Help: "Outbox messages relayed to the message queue",
		}, []string{"result"}),
	}
}

func ObserveTx(method, result string, d time.Duration) {
	if Business == nil {
		return
	}
	Business.TxTotal.WithLabelValues(method, result).Inc()
	Business.TxDuration.WithLabelValues(method).Observe(d.Seconds())
}

func ObserveLockWait(d time.Duration) {
	if Business == nil {
		return
	}
	Business.LockWait.Observe(d.Seconds())
}

func RPCError(op string) {
	if Business == nil {
		return
	}
	Business.RPCErrorsTotal.WithLabelValues(op).Inc()
}

func SetPendingNonces(n int) {
	if Business == nil {
		return
	}
	Business.PendingNonces.Set(float64(n))
}

func OutboxPublished(result string) {
	if Business == nil {
		return
	}
	Business.OutboxPublished.WithLabelValues(result).Inc()
}
