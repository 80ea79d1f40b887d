// Package metrics provides internal metrics collection for the scheduler,
// gateway, and worker services. This package is internal and should not be
// imported by external projects.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector holds every Prometheus instrument the control plane emits.
// Gateways, schedulers, and the compilation worker each use the subset
// relevant to them; unused instruments simply stay at zero.
type Collector struct {
	// Scheduler metrics.
	schedulerQueueDepth  *prometheus.GaugeVec
	schedulerDispatched  *prometheus.CounterVec
	schedulerInFlight    *prometheus.GaugeVec
	schedulerRPCDuration *prometheus.HistogramVec
	schedulerRPCErrors   *prometheus.CounterVec

	// Gateway metrics.
	gatewayPoolSize       *prometheus.GaugeVec
	gatewayHealthEvictions *prometheus.CounterVec
	gatewayForwarded      *prometheus.CounterVec
	gatewayForwardErrors  *prometheus.CounterVec

	// Compilation worker metrics.
	workerPoolRestarts  prometheus.Counter
	workerQueueDepth    prometheus.Gauge
	workerBatchesActive prometheus.Gauge
	workerBatchDuration prometheus.Histogram

	logger *zap.Logger
}

// NewCollector registers every instrument under namespace and returns the
// collector. Call once per process.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{logger: logger.With(zap.String("component", "metrics"))}

	c.schedulerQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Name: "scheduler_queue_depth",
		Help: "Number of tasks currently queued, by scheduler name.",
	}, []string{"scheduler"})

	c.schedulerDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "scheduler_dispatched_total",
		Help: "Total tasks dispatched to an upstream worker, by scheduler name.",
	}, []string{"scheduler"})

	c.schedulerInFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Name: "scheduler_in_flight",
		Help: "Number of upstream HTTP requests currently in flight, by scheduler name.",
	}, []string{"scheduler"})

	c.schedulerRPCDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Name: "scheduler_rpc_duration_seconds",
		Help:    "Upstream RPC duration, by scheduler name.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
	}, []string{"scheduler"})

	c.schedulerRPCErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "scheduler_rpc_errors_total",
		Help: "Upstream RPC failures, by scheduler name.",
	}, []string{"scheduler"})

	c.gatewayPoolSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Name: "gateway_pool_size",
		Help: "Current worker pool size, by gateway and pool key (model name or \"_flat\").",
	}, []string{"gateway", "pool"})

	c.gatewayHealthEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "gateway_health_evictions_total",
		Help: "Workers evicted by a health check, by gateway.",
	}, []string{"gateway"})

	c.gatewayForwarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "gateway_forwarded_total",
		Help: "Requests successfully forwarded to a worker, by gateway.",
	}, []string{"gateway"})

	c.gatewayForwardErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "gateway_forward_errors_total",
		Help: "Requests that failed to forward, by gateway and reason.",
	}, []string{"gateway", "reason"})

	c.workerPoolRestarts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "worker_pool_restarts_total",
		Help: "Number of compilation process pool restarts.",
	})

	c.workerQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "worker_queue_depth",
		Help: "Depth of the compilation worker's task queue.",
	})

	c.workerBatchesActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "worker_batches_active",
		Help: "Number of compilation batches currently awaiting results.",
	})

	c.workerBatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Name: "worker_batch_duration_seconds",
		Help:    "Wall-clock duration of run_batch calls.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 14),
	})

	return c
}

// SchedulerQueueDepth sets the current queue depth for scheduler.
func (c *Collector) SchedulerQueueDepth(scheduler string, depth int) {
	c.schedulerQueueDepth.WithLabelValues(scheduler).Set(float64(depth))
}

// SchedulerDispatched increments the dispatched counter for scheduler.
func (c *Collector) SchedulerDispatched(scheduler string) {
	c.schedulerDispatched.WithLabelValues(scheduler).Inc()
}

// SchedulerInFlightDelta adjusts the in-flight gauge for scheduler by delta
// (+1 on dispatch, -1 on completion).
func (c *Collector) SchedulerInFlightDelta(scheduler string, delta float64) {
	c.schedulerInFlight.WithLabelValues(scheduler).Add(delta)
}

// SchedulerRPCObserved records one upstream RPC's duration and, if err is
// non-nil, counts it as a failure.
func (c *Collector) SchedulerRPCObserved(scheduler string, seconds float64, err error) {
	c.schedulerRPCDuration.WithLabelValues(scheduler).Observe(seconds)
	if err != nil {
		c.schedulerRPCErrors.WithLabelValues(scheduler).Inc()
	}
}

// GatewayPoolSize sets the pool size gauge for gateway/pool.
func (c *Collector) GatewayPoolSize(gateway, pool string, size int) {
	c.gatewayPoolSize.WithLabelValues(gateway, pool).Set(float64(size))
}

// GatewayHealthEviction increments the eviction counter for gateway.
func (c *Collector) GatewayHealthEviction(gateway string) {
	c.gatewayHealthEvictions.WithLabelValues(gateway).Inc()
}

// GatewayForwarded increments the successful-forward counter for gateway.
func (c *Collector) GatewayForwarded(gateway string) {
	c.gatewayForwarded.WithLabelValues(gateway).Inc()
}

// GatewayForwardError increments the forward-error counter for
// gateway/reason.
func (c *Collector) GatewayForwardError(gateway, reason string) {
	c.gatewayForwardErrors.WithLabelValues(gateway, reason).Inc()
}

// WorkerPoolRestarted increments the pool restart counter.
func (c *Collector) WorkerPoolRestarted() { c.workerPoolRestarts.Inc() }

// WorkerQueueDepth sets the worker's task queue depth gauge.
func (c *Collector) WorkerQueueDepth(depth int) { c.workerQueueDepth.Set(float64(depth)) }

// WorkerBatchesActiveDelta adjusts the active-batches gauge by delta.
func (c *Collector) WorkerBatchesActiveDelta(delta float64) { c.workerBatchesActive.Add(delta) }

// WorkerBatchObserved records one run_batch call's wall-clock duration.
func (c *Collector) WorkerBatchObserved(seconds float64) { c.workerBatchDuration.Observe(seconds) }
