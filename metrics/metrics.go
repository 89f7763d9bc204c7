// Package metrics exposes the engine's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// EngineMetrics instruments one engine instance.
type EngineMetrics struct {
	RoutesDiscovered  prometheus.Counter
	RoutesEvaluated   prometheus.Counter
	CacheHits         prometheus.Counter
	CacheMisses       prometheus.Counter
	Rejections        *prometheus.CounterVec
	Approvals         prometheus.Counter
	Decisions         prometheus.Counter
	ApprovalRate      prometheus.Gauge
	EvaluationLatency prometheus.Histogram
	TickLatency       prometheus.Histogram
	SnapshotPools     prometheus.Gauge
}

// NewEngineMetrics registers the engine metric set on reg under
// namespace.
func NewEngineMetrics(reg prometheus.Registerer, namespace string) *EngineMetrics {
	factory := promauto.With(reg)
	return &EngineMetrics{
		RoutesDiscovered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routes_discovered_total",
			Help:      "Candidate cyclic routes produced by graph search",
		}),
		RoutesEvaluated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routes_evaluated_total",
			Help:      "Routes run through the profitability calculator",
		}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "opportunity_cache_hits_total",
			Help:      "Evaluations served from the opportunity cache",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "opportunity_cache_misses_total",
			Help:      "Evaluations that required recomputation",
		}),
		Rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_rejections_total",
			Help:      "Gate rejections by stage and reason",
		}, []string{"stage", "reason"}),
		Approvals: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_approvals_total",
			Help:      "Opportunities approved by the execution gate",
		}),
		Decisions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_decisions_total",
			Help:      "Total execution decisions rendered",
		}),
		ApprovalRate: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gate_approval_rate",
			Help:      "Approved share of all decisions",
		}),
		EvaluationLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "route_evaluation_latency_seconds",
			Help:      "Latency of a single route evaluation",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 12),
		}),
		TickLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_tick_latency_seconds",
			Help:      "Latency of a full scan tick",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		SnapshotPools: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_live_pools",
			Help:      "Pools surviving staleness and degeneracy filters",
		}),
	}
}

// UpdateApprovalRate recomputes the approval-rate gauge by reading the
// approval and decision counters back.
func (m *EngineMetrics) UpdateApprovalRate() {
	approvals := counterValue(m.Approvals)
	decisions := counterValue(m.Decisions)
	if decisions > 0 {
		m.ApprovalRate.Set(approvals / decisions)
	}
}

func counterValue(c prometheus.Counter) float64 {
	metric := &dto.Metric{}
	if err := c.Write(metric); err == nil && metric.Counter != nil {
		return metric.Counter.GetValue()
	}
	return 0
}
