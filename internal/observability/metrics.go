package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "flow_alert"

// Metrics holds the Prometheus counters, histograms, and gauges for the alert pipeline.
type Metrics struct {
	Runs        *prometheus.CounterVec // labels: trigger={scheduled,manual}, outcome={completed,failed}
	RunDuration prometheus.Histogram
	UserTasks   *prometheus.CounterVec // labels: outcome={fulfilled,rejected}
	RunActive   prometheus.Gauge

	AlertsDispatched *prometheus.CounterVec // labels: sent={true,false}
	AlertsSuppressed *prometheus.CounterVec // labels: reason={duplicate,repeat_in_run}

	// Cache and forecast source metrics.
	ForecastCache         *prometheus.CounterVec   // labels: result={hit,miss,stale,error}
	ThresholdCache        *prometheus.CounterVec   // labels: result={hit,miss,stale,invalid,error}
	ForecastFetches       *prometheus.CounterVec   // labels: range={short,medium}, outcome={success,error}
	ForecastFetchDuration *prometheus.HistogramVec // labels: range={short,medium}

	PublishErrors prometheus.Counter
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.Runs,
		m.RunDuration,
		m.UserTasks,
		m.RunActive,
		m.AlertsDispatched,
		m.AlertsSuppressed,
		m.ForecastCache,
		m.ThresholdCache,
		m.ForecastFetches,
		m.ForecastFetchDuration,
		m.PublishErrors,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, so tests can
// build as many as they need without "already registered" panics.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by trigger and outcome.",
		}, []string{"trigger", "outcome"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete pipeline run.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		UserTasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "user_tasks_total",
			Help:      "Per-user processing tasks by outcome.",
		}, []string{"outcome"}),
		RunActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_active",
			Help:      "Number of pipeline runs currently executing.",
		}),
		AlertsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_dispatched_total",
			Help:      "Alerts handed to the notifier, by delivery outcome.",
		}, []string{"sent"}),
		AlertsSuppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_suppressed_total",
			Help:      "Matched alerts that were not dispatched, by reason.",
		}, []string{"reason"}),
		ForecastCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forecast_cache_total",
			Help:      "Forecast cache lookups by result.",
		}, []string{"result"}),
		ThresholdCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "threshold_cache_total",
			Help:      "Threshold cache lookups by result.",
		}, []string{"result"}),
		ForecastFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forecast_fetch_total",
			Help:      "Forecast source requests by range and outcome.",
		}, []string{"range", "outcome"}),
		ForecastFetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "forecast_fetch_duration_seconds",
			Help:      "Forecast source request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		}, []string{"range"}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_publish_errors_total",
			Help:      "Alert events that could not be published to Kafka.",
		}),
	}
}
