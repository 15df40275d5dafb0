package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SinkMetrics holds all Prometheus metrics for the telemetry sink.
type SinkMetrics struct {
	EnvelopesTotal   *prometheus.CounterVec
	RecordsTotal     *prometheus.CounterVec
	ForwardsTotal    *prometheus.CounterVec
	BytesTotal       prometheus.Counter
	DispatchDuration prometheus.Histogram
}

// NewSinkMetrics creates the sink metrics and registers them with reg.
// Pass prometheus.DefaultRegisterer to expose them on the default /metrics handler.
func NewSinkMetrics(reg prometheus.Registerer) *SinkMetrics {
	factory := promauto.With(reg)
	return &SinkMetrics{
		EnvelopesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telemetry_sink",
			Subsystem: "dispatch",
			Name:      "envelopes_total",
			Help:      "Total number of dispatched envelopes by outcome.",
		}, []string{"status"}), // status: persisted, error_parse, error_malformed, error_write
		RecordsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telemetry_sink",
			Subsystem: "dispatch",
			Name:      "records_total",
			Help:      "Total number of storage record inserts by outcome.",
		}, []string{"status"}), // status: inserted, failed
		ForwardsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telemetry_sink",
			Subsystem: "forward",
			Name:      "batches_total",
			Help:      "Total number of anonymized batches forwarded by outcome.",
		}, []string{"status"}), // status: sent, rejected, error
		BytesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "telemetry_sink",
			Subsystem: "ingest",
			Name:      "bytes_total",
			Help:      "Total number of bytes received on the ingest endpoint.",
		}),
		DispatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "telemetry_sink",
			Subsystem: "dispatch",
			Name:      "duration_seconds",
			Help:      "Time from receiving an envelope to all of its inserts completing.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}
