package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	JobEvents      *prometheus.CounterVec
	QueueLength    prometheus.Gauge
	StageDuration  *prometheus.HistogramVec
	PromptDuration prometheus.Histogram
	StageFailures  *prometheus.CounterVec

	mu    sync.RWMutex
	slots []StageSlot
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		JobEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voice_job_events_total",
			Help:      "Voice job lifecycle events by type.",
		}, []string{"event"}),
		QueueLength: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "voice_job_queue_length",
			Help:      "Number of voice jobs waiting for the worker.",
		}),
		StageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "voice_job_stage_duration_seconds",
			Help:      "Wall time spent in each voice job stage.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"stage"}),
		PromptDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "voice_prompt_duration_seconds",
			Help:      "Playback length of assembled voice prompts.",
			Buckets:   []float64{3, 5, 10, 20, 30, 60, 120},
		}),
		StageFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voice_job_failures_total",
			Help:      "Failed voice jobs by the stage that failed and classified error code.",
		}, []string{"stage", "code"}),
	}
}

// DescribeStages sets the pipeline layout StageSnapshot reports against.
func (m *Metrics) DescribeStages(slots []StageSlot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots = append([]StageSlot(nil), slots...)
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) ObserveOutcome(event string) {
	m.JobEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) ObserveFailure(stage, code string) {
	m.StageFailures.WithLabelValues(stage, code).Inc()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
