package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns the service registry.
type Metrics struct {
	registry *prometheus.Registry
	Pipeline *Pipeline
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Metrics{
		registry: reg,
		Pipeline: newPipeline(reg),
	}
}

// RegisterQueueDepth exposes the length of the processing queue.
func (m *Metrics) RegisterQueueDepth(fn func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "dashcam_queue_depth",
			Help: "Incidents waiting for a pipeline worker",
		},
		fn,
	))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Pipeline holds the extraction pipeline collectors. A nil *Pipeline is a
// valid no-op recorder.
type Pipeline struct {
	runs        *prometheus.CounterVec
	runDuration prometheus.Histogram
	frames      prometheus.Counter
	skipped     *prometheus.CounterVec
	vehicles    prometheus.Counter
	plates      prometheus.Counter
}

func newPipeline(reg prometheus.Registerer) *Pipeline {
	p := &Pipeline{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashcam_pipeline_runs_total",
			Help: "Pipeline runs by final processing status",
		}, []string{"status"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dashcam_pipeline_run_seconds",
			Help:    "Wall time of a pipeline run",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dashcam_pipeline_frames_total",
			Help: "Sampled frames attempted",
		}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashcam_pipeline_skipped_total",
			Help: "Units of work skipped after a failure, by stage",
		}, []string{"stage"}),
		vehicles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dashcam_pipeline_vehicles_total",
			Help: "Vehicle detections persisted",
		}),
		plates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dashcam_pipeline_plates_total",
			Help: "License plate reads persisted",
		}),
	}
	reg.MustRegister(p.runs, p.runDuration, p.frames, p.skipped, p.vehicles, p.plates)
	return p
}

func (p *Pipeline) RunFinished(status string, d time.Duration) {
	if p == nil {
		return
	}
	p.runs.WithLabelValues(status).Inc()
	p.runDuration.Observe(d.Seconds())
}

func (p *Pipeline) FrameProcessed() {
	if p == nil {
		return
	}
	p.frames.Inc()
}

func (p *Pipeline) Skipped(stage string) {
	if p == nil {
		return
	}
	p.skipped.WithLabelValues(stage).Inc()
}

func (p *Pipeline) Persisted(vehicles, plates int) {
	if p == nil {
		return
	}
	p.vehicles.Add(float64(vehicles))
	p.plates.Add(float64(plates))
}
