package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AnujSsStw/img-gen/internal/domain"
)

// Recorder owns a private registry so several instances can coexist in tests.
// A nil *Recorder records nothing.
type Recorder struct {
	registry    *prometheus.Registry
	generations *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		generations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "imggen",
				Subsystem: "proxy",
				Name:      "generations_total",
				Help:      "Generation requests by terminal state and failure kind",
			},
			[]string{"state", "kind"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "imggen",
				Subsystem: "proxy",
				Name:      "generation_duration_seconds",
				Help:      "Time from receipt to terminal state",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"state"},
		),
	}
}

// ObserveGeneration records a finished lifecycle. Non-terminal lifecycles
// are ignored.
func (r *Recorder) ObserveGeneration(lc *domain.Lifecycle, now time.Time) {
	if r == nil || lc == nil || !lc.Terminal() {
		return
	}
	state := string(lc.State())
	kind := string(lc.Kind())
	if kind == "" {
		kind = "none"
	}
	r.generations.WithLabelValues(state, kind).Inc()
	r.duration.WithLabelValues(state).Observe(lc.Elapsed(now).Seconds())
}

// Handler exposes the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
