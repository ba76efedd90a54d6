// Package metrics exposes the pipeline and HTTP prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "facetag"

// Pipeline implements service.Metrics.
type Pipeline struct {
	photosProcessed    *prometheus.CounterVec
	facesDetected      prometheus.Counter
	matches            prometheus.Counter
	embeddingDuration  prometheus.Histogram
	matchingDuration   prometheus.Histogram
	processingDuration *prometheus.HistogramVec
	inFlight           prometheus.Gauge
}

// New builds the pipeline collectors and registers them on reg.
func New(reg prometheus.Registerer) *Pipeline {
	p := &Pipeline{
		photosProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "photos_processed_total",
				Help:      "Processing passes by outcome (completed, failed, error)",
			},
			[]string{"outcome"},
		),
		facesDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "faces_detected_total",
			Help:      "Faces found in completed passes",
		}),
		matches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_total",
			Help:      "Matches recorded by completed passes",
		}),
		embeddingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "embedding_duration_seconds",
			Help:      "Embedding source call duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		matchingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "matching_duration_seconds",
			Help:      "Time spent scoring faces against the profile snapshot",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		processingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "processing_duration_seconds",
				Help:      "Full processing pass duration in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"outcome"},
		),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "processing_in_flight",
			Help:      "Processing passes currently running",
		}),
	}

	reg.MustRegister(
		p.photosProcessed,
		p.facesDetected,
		p.matches,
		p.embeddingDuration,
		p.matchingDuration,
		p.processingDuration,
		p.inFlight,
	)
	return p
}

func (p *Pipeline) PassStarted() {
	p.inFlight.Inc()
}

func (p *Pipeline) PassFinished(outcome string, faces, matches int, elapsed time.Duration) {
	p.inFlight.Dec()
	p.photosProcessed.WithLabelValues(outcome).Inc()
	p.processingDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
	p.facesDetected.Add(float64(faces))
	p.matches.Add(float64(matches))
}

func (p *Pipeline) ObserveEmbedding(elapsed time.Duration) {
	p.embeddingDuration.Observe(elapsed.Seconds())
}

func (p *Pipeline) ObserveMatching(elapsed time.Duration) {
	p.matchingDuration.Observe(elapsed.Seconds())
}
