// Package telemetry exposes Prometheus metrics for research and batch runs.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonathan/keyword-agent/internal/research"
	"github.com/jonathan/keyword-agent/internal/types"
)

const namespace = "keyword_agent"

// Metrics records research telemetry on its own registry
type Metrics struct {
	registry *prometheus.Registry

	cacheLookups      *prometheus.CounterVec
	cacheErrors       *prometheus.CounterVec
	generations       *prometheus.CounterVec
	candidates        prometheus.Counter
	droppedCandidates prometheus.Counter
	research          *prometheus.CounterVec
	researchDuration  prometheus.Histogram
	keywordsReturned  prometheus.Histogram
	seeds             *prometheus.CounterVec
}

// New creates Metrics registered on a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Research cache lookups by outcome",
		}, []string{"outcome"}),
		cacheErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_errors_total",
			Help:      "Research cache backend errors by operation",
		}, []string{"op"}),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Keyword generation runs by candidate source",
		}, []string{"source"}),
		candidates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_generated_total",
			Help:      "Keyword candidates produced by generation",
		}),
		droppedCandidates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_dropped_total",
			Help:      "Candidates dropped because measurement failed",
		}),
		research: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "research_total",
			Help:      "Research runs by final stage",
		}, []string{"stage"}),
		researchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "research_duration_seconds",
			Help:      "Wall time of research runs",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		keywordsReturned: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "keywords_returned",
			Help:      "Keywords returned per successful research run",
			Buckets:   []float64{1, 5, 10, 25, 50, 75, 100},
		}),
		seeds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_seeds_total",
			Help:      "Batch seeds by outcome",
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(
		m.cacheLookups, m.cacheErrors, m.generations, m.candidates, m.droppedCandidates,
		m.research, m.researchDuration, m.keywordsReturned, m.seeds,
	)
	return m
}

// Registry returns the registry the metrics live on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Register adds an extra collector to the registry
func (m *Metrics) Register(c prometheus.Collector) error {
	return m.registry.Register(c)
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// CacheLookup counts a cache hit or miss
func (m *Metrics) CacheLookup(hit bool) {
	m.cacheLookups.WithLabelValues(outcome(hit, "hit", "miss")).Inc()
}

// CacheError counts a cache backend failure
func (m *Metrics) CacheError(op string) {
	m.cacheErrors.WithLabelValues(op).Inc()
}

// Generated counts a generation run and its candidates
func (m *Metrics) Generated(source types.GenerationSource, candidates int) {
	m.generations.WithLabelValues(string(source)).Inc()
	m.candidates.Add(float64(candidates))
}

// CandidatesDropped counts candidates lost to measurement failures
func (m *Metrics) CandidatesDropped(n int) {
	m.droppedCandidates.Add(float64(n))
}

// ResearchFinished records a completed or failed research run
func (m *Metrics) ResearchFinished(stage research.Stage, elapsed time.Duration, keywords int) {
	m.research.WithLabelValues(string(stage)).Inc()
	m.researchDuration.Observe(elapsed.Seconds())
	if stage == research.StageDone {
		m.keywordsReturned.Observe(float64(keywords))
	}
}

// SeedFinished counts one batch seed
func (m *Metrics) SeedFinished(failed bool) {
	m.seeds.WithLabelValues(outcome(failed, "failed", "succeeded")).Inc()
}

func outcome(cond bool, yes, no string) string {
	if cond {
		return yes
	}
	return no
}
