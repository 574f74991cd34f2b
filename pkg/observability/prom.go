package observability

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus implements every hook interface on a private registry.
// Batch runs have no scrape endpoint, so the registry is written to a
// node-exporter textfile with [Prometheus.WriteTextfile].
type Prometheus struct {
	reg *prometheus.Registry

	chunks          prometheus.Counter
	chunkDuration   prometheus.Histogram
	chunkNodes      prometheus.Counter
	tiles           *prometheus.CounterVec
	tileDuration    prometheus.Histogram
	combineDuration prometheus.Histogram
	combineErrors   prometheus.Counter

	edges        *prometheus.CounterVec
	evalDuration prometheus.Histogram
	skeletons    prometheus.Gauge
	erl          prometheus.Gauge
	skelAll      prometheus.Gauge

	storeOps   *prometheus.CounterVec
	storeBytes *prometheus.CounterVec
}

// NewPrometheus creates the collectors on a new registry.
func NewPrometheus() *Prometheus {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Prometheus{
		reg: reg,
		chunks: f.NewCounter(prometheus.CounterOpts{
			Name: "emerl_lookup_chunks_total",
			Help: "Z-slabs processed by the chunked lookup build",
		}),
		chunkDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "emerl_lookup_chunk_duration_seconds",
			Help:    "Time to read and index one z-slab",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		chunkNodes: f.NewCounter(prometheus.CounterOpts{
			Name: "emerl_lookup_chunk_nodes_total",
			Help: "Nodes resolved by the chunked lookup build",
		}),
		tiles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "emerl_lookup_tiles_total",
			Help: "Tiles by result",
		}, []string{"result"}),
		tileDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "emerl_lookup_tile_duration_seconds",
			Help:    "Time to compute one tile artifact",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		combineDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "emerl_lookup_combine_duration_seconds",
			Help:    "Time to combine tile artifacts",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		combineErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "emerl_lookup_combine_errors_total",
			Help: "Failed combine runs",
		}),
		edges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "emerl_eval_edges_total",
			Help: "Classified skeleton edges by category",
		}, []string{"category"}),
		evalDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "emerl_eval_duration_seconds",
			Help:    "Skeleton evaluation duration",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
		}),
		skeletons: f.NewGauge(prometheus.GaugeOpts{
			Name: "emerl_eval_skeletons",
			Help: "Skeletons in the evaluated graph",
		}),
		erl: f.NewGauge(prometheus.GaugeOpts{
			Name: "emerl_erl",
			Help: "Length-weighted expected run length",
		}),
		skelAll: f.NewGauge(prometheus.GaugeOpts{
			Name: "emerl_erl_skel_all",
			Help: "Expected run length of a perfect reconstruction",
		}),
		storeOps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "emerl_store_operations_total",
			Help: "Artifact store operations by kind and result",
		}, []string{"kind", "result"}),
		storeBytes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "emerl_store_bytes_total",
			Help: "Artifact bytes moved by kind and direction",
		}, []string{"kind", "direction"}),
	}
}

// Registry returns the underlying registry.
func (p *Prometheus) Registry() *prometheus.Registry { return p.reg }

// WriteTextfile writes all metrics to path in the text exposition format.
func (p *Prometheus) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, p.reg)
}

func (p *Prometheus) OnChunkStart(context.Context, int, int) {}

func (p *Prometheus) OnChunkComplete(_ context.Context, _ int, nodes int, d time.Duration) {
	p.chunks.Inc()
	p.chunkNodes.Add(float64(nodes))
	p.chunkDuration.Observe(d.Seconds())
}

func (p *Prometheus) OnTileComplete(_ context.Context, _ string, _ int, skipped bool, d time.Duration, err error) {
	switch {
	case err != nil:
		p.tiles.WithLabelValues("error").Inc()
	case skipped:
		p.tiles.WithLabelValues("skipped").Inc()
	default:
		p.tiles.WithLabelValues("computed").Inc()
		p.tileDuration.Observe(d.Seconds())
	}
}

func (p *Prometheus) OnCombineComplete(_ context.Context, _ int, d time.Duration, err error) {
	if err != nil {
		p.combineErrors.Inc()
		return
	}
	p.combineDuration.Observe(d.Seconds())
}

func (p *Prometheus) OnEvaluateStart(_ context.Context, skeletons, _ int) {
	p.skeletons.Set(float64(skeletons))
}

func (p *Prometheus) OnEvaluateComplete(_ context.Context, omitted, split, merged, correct int, d time.Duration) {
	p.edges.WithLabelValues("omitted").Add(float64(omitted))
	p.edges.WithLabelValues("split").Add(float64(split))
	p.edges.WithLabelValues("merged").Add(float64(merged))
	p.edges.WithLabelValues("correct").Add(float64(correct))
	p.evalDuration.Observe(d.Seconds())
}

func (p *Prometheus) OnERL(_ context.Context, erl, skelAll float64) {
	p.erl.Set(erl)
	p.skelAll.Set(skelAll)
}

func (p *Prometheus) OnStoreHit(_ context.Context, kind string, size int) {
	p.storeOps.WithLabelValues(kind, "hit").Inc()
	p.storeBytes.WithLabelValues(kind, "read").Add(float64(size))
}

func (p *Prometheus) OnStoreMiss(_ context.Context, kind string) {
	p.storeOps.WithLabelValues(kind, "miss").Inc()
}

func (p *Prometheus) OnStorePut(_ context.Context, kind string, size int) {
	p.storeOps.WithLabelValues(kind, "put").Inc()
	p.storeBytes.WithLabelValues(kind, "write").Add(float64(size))
}

var (
	_ LookupHooks = (*Prometheus)(nil)
	_ EvalHooks   = (*Prometheus)(nil)
	_ StoreHooks  = (*Prometheus)(nil)
)
