package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Store write results
const (
	WriteInserted  = "inserted"
	WriteDuplicate = "duplicate"
	WriteFailed    = "failed"
)

// Recorder exposes pipeline counters to Prometheus.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	runs             prometheus.Counter
	tradesAnalyzed   prometheus.Counter
	tradesSuspicious prometheus.Counter
	fetchErrors      *prometheus.CounterVec
	malformedTrades  prometheus.Counter
	storeWrites      *prometheus.CounterVec
	runDuration      prometheus.Histogram
}

// NewRecorder registers the pipeline metrics with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		runs: f.NewCounter(prometheus.CounterOpts{
			Name: "insiderscan_pipeline_runs_total",
			Help: "Total number of analysis runs",
		}),
		tradesAnalyzed: f.NewCounter(prometheus.CounterOpts{
			Name: "insiderscan_trades_analyzed_total",
			Help: "Total number of trades scored",
		}),
		tradesSuspicious: f.NewCounter(prometheus.CounterOpts{
			Name: "insiderscan_trades_suspicious_total",
			Help: "Total number of trades flagged as suspicious",
		}),
		fetchErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "insiderscan_fetch_errors_total",
				Help: "Market data fetch failures by operation",
			},
			[]string{"op"},
		),
		malformedTrades: f.NewCounter(prometheus.CounterOpts{
			Name: "insiderscan_malformed_trades_total",
			Help: "Trades rejected because price or size did not parse",
		}),
		storeWrites: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "insiderscan_store_writes_total",
				Help: "Suspicious trade upserts by result",
			},
			[]string{"result"},
		),
		runDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "insiderscan_run_duration_seconds",
			Help:    "Duration of analysis runs in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// RecordRun records one completed analysis run.
func (r *Recorder) RecordRun(analyzed, suspicious int, d time.Duration) {
	if r == nil {
		return
	}
	r.runs.Inc()
	r.tradesAnalyzed.Add(float64(analyzed))
	r.tradesSuspicious.Add(float64(suspicious))
	r.runDuration.Observe(d.Seconds())
}

// RecordFetchError records a failed call to the market data source.
func (r *Recorder) RecordFetchError(op string) {
	if r == nil {
		return
	}
	r.fetchErrors.WithLabelValues(op).Inc()
}

// RecordMalformedTrade records a trade rejected at ingest.
func (r *Recorder) RecordMalformedTrade() {
	if r == nil {
		return
	}
	r.malformedTrades.Inc()
}

// RecordStoreWrite records the outcome of one upsert.
func (r *Recorder) RecordStoreWrite(result string) {
	if r == nil {
		return
	}
	r.storeWrites.WithLabelValues(result).Inc()
}
