package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements both the domain repository Metrics and the engine
// Metrics interfaces using Prometheus.
type Recorder struct {
	messagesSent *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	tradesTotal  *prometheus.CounterVec
	fillVolume   *prometheus.CounterVec
	hiya         *prometheus.GaugeVec
	reserves     *prometheus.GaugeVec
	poolReserves *prometheus.GaugeVec
	blockHeight  *prometheus.GaugeVec
	latency      *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		messagesSent: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rollswap_messages_sent_total",
				Help: "Total number of settled trades sent to a backend",
			},
			[]string{"backend", "reserve"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rollswap_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		tradesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rollswap_trades_total",
				Help: "Trades by side and outcome",
			},
			[]string{"side", "result"},
		),
		fillVolume: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rollswap_fill_volume_total",
				Help: "Fill volume by route (rollover, reserve, curve)",
			},
			[]string{"route"},
		),
		hiya: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rollswap_hiya",
				Help: "Effective HIYA rate per reserve",
			},
			[]string{"reserve"},
		),
		reserves: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rollswap_reserve_balance",
				Help: "Internal DS reserve balance per pool",
			},
			[]string{"reserve", "pool"},
		),
		poolReserves: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rollswap_venue_pool_reserve",
				Help: "External venue pool balance per asset",
			},
			[]string{"venue", "asset"},
		),
		blockHeight: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rollswap_venue_block_height",
				Help: "Chain head block reported by the venue feed",
			},
			[]string{"venue"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rollswap_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordMessageSent records a settled trade sent to a backend.
func (r *Recorder) RecordMessageSent(backend, reserve string) {
	r.messagesSent.WithLabelValues(backend, reserve).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordTrade records a trade attempt outcome.
func (r *Recorder) RecordTrade(side, result string) {
	r.tradesTotal.WithLabelValues(side, result).Inc()
}

// RecordFill records fill volume for a waterfall route.
func (r *Recorder) RecordFill(route string, amount float64) {
	r.fillVolume.WithLabelValues(route).Add(amount)
}

// RecordHiya records the effective HIYA rate for a reserve.
func (r *Recorder) RecordHiya(reserve string, rate float64) {
	r.hiya.WithLabelValues(reserve).Set(rate)
}

// RecordReserve records an internal pool balance.
func (r *Recorder) RecordReserve(reserve, pool string, balance float64) {
	r.reserves.WithLabelValues(reserve, pool).Set(balance)
}

// RecordPoolReserve records an external venue pool balance.
func (r *Recorder) RecordPoolReserve(venue, asset string, qty float64) {
	r.poolReserves.WithLabelValues(venue, asset).Set(qty)
}

// RecordBlockHeight records the chain head seen on the venue feed.
func (r *Recorder) RecordBlockHeight(venue string, height uint64) {
	r.blockHeight.WithLabelValues(venue).Set(float64(height))
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
