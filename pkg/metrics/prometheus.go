package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	alertsTotal     *prometheus.CounterVec
	rejectionsTotal *prometheus.CounterVec
	deliveriesTotal *prometheus.CounterVec
	forwardsTotal   *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	queueDepth      prometheus.Gauge
	lastPrice       *prometheus.GaugeVec
	latency         *prometheus.HistogramVec
	deliveryLatency prometheus.Histogram
}

// New creates a recorder registered on the default registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a recorder registered on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		alertsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_alerts_total",
				Help: "Admitted alerts by strategy and kind",
			},
			[]string{"strategy", "kind"},
		),
		rejectionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_admission_rejections_total",
				Help: "Webhook requests rejected at admission",
			},
			[]string{"reason"},
		),
		deliveriesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_deliveries_total",
				Help: "Delivery attempts by result",
			},
			[]string{"result"},
		),
		forwardsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_forwards_total",
				Help: "Forwarding calls by target and result",
			},
			[]string{"target", "result"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		queueDepth: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "relay_delivery_queue_depth",
				Help: "Entries waiting in the delivery queue",
			},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "relay_last_price",
				Help: "Last price seen on the live tape",
			},
			[]string{"symbol"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		deliveryLatency: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "relay_delivery_duration_seconds",
				Help:    "Duration of outbound send calls",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
	}
}

// RecordAlert counts an admitted alert.
func (r *Recorder) RecordAlert(strategy, kind string) {
	r.alertsTotal.WithLabelValues(strategy, kind).Inc()
}

// RecordRejection counts a rejected webhook request.
func (r *Recorder) RecordRejection(reason string) {
	r.rejectionsTotal.WithLabelValues(reason).Inc()
}

// RecordForward counts a forwarding call.
func (r *Recorder) RecordForward(target string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	r.forwardsTotal.WithLabelValues(target, result).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// ObserveDelivery implements queue.Observer.
func (r *Recorder) ObserveDelivery(result string, latency time.Duration) {
	r.deliveriesTotal.WithLabelValues(result).Inc()
	if result != "dropped" {
		r.deliveryLatency.Observe(latency.Seconds())
	}
}

// SetQueueDepth implements queue.Observer.
func (r *Recorder) SetQueueDepth(depth int) {
	r.queueDepth.Set(float64(depth))
}
