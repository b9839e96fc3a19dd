// Package metrics exposes vending operation counters and HTTP latency to Prometheus.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/MarkoPoloResearchLab/vending/pkg/vending"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "vending"
	kindNone  = "none"
)

// Recorder implements vending.OperationLogger and records HTTP request latency.
type Recorder struct {
	operations  *prometheus.CounterVec
	changeCoins *prometheus.CounterVec
	requests    *prometheus.HistogramVec
	gatherer    prometheus.Gatherer
}

// New registers the collectors on a fresh registry.
func New() (*Recorder, error) {
	registry := prometheus.NewRegistry()
	return NewWithRegistry(registry, registry)
}

// NewWithRegistry registers the collectors on registerer and serves gatherer.
func NewWithRegistry(registerer prometheus.Registerer, gatherer prometheus.Gatherer) (*Recorder, error) {
	recorder := &Recorder{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Vending operations by outcome.",
		}, []string{"operation", "status", "kind"}),
		changeCoins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "change_coins_total",
			Help:      "Coins returned as purchase change, by denomination.",
		}, []string{"denomination"}),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "code"}),
		gatherer: gatherer,
	}
	for _, collector := range []prometheus.Collector{recorder.operations, recorder.changeCoins, recorder.requests} {
		if err := registerer.Register(collector); err != nil {
			return nil, err
		}
	}
	return recorder, nil
}

func (recorder *Recorder) LogOperation(_ context.Context, entry vending.OperationLog) {
	kind := kindNone
	if entry.Error != nil {
		kind = string(vending.KindOf(entry.Error))
	}
	recorder.operations.WithLabelValues(entry.Operation, entry.Status, kind).Inc()
	for _, coin := range entry.Coins {
		recorder.changeCoins.WithLabelValues(strconv.Itoa(coin.Int())).Inc()
	}
}

// ObserveRequest records one HTTP request. route is the matched pattern, not the raw path.
func (recorder *Recorder) ObserveRequest(method string, route string, code int, elapsed time.Duration) {
	recorder.requests.WithLabelValues(method, route, strconv.Itoa(code)).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (recorder *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(recorder.gatherer, promhttp.HandlerOpts{})
}
