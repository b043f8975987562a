package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cart_local"

// Metrics records cart store activity in prometheus.
type Metrics struct {
	registry      *prometheus.Registry
	mutations     *prometheus.CounterVec
	storageErrors *prometheus.CounterVec
	syncs         *prometheus.CounterVec
	items         prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Cart mutations by operation.",
		}, []string{"op"}),
		storageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_errors_total",
			Help:      "Storage failures by operation.",
		}, []string{"op"}),
		syncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_total",
			Help:      "Cart sync attempts by result.",
		}, []string{"result"}),
		items: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "items",
			Help:      "Units currently in the local cart.",
		}),
	}
	m.registry.MustRegister(m.mutations, m.storageErrors, m.syncs, m.items)
	return m
}

func (m *Metrics) ObserveMutation(op string) {
	m.mutations.WithLabelValues(op).Inc()
}

func (m *Metrics) ObserveStorageError(op string) {
	m.storageErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) ObserveSync(result string) {
	m.syncs.WithLabelValues(result).Inc()
}

func (m *Metrics) SetItems(n int) {
	m.items.Set(float64(n))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
