package alertrouter

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/linnemanlabs/beacon/internal/incident"
	"github.com/linnemanlabs/beacon/internal/notify"
)

// Metrics holds Prometheus metrics for alert routing and delivery.
type Metrics struct {
	AlertsTotal      *prometheus.CounterVec
	HandleDuration   *prometheus.HistogramVec
	StoreCycles      *prometheus.CounterVec
	StoreDuration    prometheus.Histogram
	OnCallLookups    *prometheus.CounterVec
	OnCallDuration   prometheus.Histogram
	OnCallNames      prometheus.Histogram
	DeliveriesTotal  *prometheus.CounterVec
	DeliveryDuration *prometheus.HistogramVec
}

// NewMetrics registers and returns routing metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AlertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beacon_alerts_total",
			Help: "Inbound alerts by result status and state machine decision.",
		}, []string{"status", "decision"}),
		HandleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "beacon_alert_handle_duration_seconds",
			Help:    "End-to-end time to route one alert in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms .. ~10s
		}, []string{"status"}),
		StoreCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beacon_incident_store_cycles_total",
			Help: "Incident load-mutate-save cycles by outcome.",
		}, []string{"outcome"}),
		StoreDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "beacon_incident_store_cycle_duration_seconds",
			Help:    "Duration of one incident store cycle in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms .. ~2s
		}),
		OnCallLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beacon_oncall_lookups_total",
			Help: "On-call schedule lookups by outcome.",
		}, []string{"outcome"}),
		OnCallDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "beacon_oncall_lookup_duration_seconds",
			Help:    "Duration of on-call schedule lookups in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms .. ~20s
		}),
		OnCallNames: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "beacon_oncall_names",
			Help:    "Number of people returned per successful on-call lookup.",
			Buckets: prometheus.LinearBuckets(0, 1, 6), // 0 .. 5
		}),
		DeliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beacon_deliveries_total",
			Help: "Notification deliveries by channel and outcome.",
		}, []string{"channel", "outcome"}),
		DeliveryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "beacon_delivery_duration_seconds",
			Help:    "Duration of single notification deliveries in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms .. ~25s
		}, []string{"channel"}),
	}

	reg.MustRegister(
		m.AlertsTotal,
		m.HandleDuration,
		m.StoreCycles,
		m.StoreDuration,
		m.OnCallLookups,
		m.OnCallDuration,
		m.OnCallNames,
		m.DeliveriesTotal,
		m.DeliveryDuration,
	)

	return m
}

func outcome(failed bool) string {
	if failed {
		return "error"
	}
	return "success"
}

// Hooks returns router Hooks that update the corresponding metrics.
func (m *Metrics) Hooks() Hooks {
	return Hooks{
		OnResult: func(status Status, decision incident.Decision, d time.Duration) {
			dec := string(decision)
			if dec == "" {
				dec = "invalid"
			}
			m.AlertsTotal.WithLabelValues(string(status), dec).Inc()
			m.HandleDuration.WithLabelValues(string(status)).Observe(d.Seconds())
		},
		OnStoreCycle: func(err error, d time.Duration) {
			m.StoreCycles.WithLabelValues(outcome(err != nil)).Inc()
			m.StoreDuration.Observe(d.Seconds())
		},
		OnOnCallLookup: func(err error, names int, d time.Duration) {
			m.OnCallLookups.WithLabelValues(outcome(err != nil)).Inc()
			m.OnCallDuration.Observe(d.Seconds())
			if err == nil {
				m.OnCallNames.Observe(float64(names))
			}
		},
	}
}

// DeliveryHooks returns dispatcher Hooks that update delivery metrics.
func (m *Metrics) DeliveryHooks() notify.Hooks {
	return notify.Hooks{
		OnDelivery: func(channel string, ok bool, d time.Duration) {
			m.DeliveriesTotal.WithLabelValues(channel, outcome(!ok)).Inc()
			m.DeliveryDuration.WithLabelValues(channel).Observe(d.Seconds())
		},
	}
}
