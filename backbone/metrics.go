package backbone

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/vx-labs/backbone-router/bbr"
)

const namespace = "bbr"

// Label values
const (
	operationAdd    = "add"
	operationRemove = "remove"
	resultOk        = "ok"
	resultError     = "error"
)

type metrics struct {
	state            prometheus.Gauge
	sequenceNumber   prometheus.Gauge
	transitions      *prometheus.CounterVec
	registrations    *prometheus.CounterVec
	primaryServer16  prometheus.Gauge
	evaluations prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state",
			Help:      "Local Backbone Router state (0 disabled, 1 secondary, 2 primary).",
		}),
		sequenceNumber: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sequence_number",
			Help:      "Sequence number of the local Backbone Router configuration.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Total local Backbone Router state transitions, by destination state.",
		}, []string{"state"}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "service_registrations_total",
			Help:      "Total Backbone Router service publications and withdrawals.",
		}, []string{"operation", "result"}),
		primaryServer16: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "primary_server16",
			Help:      "RLOC16 of the observed Primary Backbone Router (0xfffe when none).",
		}),
		evaluations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "network_data_evaluations_total",
			Help:      "Total evaluations of the network data.",
		}),
	}
	for _, c := range []prometheus.Collector{
		m.state, m.sequenceNumber, m.transitions, m.registrations, m.primaryServer16, m.evaluations,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	m.primaryServer16.Set(float64(bbr.ShortAddrInvalid))
	return m, nil
}

func (m *metrics) observeState(state bbr.State) {
	m.state.Set(float64(state))
	m.transitions.WithLabelValues(state.String()).Inc()
}

func (m *metrics) observeRegistration(operation string, err error) {
	result := resultOk
	if err != nil {
		result = resultError
	}
	m.registrations.WithLabelValues(operation, result).Inc()
}
