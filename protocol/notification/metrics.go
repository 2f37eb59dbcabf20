package notification

import "github.com/prometheus/client_golang/prometheus"

// protocolMetrics counts the session-level outcomes of one
// NotificationProtocol instance. A nil *protocolMetrics is valid and records
// nothing, so call sites never need to branch on whether metrics are enabled.
type protocolMetrics struct {
	opened       prometheus.Counter
	closed       prometheus.Counter
	openFailures *prometheus.CounterVec
	validations  *prometheus.CounterVec
}

func newProtocolMetrics(reg prometheus.Registerer) *protocolMetrics {
	m := &protocolMetrics{
		opened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "notifengine",
			Subsystem: "notification",
			Name:      "streams_opened_total",
			Help:      "Notification sessions that reached the open state.",
		}),
		closed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "notifengine",
			Subsystem: "notification",
			Name:      "streams_closed_total",
			Help:      "Open notification sessions that ended because their connection closed.",
		}),
		openFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "notifengine",
			Subsystem: "notification",
			Name:      "stream_open_failures_total",
			Help:      "Notification sessions that never reached the open state.",
		}, []string{"reason"}),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "notifengine",
			Subsystem: "notification",
			Name:      "validations_total",
			Help:      "Application verdicts on inbound substreams.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.opened, m.closed, m.openFailures, m.validations)
	return m
}

func (m *protocolMetrics) observeEvent(ev NotificationEvent) {
	if m == nil {
		return
	}
	switch e := ev.(type) {
	case EventNotificationStreamOpened:
		m.opened.Inc()
	case EventNotificationStreamClosed:
		m.closed.Inc()
	case EventNotificationStreamOpenFailure:
		m.openFailures.WithLabelValues(e.Error.Kind.String()).Inc()
	}
}

func (m *protocolMetrics) observeValidation(result ValidationResult) {
	if m == nil {
		return
	}
	if result == Accept {
		m.validations.WithLabelValues("accept").Inc()
	} else {
		m.validations.WithLabelValues("reject").Inc()
	}
}
