package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments the engine. Passing a nil registerer to NewMetrics
// yields working but unregistered collectors, which tests rely on.
type Metrics struct {
	Connected         prometheus.Gauge
	ReconnectAttempts prometheus.Gauge
	ConnectsTotal     prometheus.Counter
	DisconnectsTotal  prometheus.Counter
	GiveUpsTotal      prometheus.Counter
	MessagesReceived  *prometheus.CounterVec
	MessagesSent      *prometheus.CounterVec
	DispatchErrors    *prometheus.CounterVec
	EventsPushed      prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Connected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "hubcast",
			Name:      "connected",
			Help:      "1 while the relay connection is established",
		}),
		ReconnectAttempts: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "hubcast",
			Name:      "reconnect_attempts",
			Help:      "Consecutive failed connection attempts",
		}),
		ConnectsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "hubcast",
			Name:      "connects_total",
			Help:      "Successful relay connections",
		}),
		DisconnectsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "hubcast",
			Name:      "disconnects_total",
			Help:      "Connection losses, clean or failed",
		}),
		GiveUpsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "hubcast",
			Name:      "give_ups_total",
			Help:      "Times the supervisor exhausted its retries",
		}),
		MessagesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hubcast",
			Name:      "messages_received_total",
			Help:      "Inbound protocol messages by type",
		}, []string{"type"}),
		MessagesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hubcast",
			Name:      "messages_sent_total",
			Help:      "Outbound protocol messages by type",
		}, []string{"type"}),
		DispatchErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hubcast",
			Name:      "dispatch_errors_total",
			Help:      "Error responses by protocol error code",
		}, []string{"code"}),
		EventsPushed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "hubcast",
			Name:      "events_pushed_total",
			Help:      "Characteristic change events pushed to the relay",
		}),
	}
}
