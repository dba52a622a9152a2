package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics is pure observability: it counts protocol outcomes and times the
// outbound agent call. None of it changes protocol behavior.
type metrics struct {
	requestsTotal    *prometheus.CounterVec
	agentCallLatency prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pcoip_broker_requests_total",
			Help: "Count of broker protocol requests by outcome.",
		}, []string{"outcome"}),
		agentCallLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "pcoip_broker_agent_call_seconds",
			Help:    "Latency of outbound launch-session calls to workstation agents.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// outcomes recorded per request.
const (
	outcomeHello             = "hello"
	outcomeAuthSuccess       = "auth_success"
	outcomeAuthFailed        = "auth_failed"
	outcomeResourceList      = "resource_list"
	outcomeAllocateSuccess   = "allocate_success"
	outcomeAllocateFailed    = "allocate_failed"
	outcomeBye               = "bye"
	outcomeBadMessage        = "bad_message"
	outcomeProtocolViolation = "protocol_violation"
	outcomeInternalBug       = "internal_bug"
)

func (m *metrics) observeAgentCall(d time.Duration) {
	m.agentCallLatency.Observe(d.Seconds())
}
