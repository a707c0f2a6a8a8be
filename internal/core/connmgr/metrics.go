package connmgr

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsNamespace 指标命名空间
const MetricsNamespace = "comms"

// 入站拒绝原因
const (
	rejectTestAddress    = "test_address"
	rejectRateLimited    = "rate_limited"
	rejectTooManyInbound = "too_many_inbound"
	rejectLivenessFull   = "liveness_full"
	rejectWireByte       = "wire_byte"
)

// Metrics 连接管理器指标
//
//	comms_connmgr_dial_attempts_total{result="success|failure"}
//	comms_connmgr_dials_total{result="success|failure|cancelled"}
//	comms_connmgr_inbound_rejected_total{reason="..."}
//	comms_connmgr_inbound_failed_total
//	comms_connmgr_active_connections{direction="inbound|outbound"}
//	comms_connmgr_liveness_sessions
//	comms_connmgr_handshake_duration_seconds{direction="inbound|outbound"}
type Metrics struct {
	dialAttempts      *prometheus.CounterVec
	dials             *prometheus.CounterVec
	inboundRejected   *prometheus.CounterVec
	inboundFailed     prometheus.Counter
	activeConnections *prometheus.GaugeVec
	livenessSessions  prometheus.Gauge
	handshakeDuration *prometheus.HistogramVec
}

// NewMetrics 创建指标并注册到 registerer
//
// registerer 为 nil 时不注册，指标仍可在测试中读取。
func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		dialAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: "connmgr",
			Name:      "dial_attempts_total",
			Help:      "Total number of outbound connect attempts by result",
		}, []string{"result"}),
		dials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: "connmgr",
			Name:      "dials_total",
			Help:      "Total number of completed dial requests by outcome",
		}, []string{"result"}),
		inboundRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: "connmgr",
			Name:      "inbound_rejected_total",
			Help:      "Total number of inbound connections dropped before handshake",
		}, []string{"reason"}),
		inboundFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: "connmgr",
			Name:      "inbound_failed_total",
			Help:      "Total number of inbound handshakes that failed or timed out",
		}),
		activeConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Subsystem: "connmgr",
			Name:      "active_connections",
			Help:      "Number of established peer connections",
		}, []string{"direction"}),
		livenessSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Subsystem: "connmgr",
			Name:      "liveness_sessions",
			Help:      "Number of running liveness sessions",
		}),
		handshakeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Subsystem: "connmgr",
			Name:      "handshake_duration_seconds",
			Help:      "Duration of successful connection upgrades",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}, []string{"direction"}),
	}

	if registerer != nil {
		for _, c := range []prometheus.Collector{
			m.dialAttempts, m.dials, m.inboundRejected, m.inboundFailed,
			m.activeConnections, m.livenessSessions, m.handshakeDuration,
		} {
			if err := registerer.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func newUnregisteredMetrics() *Metrics {
	m, _ := NewMetrics(nil)
	return m
}

func resultLabel(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
