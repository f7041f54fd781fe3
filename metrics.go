package serialdevice

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "serialdevice"

// Metrics exposes Prometheus counters for a Controller. A nil *Metrics is a no-op.
type Metrics struct {
	bytesReceived    prometheus.Counter
	bytesSent        prometheus.Counter
	packetsExtracted prometheus.Counter
	openFailures     prometheus.Counter
	writeErrors      *prometheus.CounterVec
	receiveErrors    prometheus.Counter
	connected        prometheus.Gauge
	bitrate          prometheus.Gauge
}

// NewMetrics creates and registers the collectors on reg. When reg already
// holds them, for example from an earlier Controller, those are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "bytes_received_total",
			Help: "Bytes appended to the receive buffer.",
		}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "bytes_sent_total",
			Help: "Bytes the transport reported as sent.",
		}),
		packetsExtracted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "packets_extracted_total",
			Help: "Packets pushed onto the packet queue.",
		}),
		openFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "port_open_failures_total",
			Help: "Candidate ports that failed to open and were skipped.",
		}),
		writeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "write_errors_total",
			Help: "Writes that failed or were short.",
		}, []string{"kind"}),
		receiveErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "receive_errors_total",
			Help: "Asynchronous receive errors reported by the transport.",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "connected",
			Help: "1 while a connection is open.",
		}),
		bitrate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "bitrate",
			Help: "Bitrate of the open connection.",
		}),
	}

	var err error
	if m.bytesReceived, err = register(reg, m.bytesReceived); err != nil {
		return nil, err
	}
	if m.bytesSent, err = register(reg, m.bytesSent); err != nil {
		return nil, err
	}
	if m.packetsExtracted, err = register(reg, m.packetsExtracted); err != nil {
		return nil, err
	}
	if m.openFailures, err = register(reg, m.openFailures); err != nil {
		return nil, err
	}
	if m.writeErrors, err = register(reg, m.writeErrors); err != nil {
		return nil, err
	}
	if m.receiveErrors, err = register(reg, m.receiveErrors); err != nil {
		return nil, err
	}
	if m.connected, err = register(reg, m.connected); err != nil {
		return nil, err
	}
	if m.bitrate, err = register(reg, m.bitrate); err != nil {
		return nil, err
	}
	return m, nil
}

// register adds c to reg, or returns the equivalent collector reg already has
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(T); ok {
			return existing, nil
		}
	}
	return c, err
}

func (m *Metrics) received(n int) {
	if m != nil {
		m.bytesReceived.Add(float64(n))
	}
}

func (m *Metrics) sent(n int) {
	if m != nil && n > 0 {
		m.bytesSent.Add(float64(n))
	}
}

func (m *Metrics) extracted() {
	if m != nil {
		m.packetsExtracted.Inc()
	}
}

func (m *Metrics) openFailed() {
	if m != nil {
		m.openFailures.Inc()
	}
}

func (m *Metrics) writeFailed(kind string) {
	if m != nil {
		m.writeErrors.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) receiveFailed() {
	if m != nil {
		m.receiveErrors.Inc()
	}
}

func (m *Metrics) setConnected(conn *Connection) {
	if m == nil {
		return
	}
	if conn == nil {
		m.connected.Set(0)
		return
	}
	m.connected.Set(1)
	m.bitrate.Set(float64(conn.Bitrate))
}
