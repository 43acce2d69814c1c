package recorder

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains Prometheus metrics for recording sessions
type Metrics struct {
	sessionsStarted  prometheus.Counter
	sessionsFinished *prometheus.CounterVec
	faults           *prometheus.CounterVec
	bytesWritten     prometheus.Counter
	droppedHalves    prometheus.Counter
	overrunBytes     prometheus.Counter
	state            prometheus.Gauge

	collectors []prometheus.Collector
}

// NewMetrics creates the recorder metrics and registers them on reg
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{}
	m.initMetrics()
	if reg != nil {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.sessionsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wavrecorder_sessions_started_total",
		Help: "Total number of recording sessions started",
	})

	m.sessionsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wavrecorder_sessions_finished_total",
			Help: "Total number of recording sessions finalized, by result",
		},
		[]string{"result"},
	)

	m.faults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wavrecorder_faults_total",
			Help: "Total number of faults that moved a session to the error state",
		},
		[]string{"kind"},
	)

	m.bytesWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wavrecorder_pcm_bytes_written_total",
		Help: "Total PCM bytes appended to recordings",
	})

	m.droppedHalves = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wavrecorder_dropped_halves_total",
		Help: "Buffer halves lost because their ready event was overwritten",
	})

	m.overrunBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wavrecorder_overrun_bytes_total",
		Help: "Captured bytes discarded because the consumer still held the next half",
	})

	m.state = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wavrecorder_state",
		Help: "Current recorder state (0=stopped, 1=recording, 2=paused, 3=error)",
	})

	m.collectors = []prometheus.Collector{
		m.sessionsStarted,
		m.sessionsFinished,
		m.faults,
		m.bytesWritten,
		m.droppedHalves,
		m.overrunBytes,
		m.state,
	}
}

// Describe implements prometheus.Collector
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors {
		c.Describe(ch)
	}
}

// Collect implements prometheus.Collector
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors {
		c.Collect(ch)
	}
}

// The recorder calls these on a possibly nil *Metrics

func (m *Metrics) sessionStarted() {
	if m == nil {
		return
	}
	m.sessionsStarted.Inc()
}

func (m *Metrics) sessionFinished(err error, written uint64, dropped, overrun uint64) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = kindLabel(KindOf(err))
	}
	m.sessionsFinished.WithLabelValues(result).Inc()
	m.bytesWritten.Add(float64(written))
	m.droppedHalves.Add(float64(dropped))
	m.overrunBytes.Add(float64(overrun))
}

func (m *Metrics) fault(kind error) {
	if m == nil {
		return
	}
	m.faults.WithLabelValues(kindLabel(kind)).Inc()
}

func (m *Metrics) setState(s State) {
	if m == nil {
		return
	}
	m.state.Set(float64(s))
}
