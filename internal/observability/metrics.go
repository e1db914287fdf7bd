package observability

import (
	"errors"

	"github.com/berfenger/healthrecorder/internal/core/domain"

	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/prometheus/client_golang/prometheus"
)

var errorKinds = map[error]string{
	domain.ErrConnect:        "connect",
	domain.ErrConnectionLost: "connection_lost",
	domain.ErrPublish:        "publish",
	domain.ErrSubscribe:      "subscribe",
	domain.ErrMergeDecode:    "decode",
	domain.ErrPersistence:    "persistence",
}

var phaseValues = map[domain.SessionPhase]float64{
	domain.PHASE_IDLE:       0,
	domain.PHASE_CONNECTING: 1,
	domain.PHASE_ACTIVE:     2,
	domain.PHASE_STOPPING:   3,
}

// SessionMetrics turns session events into prometheus series.
type SessionMetrics struct {
	ticks      prometheus.Counter
	publishes  prometheus.Counter
	recorded   *prometheus.CounterVec
	outOfRange *prometheus.CounterVec
	persisted  prometheus.Counter
	errors     *prometheus.CounterVec
	phase      prometheus.Gauge
	sessions   prometheus.Counter
}

func NewSessionMetrics(reg prometheus.Registerer) *SessionMetrics {
	m := &SessionMetrics{
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "healthrec_ticks_total",
			Help: "Publish ticks handled by an active session.",
		}),
		publishes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "healthrec_publishes_total",
			Help: "Health check messages acknowledged by the broker.",
		}),
		recorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "healthrec_readings_recorded_total",
			Help: "Readings merged into the recording machine, per sensor.",
		}, []string{"sensor"}),
		outOfRange: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "healthrec_readings_out_of_range_total",
			Help: "Merged readings outside the sensor's min/max, per sensor.",
		}, []string{"sensor"}),
		persisted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "healthrec_snapshots_persisted_total",
			Help: "Merged snapshots accepted by the persistence backend.",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "healthrec_session_errors_total",
			Help: "Asynchronous session errors, per kind.",
		}, []string{"kind"}),
		phase: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "healthrec_session_phase",
			Help: "Current session phase: 0 idle, 1 connecting, 2 active, 3 stopping.",
		}),
		sessions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "healthrec_sessions_started_total",
			Help: "Sessions that left idle.",
		}),
	}
	reg.MustRegister(m.ticks, m.publishes, m.recorded, m.outOfRange, m.persisted, m.errors, m.phase, m.sessions)
	return m
}

// Subscribe attaches the metrics to the event stream.
func (m *SessionMetrics) Subscribe(es *eventstream.EventStream) *eventstream.Subscription {
	return es.Subscribe(m.Observe)
}

func (m *SessionMetrics) Observe(evt any) {
	switch ev := evt.(type) {
	case domain.PhaseChangedEvent:
		m.phase.Set(phaseValues[ev.To])
		if ev.From == domain.PHASE_IDLE && ev.To == domain.PHASE_CONNECTING {
			m.sessions.Inc()
		}
	case domain.SessionTickEvent:
		m.ticks.Inc()
	case domain.ReadingsPublishedEvent:
		m.publishes.Inc()
	case domain.ReadingRecordedEvent:
		m.recorded.WithLabelValues(string(ev.Kind)).Inc()
		if ev.OutOfRange {
			m.outOfRange.WithLabelValues(string(ev.Kind)).Inc()
		}
	case domain.SnapshotPersistedEvent:
		m.persisted.Inc()
	case domain.SessionErrorEvent:
		m.errors.WithLabelValues(errorKind(ev.Error)).Inc()
	}
}

func errorKind(err error) string {
	for kind, label := range errorKinds {
		if errors.Is(err, kind) {
			return label
		}
	}
	return "other"
}
