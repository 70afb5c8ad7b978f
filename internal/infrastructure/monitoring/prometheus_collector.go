package monitoring

import (
	"devstream/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector implements ports.MetricsRecorder.
type PrometheusCollector struct {
	connectionsActive prometheus.Gauge
	connectionsTotal  prometheus.Counter
	streamsActive     prometheus.Gauge
	streamsTotal      prometheus.Counter

	roomViewers      *prometheus.GaugeVec
	signalsRelayed   *prometheus.CounterVec
	chatMessages     *prometheus.CounterVec
	moderationEvents *prometheus.CounterVec
	socketErrors     *prometheus.CounterVec
}

// NewPrometheusCollector registers the relay metrics with reg. Pass
// prometheus.DefaultRegisterer to expose them on the default handler.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	factory := promauto.With(reg)

	return &PrometheusCollector{
		connectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "devstream_connections_active",
			Help: "Number of open websocket connections",
		}),

		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "devstream_connections_total",
			Help: "Total number of websocket connections accepted",
		}),

		streamsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "devstream_streams_active",
			Help: "Number of live broadcast rooms",
		}),

		streamsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "devstream_streams_started_total",
			Help: "Total number of broadcast rooms started",
		}),

		roomViewers: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "devstream_room_viewers",
			Help: "Number of viewers in each room",
		}, []string{"room_id"}),

		signalsRelayed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "devstream_signals_relayed_total",
			Help: "Signaling messages forwarded between peers",
		}, []string{"kind"}),

		chatMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "devstream_chat_messages_total",
			Help: "Chat messages accepted into the channel",
		}, []string{"type"}),

		moderationEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "devstream_moderation_actions_total",
			Help: "Moderation requests by action and outcome",
		}, []string{"action", "outcome"}),

		socketErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "devstream_socket_errors_total",
			Help: "Error replies sent to clients by code",
		}, []string{"code"}),
	}
}

func (p *PrometheusCollector) ConnectionOpened() {
	p.connectionsActive.Inc()
	p.connectionsTotal.Inc()
}

func (p *PrometheusCollector) ConnectionClosed() {
	p.connectionsActive.Dec()
}

func (p *PrometheusCollector) StreamStarted(room domain.RoomID) {
	p.streamsActive.Inc()
	p.streamsTotal.Inc()
	p.roomViewers.WithLabelValues(string(room)).Set(0)
}

func (p *PrometheusCollector) StreamEnded(room domain.RoomID) {
	p.streamsActive.Dec()
	p.roomViewers.DeleteLabelValues(string(room))
}

func (p *PrometheusCollector) ViewerJoined(room domain.RoomID) {
	p.roomViewers.WithLabelValues(string(room)).Inc()
}

func (p *PrometheusCollector) ViewerLeft(room domain.RoomID) {
	p.roomViewers.WithLabelValues(string(room)).Dec()
}

func (p *PrometheusCollector) SignalRelayed(kind domain.SignalKind) {
	p.signalsRelayed.WithLabelValues(string(kind)).Inc()
}

func (p *PrometheusCollector) ChatMessageAccepted(kind domain.MessageType) {
	p.chatMessages.WithLabelValues(string(kind)).Inc()
}

// ModerationAction folds client-supplied action names outside the known set
// into "unknown" to keep label cardinality bounded.
func (p *PrometheusCollector) ModerationAction(action domain.ModAction, outcome string) {
	switch action {
	case domain.ModActionTimeout, domain.ModActionBan, domain.ModActionDelete:
	default:
		action = "unknown"
	}
	p.moderationEvents.WithLabelValues(string(action), outcome).Inc()
}

func (p *PrometheusCollector) SocketError(code string) {
	p.socketErrors.WithLabelValues(code).Inc()
}
