// Package metrics counts propagation outcomes.
//
// Recorder is what the propagation layer reports to. Prometheus implements
// it with counters registered on a caller-supplied registry; Nop discards
// everything and is the default.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/mixsync/internal/change"
	"github.com/roach88/mixsync/internal/wire"
)

// Recorder receives per-record and per-message outcomes.
type Recorder interface {
	// Sent: a message was handed to the transport.
	Sent(t wire.MessageType)
	// Skipped: an outbound record failed to encode and was not sent.
	Skipped(kind change.Kind)
	// Applied: an inbound message was applied to the store.
	Applied(t wire.MessageType)
	// Discarded: an inbound message failed and was dropped.
	Discarded(t wire.MessageType, code change.ErrorCode)
}

// HubRecorder receives relay events.
type HubRecorder interface {
	Relayed(t wire.MessageType, fanout int)
	PeerConnected()
	PeerDisconnected()
}

// Nop records nothing.
type Nop struct{}

func (Nop) Sent(wire.MessageType)                        {}
func (Nop) Skipped(change.Kind)                          {}
func (Nop) Applied(wire.MessageType)                     {}
func (Nop) Discarded(wire.MessageType, change.ErrorCode) {}
func (Nop) Relayed(wire.MessageType, int)                {}
func (Nop) PeerConnected()                               {}
func (Nop) PeerDisconnected()                            {}

// Prometheus implements Recorder and HubRecorder with Prometheus counters.
type Prometheus struct {
	sent      *prometheus.CounterVec
	skipped   *prometheus.CounterVec
	applied   *prometheus.CounterVec
	discarded *prometheus.CounterVec
	relayed   *prometheus.CounterVec
	peers     prometheus.Gauge
}

// NewPrometheus creates the collectors and registers them on reg.
// Panics if they are already registered there.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mixsync",
			Name:      "messages_sent_total",
			Help:      "Messages handed to the transport, by message type.",
		}, []string{"type"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mixsync",
			Name:      "records_skipped_total",
			Help:      "Outbound records dropped because they failed to encode, by kind.",
		}, []string{"kind"}),
		applied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mixsync",
			Name:      "messages_applied_total",
			Help:      "Inbound messages applied to the local store, by message type.",
		}, []string{"type"}),
		discarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mixsync",
			Name:      "messages_discarded_total",
			Help:      "Inbound messages dropped after a decoding or application failure.",
		}, []string{"type", "code"}),
		relayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mixsync",
			Name:      "relay_messages_total",
			Help:      "Messages relayed by the hub, by message type.",
		}, []string{"type"}),
		peers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mixsync",
			Name:      "relay_peers",
			Help:      "Peers currently connected to the hub.",
		}),
	}
	reg.MustRegister(p.sent, p.skipped, p.applied, p.discarded, p.relayed, p.peers)
	return p
}

func (p *Prometheus) Sent(t wire.MessageType) {
	p.sent.WithLabelValues(t.String()).Inc()
}

func (p *Prometheus) Skipped(kind change.Kind) {
	p.skipped.WithLabelValues(kind.String()).Inc()
}

func (p *Prometheus) Applied(t wire.MessageType) {
	p.applied.WithLabelValues(t.String()).Inc()
}

func (p *Prometheus) Discarded(t wire.MessageType, code change.ErrorCode) {
	p.discarded.WithLabelValues(t.String(), string(code)).Inc()
}

func (p *Prometheus) Relayed(t wire.MessageType, fanout int) {
	p.relayed.WithLabelValues(t.String()).Add(float64(fanout))
}

func (p *Prometheus) PeerConnected() { p.peers.Inc() }

func (p *Prometheus) PeerDisconnected() { p.peers.Dec() }

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
