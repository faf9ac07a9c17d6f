// Package metrics holds the prometheus collectors of the recorder.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "p2precorder"

var (
	ExchangeUpdates = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "signaling",
		Name:      "exchange_updates_total",
		Help:      "Number of times the local exchange text was republished.",
	}, []string{"role"})

	SignalingFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "signaling",
		Name:      "failures_total",
		Help:      "Signaling failures by kind.",
	}, []string{"kind"})

	StateTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "signaling",
		Name:      "state_transitions_total",
		Help:      "Session state transitions by target state.",
	}, []string{"state"})

	RemoteTracks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "media",
		Name:      "remote_tracks_total",
		Help:      "Remote tracks received from peers.",
	})

	RecordingChunks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "capture",
		Name:      "chunks_total",
		Help:      "Encoded chunks appended to recording sessions.",
	})

	RecordingBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "capture",
		Name:      "bytes_total",
		Help:      "Encoded bytes appended to recording sessions.",
	})

	Recordings = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "capture",
		Name:      "recordings_total",
		Help:      "Recorder operations by result.",
	}, []string{"result"})
)

func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		ExchangeUpdates,
		SignalingFailures,
		StateTransitions,
		RemoteTracks,
		RecordingChunks,
		RecordingBytes,
		Recordings,
	)
}
