// Package metrics provides Prometheus metrics for producer sessions and the
// listener.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "framelink"

// States reported by the session_state gauge.
var sessionStates = []string{"idle", "connecting", "streaming", "stopping", "error"}

var (
	framesSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "frames_sent_total",
		Help:      "Compressed frames written to the consumer",
	})

	bytesSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "bytes_sent_total",
		Help:      "Bytes written to the consumer, length prefixes included",
	})

	encodeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "encode_failures_total",
		Help:      "Frames dropped because they could not be encoded",
	})

	sourceDrops = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "source_dropped_frames",
		Help:      "Frames overwritten in the capture slot during the current session",
	})

	sessionFPS = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "fps",
		Help:      "Frames sent per second over the last window",
	})

	sessionState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "state",
		Help:      "1 for the current session state, 0 otherwise",
	}, []string{"state"})

	sessionsEnded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "ended_total",
		Help:      "Sessions ended, by reason (stopped, restarted or an error kind)",
	}, []string{"reason"})

	// Local cache for API access.
	snapshot   SessionSnapshot
	snapshotMu sync.RWMutex
)

// SessionSnapshot holds the current values for the active session.
type SessionSnapshot struct {
	Frames         uint64  `json:"frames"`
	Bytes          uint64  `json:"bytes"`
	EncodeFailures uint64  `json:"encode_failures"`
	Drops          uint64  `json:"drops"`
	FPS            float64 `json:"fps"`
}

// RecordFrameSent counts one frame of n bytes on the wire.
func RecordFrameSent(n int) {
	framesSent.Inc()
	bytesSent.Add(float64(n))
	updateSnapshot(func(s *SessionSnapshot) {
		s.Frames++
		s.Bytes += uint64(n)
	})
}

// RecordBytesSent counts bytes that are not frames, such as metadata.
func RecordBytesSent(n int) {
	bytesSent.Add(float64(n))
	updateSnapshot(func(s *SessionSnapshot) { s.Bytes += uint64(n) })
}

// RecordEncodeFailure counts a frame dropped by the encoder.
func RecordEncodeFailure() {
	encodeFailures.Inc()
	updateSnapshot(func(s *SessionSnapshot) { s.EncodeFailures++ })
}

// SetSessionFPS publishes the latest rate sample and source drop count.
func SetSessionFPS(fps float64, drops uint64) {
	sessionFPS.Set(fps)
	sourceDrops.Set(float64(drops))
	updateSnapshot(func(s *SessionSnapshot) {
		s.FPS = fps
		s.Drops = drops
	})
}

// SetSessionState marks state as current.
func SetSessionState(state string) {
	for _, s := range sessionStates {
		v := 0.0
		if s == state {
			v = 1
		}
		sessionState.WithLabelValues(s).Set(v)
	}
}

// RecordSessionEnded counts a finished session and clears per-session values.
func RecordSessionEnded(reason string) {
	sessionsEnded.WithLabelValues(reason).Inc()
	ResetSession()
}

// ResetSession clears the per-session gauges and snapshot.
func ResetSession() {
	sessionFPS.Set(0)
	sourceDrops.Set(0)
	snapshotMu.Lock()
	snapshot = SessionSnapshot{}
	snapshotMu.Unlock()
}

// GetSessionSnapshot returns a copy of the current session values.
func GetSessionSnapshot() SessionSnapshot {
	snapshotMu.RLock()
	defer snapshotMu.RUnlock()
	return snapshot
}

func updateSnapshot(update func(*SessionSnapshot)) {
	snapshotMu.Lock()
	defer snapshotMu.Unlock()
	update(&snapshot)
}
