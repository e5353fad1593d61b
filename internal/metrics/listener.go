package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	listenerFrames = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "listener",
		Name:      "frames_received_total",
		Help:      "Frames read from producers",
	})

	listenerSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "listener",
		Name:      "frames_skipped_total",
		Help:      "Messages discarded by the listener, by reason",
	}, []string{"reason"})

	listenerFPS = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "listener",
		Name:      "fps",
		Help:      "Frames received per second over the last window",
	})

	listenerLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "listener",
		Name:      "frame_latency_seconds",
		Help:      "Time from a frame being received to it being consumed",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})

	listenerConnections = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "listener",
		Name:      "connections_total",
		Help:      "Producer connections accepted",
	})
)

// RecordListenerFrame counts one received frame.
func RecordListenerFrame() {
	listenerFrames.Inc()
}

// RecordListenerSkip counts a discarded message.
func RecordListenerSkip(reason string) {
	listenerSkipped.WithLabelValues(reason).Inc()
}

// SetListenerFPS publishes the latest listener rate sample.
func SetListenerFPS(fps float64) {
	listenerFPS.Set(fps)
}

// ObserveListenerLatency records how long a frame waited before consumption.
func ObserveListenerLatency(d time.Duration) {
	listenerLatency.Observe(d.Seconds())
}

// RecordListenerConnection counts an accepted producer.
func RecordListenerConnection() {
	listenerConnections.Inc()
}
