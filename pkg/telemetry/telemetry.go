// Package telemetry exposes the process-wide Prometheus gauges and
// counters backing §5's atomic counters and §6's events-channel
// kbit/s fields, grounded on the madpsy-ka9q_ubersdr sibling SDR
// receiver's dependency on prometheus/client_golang.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the set of metrics the dispatcher and transport update
// every frame / every second.
type Registry struct {
	BytesSentTotal   prometheus.Counter
	AudioKbits       prometheus.Gauge
	WaterfallKbits   prometheus.Gauge
	AudioClients     prometheus.Gauge
	WaterfallClients prometheus.Gauge
	FramesDropped    *prometheus.CounterVec // labeled by reason
	FramesSent       *prometheus.CounterVec // labeled by stream kind
}

// NewRegistry builds and registers all metrics against reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	t := &Registry{
		BytesSentTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sdraudio_bytes_sent_total",
			Help: "Total bytes sent to all transport connections.",
		}),
		AudioKbits: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sdraudio_audio_kbits_per_sec",
			Help: "Current aggregate audio outbound bitrate in kbit/s.",
		}),
		WaterfallKbits: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sdraudio_waterfall_kbits_per_sec",
			Help: "Current aggregate waterfall outbound bitrate in kbit/s.",
		}),
		AudioClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sdraudio_audio_clients",
			Help: "Number of connected audio subscribers.",
		}),
		WaterfallClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sdraudio_waterfall_clients",
			Help: "Number of connected waterfall subscribers.",
		}),
		FramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sdraudio_frames_dropped_total",
			Help: "Frames dropped before delivery, by reason.",
		}, []string{"reason"}),
		FramesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sdraudio_frames_sent_total",
			Help: "Frames admitted past throttling and sent, by stream kind.",
		}, []string{"kind"}),
	}

	reg.MustRegister(t.BytesSentTotal, t.AudioKbits, t.WaterfallKbits,
		t.AudioClients, t.WaterfallClients, t.FramesDropped, t.FramesSent)
	return t
}
