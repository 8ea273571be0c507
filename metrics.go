package bridge

import "github.com/prometheus/client_golang/prometheus"

// coreMetrics groups the collectors exposed through the config surface's
// /metrics route (spec §4.10). They live on a private prometheus.Registry
// rather than the global DefaultRegisterer, keeping the core free of global
// mutable state beyond the one radio singleton §5 already mandates.
type coreMetrics struct {
	registry *prometheus.Registry

	linkQuality    prometheus.Gauge
	channel        prometheus.Gauge
	hopsTotal      prometheus.Counter
	framesDecoded  *prometheus.CounterVec
	framesDropped  *prometheus.CounterVec
}

func newCoreMetrics(reg *prometheus.Registry) *coreMetrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &coreMetrics{
		registry: reg,
		linkQuality: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rcbridge",
			Name:      "link_quality",
			Help:      "Sender-side exponentially-weighted ack-success estimate, in [0,1].",
		}),
		channel: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rcbridge",
			Name:      "channel",
			Help:      "Receiver-side current radio channel.",
		}),
		hopsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rcbridge",
			Name:      "hops_total",
			Help:      "Number of committed channel changes.",
		}),
		framesDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rcbridge",
			Name:      "frames_decoded_total",
			Help:      "Number of successfully decoded frames, by tag.",
		}, []string{"tag"}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rcbridge",
			Name:      "frames_dropped_total",
			Help:      "Number of frames dropped at the codec/dispatcher, by reason.",
		}, []string{"reason"}),
	}
	m.linkQuality.Set(1.0)
	m.channel.Set(InitChannel)
	reg.MustRegister(m.linkQuality, m.channel, m.hopsTotal, m.framesDecoded, m.framesDropped)
	return m
}

// Registry exposes the private prometheus.Registry backing this core's
// metrics, so a config surface (internal/configsrv) can wire it to an HTTP
// handler without the core depending on net/http at all.
func (c *BridgeCore) Registry() *prometheus.Registry { return c.metrics.registry }
