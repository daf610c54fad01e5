// Package metrics exports mission snapshots as Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"sync"

	"mixer-line/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mixer"

type Recorder struct {
	registry *prometheus.Registry

	tankVolume     prometheus.Gauge
	reservoirs     *prometheus.GaugeVec
	remainingTime  prometheus.Gauge
	outputFlow     prometheus.Gauge
	armed          prometheus.Gauge
	mixerOn        prometheus.Gauge
	replenishments prometheus.Counter
	failures       *prometheus.CounterVec

	mutex     sync.Mutex
	lastCount int
	lastPhase models.Phase
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		tankVolume: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tank_volume",
			Help:      "Current volume in the mixing tank.",
		}),
		reservoirs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reservoir_quantity",
			Help:      "Quantity left in each raw-material reservoir.",
		}, []string{"reservoir"}),
		remainingTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "remaining_seconds",
			Help:      "Seconds left before the mission ends.",
		}),
		outputFlow: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "output_flow",
			Help:      "Volume drained from the tank per second.",
		}),
		armed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "armed",
			Help:      "1 while the mission is armed.",
		}),
		mixerOn: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mixer_on",
			Help:      "1 on the tick a replenishment happened.",
		}),
		replenishments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replenishments_total",
			Help:      "Successful tank replenishments across missions.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mission_failures_total",
			Help:      "Missions that ended on a fatal condition, by phase.",
		}, []string{"phase"}),
	}

	r.registry.MustRegister(
		r.tankVolume,
		r.reservoirs,
		r.remainingTime,
		r.outputFlow,
		r.armed,
		r.mixerOn,
		r.replenishments,
		r.failures,
	)
	return r
}

// Observe updates the metrics from a published snapshot. It is meant to be
// registered as a runner snapshot callback.
func (r *Recorder) Observe(s models.Snapshot) {
	r.tankVolume.Set(s.CurrentVolume)
	for i, q := range s.Reservoirs {
		r.reservoirs.WithLabelValues(strconv.Itoa(i + 1)).Set(q)
	}
	r.remainingTime.Set(s.RemainingTime)
	r.outputFlow.Set(s.OutputFlow)
	r.armed.Set(boolToFloat(s.Active))
	r.mixerOn.Set(boolToFloat(s.MixerActive))

	r.mutex.Lock()
	defer r.mutex.Unlock()

	// The snapshot count restarts with every mission.
	if s.Replenishments > r.lastCount {
		r.replenishments.Add(float64(s.Replenishments - r.lastCount))
	}
	r.lastCount = s.Replenishments

	if s.Phase.Failed() && s.Phase != r.lastPhase {
		r.failures.WithLabelValues(string(s.Phase)).Inc()
	}
	r.lastPhase = s.Phase
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
