package blocksync

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const SlowCallStageMiddle = "middle"
const SlowCallStageRender = "render"

type PrometheusTelemetry struct {
	middleSeconds   *prometheus.HistogramVec
	renderSeconds   *prometheus.HistogramVec
	remoteErrors    *prometheus.CounterVec
	slowCalls       *prometheus.CounterVec
	malformedEvents *prometheus.CounterVec
}

func NewPrometheusTelemetry(registerer prometheus.Registerer) *PrometheusTelemetry {
	telemetry := &PrometheusTelemetry{
		middleSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "blocksync",
			Name:      "command_middle_seconds",
			Help:      "Time from submitting a command to its response callback.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"command"}),
		renderSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "blocksync",
			Name:      "command_render_seconds",
			Help:      "Time from the response callback to the end of completion, including embedded events.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"command"}),
		remoteErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blocksync",
			Name:      "remote_errors_total",
			Help:      "Commands that the engine answered with an error code.",
		}, []string{"command", "code"}),
		slowCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blocksync",
			Name:      "slow_calls_total",
			Help:      "Commands over the slow threshold for a stage.",
		}, []string{"command", "stage"}),
		malformedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blocksync",
			Name:      "malformed_events_total",
			Help:      "Event messages skipped as malformed.",
		}, []string{"kind"}),
	}
	registerer.MustRegister(
		telemetry.middleSeconds,
		telemetry.renderSeconds,
		telemetry.remoteErrors,
		telemetry.slowCalls,
		telemetry.malformedEvents,
	)
	return telemetry
}

func (self *PrometheusTelemetry) CommandTiming(command string, middle time.Duration, render time.Duration) {
	self.middleSeconds.WithLabelValues(command).Observe(middle.Seconds())
	self.renderSeconds.WithLabelValues(command).Observe(render.Seconds())
}

func (self *PrometheusTelemetry) RemoteError(command string, err *RemoteError) {
	self.remoteErrors.WithLabelValues(command, err.Code).Inc()
}

func (self *PrometheusTelemetry) SlowCall(command string, stage string, elapsed time.Duration) {
	self.slowCalls.WithLabelValues(command, stage).Inc()
}

func (self *PrometheusTelemetry) MalformedEvent(rootId string, err *MalformedEventError) {
	self.malformedEvents.WithLabelValues(string(err.Kind)).Inc()
}
