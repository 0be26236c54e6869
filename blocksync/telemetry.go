package blocksync

import (
	"time"
)

// Advisory per-call records. Never affects correctness.
type Telemetry interface {
	// middle is submit to callback, render is callback to completion
	CommandTiming(command string, middle time.Duration, render time.Duration)
	RemoteError(command string, err *RemoteError)
	SlowCall(command string, stage string, elapsed time.Duration)
	MalformedEvent(rootId string, err *MalformedEventError)
}

type NoopTelemetry struct {
}

func NewNoopTelemetry() *NoopTelemetry {
	return &NoopTelemetry{}
}

func (self *NoopTelemetry) CommandTiming(command string, middle time.Duration, render time.Duration) {
}

func (self *NoopTelemetry) RemoteError(command string, err *RemoteError) {
}

func (self *NoopTelemetry) SlowCall(command string, stage string, elapsed time.Duration) {
}

func (self *NoopTelemetry) MalformedEvent(rootId string, err *MalformedEventError) {
}
