package blocksync

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"
)

// `response` is nil when the response could not be received or decoded.
// `err` is a `*RemoteError` when the engine reported a failure, in which case `response` is set.
type CompleteFunction func(response *Response, err error)

type CompleteResult struct {
	Response *Response
	Error    error
}

// for callers that want to wait on the completion
func NewBlockingCompleteCallback() (CompleteFunction, chan CompleteResult) {
	c := make(chan CompleteResult, 1)
	callback := func(response *Response, err error) {
		c <- CompleteResult{
			Response: response,
			Error:    err,
		}
	}
	return callback, c
}

type DispatcherSettings struct {
	// advisory thresholds reported to telemetry
	SlowMiddleTime time.Duration
	SlowRenderTime time.Duration
	ExtraCommands  []string
}

func DefaultDispatcherSettings() *DispatcherSettings {
	return &DispatcherSettings{
		SlowMiddleTime: 3 * time.Second,
		SlowRenderTime: 1 * time.Second,
		ExtraCommands:  []string{},
	}
}

// Issues commands to the engine and correlates the responses.
//
// An event batch embedded in a response is applied before the completion
// callback runs, so the caller observes the effect of its command in the tree.
type Dispatcher struct {
	transport Transport
	codec     Codec
	events    EventApplier
	telemetry Telemetry

	settings *DispatcherSettings

	commands map[string]bool

	stateLock sync.Mutex
	// request id -> command, for requests that have not completed
	outstanding map[Id]string
}

func NewDispatcherWithDefaults(transport Transport, codec Codec, events EventApplier, telemetry Telemetry) *Dispatcher {
	return NewDispatcher(transport, codec, events, telemetry, DefaultDispatcherSettings())
}

func NewDispatcher(
	transport Transport,
	codec Codec,
	events EventApplier,
	telemetry Telemetry,
	settings *DispatcherSettings,
) *Dispatcher {
	if telemetry == nil {
		telemetry = NewNoopTelemetry()
	}
	commands := map[string]bool{}
	for _, command := range DefaultCommands() {
		commands[command] = true
	}
	for _, command := range settings.ExtraCommands {
		commands[command] = true
	}
	return &Dispatcher{
		transport:   transport,
		codec:       codec,
		events:      events,
		telemetry:   telemetry,
		settings:    settings,
		commands:    commands,
		outstanding: map[Id]string{},
	}
}

func (self *Dispatcher) IsCommand(command string) bool {
	return self.commands[command]
}

func (self *Dispatcher) OutstandingCount() int {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return len(self.outstanding)
}

// Submits the command without blocking.
// Local errors (unknown command, encoding, transport submit) are returned and `onComplete` is not called.
// Otherwise `onComplete` is called at most once. If `ctx` is done before the response arrives,
// the completion is detached and not called.
func (self *Dispatcher) Send(ctx context.Context, command string, payload Payload, onComplete CompleteFunction) (Id, error) {
	if !self.commands[command] {
		return Id{}, &UnknownCommandError{Command: command}
	}

	requestBytes, err := self.codec.EncodeCommand(command, payload)
	if err != nil {
		return Id{}, err
	}

	requestId := NewId()
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()
		self.outstanding[requestId] = command
	}()

	glog.V(2).Infof("[d]%s %s ->\n", command, requestId)
	submitTime := time.Now()

	err = self.transport.Send(command, requestId, requestBytes, func(responseBytes []byte, err error) {
		self.complete(ctx, command, requestId, submitTime, responseBytes, err, onComplete)
	})
	if err != nil {
		self.take(requestId)
		return Id{}, err
	}
	return requestId, nil
}

// removes the request from the outstanding set. false if it already completed.
func (self *Dispatcher) take(requestId Id) bool {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	if _, ok := self.outstanding[requestId]; !ok {
		return false
	}
	delete(self.outstanding, requestId)
	return true
}

func (self *Dispatcher) complete(
	ctx context.Context,
	command string,
	requestId Id,
	submitTime time.Time,
	responseBytes []byte,
	err error,
	onComplete CompleteFunction,
) {
	if !self.take(requestId) {
		glog.Infof("[d]%s %s duplicate response dropped\n", command, requestId)
		return
	}
	callbackTime := time.Now()
	glog.V(2).Infof("[d]%s %s <-\n", command, requestId)

	safeOnComplete := func(response *Response, err error) {
		if onComplete == nil {
			return
		}
		select {
		case <-ctx.Done():
			glog.V(2).Infof("[d]%s %s completion detached\n", command, requestId)
			return
		default:
		}
		HandleError(func() {
			onComplete(response, err)
		})
	}

	defer func() {
		completeTime := time.Now()
		middle := callbackTime.Sub(submitTime)
		render := completeTime.Sub(callbackTime)
		self.telemetry.CommandTiming(command, middle, render)
		if self.settings.SlowMiddleTime < middle {
			self.telemetry.SlowCall(command, SlowCallStageMiddle, middle)
		}
		if self.settings.SlowRenderTime < render {
			self.telemetry.SlowCall(command, SlowCallStageRender, render)
		}
	}()

	if err != nil {
		glog.Infof("[d]%s %s transport error = %s\n", command, requestId, err)
		safeOnComplete(nil, err)
		return
	}

	response, err := self.codec.DecodeResponse(command, responseBytes)
	if err != nil {
		glog.Infof("[d]%s %s = %s\n", command, requestId, err)
		safeOnComplete(nil, err)
		return
	}

	var remoteErr error
	if response.Error.IsError() {
		r := &RemoteError{
			Command:     command,
			Code:        response.Error.Code,
			Description: response.Error.Description,
		}
		glog.Infof("[d]%s\n", r)
		self.telemetry.RemoteError(command, r)
		remoteErr = r
	}

	if response.Event != nil && self.events != nil {
		self.events.Apply(response.Event)
	}

	safeOnComplete(response, remoteErr)
}
