package blocksync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang/glog"
)

// called at most once per request
type ResponseFunction func(responseBytes []byte, err error)

type EventFunction func(eventBytes []byte)

// An abstract bidirectional channel to the engine.
// Requests are submitted without blocking and answered through the callback.
// Unsolicited event batches arrive through the event callbacks.
type Transport interface {
	Send(method string, requestId Id, requestBytes []byte, callback ResponseFunction) error
	AddEventCallback(eventCallback EventFunction) func()
	Close()
}

var ErrTransportClosed = errors.New("Transport closed.")

// request id -> callback
// each callback is taken out exactly once, so the transport cannot double deliver
type pendingRequests struct {
	stateLock sync.Mutex
	callbacks map[Id]ResponseFunction
}

func newPendingRequests() *pendingRequests {
	return &pendingRequests{
		callbacks: map[Id]ResponseFunction{},
	}
}

func (self *pendingRequests) add(requestId Id, callback ResponseFunction) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	self.callbacks[requestId] = callback
}

func (self *pendingRequests) take(requestId Id) (ResponseFunction, bool) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	callback, ok := self.callbacks[requestId]
	if ok {
		delete(self.callbacks, requestId)
	}
	return callback, ok
}

func (self *pendingRequests) clear() {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	clear(self.callbacks)
}

func (self *pendingRequests) len() int {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return len(self.callbacks)
}

// the engine side of an in-process transport
type EngineHandler func(method string, requestBytes []byte) ([]byte, error)

// Calls an engine handler in-process. Each request is handled on its own goroutine.
type LocalTransport struct {
	ctx    context.Context
	cancel context.CancelFunc

	handler EngineHandler

	eventCallbacks *CallbackList[EventFunction]
}

func NewLocalTransport(ctx context.Context, handler EngineHandler) *LocalTransport {
	cancelCtx, cancel := context.WithCancel(ctx)
	return &LocalTransport{
		ctx:            cancelCtx,
		cancel:         cancel,
		handler:        handler,
		eventCallbacks: NewCallbackList[EventFunction](),
	}
}

func (self *LocalTransport) Send(method string, requestId Id, requestBytes []byte, callback ResponseFunction) error {
	select {
	case <-self.ctx.Done():
		return ErrTransportClosed
	default:
	}
	go HandleError(func() {
		responseBytes, err := self.handler(method, requestBytes)
		select {
		case <-self.ctx.Done():
			return
		default:
		}
		callback(responseBytes, err)
	})
	return nil
}

// delivers an unsolicited event batch to all event callbacks, in order
func (self *LocalTransport) PushEvent(eventBytes []byte) {
	for _, eventCallback := range self.eventCallbacks.Get() {
		HandleError(func() {
			eventCallback(eventBytes)
		})
	}
}

func (self *LocalTransport) AddEventCallback(eventCallback EventFunction) func() {
	callbackId := self.eventCallbacks.Add(eventCallback)
	return func() {
		self.eventCallbacks.Remove(callbackId)
	}
}

func (self *LocalTransport) Close() {
	self.cancel()
}

// waits out the remainder of the reconnect timeout from the last attempt
type Reconnect struct {
	timeout time.Duration
	start   time.Time
}

func NewReconnect(timeout time.Duration) *Reconnect {
	return &Reconnect{
		timeout: timeout,
		start:   time.Now(),
	}
}

func (self *Reconnect) After() <-chan time.Time {
	remaining := self.timeout - time.Since(self.start)
	if remaining < 0 {
		remaining = 0
	}
	glog.V(2).Infof("[t]reconnect in %s\n", remaining)
	return time.After(remaining)
}
