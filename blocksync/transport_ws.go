package blocksync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/golang/glog"
)

type WsTransportSettings struct {
	HandshakeTimeout time.Duration
	ReconnectTimeout time.Duration
	PingTimeout      time.Duration
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
	SendBufferSize   int
	// how long `Send` waits for room in the send buffer
	SendTimeout time.Duration
}

func DefaultWsTransportSettings() *WsTransportSettings {
	return &WsTransportSettings{
		HandshakeTimeout: 2 * time.Second,
		ReconnectTimeout: 5 * time.Second,
		PingTimeout:      5 * time.Second,
		WriteTimeout:     5 * time.Second,
		ReadTimeout:      30 * time.Second,
		SendBufferSize:   32,
		SendTimeout:      1 * time.Second,
	}
}

type ClientAuth struct {
	Jwt        string
	AppVersion string
}

func (self *ClientAuth) header() http.Header {
	header := http.Header{}
	if self == nil {
		return header
	}
	if self.Jwt != "" {
		header.Set("Authorization", fmt.Sprintf("Bearer %s", self.Jwt))
	}
	if self.AppVersion != "" {
		header.Set("X-App-Version", self.AppVersion)
	}
	return header
}

func (self *ClientAuth) clientTag() string {
	if self == nil || self.Jwt == "" {
		return "anonymous"
	}
	sessionJwt, err := ParseSessionJwtUnverified(self.Jwt)
	if err != nil {
		return "anonymous"
	}
	return sessionJwt.String()
}

// Carries frames to and from the engine over a websocket.
// The connection is re-established after any read or write error.
// Requests in flight during a disconnect are not answered.
type WsTransport struct {
	ctx    context.Context
	cancel context.CancelFunc

	engineUrl string
	auth      *ClientAuth

	settings *WsTransportSettings

	send    chan []byte
	pending *pendingRequests

	eventCallbacks *CallbackList[EventFunction]
}

func NewWsTransportWithDefaults(ctx context.Context, engineUrl string, auth *ClientAuth) *WsTransport {
	return NewWsTransport(ctx, engineUrl, auth, DefaultWsTransportSettings())
}

func NewWsTransport(
	ctx context.Context,
	engineUrl string,
	auth *ClientAuth,
	settings *WsTransportSettings,
) *WsTransport {
	cancelCtx, cancel := context.WithCancel(ctx)
	transport := &WsTransport{
		ctx:            cancelCtx,
		cancel:         cancel,
		engineUrl:      engineUrl,
		auth:           auth,
		settings:       settings,
		send:           make(chan []byte, settings.SendBufferSize),
		pending:        newPendingRequests(),
		eventCallbacks: NewCallbackList[EventFunction](),
	}
	go transport.run()
	return transport
}

func (self *WsTransport) Send(method string, requestId Id, requestBytes []byte, callback ResponseFunction) error {
	select {
	case <-self.ctx.Done():
		return ErrTransportClosed
	default:
	}

	message := EncodeFrame(&Frame{
		FrameType: FrameTypeRequest,
		RequestId: requestId,
		Method:    method,
		Body:      requestBytes,
	})

	self.pending.add(requestId, callback)
	select {
	case <-self.ctx.Done():
		self.pending.take(requestId)
		return ErrTransportClosed
	case self.send <- message:
		return nil
	case <-time.After(self.settings.SendTimeout):
		self.pending.take(requestId)
		return errors.New("Send buffer full.")
	}
}

func (self *WsTransport) AddEventCallback(eventCallback EventFunction) func() {
	callbackId := self.eventCallbacks.Add(eventCallback)
	return func() {
		self.eventCallbacks.Remove(callbackId)
	}
}

func (self *WsTransport) run() {
	defer func() {
		self.cancel()
		self.pending.clear()
	}()

	clientTag := self.auth.clientTag()

	for {
		reconnect := NewReconnect(self.settings.ReconnectTimeout)
		connect := func() (*websocket.Conn, error) {
			dialer := &websocket.Dialer{
				HandshakeTimeout: self.settings.HandshakeTimeout,
			}
			ws, _, err := dialer.DialContext(self.ctx, self.engineUrl, self.auth.header())
			return ws, err
		}

		var ws *websocket.Conn
		var err error
		if glog.V(2) {
			ws, err = TraceWithReturnError(fmt.Sprintf("[t]connect %s", clientTag), connect)
		} else {
			ws, err = connect()
		}
		if err != nil {
			glog.Infof("[t]connect error %s = %s\n", clientTag, err)
			select {
			case <-self.ctx.Done():
				return
			case <-reconnect.After():
				continue
			}
		}
		glog.V(1).Infof("[t]connected %s\n", clientTag)

		c := func() {
			defer ws.Close()

			handleCtx, handleCancel := context.WithCancel(self.ctx)
			defer handleCancel()

			go func() {
				defer handleCancel()

				for {
					select {
					case <-handleCtx.Done():
						return
					case message := <-self.send:
						ws.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
						if err := ws.WriteMessage(websocket.BinaryMessage, message); err != nil {
							// note that for websocket a deadline timeout cannot be recovered
							glog.Infof("[ts]%s-> error = %s\n", clientTag, err)
							return
						}
						glog.V(2).Infof("[ts]%s->\n", clientTag)
					case <-time.After(self.settings.PingTimeout):
						ws.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
						if err := ws.WriteMessage(websocket.BinaryMessage, make([]byte, 0)); err != nil {
							return
						}
					}
				}
			}()

			go func() {
				defer handleCancel()

				for {
					select {
					case <-handleCtx.Done():
						return
					default:
					}

					ws.SetReadDeadline(time.Now().Add(self.settings.ReadTimeout))
					messageType, message, err := ws.ReadMessage()
					if err != nil {
						glog.Infof("[tr]%s<- error = %s\n", clientTag, err)
						return
					}

					switch messageType {
					case websocket.BinaryMessage:
						if 0 == len(message) {
							// ping
							glog.V(2).Infof("[tr]ping %s<-\n", clientTag)
							continue
						}
						self.receive(clientTag, message)
					default:
						glog.V(2).Infof("[tr]other=%d %s<-\n", messageType, clientTag)
					}
				}
			}()

			select {
			case <-handleCtx.Done():
			}
		}
		if glog.V(2) {
			Trace(fmt.Sprintf("[t]connect run %s", clientTag), c)
		} else {
			c()
		}
		reconnect = NewReconnect(self.settings.ReconnectTimeout)
		select {
		case <-self.ctx.Done():
			return
		case <-reconnect.After():
		}
	}
}

func (self *WsTransport) receive(clientTag string, message []byte) {
	frame, err := DecodeFrame(message)
	if err != nil {
		glog.Infof("[tr]%s<- bad frame = %s\n", clientTag, err)
		return
	}
	switch frame.FrameType {
	case FrameTypeResponse:
		callback, ok := self.pending.take(frame.RequestId)
		if !ok {
			glog.V(2).Infof("[tr]%s<- no pending request %s\n", clientTag, frame.RequestId)
			return
		}
		glog.V(2).Infof("[tr]%s<- response %s %s\n", clientTag, frame.Method, frame.RequestId)
		// completions must not hold up event delivery
		go HandleError(func() {
			callback(frame.Body, nil)
		})
	case FrameTypeEvent:
		glog.V(2).Infof("[tr]%s<- event\n", clientTag)
		// events are delivered in arrival order on the read goroutine
		for _, eventCallback := range self.eventCallbacks.Get() {
			HandleError(func() {
				eventCallback(frame.Body)
			})
		}
	default:
		glog.V(2).Infof("[tr]%s<- unexpected %s\n", clientTag, frame.FrameType)
	}
}

func (self *WsTransport) Close() {
	self.cancel()
}
