package blocksync

import (
	"context"
	"errors"
	"sync"

	"github.com/golang/glog"
)

var sessionLog = LogFn(LogLevelDebug, "session")

type SessionSettings struct {
	DispatcherSettings *DispatcherSettings
	ReconcilerSettings *ReconcilerSettings
}

func DefaultSessionSettings() *SessionSettings {
	return &SessionSettings{
		DispatcherSettings: DefaultDispatcherSettings(),
		ReconcilerSettings: DefaultReconcilerSettings(),
	}
}

// Owns the store, the reconciler and the dispatcher for one engine connection.
// Push events and response events both enter the same reconciler.
// Push events are only applied for roots that are open.
type Session struct {
	ctx    context.Context
	cancel context.CancelFunc

	transport Transport
	codec     Codec

	store      *MemoryTreeStore
	progress   *MemoryProgress
	accounts   *MemoryAccounts
	reconciler *Reconciler
	dispatcher *Dispatcher

	stateLock sync.Mutex
	openRoots map[string]bool

	unsubscribe func()
}

func NewSessionWithDefaults(ctx context.Context, transport Transport, codec Codec, telemetry Telemetry) *Session {
	return NewSession(ctx, transport, codec, telemetry, DefaultSessionSettings())
}

func NewSession(
	ctx context.Context,
	transport Transport,
	codec Codec,
	telemetry Telemetry,
	settings *SessionSettings,
) *Session {
	cancelCtx, cancel := context.WithCancel(ctx)

	store := NewMemoryTreeStore()
	progress := NewMemoryProgress()
	accounts := NewMemoryAccounts()
	reconciler := NewReconciler(store, progress, accounts, telemetry, settings.ReconcilerSettings)

	session := &Session{
		ctx:        cancelCtx,
		cancel:     cancel,
		transport:  transport,
		codec:      codec,
		store:      store,
		progress:   progress,
		accounts:   accounts,
		reconciler: reconciler,
		openRoots:  map[string]bool{},
	}
	session.dispatcher = NewDispatcher(transport, codec, session, telemetry, settings.DispatcherSettings)
	session.unsubscribe = transport.AddEventCallback(session.onEvent)
	return session
}

func (self *Session) Store() *MemoryTreeStore {
	return self.store
}

func (self *Session) Progress() *MemoryProgress {
	return self.progress
}

func (self *Session) Accounts() *MemoryAccounts {
	return self.accounts
}

func (self *Session) Dispatcher() *Dispatcher {
	return self.dispatcher
}

func (self *Session) Reconciler() *Reconciler {
	return self.reconciler
}

func (self *Session) IsOpen(rootId string) bool {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.openRoots[rootId]
}

func (self *Session) onEvent(eventBytes []byte) {
	batch, err := self.codec.DecodeEvent(eventBytes)
	if err != nil {
		glog.Infof("[s]%s\n", err)
		return
	}
	self.Apply(batch)
}

// `EventApplier` for both the push path and the response path
func (self *Session) Apply(batch *EventBatch) {
	if batch == nil {
		return
	}
	applied := self.reconciler.ApplyIf(batch, func(rootId string) bool {
		// account events are not bound to a root
		return rootId == "" || self.IsOpen(rootId)
	})
	if !applied {
		glog.V(2).Infof("[s]%s not open, drop event\n", batch.RootId)
	}
}

func (self *Session) Send(command string, payload Payload, onComplete CompleteFunction) (Id, error) {
	return self.dispatcher.Send(self.ctx, command, payload, onComplete)
}

// Starts observing a root. The engine answers with the full tree, either in the
// response or as a push event.
func (self *Session) Open(rootId string, onComplete CompleteFunction) error {
	if rootId == "" {
		return errors.New("Root id required.")
	}
	log := SubLogFn(LogLevelDebug, sessionLog, rootId)
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()
		self.openRoots[rootId] = true
	}()
	glog.V(1).Infof("[s]open %s\n", rootId)

	_, err := self.Send(CommandBlockOpen, Payload{"id": rootId}, func(response *Response, err error) {
		var remoteErr *RemoteError
		if errors.As(err, &remoteErr) {
			log("open failed, forget (%s)", remoteErr.Code)
			self.forget(rootId)
		} else if err == nil {
			log("opened with %d nodes", self.store.NodeCount(rootId))
		}
		if onComplete != nil {
			onComplete(response, err)
		}
	})
	if err != nil {
		log("open send failed = %s", err)
		self.forget(rootId)
	}
	return err
}

// Stops observing a root. The local tree is cleared immediately.
func (self *Session) Close(rootId string, onComplete CompleteFunction) error {
	self.forget(rootId)
	glog.V(1).Infof("[s]close %s\n", rootId)
	_, err := self.Send(CommandBlockClose, Payload{"id": rootId}, onComplete)
	return err
}

func (self *Session) forget(rootId string) {
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()
		delete(self.openRoots, rootId)
	}()
	// wait out any batch in flight for the root
	unlock := self.reconciler.lockRoot(rootId)
	defer unlock()
	sessionLog("%s clear %d nodes", rootId, self.store.NodeCount(rootId))
	self.store.Clear(rootId)
}

func (self *Session) Cancel() {
	self.cancel()
	self.unsubscribe()
}
