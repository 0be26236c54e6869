package blocksync

import (
	"sync"
)

// the progress reporting surface for long running engine processes

type ProgressFunction func(process *Process, cleared bool)

type MemoryProgress struct {
	stateLock sync.Mutex
	// process id -> process
	processes map[string]*Process

	progressCallbacks *CallbackList[ProgressFunction]
}

func NewMemoryProgress() *MemoryProgress {
	return &MemoryProgress{
		processes:         map[string]*Process{},
		progressCallbacks: NewCallbackList[ProgressFunction](),
	}
}

func (self *MemoryProgress) AddProgressCallback(progressCallback ProgressFunction) func() {
	callbackId := self.progressCallbacks.Add(progressCallback)
	return func() {
		self.progressCallbacks.Remove(callbackId)
	}
}

func (self *MemoryProgress) ProgressSet(process *Process) {
	c := *process
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()
		self.processes[c.Id] = &c
	}()
	for _, progressCallback := range self.progressCallbacks.Get() {
		HandleError(func() {
			progressCallback(&c, false)
		})
	}
}

func (self *MemoryProgress) ProgressClear(processId string) {
	var process *Process
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()
		process = self.processes[processId]
		delete(self.processes, processId)
	}()
	if process == nil {
		process = &Process{Id: processId, State: ProcessStateCanceled}
	}
	for _, progressCallback := range self.progressCallbacks.Get() {
		HandleError(func() {
			progressCallback(process, true)
		})
	}
}

func (self *MemoryProgress) Get(processId string) (*Process, bool) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	process, ok := self.processes[processId]
	if !ok {
		return nil, false
	}
	c := *process
	return &c, true
}

type MemoryAccounts struct {
	stateLock sync.Mutex
	accounts  []*Account
}

func NewMemoryAccounts() *MemoryAccounts {
	return &MemoryAccounts{
		accounts: []*Account{},
	}
}

// accounts are listed by the engine with their display index
func (self *MemoryAccounts) AccountAdd(index int, account *Account) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	c := *account
	for i, a := range self.accounts {
		if a.Id == c.Id {
			self.accounts[i] = &c
			return
		}
	}
	if 0 <= index && index < len(self.accounts) {
		self.accounts = append(self.accounts[:index], append([]*Account{&c}, self.accounts[index:]...)...)
	} else {
		self.accounts = append(self.accounts, &c)
	}
}

func (self *MemoryAccounts) Accounts() []*Account {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	out := make([]*Account, 0, len(self.accounts))
	for _, a := range self.accounts {
		c := *a
		out = append(out, &c)
	}
	return out
}
