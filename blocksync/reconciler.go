package blocksync

import (
	"fmt"
	"sync"

	"github.com/golang/glog"
	"golang.org/x/exp/slices"
)

// Applies event batches to the tree store.
//
// Batches for the same root are applied one at a time, in arrival order.
// Batches for different roots are independent and may be applied concurrently.
//
// Within a batch, messages are applied in a dependency safe order:
// 1. all adds
// 2. all deletes
// 3. everything else
// Each group keeps the original batch order.
type EventApplier interface {
	Apply(batch *EventBatch)
}

type ProgressSink interface {
	ProgressSet(process *Process)
	ProgressClear(processId string)
}

type AccountSink interface {
	AccountAdd(index int, account *Account)
}

type ReconcilerSettings struct {
	// when set, messages whose target ids are missing from the store are logged at V(2)
	LogAbsentTargets bool
}

func DefaultReconcilerSettings() *ReconcilerSettings {
	return &ReconcilerSettings{
		LogAbsentTargets: true,
	}
}

type Reconciler struct {
	store     TreeStore
	progress  ProgressSink
	accounts  AccountSink
	telemetry Telemetry

	settings *ReconcilerSettings

	rootLocksLock sync.Mutex
	// root id -> lock
	rootLocks map[string]*rootLock
}

type rootLock struct {
	sync.Mutex
	refCount int
}

func NewReconcilerWithDefaults(store TreeStore, progress ProgressSink, accounts AccountSink, telemetry Telemetry) *Reconciler {
	return NewReconciler(store, progress, accounts, telemetry, DefaultReconcilerSettings())
}

func NewReconciler(
	store TreeStore,
	progress ProgressSink,
	accounts AccountSink,
	telemetry Telemetry,
	settings *ReconcilerSettings,
) *Reconciler {
	if progress == nil {
		progress = NewMemoryProgress()
	}
	if accounts == nil {
		accounts = NewMemoryAccounts()
	}
	if telemetry == nil {
		telemetry = NewNoopTelemetry()
	}
	return &Reconciler{
		store:     store,
		progress:  progress,
		accounts:  accounts,
		telemetry: telemetry,
		settings:  settings,
		rootLocks: map[string]*rootLock{},
	}
}

// serializes application per root. the returned function releases the root.
func (self *Reconciler) lockRoot(rootId string) func() {
	self.rootLocksLock.Lock()
	lock, ok := self.rootLocks[rootId]
	if !ok {
		lock = &rootLock{}
		self.rootLocks[rootId] = lock
	}
	lock.refCount += 1
	self.rootLocksLock.Unlock()

	lock.Lock()
	return func() {
		lock.Unlock()

		self.rootLocksLock.Lock()
		defer self.rootLocksLock.Unlock()
		lock.refCount -= 1
		if lock.refCount == 0 {
			delete(self.rootLocks, rootId)
		}
	}
}

func (self *Reconciler) Apply(batch *EventBatch) {
	self.ApplyIf(batch, nil)
}

// `accept` is checked while the root is held, so it cannot race with a concurrent close of the root.
// returns false if the batch was not applied.
func (self *Reconciler) ApplyIf(batch *EventBatch, accept func(rootId string) bool) bool {
	if batch == nil {
		return false
	}
	// change callbacks run after the root is released, so they may close the root
	if holding, ok := self.store.(HoldingTreeStore); ok {
		holding.Hold(batch.RootId)
		defer holding.Release(batch.RootId)
	}
	unlock := self.lockRoot(batch.RootId)
	defer unlock()

	if accept != nil && !accept(batch.RootId) {
		return false
	}

	glog.V(2).Infof("[r]%s apply %d messages\n", batch.RootId, len(batch.Messages))

	messages := self.accepted(batch)
	SortMessages(messages)
	index := buildStructureIndex(messages)

	for _, message := range messages {
		HandleError(func() {
			self.apply(batch.RootId, message, index)
		}, func(err error) {
			self.malformed(batch.RootId, message.Mutation.Kind(), fmt.Sprintf("apply failed: %s", err))
		})
	}

	self.store.PruneChildren(batch.RootId)
	self.store.Renumber(batch.RootId)
	return true
}

// drops messages that failed on the engine side, and messages that are structurally invalid
func (self *Reconciler) accepted(batch *EventBatch) []*EventMessage {
	messages := make([]*EventMessage, 0, len(batch.Messages))
	for _, message := range batch.Messages {
		if message == nil || message.Mutation == nil {
			self.malformed(batch.RootId, "", "missing mutation")
			continue
		}
		if message.ErrorCode != "" {
			// already reported through the command path
			glog.V(2).Infof("[r]%s drop %s error = %s\n", batch.RootId, message.Mutation.Kind(), message.ErrorCode)
			continue
		}
		if reason := validateMutation(message.Mutation); reason != "" {
			self.malformed(batch.RootId, message.Mutation.Kind(), reason)
			continue
		}
		messages = append(messages, message)
	}
	return messages
}

func (self *Reconciler) malformed(rootId string, kind MutationKind, reason string) {
	err := &MalformedEventError{
		RootId:  rootId,
		Kind:    kind,
		Message: reason,
	}
	glog.Infof("[r]%s\n", err)
	self.telemetry.MalformedEvent(rootId, err)
}

func (self *Reconciler) absent(rootId string, kind MutationKind, nodeId string) {
	// a benign race with a prior delete. not reported.
	if self.settings.LogAbsentTargets {
		glog.V(2).Infof("[r]%s %s absent target %s\n", rootId, kind, nodeId)
	}
}

// returns a non-empty reason if the mutation cannot be applied
func validateMutation(mutation Mutation) string {
	switch v := mutation.(type) {
	case *InvalidMutation:
		return v.Reason
	case *ShowRoot:
		if v.RootId == "" {
			return "missing root id"
		}
	case *NodeAdd:
		for _, node := range v.Nodes {
			if node == nil || node.Id == "" {
				return "node without id"
			}
			if slices.Contains(node.ChildrenIds, node.Id) {
				return fmt.Sprintf("node %s lists itself as a child", node.Id)
			}
		}
	case *SetChildrenOrder:
		if v.Id == "" {
			return "missing id"
		}
		if slices.Contains(v.ChildrenIds, v.Id) {
			return fmt.Sprintf("node %s lists itself as a child", v.Id)
		}
	case NodePatch:
		if v.TargetId() == "" {
			return "missing id"
		}
	case *ProcessEvent:
		if v.Process == nil {
			return "missing process"
		}
	case *AccountShow:
		if v.Account == nil {
			return "missing account"
		}
	}
	return ""
}

func messageRank(message *EventMessage) int {
	switch message.Mutation.Kind() {
	case MutationNodeAdd:
		return 0
	case MutationNodeDelete:
		return 1
	default:
		return 2
	}
}

// stable. adds, then deletes, then everything else.
func SortMessages(messages []*EventMessage) {
	slices.SortStableFunc(messages, func(a *EventMessage, b *EventMessage) int {
		return messageRank(a) - messageRank(b)
	})
}

// parentage and children order implied by the whole batch
type structureIndex struct {
	// child id -> parent id
	parentOf map[string]string
	// parent id -> ordered child ids
	childrenOf map[string][]string
}

func buildStructureIndex(messages []*EventMessage) *structureIndex {
	index := &structureIndex{
		parentOf:   map[string]string{},
		childrenOf: map[string][]string{},
	}
	set := func(parentId string, childrenIds []string) {
		for _, childId := range childrenIds {
			index.parentOf[childId] = parentId
		}
		if 0 < len(childrenIds) {
			index.childrenOf[parentId] = childrenIds
		}
	}
	for _, message := range messages {
		switch v := message.Mutation.(type) {
		case *SetChildrenOrder:
			set(v.Id, v.ChildrenIds)
		case *NodeAdd:
			for _, node := range v.Nodes {
				set(node.Id, node.ChildrenIds)
			}
		}
	}
	return index
}

func (self *structureIndex) parentId(nodeId string) string {
	return self.parentOf[nodeId]
}

// -1 when the parent order is not part of the batch
func (self *structureIndex) position(parentId string, nodeId string) int {
	return slices.Index(self.childrenOf[parentId], nodeId)
}

// true if following parents from `nodeId` leads back to `nodeId`
func (self *structureIndex) cyclic(nodeId string) bool {
	visited := map[string]bool{}
	for id := self.parentOf[nodeId]; id != ""; id = self.parentOf[id] {
		if id == nodeId {
			return true
		}
		if visited[id] {
			// a cycle not through this node. it is reported when its own nodes are added.
			return false
		}
		visited[id] = true
	}
	return false
}

func (self *Reconciler) apply(rootId string, message *EventMessage, index *structureIndex) {
	switch v := message.Mutation.(type) {
	case *AccountShow:
		self.accounts.AccountAdd(v.Index, v.Account)

	case *ShowRoot:
		self.showRoot(rootId, v)

	case *NodeAdd:
		for _, node := range v.Nodes {
			parentId := index.parentId(node.Id)
			if index.cyclic(node.Id) || self.adoptsAncestor(rootId, node, parentId) {
				self.malformed(rootId, v.Kind(), fmt.Sprintf("node %s is its own ancestor", node.Id))
				continue
			}
			self.store.Insert(rootId, node, parentId, index.position(parentId, node.Id))
		}

	case *NodeDelete:
		for _, nodeId := range v.NodeIds {
			self.store.Remove(rootId, nodeId)
		}

	case *SetChildrenOrder:
		node, ok := self.store.Get(rootId, v.Id)
		if !ok {
			self.absent(rootId, v.Kind(), v.Id)
			return
		}
		ancestorIds := self.ancestorIds(rootId, v.Id)
		for _, childId := range v.ChildrenIds {
			if ancestorIds[childId] {
				self.malformed(rootId, v.Kind(), fmt.Sprintf("node %s lists its ancestor %s as a child", v.Id, childId))
				return
			}
		}
		self.store.SetChildrenOrder(rootId, v.Id, pinTitle(rootId, node, v.ChildrenIds))

	case *SetDetails:
		self.store.MergeDetails(rootId, v.Id, v.Details)

	case NodePatch:
		if !self.store.MergeFields(rootId, v.TargetId(), v) {
			self.absent(rootId, message.Mutation.Kind(), v.TargetId())
		}

	case *ProcessEvent:
		switch v.Process.State {
		case ProcessStateRunning, ProcessStateDone:
			self.progress.ProgressSet(v.Process)
		case ProcessStateCanceled:
			self.progress.ProgressClear(v.Process.Id)
		}

	default:
		self.malformed(rootId, message.Mutation.Kind(), fmt.Sprintf("unsupported mutation %T", v))
	}
}

// the parent chain of `nodeId` in the store
func (self *Reconciler) ancestorIds(rootId string, nodeId string) map[string]bool {
	ancestorIds := map[string]bool{}
	node, ok := self.store.Get(rootId, nodeId)
	for ok && node.ParentId != "" && !ancestorIds[node.ParentId] {
		ancestorIds[node.ParentId] = true
		node, ok = self.store.Get(rootId, node.ParentId)
	}
	return ancestorIds
}

// true if `node` lists as a child one of the nodes it would sit under
func (self *Reconciler) adoptsAncestor(rootId string, node *Node, parentId string) bool {
	if parentId == "" {
		if prev, ok := self.store.Get(rootId, node.Id); ok {
			parentId = prev.ParentId
		}
	}
	if parentId == "" {
		return false
	}
	ancestorIds := self.ancestorIds(rootId, parentId)
	ancestorIds[parentId] = true
	for _, childId := range node.ChildrenIds {
		if ancestorIds[childId] {
			return true
		}
	}
	return false
}

// the title is client-pinned as the first child of any node that already carries it
func pinTitle(rootId string, node *Node, childrenIds []string) []string {
	titleId := TitleId(rootId)
	if !slices.Contains(node.ChildrenIds, titleId) {
		return childrenIds
	}
	pinned := make([]string, 0, len(childrenIds)+1)
	pinned = append(pinned, titleId)
	for _, childId := range childrenIds {
		if childId != titleId {
			pinned = append(pinned, childId)
		}
	}
	return pinned
}

// replaces the entire node set of the root
func (self *Reconciler) showRoot(rootId string, showRoot *ShowRoot) {
	nodes := make([]*Node, 0, len(showRoot.Nodes)+1)
	var root *Node
	for _, node := range showRoot.Nodes {
		node = node.Clone()
		if node.Id == rootId {
			if _, ok := node.Content.(*PageContent); !ok {
				node.Content = &PageContent{}
			}
			root = node
		}
		nodes = append(nodes, node)
	}
	if root == nil {
		self.malformed(rootId, showRoot.Kind(), "root node is missing")
		return
	}

	if showRoot.PageType.SupportsTitle() {
		titleId := TitleId(rootId)
		root.ChildrenIds = pinTitle(rootId, &Node{ChildrenIds: []string{titleId}}, root.ChildrenIds)
		nodes = slices.DeleteFunc(nodes, func(node *Node) bool {
			return node.Id == titleId
		})
		nodes = slices.Insert(nodes, 0, NewNode(titleId, &TitleContent{}))
	}

	self.store.ReplaceAll(rootId, nodes)
	self.store.SetDetails(rootId, showRoot.Details)
	glog.V(1).Infof("[r]%s show %d nodes\n", rootId, len(nodes))
}
