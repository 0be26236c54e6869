package blocksync

import (
	"sync"

	"golang.org/x/exp/slices"
)

// The tree store owns all nodes of every open root.
// Each operation is atomic relative to concurrent reads.
// Nodes handed in are copied, and nodes handed out are copies.
type TreeStore interface {
	ReplaceAll(rootId string, nodes []*Node)
	// inserts or relocates `node` under `parentId` at `index`. index < 0 appends.
	// an existing node inserted with no parent keeps its current parent and position.
	Insert(rootId string, node *Node, parentId string, index int)
	Remove(rootId string, nodeId string)
	SetChildrenOrder(rootId string, nodeId string, childrenIds []string)
	// returns false if the node is not present
	MergeFields(rootId string, nodeId string, patch NodePatch) bool
	Get(rootId string, nodeId string) (*Node, bool)
	Clear(rootId string)

	SetDetails(rootId string, details map[string]map[string]any)
	MergeDetails(rootId string, objectId string, details map[string]any)
	Details(rootId string, objectId string) map[string]any

	// drops child ids that name no node in the root
	PruneChildren(rootId string)
	// recomputes derived positional metadata for the whole root
	Renumber(rootId string)
}

// called after each atomic change to a root
type TreeChangeFunction func(rootId string)

// A store that can defer change callbacks for a root.
// Changes made while a root is held are reported once, when the last hold is released.
type HoldingTreeStore interface {
	Hold(rootId string)
	Release(rootId string)
}

type rootTree struct {
	nodes   map[string]*Node
	details map[string]map[string]any
}

func newRootTree() *rootTree {
	return &rootTree{
		nodes:   map[string]*Node{},
		details: map[string]map[string]any{},
	}
}

type MemoryTreeStore struct {
	stateLock sync.RWMutex
	roots     map[string]*rootTree

	changeCallbacks *CallbackList[TreeChangeFunction]

	holdLock sync.Mutex
	// root id -> hold count
	holds map[string]int
	// root id -> changed while held
	heldChanges map[string]bool
}

func NewMemoryTreeStore() *MemoryTreeStore {
	return &MemoryTreeStore{
		roots:           map[string]*rootTree{},
		changeCallbacks: NewCallbackList[TreeChangeFunction](),
		holds:           map[string]int{},
		heldChanges:     map[string]bool{},
	}
}

func (self *MemoryTreeStore) AddChangeCallback(changeCallback TreeChangeFunction) func() {
	callbackId := self.changeCallbacks.Add(changeCallback)
	return func() {
		self.changeCallbacks.Remove(callbackId)
	}
}

func (self *MemoryTreeStore) Hold(rootId string) {
	self.holdLock.Lock()
	defer self.holdLock.Unlock()
	self.holds[rootId] += 1
}

func (self *MemoryTreeStore) Release(rootId string) {
	changed := func() bool {
		self.holdLock.Lock()
		defer self.holdLock.Unlock()
		self.holds[rootId] -= 1
		if 0 < self.holds[rootId] {
			return false
		}
		delete(self.holds, rootId)
		changed := self.heldChanges[rootId]
		delete(self.heldChanges, rootId)
		return changed
	}()
	if changed {
		self.notify(rootId)
	}
}

func (self *MemoryTreeStore) changed(rootId string) {
	held := func() bool {
		self.holdLock.Lock()
		defer self.holdLock.Unlock()
		if 0 < self.holds[rootId] {
			self.heldChanges[rootId] = true
			return true
		}
		return false
	}()
	if !held {
		self.notify(rootId)
	}
}

func (self *MemoryTreeStore) notify(rootId string) {
	for _, changeCallback := range self.changeCallbacks.Get() {
		HandleError(func() {
			changeCallback(rootId)
		})
	}
}

// must be called with the state lock
func (self *MemoryTreeStore) root(rootId string) *rootTree {
	tree, ok := self.roots[rootId]
	if !ok {
		tree = newRootTree()
		self.roots[rootId] = tree
	}
	return tree
}

func (self *MemoryTreeStore) ReplaceAll(rootId string, nodes []*Node) {
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		tree := newRootTree()
		if prev, ok := self.roots[rootId]; ok {
			tree.details = prev.details
		}
		for _, node := range nodes {
			tree.nodes[node.Id] = node.Clone()
		}
		// back-references are derived from the children lists.
		// the first parent to list a child wins and later duplicates are dropped.
		for _, node := range nodes {
			parent := tree.nodes[node.Id]
			childrenIds := make([]string, 0, len(parent.ChildrenIds))
			for _, childId := range parent.ChildrenIds {
				child, ok := tree.nodes[childId]
				if !ok || childId == parent.Id || slices.Contains(childrenIds, childId) {
					continue
				}
				if child.ParentId != "" && child.ParentId != parent.Id {
					continue
				}
				child.ParentId = parent.Id
				childrenIds = append(childrenIds, childId)
			}
			parent.ChildrenIds = childrenIds
		}
		self.roots[rootId] = tree
	}()
	self.changed(rootId)
}

func (self *MemoryTreeStore) Insert(rootId string, node *Node, parentId string, index int) {
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		tree := self.root(rootId)

		next := node.Clone()
		prev, exists := tree.nodes[node.Id]
		// an existing node without a new parent stays where it is
		stay := exists && (parentId == "" || parentId == next.Id)
		if exists {
			if !stay {
				detach(tree, prev)
			}
			if len(next.ChildrenIds) == 0 {
				// children that still point here stay attached
				next.ChildrenIds = prev.ChildrenIds
			} else {
				// children dropped from the list lose their back-reference
				for _, childId := range prev.ChildrenIds {
					if slices.Contains(next.ChildrenIds, childId) {
						continue
					}
					if child, ok := tree.nodes[childId]; ok && child.ParentId == next.Id {
						child.ParentId = ""
					}
				}
			}
		}
		next.ChildrenIds = slices.DeleteFunc(next.ChildrenIds, func(childId string) bool {
			return childId == next.Id
		})
		next.ParentId = ""
		if stay {
			next.ParentId = prev.ParentId
		}
		tree.nodes[next.Id] = next

		for _, childId := range next.ChildrenIds {
			if child, ok := tree.nodes[childId]; ok && child.ParentId != next.Id {
				detach(tree, child)
				child.ParentId = next.Id
			}
		}
		next.ChildrenIds = slices.DeleteFunc(next.ChildrenIds, func(childId string) bool {
			child, ok := tree.nodes[childId]
			// children not yet added are kept until `PruneChildren`
			return ok && child.ParentId != next.Id
		})

		if stay || parentId == "" || parentId == next.Id {
			return
		}
		next.ParentId = parentId
		parent, ok := tree.nodes[parentId]
		if !ok {
			return
		}
		if slices.Contains(parent.ChildrenIds, next.Id) {
			return
		}
		if index < 0 || len(parent.ChildrenIds) < index {
			parent.ChildrenIds = append(parent.ChildrenIds, next.Id)
		} else {
			parent.ChildrenIds = slices.Insert(parent.ChildrenIds, index, next.Id)
		}
	}()
	self.changed(rootId)
}

// removes the node from its parent's children list. must be called with the state lock.
func detach(tree *rootTree, node *Node) {
	if node.ParentId == "" {
		return
	}
	if parent, ok := tree.nodes[node.ParentId]; ok {
		parent.ChildrenIds = slices.DeleteFunc(parent.ChildrenIds, func(childId string) bool {
			return childId == node.Id
		})
	}
	node.ParentId = ""
}

func (self *MemoryTreeStore) Remove(rootId string, nodeId string) {
	removed := func() bool {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		tree, ok := self.roots[rootId]
		if !ok {
			return false
		}
		node, ok := tree.nodes[nodeId]
		if !ok {
			return false
		}
		detach(tree, node)
		// children not already relocated lose their back-reference.
		// deleting them is the job of the emitting events.
		for _, childId := range node.ChildrenIds {
			if child, ok := tree.nodes[childId]; ok && child.ParentId == nodeId {
				child.ParentId = ""
			}
		}
		delete(tree.nodes, nodeId)
		return true
	}()
	if removed {
		self.changed(rootId)
	}
}

func (self *MemoryTreeStore) SetChildrenOrder(rootId string, nodeId string, childrenIds []string) {
	updated := func() bool {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		tree, ok := self.roots[rootId]
		if !ok {
			return false
		}
		node, ok := tree.nodes[nodeId]
		if !ok {
			return false
		}

		nextChildrenIds := make([]string, 0, len(childrenIds))
		for _, childId := range childrenIds {
			if childId == nodeId || slices.Contains(nextChildrenIds, childId) {
				continue
			}
			if _, ok := tree.nodes[childId]; !ok {
				continue
			}
			nextChildrenIds = append(nextChildrenIds, childId)
		}

		for _, childId := range node.ChildrenIds {
			if !slices.Contains(nextChildrenIds, childId) {
				if child, ok := tree.nodes[childId]; ok && child.ParentId == nodeId {
					child.ParentId = ""
				}
			}
		}
		for _, childId := range nextChildrenIds {
			child := tree.nodes[childId]
			if child.ParentId != nodeId {
				detach(tree, child)
				child.ParentId = nodeId
			}
		}
		node.ChildrenIds = nextChildrenIds
		return true
	}()
	if updated {
		self.changed(rootId)
	}
}

func (self *MemoryTreeStore) MergeFields(rootId string, nodeId string, patch NodePatch) bool {
	merged := func() bool {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		tree, ok := self.roots[rootId]
		if !ok {
			return false
		}
		node, ok := tree.nodes[nodeId]
		if !ok {
			return false
		}
		next := node.Clone()
		patch.ApplyTo(next)
		// structure is never changed by a content patch
		next.Id = node.Id
		next.ParentId = node.ParentId
		next.ChildrenIds = node.ChildrenIds
		tree.nodes[nodeId] = next
		return true
	}()
	if merged {
		self.changed(rootId)
	}
	return merged
}

func (self *MemoryTreeStore) Get(rootId string, nodeId string) (*Node, bool) {
	self.stateLock.RLock()
	defer self.stateLock.RUnlock()

	tree, ok := self.roots[rootId]
	if !ok {
		return nil, false
	}
	node, ok := tree.nodes[nodeId]
	if !ok {
		return nil, false
	}
	return node.Clone(), true
}

func (self *MemoryTreeStore) Clear(rootId string) {
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		delete(self.roots, rootId)
	}()
	self.changed(rootId)
}

func (self *MemoryTreeStore) SetDetails(rootId string, details map[string]map[string]any) {
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		tree := self.root(rootId)
		tree.details = map[string]map[string]any{}
		for objectId, objectDetails := range details {
			tree.details[objectId] = cloneFields(objectDetails)
		}
	}()
	self.changed(rootId)
}

func (self *MemoryTreeStore) MergeDetails(rootId string, objectId string, details map[string]any) {
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		tree := self.root(rootId)
		next := cloneFields(tree.details[objectId])
		for k, v := range details {
			next[k] = v
		}
		tree.details[objectId] = next
	}()
	self.changed(rootId)
}

func (self *MemoryTreeStore) Details(rootId string, objectId string) map[string]any {
	self.stateLock.RLock()
	defer self.stateLock.RUnlock()

	tree, ok := self.roots[rootId]
	if !ok {
		return map[string]any{}
	}
	return cloneFields(tree.details[objectId])
}

func (self *MemoryTreeStore) PruneChildren(rootId string) {
	pruned := func() bool {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		tree, ok := self.roots[rootId]
		if !ok {
			return false
		}
		pruned := false
		for _, node := range tree.nodes {
			n := len(node.ChildrenIds)
			node.ChildrenIds = slices.DeleteFunc(node.ChildrenIds, func(childId string) bool {
				_, ok := tree.nodes[childId]
				return !ok
			})
			if len(node.ChildrenIds) != n {
				pruned = true
			}
		}
		return pruned
	}()
	if pruned {
		self.changed(rootId)
	}
}

// Consecutive numbered text siblings are numbered 1..n in children order.
// Any other sibling resets the count. All other nodes get 0.
func (self *MemoryTreeStore) Renumber(rootId string) {
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		tree, ok := self.roots[rootId]
		if !ok {
			return
		}
		for _, node := range tree.nodes {
			node.Number = 0
		}
		visited := map[string]bool{}
		var visit func(node *Node)
		visit = func(node *Node) {
			if visited[node.Id] {
				return
			}
			visited[node.Id] = true
			n := 0
			for _, childId := range node.ChildrenIds {
				child, ok := tree.nodes[childId]
				if !ok {
					continue
				}
				if child.isNumbered() {
					n += 1
					child.Number = n
				} else {
					n = 0
				}
				visit(child)
			}
		}
		if root, ok := tree.nodes[rootId]; ok {
			visit(root)
		}
	}()
	self.changed(rootId)
}

// depth-first traversal from the root node, in children order
func (self *MemoryTreeStore) Walk(rootId string, callback func(node *Node, depth int)) {
	nodes := []*Node{}
	depths := []int{}
	func() {
		self.stateLock.RLock()
		defer self.stateLock.RUnlock()

		tree, ok := self.roots[rootId]
		if !ok {
			return
		}
		visited := map[string]bool{}
		var visit func(node *Node, depth int)
		visit = func(node *Node, depth int) {
			if visited[node.Id] {
				return
			}
			visited[node.Id] = true
			nodes = append(nodes, node.Clone())
			depths = append(depths, depth)
			for _, childId := range node.ChildrenIds {
				if child, ok := tree.nodes[childId]; ok {
					visit(child, depth+1)
				}
			}
		}
		if root, ok := tree.nodes[rootId]; ok {
			visit(root, 0)
		}
	}()
	for i, node := range nodes {
		callback(node, depths[i])
	}
}

func (self *MemoryTreeStore) NodeCount(rootId string) int {
	self.stateLock.RLock()
	defer self.stateLock.RUnlock()

	if tree, ok := self.roots[rootId]; ok {
		return len(tree.nodes)
	}
	return 0
}
