package blocksync

import (
	"testing"

	"github.com/go-playground/assert/v2"
)

func textNode(id string, text string, childrenIds ...string) *Node {
	node := NewNode(id, &TextContent{Text: text})
	node.ChildrenIds = append(node.ChildrenIds, childrenIds...)
	return node
}

func pageNode(id string, childrenIds ...string) *Node {
	node := NewNode(id, &PageContent{})
	node.ChildrenIds = append(node.ChildrenIds, childrenIds...)
	return node
}

func childrenIds(store TreeStore, rootId string, nodeId string) []string {
	node, ok := store.Get(rootId, nodeId)
	if !ok {
		return nil
	}
	return node.ChildrenIds
}

func parentId(store TreeStore, rootId string, nodeId string) string {
	node, ok := store.Get(rootId, nodeId)
	if !ok {
		return ""
	}
	return node.ParentId
}

func TestStoreReplaceAll(t *testing.T) {
	store := NewMemoryTreeStore()

	store.ReplaceAll("r", []*Node{
		pageNode("r", "a", "b", "missing", "a"),
		textNode("a", "A", "c"),
		textNode("b", "B", "c"),
		textNode("c", "C"),
	})

	// duplicates and missing children are dropped
	assert.Equal(t, childrenIds(store, "r", "r"), []string{"a", "b"})
	assert.Equal(t, parentId(store, "r", "a"), "r")
	assert.Equal(t, parentId(store, "r", "b"), "r")
	// the first parent to list a child wins
	assert.Equal(t, parentId(store, "r", "c"), "a")
	assert.Equal(t, childrenIds(store, "r", "a"), []string{"c"})
	assert.Equal(t, childrenIds(store, "r", "b"), []string{})
	assert.Equal(t, store.NodeCount("r"), 4)

	// a second replace drops everything from the first
	store.ReplaceAll("r", []*Node{
		pageNode("r", "d"),
		textNode("d", "D"),
	})
	_, ok := store.Get("r", "a")
	assert.Equal(t, ok, false)
	assert.Equal(t, store.NodeCount("r"), 2)
}

func TestStoreCopies(t *testing.T) {
	store := NewMemoryTreeStore()

	node := textNode("a", "A")
	store.Insert("r", node, "", -1)
	node.Content.(*TextContent).Text = "changed"

	a, ok := store.Get("r", "a")
	assert.Equal(t, ok, true)
	assert.Equal(t, a.Content.(*TextContent).Text, "A")

	a.Content.(*TextContent).Text = "changed"
	a.Fields["k"] = "v"
	b, _ := store.Get("r", "a")
	assert.Equal(t, b.Content.(*TextContent).Text, "A")
	assert.Equal(t, len(b.Fields), 0)
}

func TestStoreInsert(t *testing.T) {
	store := NewMemoryTreeStore()

	store.ReplaceAll("r", []*Node{
		pageNode("r", "a", "b"),
		textNode("a", "A"),
		textNode("b", "B"),
	})

	store.Insert("r", textNode("c", "C"), "r", 1)
	assert.Equal(t, childrenIds(store, "r", "r"), []string{"a", "c", "b"})
	assert.Equal(t, parentId(store, "r", "c"), "r")

	// past the end appends
	store.Insert("r", textNode("d", "D"), "r", 100)
	assert.Equal(t, childrenIds(store, "r", "r"), []string{"a", "c", "b", "d"})

	// relocation removes the node from its previous parent
	store.Insert("r", textNode("d", "D"), "a", -1)
	assert.Equal(t, childrenIds(store, "r", "r"), []string{"a", "c", "b"})
	assert.Equal(t, childrenIds(store, "r", "a"), []string{"d"})
	assert.Equal(t, parentId(store, "r", "d"), "a")

	// a node listing existing children adopts them
	store.Insert("r", textNode("e", "E", "b"), "r", -1)
	assert.Equal(t, childrenIds(store, "r", "r"), []string{"a", "c", "e"})
	assert.Equal(t, childrenIds(store, "r", "e"), []string{"b"})
	assert.Equal(t, parentId(store, "r", "b"), "e")
}

func TestStoreInsertReplacesChildren(t *testing.T) {
	store := NewMemoryTreeStore()

	store.ReplaceAll("r", []*Node{
		pageNode("r", "a"),
		textNode("a", "A", "c1"),
		textNode("c1", "C1"),
	})

	// re-adding with a new children list releases the dropped child
	store.Insert("r", textNode("c2", "C2"), "", -1)
	store.Insert("r", textNode("a", "A", "c2"), "r", -1)
	assert.Equal(t, childrenIds(store, "r", "a"), []string{"c2"})
	assert.Equal(t, parentId(store, "r", "c2"), "a")
	assert.Equal(t, parentId(store, "r", "c1"), "")

	// an empty children list keeps the current children
	store.Insert("r", textNode("a", "A2"), "r", -1)
	assert.Equal(t, childrenIds(store, "r", "a"), []string{"c2"})
	assert.Equal(t, parentId(store, "r", "c2"), "a")

	// no parent keeps the node in place
	store.Insert("r", textNode("b", "B"), "r", 0)
	store.Insert("r", textNode("b", "B2"), "", -1)
	assert.Equal(t, childrenIds(store, "r", "r"), []string{"b", "a"})
	assert.Equal(t, parentId(store, "r", "b"), "r")
}

func TestStorePruneChildren(t *testing.T) {
	store := NewMemoryTreeStore()

	store.Insert("r", pageNode("r"), "", -1)
	store.Insert("r", textNode("b", "B", "ghost", "c"), "r", -1)
	store.Insert("r", textNode("c", "C"), "b", -1)
	assert.Equal(t, childrenIds(store, "r", "b"), []string{"ghost", "c"})

	store.PruneChildren("r")
	assert.Equal(t, childrenIds(store, "r", "b"), []string{"c"})
	assert.Equal(t, childrenIds(store, "r", "r"), []string{"b"})

	// missing root
	store.PruneChildren("missing")
	assert.Equal(t, store.NodeCount("missing"), 0)
}

func TestStoreInsertSelfChild(t *testing.T) {
	store := NewMemoryTreeStore()

	store.Insert("r", textNode("a", "A", "a"), "a", -1)
	a, ok := store.Get("r", "a")
	assert.Equal(t, ok, true)
	assert.Equal(t, a.ParentId, "")
	assert.Equal(t, a.ChildrenIds, []string{})
}

func TestStoreRemove(t *testing.T) {
	store := NewMemoryTreeStore()

	store.ReplaceAll("r", []*Node{
		pageNode("r", "a", "b"),
		textNode("a", "A", "c"),
		textNode("b", "B"),
		textNode("c", "C"),
	})

	store.Remove("r", "a")
	_, ok := store.Get("r", "a")
	assert.Equal(t, ok, false)
	assert.Equal(t, childrenIds(store, "r", "r"), []string{"b"})
	// children are orphaned, not deleted
	_, ok = store.Get("r", "c")
	assert.Equal(t, ok, true)
	assert.Equal(t, parentId(store, "r", "c"), "")

	// absent ids are ignored
	store.Remove("r", "a")
	store.Remove("other", "a")
	assert.Equal(t, store.NodeCount("r"), 3)
}

func TestStoreSetChildrenOrder(t *testing.T) {
	store := NewMemoryTreeStore()

	store.ReplaceAll("r", []*Node{
		pageNode("r", "a", "b", "c"),
		textNode("a", "A", "d"),
		textNode("b", "B"),
		textNode("c", "C"),
		textNode("d", "D"),
	})

	store.SetChildrenOrder("r", "r", []string{"c", "r", "a", "missing", "c", "d"})
	assert.Equal(t, childrenIds(store, "r", "r"), []string{"c", "a", "d"})
	// b was dropped from the order
	assert.Equal(t, parentId(store, "r", "b"), "")
	// d moved up from a
	assert.Equal(t, parentId(store, "r", "d"), "r")
	assert.Equal(t, childrenIds(store, "r", "a"), []string{})
}

func TestStoreMergeFields(t *testing.T) {
	store := NewMemoryTreeStore()

	store.ReplaceAll("r", []*Node{
		pageNode("r", "a"),
		textNode("a", "A"),
	})

	text := "hello"
	ok := store.MergeFields("r", "a", &SetText{Id: "a", Text: &text})
	assert.Equal(t, ok, true)
	a, _ := store.Get("r", "a")
	assert.Equal(t, a.Content.(*TextContent).Text, "hello")
	assert.Equal(t, a.ParentId, "r")

	ok = store.MergeFields("r", "missing", &SetText{Id: "missing", Text: &text})
	assert.Equal(t, ok, false)
}

func TestStoreDetails(t *testing.T) {
	store := NewMemoryTreeStore()

	store.SetDetails("r", map[string]map[string]any{
		"r": {"name": "Page", "icon": "x"},
	})
	store.MergeDetails("r", "r", map[string]any{"name": "Renamed"})
	store.MergeDetails("r", "o", map[string]any{"name": "Other"})

	assert.Equal(t, store.Details("r", "r"), map[string]any{"name": "Renamed", "icon": "x"})
	assert.Equal(t, store.Details("r", "o"), map[string]any{"name": "Other"})
	assert.Equal(t, store.Details("r", "missing"), map[string]any{})

	// details survive a node replace
	store.ReplaceAll("r", []*Node{pageNode("r")})
	assert.Equal(t, store.Details("r", "o"), map[string]any{"name": "Other"})

	store.Clear("r")
	assert.Equal(t, store.Details("r", "o"), map[string]any{})
	assert.Equal(t, store.NodeCount("r"), 0)
}

func TestStoreRenumber(t *testing.T) {
	store := NewMemoryTreeStore()

	numbered := func(id string) *Node {
		return NewNode(id, &TextContent{Style: TextStyleNumbered})
	}

	store.ReplaceAll("r", []*Node{
		pageNode("r", "a", "b", "c", "d", "e"),
		numbered("a"),
		numbered("b"),
		textNode("c", "C"),
		numbered("d"),
		NewNode("e", &TextContent{Style: TextStyleNumbered}),
	})
	store.Renumber("r")

	number := func(id string) int {
		node, _ := store.Get("r", id)
		return node.Number
	}
	assert.Equal(t, number("a"), 1)
	assert.Equal(t, number("b"), 2)
	assert.Equal(t, number("c"), 0)
	assert.Equal(t, number("d"), 1)
	assert.Equal(t, number("e"), 2)
	assert.Equal(t, number("r"), 0)
}

func TestStoreWalk(t *testing.T) {
	store := NewMemoryTreeStore()

	store.ReplaceAll("r", []*Node{
		pageNode("r", "a", "b"),
		textNode("a", "A", "c"),
		textNode("b", "B"),
		textNode("c", "C"),
	})

	ids := []string{}
	depths := []int{}
	store.Walk("r", func(node *Node, depth int) {
		ids = append(ids, node.Id)
		depths = append(depths, depth)
	})
	assert.Equal(t, ids, []string{"r", "a", "c", "b"})
	assert.Equal(t, depths, []int{0, 1, 2, 1})
}

func TestStoreChangeCallback(t *testing.T) {
	store := NewMemoryTreeStore()

	changes := []string{}
	remove := store.AddChangeCallback(func(rootId string) {
		changes = append(changes, rootId)
	})

	store.Insert("r", textNode("a", "A"), "", -1)
	store.Remove("r", "missing")
	assert.Equal(t, changes, []string{"r"})

	remove()
	store.Insert("r", textNode("b", "B"), "", -1)
	assert.Equal(t, changes, []string{"r"})
}

func TestStoreHoldChanges(t *testing.T) {
	store := NewMemoryTreeStore()

	changes := []string{}
	store.AddChangeCallback(func(rootId string) {
		changes = append(changes, rootId)
	})

	store.Hold("r")
	store.Hold("r")
	store.Insert("r", textNode("a", "A"), "", -1)
	store.Insert("r", textNode("b", "B"), "", -1)
	// other roots are not held
	store.Insert("s", textNode("a", "A"), "", -1)
	assert.Equal(t, changes, []string{"s"})

	store.Release("r")
	assert.Equal(t, changes, []string{"s"})
	// held changes are reported once
	store.Release("r")
	assert.Equal(t, changes, []string{"s", "r"})

	// nothing changed while held
	store.Hold("r")
	store.Release("r")
	assert.Equal(t, changes, []string{"s", "r"})

	store.Insert("r", textNode("c", "C"), "", -1)
	assert.Equal(t, changes, []string{"s", "r", "r"})
}
