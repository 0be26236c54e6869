package blocksync

import (
	"golang.org/x/exp/slices"
)

type MutationKind string

const (
	MutationAccountShow        MutationKind = "accountShow"
	MutationShowRoot           MutationKind = "blockShow"
	MutationNodeAdd            MutationKind = "blockAdd"
	MutationNodeDelete         MutationKind = "blockDelete"
	MutationSetChildrenOrder   MutationKind = "blockSetChildrenIds"
	MutationSetDetails         MutationKind = "blockSetDetails"
	MutationSetFields          MutationKind = "blockSetFields"
	MutationSetLink            MutationKind = "blockSetLink"
	MutationSetText            MutationKind = "blockSetText"
	MutationSetDiv             MutationKind = "blockSetDiv"
	MutationSetFile            MutationKind = "blockSetFile"
	MutationSetBookmark        MutationKind = "blockSetBookmark"
	MutationSetBackgroundColor MutationKind = "blockSetBackgroundColor"
	MutationSetAlign           MutationKind = "blockSetAlign"
	MutationSetDataviewView    MutationKind = "blockSetDataviewView"
	MutationProcessNew         MutationKind = "processNew"
	MutationProcessUpdate      MutationKind = "processUpdate"
	MutationProcessDone        MutationKind = "processDone"
)

// a tagged mutation variant. optional fields are pointers: nil means absent in the message.
type Mutation interface {
	Kind() MutationKind
}

// applies the fields present in a message to a copy of a node
type NodePatch interface {
	TargetId() string
	ApplyTo(node *Node)
}

type EventMessage struct {
	// non-empty means the emitting command failed and the message is dropped
	ErrorCode string
	Mutation  Mutation
}

type EventBatch struct {
	RootId   string
	Messages []*EventMessage
}

func NewEventBatch(rootId string, mutations ...Mutation) *EventBatch {
	messages := make([]*EventMessage, 0, len(mutations))
	for _, mutation := range mutations {
		messages = append(messages, &EventMessage{
			Mutation: mutation,
		})
	}
	return &EventBatch{
		RootId:   rootId,
		Messages: messages,
	}
}

type Account struct {
	Id   string
	Name string
}

type AccountShow struct {
	Index   int
	Account *Account
}

func (self *AccountShow) Kind() MutationKind { return MutationAccountShow }

// bulk replace of the whole node set of a root
type ShowRoot struct {
	RootId   string
	PageType PageType
	Nodes    []*Node
	// object id -> details
	Details map[string]map[string]any
}

func (self *ShowRoot) Kind() MutationKind { return MutationShowRoot }

type NodeAdd struct {
	Nodes []*Node
}

func (self *NodeAdd) Kind() MutationKind { return MutationNodeAdd }

type NodeDelete struct {
	NodeIds []string
}

func (self *NodeDelete) Kind() MutationKind { return MutationNodeDelete }

type SetChildrenOrder struct {
	Id          string
	ChildrenIds []string
}

func (self *SetChildrenOrder) Kind() MutationKind { return MutationSetChildrenOrder }

type SetDetails struct {
	Id      string
	Details map[string]any
}

func (self *SetDetails) Kind() MutationKind { return MutationSetDetails }

type SetFields struct {
	Id     string
	Fields map[string]any
}

func (self *SetFields) Kind() MutationKind { return MutationSetFields }
func (self *SetFields) TargetId() string  { return self.Id }
func (self *SetFields) ApplyTo(node *Node) {
	if self.Fields != nil {
		node.Fields = cloneFields(self.Fields)
	}
}

type SetLink struct {
	Id            string
	TargetBlockId *string
	Style         *int
	Fields        map[string]any
}

func (self *SetLink) Kind() MutationKind { return MutationSetLink }
func (self *SetLink) TargetId() string  { return self.Id }
func (self *SetLink) ApplyTo(node *Node) {
	content, ok := node.Content.(*LinkContent)
	if !ok {
		return
	}
	if self.TargetBlockId != nil {
		content.TargetBlockId = *self.TargetBlockId
	}
	if self.Style != nil {
		content.Style = *self.Style
	}
	if self.Fields != nil {
		content.Fields = cloneFields(self.Fields)
		if name, _ := content.Fields["name"].(string); name == "" {
			content.Fields["name"] = DefaultLinkName
		}
	}
}

// text, marks, style, checked and color are independently optional
type SetText struct {
	Id      string
	Text    *string
	Marks   *[]Mark
	Style   *TextStyle
	Checked *bool
	Color   *string
}

func (self *SetText) Kind() MutationKind { return MutationSetText }
func (self *SetText) TargetId() string  { return self.Id }
func (self *SetText) ApplyTo(node *Node) {
	content, ok := node.Content.(*TextContent)
	if !ok {
		return
	}
	if self.Text != nil {
		content.Text = *self.Text
	}
	if self.Marks != nil {
		content.Marks = slices.Clone(*self.Marks)
	}
	if self.Style != nil {
		content.Style = *self.Style
	}
	if self.Checked != nil {
		content.Checked = *self.Checked
	}
	if self.Color != nil {
		content.Color = *self.Color
	}
}

type SetDiv struct {
	Id    string
	Style *int
}

func (self *SetDiv) Kind() MutationKind { return MutationSetDiv }
func (self *SetDiv) TargetId() string  { return self.Id }
func (self *SetDiv) ApplyTo(node *Node) {
	content, ok := node.Content.(*DivContent)
	if !ok {
		return
	}
	if self.Style != nil {
		content.Style = *self.Style
	}
}

type SetFile struct {
	Id    string
	Name  *string
	Hash  *string
	Mime  *string
	Size  *int64
	Type  *int
	State *int
}

func (self *SetFile) Kind() MutationKind { return MutationSetFile }
func (self *SetFile) TargetId() string  { return self.Id }
func (self *SetFile) ApplyTo(node *Node) {
	content, ok := node.Content.(*FileContent)
	if !ok {
		return
	}
	if self.Name != nil {
		content.Name = *self.Name
	}
	if self.Hash != nil {
		content.Hash = *self.Hash
	}
	if self.Mime != nil {
		content.Mime = *self.Mime
	}
	if self.Size != nil {
		content.Size = *self.Size
	}
	if self.Type != nil {
		content.Type = *self.Type
	}
	if self.State != nil {
		content.State = *self.State
	}
}

type SetBookmark struct {
	Id          string
	Url         *string
	Title       *string
	Description *string
	ImageHash   *string
	FaviconHash *string
	Type        *int
}

func (self *SetBookmark) Kind() MutationKind { return MutationSetBookmark }
func (self *SetBookmark) TargetId() string  { return self.Id }
func (self *SetBookmark) ApplyTo(node *Node) {
	content, ok := node.Content.(*BookmarkContent)
	if !ok {
		return
	}
	if self.Url != nil {
		content.Url = *self.Url
	}
	if self.Title != nil {
		content.Title = *self.Title
	}
	if self.Description != nil {
		content.Description = *self.Description
	}
	if self.ImageHash != nil {
		content.ImageHash = *self.ImageHash
	}
	if self.FaviconHash != nil {
		content.FaviconHash = *self.FaviconHash
	}
	if self.Type != nil {
		content.Type = *self.Type
	}
}

type SetBackgroundColor struct {
	Id              string
	BackgroundColor string
}

func (self *SetBackgroundColor) Kind() MutationKind { return MutationSetBackgroundColor }
func (self *SetBackgroundColor) TargetId() string  { return self.Id }
func (self *SetBackgroundColor) ApplyTo(node *Node) {
	node.BackgroundColor = self.BackgroundColor
}

type SetAlign struct {
	Id    string
	Align int
}

func (self *SetAlign) Kind() MutationKind { return MutationSetAlign }
func (self *SetAlign) TargetId() string  { return self.Id }
func (self *SetAlign) ApplyTo(node *Node) {
	node.Align = self.Align
}

// upserts one view of a dataview by view id
type SetDataviewView struct {
	Id   string
	View *View
}

func (self *SetDataviewView) Kind() MutationKind { return MutationSetDataviewView }
func (self *SetDataviewView) TargetId() string  { return self.Id }
func (self *SetDataviewView) ApplyTo(node *Node) {
	content, ok := node.Content.(*DataviewContent)
	if !ok || self.View == nil {
		return
	}
	i := slices.IndexFunc(content.Views, func(view *View) bool {
		return view.Id == self.View.Id
	})
	if i < 0 {
		content.Views = append(content.Views, self.View.Clone())
		return
	}
	view := content.Views[i]
	if self.View.Name != "" {
		view.Name = self.View.Name
	}
	view.Type = self.View.Type
	for k, v := range self.View.Fields {
		view.Fields[k] = v
	}
}

type ProcessState int

const (
	ProcessStateNone     ProcessState = 0
	ProcessStateRunning  ProcessState = 1
	ProcessStateDone     ProcessState = 2
	ProcessStateCanceled ProcessState = 3
	ProcessStateError    ProcessState = 4
)

type Process struct {
	Id    string
	Type  int
	State ProcessState
	Done  int64
	Total int64
}

// processNew, processUpdate and processDone share a shape
type ProcessEvent struct {
	EventKind MutationKind
	Process   *Process
}

func (self *ProcessEvent) Kind() MutationKind { return self.EventKind }
