package blocksync

import (
	"fmt"

	"golang.org/x/exp/slices"
)

type BlockType int

const (
	BlockTypeEmpty    BlockType = 0
	BlockTypeText     BlockType = 1
	BlockTypeTitle    BlockType = 2
	BlockTypePage     BlockType = 3
	BlockTypeFile     BlockType = 4
	BlockTypeBookmark BlockType = 5
	BlockTypeDiv      BlockType = 6
	BlockTypeDataview BlockType = 7
	BlockTypeLink     BlockType = 8
	BlockTypeLayout   BlockType = 9
	BlockTypeIcon     BlockType = 10
)

func (self BlockType) String() string {
	switch self {
	case BlockTypeText:
		return "text"
	case BlockTypeTitle:
		return "title"
	case BlockTypePage:
		return "page"
	case BlockTypeFile:
		return "file"
	case BlockTypeBookmark:
		return "bookmark"
	case BlockTypeDiv:
		return "div"
	case BlockTypeDataview:
		return "dataview"
	case BlockTypeLink:
		return "link"
	case BlockTypeLayout:
		return "layout"
	case BlockTypeIcon:
		return "icon"
	default:
		return "empty"
	}
}

type TextStyle int

const (
	TextStyleParagraph TextStyle = 0
	TextStyleHeader1   TextStyle = 1
	TextStyleHeader2   TextStyle = 2
	TextStyleHeader3   TextStyle = 3
	TextStyleHeader4   TextStyle = 4
	TextStyleQuote     TextStyle = 5
	TextStyleCode      TextStyle = 6
	TextStyleTitle     TextStyle = 7
	TextStyleCheckbox  TextStyle = 8
	TextStyleMarked    TextStyle = 9
	TextStyleNumbered  TextStyle = 10
	TextStyleToggle    TextStyle = 11
)

type PageType int

const (
	PageTypePage    PageType = 0
	PageTypeProfile PageType = 1
	PageTypeSet     PageType = 2
	PageTypeHome    PageType = 3
)

// sets and the home dashboard render their own header
func (self PageType) SupportsTitle() bool {
	switch self {
	case PageTypeSet, PageTypeHome:
		return false
	default:
		return true
	}
}

// the synthetic title id for a root. the engine never sends this node.
func TitleId(rootId string) string {
	return fmt.Sprintf("%s-title", rootId)
}

type Range struct {
	From int
	To   int
}

type Mark struct {
	Type  int
	Param string
	Range Range
}

// kind-specific payload of a node
type Content interface {
	BlockType() BlockType
	cloneContent() Content
}

type EmptyContent struct{}

func (self *EmptyContent) BlockType() BlockType { return BlockTypeEmpty }
func (self *EmptyContent) cloneContent() Content { return &EmptyContent{} }

type TitleContent struct{}

func (self *TitleContent) BlockType() BlockType { return BlockTypeTitle }
func (self *TitleContent) cloneContent() Content { return &TitleContent{} }

type TextContent struct {
	Text    string
	Marks   []Mark
	Style   TextStyle
	Checked bool
	Color   string
}

func (self *TextContent) BlockType() BlockType { return BlockTypeText }
func (self *TextContent) cloneContent() Content {
	c := *self
	c.Marks = slices.Clone(self.Marks)
	return &c
}

type PageContent struct {
	Style int
}

func (self *PageContent) BlockType() BlockType { return BlockTypePage }
func (self *PageContent) cloneContent() Content {
	c := *self
	return &c
}

type FileContent struct {
	Name  string
	Hash  string
	Mime  string
	Size  int64
	Type  int
	State int
}

func (self *FileContent) BlockType() BlockType { return BlockTypeFile }
func (self *FileContent) cloneContent() Content {
	c := *self
	return &c
}

type BookmarkContent struct {
	Url         string
	Title       string
	Description string
	ImageHash   string
	FaviconHash string
	Type        int
}

func (self *BookmarkContent) BlockType() BlockType { return BlockTypeBookmark }
func (self *BookmarkContent) cloneContent() Content {
	c := *self
	return &c
}

type DivContent struct {
	Style int
}

func (self *DivContent) BlockType() BlockType { return BlockTypeDiv }
func (self *DivContent) cloneContent() Content {
	c := *self
	return &c
}

const DefaultLinkName = "Untitled"

type LinkContent struct {
	TargetBlockId string
	Style         int
	Fields        map[string]any
}

func (self *LinkContent) BlockType() BlockType { return BlockTypeLink }
func (self *LinkContent) cloneContent() Content {
	c := *self
	c.Fields = cloneFields(self.Fields)
	return &c
}

type View struct {
	Id     string
	Name   string
	Type   int
	Fields map[string]any
}

func (self *View) Clone() *View {
	c := *self
	c.Fields = cloneFields(self.Fields)
	return &c
}

type DataviewContent struct {
	SchemaUrl string
	Views     []*View
}

func (self *DataviewContent) BlockType() BlockType { return BlockTypeDataview }
func (self *DataviewContent) cloneContent() Content {
	c := *self
	c.Views = make([]*View, 0, len(self.Views))
	for _, view := range self.Views {
		c.Views = append(c.Views, view.Clone())
	}
	return &c
}

type LayoutContent struct {
	Style int
}

func (self *LayoutContent) BlockType() BlockType { return BlockTypeLayout }
func (self *LayoutContent) cloneContent() Content {
	c := *self
	return &c
}

type IconContent struct {
	Name string
}

func (self *IconContent) BlockType() BlockType { return BlockTypeIcon }
func (self *IconContent) cloneContent() Content {
	c := *self
	return &c
}

// one element of a synchronized tree
// `ParentId` is a back-reference maintained by the store, not an ownership edge
type Node struct {
	Id              string
	ParentId        string
	ChildrenIds     []string
	Content         Content
	Fields          map[string]any
	BackgroundColor string
	Align           int

	// derived ordinal for numbered list items, see `Renumber`
	Number int
}

func NewNode(id string, content Content) *Node {
	if content == nil {
		content = &EmptyContent{}
	}
	return &Node{
		Id:          id,
		ChildrenIds: []string{},
		Content:     content,
		Fields:      map[string]any{},
	}
}

func (self *Node) Type() BlockType {
	if self.Content == nil {
		return BlockTypeEmpty
	}
	return self.Content.BlockType()
}

func (self *Node) Clone() *Node {
	c := *self
	c.ChildrenIds = slices.Clone(self.ChildrenIds)
	if c.ChildrenIds == nil {
		c.ChildrenIds = []string{}
	}
	c.Fields = cloneFields(self.Fields)
	if self.Content != nil {
		c.Content = self.Content.cloneContent()
	}
	return &c
}

func (self *Node) isNumbered() bool {
	if text, ok := self.Content.(*TextContent); ok {
		return text.Style == TextStyleNumbered
	}
	return false
}

func (self *Node) String() string {
	return fmt.Sprintf("%s(%s)", self.Type(), self.Id)
}

// shallow per key, values are immutable once decoded
func cloneFields(fields map[string]any) map[string]any {
	c := make(map[string]any, len(fields))
	for k, v := range fields {
		c[k] = v
	}
	return c
}
