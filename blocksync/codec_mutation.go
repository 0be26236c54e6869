package blocksync

import (
	"errors"
	"fmt"
)

// a message that could not be decoded into a known variant.
// the reconciler reports and skips it.
type InvalidMutation struct {
	Type   MutationKind
	Reason string
}

func (self *InvalidMutation) Kind() MutationKind { return self.Type }

func invalidMutation(kind MutationKind, format string, a ...any) *InvalidMutation {
	return &InvalidMutation{
		Type:   kind,
		Reason: fmt.Sprintf(format, a...),
	}
}

func decodeMutation(kind MutationKind, r structFields) Mutation {
	switch kind {
	case MutationAccountShow:
		accountFields, ok := r.Struct("account")
		if !ok {
			return invalidMutation(kind, "missing account")
		}
		return &AccountShow{
			Index: r.Int("index"),
			Account: &Account{
				Id:   accountFields.String("id"),
				Name: accountFields.String("name"),
			},
		}

	case MutationShowRoot:
		nodes, err := decodeNodes(r)
		if err != nil {
			return invalidMutation(kind, "%s", err)
		}
		details := map[string]map[string]any{}
		detailValues, _ := r.List("details")
		for _, detailValue := range detailValues {
			if detailFields, ok := structValue(detailValue); ok {
				details[detailFields.String("id")] = detailFields.Map("details")
			}
		}
		return &ShowRoot{
			RootId:   r.String("rootId"),
			PageType: PageType(r.Int("type")),
			Nodes:    nodes,
			Details:  details,
		}

	case MutationNodeAdd:
		nodes, err := decodeNodes(r)
		if err != nil {
			return invalidMutation(kind, "%s", err)
		}
		return &NodeAdd{
			Nodes: nodes,
		}

	case MutationNodeDelete:
		return &NodeDelete{
			NodeIds: r.Strings("blockIds"),
		}

	case MutationSetChildrenOrder:
		return &SetChildrenOrder{
			Id:          r.String("id"),
			ChildrenIds: r.Strings("childrenIds"),
		}

	case MutationSetDetails:
		return &SetDetails{
			Id:      r.String("id"),
			Details: r.Map("details"),
		}

	case MutationSetFields:
		return &SetFields{
			Id:     r.String("id"),
			Fields: r.Map("fields"),
		}

	case MutationSetLink:
		return &SetLink{
			Id:            r.String("id"),
			TargetBlockId: r.OptionalString("targetBlockId"),
			Style:         r.OptionalInt("style"),
			Fields:        r.OptionalMap("fields"),
		}

	case MutationSetText:
		setText := &SetText{
			Id:      r.String("id"),
			Text:    r.OptionalString("text"),
			Checked: r.OptionalBool("checked"),
			Color:   r.OptionalString("color"),
		}
		if style := r.OptionalInt("style"); style != nil {
			textStyle := TextStyle(*style)
			setText.Style = &textStyle
		}
		if marksWrapper, ok := r.Struct("marks"); ok {
			marks := []Mark{}
			if marksFields, ok := marksWrapper.Struct("value"); ok {
				marks = decodeMarks(marksFields)
			}
			setText.Marks = &marks
		}
		return setText

	case MutationSetDiv:
		return &SetDiv{
			Id:    r.String("id"),
			Style: r.OptionalInt("style"),
		}

	case MutationSetFile:
		return &SetFile{
			Id:    r.String("id"),
			Name:  r.OptionalString("name"),
			Hash:  r.OptionalString("hash"),
			Mime:  r.OptionalString("mime"),
			Size:  r.OptionalInt64("size"),
			Type:  r.OptionalInt("type"),
			State: r.OptionalInt("state"),
		}

	case MutationSetBookmark:
		return &SetBookmark{
			Id:          r.String("id"),
			Url:         r.OptionalString("url"),
			Title:       r.OptionalString("title"),
			Description: r.OptionalString("description"),
			ImageHash:   r.OptionalString("imageHash"),
			FaviconHash: r.OptionalString("faviconHash"),
			Type:        r.OptionalInt("type"),
		}

	case MutationSetBackgroundColor:
		return &SetBackgroundColor{
			Id:              r.String("id"),
			BackgroundColor: r.String("backgroundColor"),
		}

	case MutationSetAlign:
		return &SetAlign{
			Id:    r.String("id"),
			Align: r.Int("align"),
		}

	case MutationSetDataviewView:
		viewFields, ok := r.Struct("view")
		if !ok {
			return invalidMutation(kind, "missing view")
		}
		return &SetDataviewView{
			Id:   r.String("id"),
			View: decodeView(viewFields),
		}

	case MutationProcessNew, MutationProcessUpdate, MutationProcessDone:
		processFields, ok := r.Struct("process")
		if !ok {
			return invalidMutation(kind, "missing process")
		}
		progressFields, _ := processFields.Struct("progress")
		return &ProcessEvent{
			EventKind: kind,
			Process: &Process{
				Id:    processFields.String("id"),
				Type:  processFields.Int("type"),
				State: ProcessState(processFields.Int("state")),
				Done:  int64(progressFields.Number("done")),
				Total: int64(progressFields.Number("total")),
			},
		}

	default:
		return invalidMutation(kind, "unknown message type")
	}
}

func encodeMutation(mutation Mutation) (map[string]any, error) {
	switch v := mutation.(type) {
	case *AccountShow:
		m := map[string]any{
			"index": v.Index,
		}
		if v.Account != nil {
			m["account"] = map[string]any{
				"id":   v.Account.Id,
				"name": v.Account.Name,
			}
		}
		return m, nil

	case *ShowRoot:
		details := []any{}
		for objectId, objectDetails := range v.Details {
			details = append(details, map[string]any{
				"id":      objectId,
				"details": objectDetails,
			})
		}
		return map[string]any{
			"rootId":  v.RootId,
			"type":    int(v.PageType),
			"blocks":  encodeNodes(v.Nodes),
			"details": details,
		}, nil

	case *NodeAdd:
		return map[string]any{
			"blocks": encodeNodes(v.Nodes),
		}, nil

	case *NodeDelete:
		return map[string]any{
			"blockIds": stringsToList(v.NodeIds),
		}, nil

	case *SetChildrenOrder:
		return map[string]any{
			"id":          v.Id,
			"childrenIds": stringsToList(v.ChildrenIds),
		}, nil

	case *SetDetails:
		return map[string]any{
			"id":      v.Id,
			"details": v.Details,
		}, nil

	case *SetFields:
		m := map[string]any{
			"id": v.Id,
		}
		if v.Fields != nil {
			m["fields"] = v.Fields
		}
		return m, nil

	case *SetLink:
		m := map[string]any{
			"id": v.Id,
		}
		if v.TargetBlockId != nil {
			m["targetBlockId"] = wrapValue(*v.TargetBlockId)
		}
		if v.Style != nil {
			m["style"] = wrapValue(*v.Style)
		}
		if v.Fields != nil {
			m["fields"] = wrapValue(v.Fields)
		}
		return m, nil

	case *SetText:
		m := map[string]any{
			"id": v.Id,
		}
		if v.Text != nil {
			m["text"] = wrapValue(*v.Text)
		}
		if v.Marks != nil {
			m["marks"] = wrapValue(encodeMarks(*v.Marks))
		}
		if v.Style != nil {
			m["style"] = wrapValue(int(*v.Style))
		}
		if v.Checked != nil {
			m["checked"] = wrapValue(*v.Checked)
		}
		if v.Color != nil {
			m["color"] = wrapValue(*v.Color)
		}
		return m, nil

	case *SetDiv:
		m := map[string]any{
			"id": v.Id,
		}
		if v.Style != nil {
			m["style"] = wrapValue(*v.Style)
		}
		return m, nil

	case *SetFile:
		m := map[string]any{
			"id": v.Id,
		}
		if v.Name != nil {
			m["name"] = wrapValue(*v.Name)
		}
		if v.Hash != nil {
			m["hash"] = wrapValue(*v.Hash)
		}
		if v.Mime != nil {
			m["mime"] = wrapValue(*v.Mime)
		}
		if v.Size != nil {
			m["size"] = wrapValue(*v.Size)
		}
		if v.Type != nil {
			m["type"] = wrapValue(*v.Type)
		}
		if v.State != nil {
			m["state"] = wrapValue(*v.State)
		}
		return m, nil

	case *SetBookmark:
		m := map[string]any{
			"id": v.Id,
		}
		if v.Url != nil {
			m["url"] = wrapValue(*v.Url)
		}
		if v.Title != nil {
			m["title"] = wrapValue(*v.Title)
		}
		if v.Description != nil {
			m["description"] = wrapValue(*v.Description)
		}
		if v.ImageHash != nil {
			m["imageHash"] = wrapValue(*v.ImageHash)
		}
		if v.FaviconHash != nil {
			m["faviconHash"] = wrapValue(*v.FaviconHash)
		}
		if v.Type != nil {
			m["type"] = wrapValue(*v.Type)
		}
		return m, nil

	case *SetBackgroundColor:
		return map[string]any{
			"id":              v.Id,
			"backgroundColor": v.BackgroundColor,
		}, nil

	case *SetAlign:
		return map[string]any{
			"id":    v.Id,
			"align": v.Align,
		}, nil

	case *SetDataviewView:
		m := map[string]any{
			"id": v.Id,
		}
		if v.View != nil {
			m["view"] = encodeView(v.View)
		}
		return m, nil

	case *ProcessEvent:
		if v.Process == nil {
			return nil, errors.New("Process event is missing the process.")
		}
		return map[string]any{
			"process": map[string]any{
				"id":    v.Process.Id,
				"type":  v.Process.Type,
				"state": int(v.Process.State),
				"progress": map[string]any{
					"done":  v.Process.Done,
					"total": v.Process.Total,
				},
			},
		}, nil

	default:
		return nil, fmt.Errorf("Unknown mutation: %T", v)
	}
}

func decodeNodes(r structFields) ([]*Node, error) {
	blockValues, ok := r.List("blocks")
	if !ok {
		return nil, errors.New("missing blocks")
	}
	nodes := make([]*Node, 0, len(blockValues))
	for i, blockValue := range blockValues {
		blockFields, ok := structValue(blockValue)
		if !ok {
			return nil, fmt.Errorf("block %d is not a struct", i)
		}
		node, err := decodeNode(blockFields)
		if err != nil {
			return nil, fmt.Errorf("block %d: %s", i, err)
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

// resolves the kind-specific payload into the canonical node shape
func decodeNode(r structFields) (*Node, error) {
	id, ok := r.RequireString("id")
	if !ok || id == "" {
		return nil, errors.New("missing id")
	}

	var content Content
	if c, ok := r.Struct("text"); ok {
		content = &TextContent{
			Text:    c.String("text"),
			Marks:   decodeMarks(c),
			Style:   TextStyle(c.Int("style")),
			Checked: c.Bool("checked"),
			Color:   c.String("color"),
		}
	} else if c, ok := r.Struct("page"); ok {
		content = &PageContent{
			Style: c.Int("style"),
		}
	} else if c, ok := r.Struct("file"); ok {
		content = &FileContent{
			Name:  c.String("name"),
			Hash:  c.String("hash"),
			Mime:  c.String("mime"),
			Size:  int64(c.Number("size")),
			Type:  c.Int("type"),
			State: c.Int("state"),
		}
	} else if c, ok := r.Struct("bookmark"); ok {
		content = &BookmarkContent{
			Url:         c.String("url"),
			Title:       c.String("title"),
			Description: c.String("description"),
			ImageHash:   c.String("imageHash"),
			FaviconHash: c.String("faviconHash"),
			Type:        c.Int("type"),
		}
	} else if c, ok := r.Struct("div"); ok {
		content = &DivContent{
			Style: c.Int("style"),
		}
	} else if c, ok := r.Struct("link"); ok {
		linkFields := c.Map("fields")
		if linkFields == nil {
			linkFields = map[string]any{}
		}
		if name, _ := linkFields["name"].(string); name == "" {
			linkFields["name"] = DefaultLinkName
		}
		content = &LinkContent{
			TargetBlockId: c.String("targetBlockId"),
			Style:         c.Int("style"),
			Fields:        linkFields,
		}
	} else if c, ok := r.Struct("dataview"); ok {
		views := []*View{}
		viewValues, _ := c.List("views")
		for _, viewValue := range viewValues {
			if viewFields, ok := structValue(viewValue); ok {
				views = append(views, decodeView(viewFields))
			}
		}
		content = &DataviewContent{
			SchemaUrl: c.String("schemaURL"),
			Views:     views,
		}
	} else if c, ok := r.Struct("layout"); ok {
		content = &LayoutContent{
			Style: c.Int("style"),
		}
	} else if c, ok := r.Struct("icon"); ok {
		content = &IconContent{
			Name: c.String("name"),
		}
	}

	node := NewNode(id, content)
	node.ChildrenIds = r.Strings("childrenIds")
	if f := r.Map("fields"); f != nil {
		node.Fields = f
	}
	node.BackgroundColor = r.String("backgroundColor")
	node.Align = r.Int("align")
	return node, nil
}

func encodeNodes(nodes []*Node) []any {
	out := make([]any, 0, len(nodes))
	for _, node := range nodes {
		out = append(out, encodeNode(node))
	}
	return out
}

func encodeNode(node *Node) map[string]any {
	m := map[string]any{
		"id":              node.Id,
		"childrenIds":     stringsToList(node.ChildrenIds),
		"fields":          cloneFields(node.Fields),
		"backgroundColor": node.BackgroundColor,
		"align":           node.Align,
	}
	switch c := node.Content.(type) {
	case *TextContent:
		text := encodeMarks(c.Marks)
		text["text"] = c.Text
		text["style"] = int(c.Style)
		text["checked"] = c.Checked
		text["color"] = c.Color
		m["text"] = text
	case *PageContent:
		m["page"] = map[string]any{
			"style": c.Style,
		}
	case *FileContent:
		m["file"] = map[string]any{
			"name":  c.Name,
			"hash":  c.Hash,
			"mime":  c.Mime,
			"size":  c.Size,
			"type":  c.Type,
			"state": c.State,
		}
	case *BookmarkContent:
		m["bookmark"] = map[string]any{
			"url":         c.Url,
			"title":       c.Title,
			"description": c.Description,
			"imageHash":   c.ImageHash,
			"faviconHash": c.FaviconHash,
			"type":        c.Type,
		}
	case *DivContent:
		m["div"] = map[string]any{
			"style": c.Style,
		}
	case *LinkContent:
		m["link"] = map[string]any{
			"targetBlockId": c.TargetBlockId,
			"style":         c.Style,
			"fields":        cloneFields(c.Fields),
		}
	case *DataviewContent:
		views := make([]any, 0, len(c.Views))
		for _, view := range c.Views {
			views = append(views, encodeView(view))
		}
		m["dataview"] = map[string]any{
			"schemaURL": c.SchemaUrl,
			"views":     views,
		}
	case *LayoutContent:
		m["layout"] = map[string]any{
			"style": c.Style,
		}
	case *IconContent:
		m["icon"] = map[string]any{
			"name": c.Name,
		}
	}
	return m
}

// marks are {marks: [{type, param, range: {from, to}}]}
func decodeMarks(r structFields) []Mark {
	marks := []Mark{}
	markValues, _ := r.List("marks")
	for _, markValue := range markValues {
		markFields, ok := structValue(markValue)
		if !ok {
			continue
		}
		rangeFields, _ := markFields.Struct("range")
		marks = append(marks, Mark{
			Type:  markFields.Int("type"),
			Param: markFields.String("param"),
			Range: Range{
				From: rangeFields.Int("from"),
				To:   rangeFields.Int("to"),
			},
		})
	}
	return marks
}

func encodeMarks(marks []Mark) map[string]any {
	markValues := make([]any, 0, len(marks))
	for _, mark := range marks {
		markValues = append(markValues, map[string]any{
			"type":  mark.Type,
			"param": mark.Param,
			"range": map[string]any{
				"from": mark.Range.From,
				"to":   mark.Range.To,
			},
		})
	}
	return map[string]any{
		"marks": markValues,
	}
}

func decodeView(r structFields) *View {
	view := &View{
		Id:     r.String("id"),
		Name:   r.String("name"),
		Type:   r.Int("type"),
		Fields: r.Map("fields"),
	}
	if view.Fields == nil {
		view.Fields = map[string]any{}
	}
	return view
}

func encodeView(view *View) map[string]any {
	return map[string]any{
		"id":     view.Id,
		"name":   view.Name,
		"type":   view.Type,
		"fields": cloneFields(view.Fields),
	}
}
