package blocksync

import (
	"errors"
	"testing"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/go-playground/assert/v2"
)

func marshalStruct(t *testing.T, m map[string]any) []byte {
	s, err := structpb.NewStruct(m)
	assert.Equal(t, err, nil)
	b, err := proto.Marshal(s)
	assert.Equal(t, err, nil)
	return b
}

func TestCodecCommand(t *testing.T) {
	codec := NewProtoCodec()

	b, err := codec.EncodeCommand(CommandBlockOpen, Payload{"id": "r", "depth": 2, "flags": []any{"a", true}})
	assert.Equal(t, err, nil)

	payload, err := codec.DecodeCommand(CommandBlockOpen, b)
	assert.Equal(t, err, nil)
	assert.Equal(t, payload["id"], "r")
	assert.Equal(t, payload["depth"], float64(2))
	assert.Equal(t, payload["flags"], []any{"a", true})

	// nil is an empty payload
	b, err = codec.EncodeCommand(CommandBlockOpen, nil)
	assert.Equal(t, err, nil)
	payload, err = codec.DecodeCommand(CommandBlockOpen, b)
	assert.Equal(t, err, nil)
	assert.Equal(t, len(payload), 0)
}

func TestCodecCommandUnsupportedValue(t *testing.T) {
	codec := NewProtoCodec()

	_, err := codec.EncodeCommand(CommandBlockOpen, Payload{"ids": []string{"a"}})
	var encodingErr *EncodingError
	assert.Equal(t, errors.As(err, &encodingErr), true)
	assert.Equal(t, encodingErr.Command, CommandBlockOpen)
}

func TestCodecResponse(t *testing.T) {
	codec := NewProtoCodec()

	b, err := codec.EncodeResponse(CommandBlockCreate, &Response{
		Data: map[string]any{"blockId": "b"},
		Event: NewEventBatch("r",
			&NodeAdd{Nodes: []*Node{textNode("b", "B")}},
			&SetChildrenOrder{Id: "r", ChildrenIds: []string{"a", "b"}},
		),
	})
	assert.Equal(t, err, nil)

	response, err := codec.DecodeResponse(CommandBlockCreate, b)
	assert.Equal(t, err, nil)
	assert.Equal(t, response.Error.IsError(), false)
	assert.Equal(t, response.Data["blockId"], "b")
	assert.NotEqual(t, response.Event, nil)
	assert.Equal(t, response.Event.RootId, "r")
	assert.Equal(t, kinds(response.Event.Messages), []MutationKind{MutationNodeAdd, MutationSetChildrenOrder})

	nodeAdd := response.Event.Messages[0].Mutation.(*NodeAdd)
	assert.Equal(t, nodeAdd.Nodes[0].Id, "b")
	assert.Equal(t, nodeAdd.Nodes[0].Content.(*TextContent).Text, "B")
}

func TestCodecResponseMissingError(t *testing.T) {
	codec := NewProtoCodec()

	_, err := codec.DecodeResponse(CommandBlockOpen, marshalStruct(t, map[string]any{
		"data": map[string]any{},
	}))
	var decodingErr *DecodingError
	assert.Equal(t, errors.As(err, &decodingErr), true)
	assert.Equal(t, decodingErr.Target, CommandBlockOpen)

	_, err = codec.DecodeResponse(CommandBlockOpen, []byte{0xff, 0xff, 0xff})
	assert.Equal(t, errors.As(err, &decodingErr), true)

	// the error object must carry a string or number code
	for _, errorObject := range []map[string]any{
		{},
		{"description": "d"},
		{"code": nil},
		{"code": true},
		{"code": map[string]any{"value": 1}},
		{"code": []any{1}},
	} {
		_, err = codec.DecodeResponse(CommandBlockOpen, marshalStruct(t, map[string]any{
			"error": errorObject,
		}))
		decodingErr = nil
		assert.Equal(t, errors.As(err, &decodingErr), true)
		assert.Equal(t, decodingErr.Target, CommandBlockOpen)
	}
}

func TestCodecResponseCode(t *testing.T) {
	codec := NewProtoCodec()

	code := func(c any) ResponseError {
		response, err := codec.DecodeResponse(CommandBlockOpen, marshalStruct(t, map[string]any{
			"error": map[string]any{"code": c, "description": "d"},
		}))
		assert.Equal(t, err, nil)
		return response.Error
	}

	assert.Equal(t, code(0).IsError(), false)
	assert.Equal(t, code("0").IsError(), false)
	assert.Equal(t, code("").IsError(), false)
	assert.Equal(t, code(3).Code, "3")
	assert.Equal(t, code(3).Description, "d")
	assert.Equal(t, code("BAD_INPUT").Code, "BAD_INPUT")
}

func TestCodecEvent(t *testing.T) {
	codec := NewProtoCodec()

	text := NewNode("a", &TextContent{
		Text:  "hello",
		Style: TextStyleNumbered,
		Marks: []Mark{{Type: 2, Param: "https://a", Range: Range{From: 0, To: 5}}},
	})
	text.Fields = map[string]any{"width": 0.5}
	text.BackgroundColor = "red"

	batch := NewEventBatch("r",
		&ShowRoot{
			RootId:   "r",
			PageType: PageTypeProfile,
			Nodes:    []*Node{pageNode("r", "a"), text},
			Details:  map[string]map[string]any{"r": {"name": "Page"}},
		},
		&SetText{Id: "a", Checked: ptr(true)},
		&SetLink{Id: "l", Fields: map[string]any{}},
		&ProcessEvent{EventKind: MutationProcessUpdate, Process: &Process{Id: "p", State: ProcessStateRunning, Done: 3, Total: 9}},
	)
	batch.Messages[1].ErrorCode = "5"

	b, err := codec.EncodeEvent(batch)
	assert.Equal(t, err, nil)

	decoded, err := codec.DecodeEvent(b)
	assert.Equal(t, err, nil)
	assert.Equal(t, decoded.RootId, "r")
	assert.Equal(t, len(decoded.Messages), 4)

	showRoot := decoded.Messages[0].Mutation.(*ShowRoot)
	assert.Equal(t, showRoot.RootId, "r")
	assert.Equal(t, showRoot.PageType, PageTypeProfile)
	assert.Equal(t, showRoot.Details["r"]["name"], "Page")
	assert.Equal(t, showRoot.Nodes[0].ChildrenIds, []string{"a"})
	a := showRoot.Nodes[1]
	assert.Equal(t, a.Fields["width"], 0.5)
	assert.Equal(t, a.BackgroundColor, "red")
	content := a.Content.(*TextContent)
	assert.Equal(t, content.Text, "hello")
	assert.Equal(t, content.Style, TextStyleNumbered)
	assert.Equal(t, content.Marks, []Mark{{Type: 2, Param: "https://a", Range: Range{From: 0, To: 5}}})

	// optional fields keep their presence
	assert.Equal(t, decoded.Messages[1].ErrorCode, "5")
	setText := decoded.Messages[1].Mutation.(*SetText)
	assert.Equal(t, setText.Text, nil)
	assert.Equal(t, setText.Color, nil)
	assert.Equal(t, *setText.Checked, true)

	setLink := decoded.Messages[2].Mutation.(*SetLink)
	assert.Equal(t, setLink.TargetBlockId, nil)
	assert.Equal(t, setLink.Fields, map[string]any{})

	process := decoded.Messages[3].Mutation.(*ProcessEvent)
	assert.Equal(t, process.Kind(), MutationProcessUpdate)
	assert.Equal(t, process.Process.Done, int64(3))
	assert.Equal(t, process.Process.Total, int64(9))
}

func TestCodecEventUnknownType(t *testing.T) {
	codec := NewProtoCodec()

	b := marshalStruct(t, map[string]any{
		"contextId": "r",
		"messages": []any{
			map[string]any{"type": "blockSetSomethingNew", "value": map[string]any{"id": "a"}},
			map[string]any{"type": "blockAdd", "value": map[string]any{"blocks": []any{map[string]any{}}}},
			map[string]any{"type": "blockSetAlign", "value": map[string]any{"id": "a", "align": 1}},
		},
	})
	batch, err := codec.DecodeEvent(b)
	assert.Equal(t, err, nil)
	assert.Equal(t, len(batch.Messages), 3)

	// bad messages decode to invalid mutations and do not fail the batch
	_, ok := batch.Messages[0].Mutation.(*InvalidMutation)
	assert.Equal(t, ok, true)
	_, ok = batch.Messages[1].Mutation.(*InvalidMutation)
	assert.Equal(t, ok, true)
	align := batch.Messages[2].Mutation.(*SetAlign)
	assert.Equal(t, align.Align, 1)
}

func TestCodecEventMissingContext(t *testing.T) {
	codec := NewProtoCodec()

	_, err := codec.DecodeEvent(marshalStruct(t, map[string]any{
		"messages": []any{},
	}))
	var decodingErr *DecodingError
	assert.Equal(t, errors.As(err, &decodingErr), true)
}

func TestCommandPayloads(t *testing.T) {
	codec := NewProtoCodec()

	for _, payload := range []Payload{
		BlockCreatePayload("r", "r", "a", BlockPositionAfter, NewNode("", &DivContent{Style: 1})),
		BlockUnlinkPayload("r", "a", "b"),
		BlockSetTextTextPayload("r", "a", "hi", []Mark{{Type: 1, Range: Range{From: 0, To: 2}}}),
	} {
		b, err := codec.EncodeCommand(CommandBlockCreate, payload)
		assert.Equal(t, err, nil)
		decoded, err := codec.DecodeCommand(CommandBlockCreate, b)
		assert.Equal(t, err, nil)
		assert.Equal(t, decoded["contextId"], "r")
	}

	b, err := codec.EncodeCommand(CommandBlockUnlink, BlockUnlinkPayload("r", "a", "b"))
	assert.Equal(t, err, nil)
	decoded, err := codec.DecodeCommand(CommandBlockUnlink, b)
	assert.Equal(t, err, nil)
	assert.Equal(t, decoded["blockIds"], []any{"a", "b"})
}
