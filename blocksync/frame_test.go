package blocksync

import (
	"testing"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/go-playground/assert/v2"
)

func TestFrameCodec(t *testing.T) {
	for _, frame := range []*Frame{
		{FrameType: FrameTypeRequest, RequestId: NewId(), Method: CommandBlockOpen, Body: []byte("request")},
		{FrameType: FrameTypeResponse, RequestId: NewId(), Method: CommandBlockOpen, Body: []byte("response")},
		{FrameType: FrameTypeEvent, Body: []byte("event")},
		{FrameType: FrameTypeEvent, Body: []byte{}},
	} {
		decoded, err := DecodeFrame(EncodeFrame(frame))
		assert.Equal(t, err, nil)
		assert.Equal(t, decoded, frame)
	}
}

func TestFrameUnknownField(t *testing.T) {
	b := EncodeFrame(&Frame{FrameType: FrameTypeEvent, Body: []byte("event")})
	b = protowire.AppendTag(b, 15, protowire.BytesType)
	b = protowire.AppendString(b, "future")
	b = protowire.AppendTag(b, 16, protowire.VarintType)
	b = protowire.AppendVarint(b, 7)

	frame, err := DecodeFrame(b)
	assert.Equal(t, err, nil)
	assert.Equal(t, frame.Body, []byte("event"))
}

func TestFrameInvalid(t *testing.T) {
	// requests and responses must carry an id
	_, err := DecodeFrame(EncodeFrame(&Frame{FrameType: FrameTypeResponse, Body: []byte("x")}))
	assert.NotEqual(t, err, nil)

	_, err = DecodeFrame(EncodeFrame(&Frame{FrameType: FrameType(9), Body: []byte("x")}))
	assert.NotEqual(t, err, nil)

	b := EncodeFrame(&Frame{FrameType: FrameTypeEvent, Body: []byte("event")})
	_, err = DecodeFrame(b[:len(b)-2])
	assert.NotEqual(t, err, nil)
}
