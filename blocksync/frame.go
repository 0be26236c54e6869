package blocksync

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

type FrameType int

const (
	FrameTypeRequest  FrameType = 1
	FrameTypeResponse FrameType = 2
	FrameTypeEvent    FrameType = 3
)

func (self FrameType) String() string {
	switch self {
	case FrameTypeRequest:
		return "request"
	case FrameTypeResponse:
		return "response"
	case FrameTypeEvent:
		return "event"
	default:
		return fmt.Sprintf("unknown(%d)", int(self))
	}
}

// The transport envelope. The body is opaque codec bytes.
//
// message Frame {
//     FrameType frame_type = 1;
//     bytes request_id = 2;
//     string method = 3;
//     bytes body = 4;
// }
type Frame struct {
	FrameType FrameType
	// set for request and response frames
	RequestId Id
	Method    string
	Body      []byte
}

const (
	frameFieldFrameType protowire.Number = 1
	frameFieldRequestId protowire.Number = 2
	frameFieldMethod    protowire.Number = 3
	frameFieldBody      protowire.Number = 4
)

func EncodeFrame(frame *Frame) []byte {
	b := []byte{}
	b = protowire.AppendTag(b, frameFieldFrameType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(frame.FrameType))
	if (frame.RequestId != Id{}) {
		b = protowire.AppendTag(b, frameFieldRequestId, protowire.BytesType)
		b = protowire.AppendBytes(b, frame.RequestId.Bytes())
	}
	if frame.Method != "" {
		b = protowire.AppendTag(b, frameFieldMethod, protowire.BytesType)
		b = protowire.AppendString(b, frame.Method)
	}
	b = protowire.AppendTag(b, frameFieldBody, protowire.BytesType)
	b = protowire.AppendBytes(b, frame.Body)
	return b
}

func DecodeFrame(b []byte) (*Frame, error) {
	frame := &Frame{}
	for 0 < len(b) {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]
		switch {
		case num == frameFieldFrameType && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			frame.FrameType = FrameType(v)
			b = b[n:]
		case num == frameFieldRequestId && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			requestId, err := IdFromBytes(v)
			if err != nil {
				return nil, err
			}
			frame.RequestId = requestId
			b = b[n:]
		case num == frameFieldMethod && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			frame.Method = v
			b = b[n:]
		case num == frameFieldBody && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			frame.Body = append([]byte{}, v...)
			b = b[n:]
		default:
			// unknown fields are skipped
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	switch frame.FrameType {
	case FrameTypeRequest, FrameTypeResponse:
		if (frame.RequestId == Id{}) {
			return nil, errors.New("Frame is missing the request id.")
		}
	case FrameTypeEvent:
	default:
		return nil, fmt.Errorf("Unknown frame type: %s", frame.FrameType)
	}
	return frame, nil
}
