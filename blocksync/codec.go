package blocksync

import (
	"errors"
	"fmt"
	"strconv"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// a structured command payload. values must be representable as a protobuf `Value`:
// nil, bool, numbers, string, []byte, []any, map[string]any
type Payload = map[string]any

type ResponseError struct {
	Code        string
	Description string
}

func (self ResponseError) IsError() bool {
	return self.Code != ""
}

type Response struct {
	Error ResponseError
	Data  map[string]any
	// the direct consequence of the command, folded into the response by the engine
	Event *EventBatch
}

// The codec is the boundary between typed values and bytes.
// Decode failures never produce partial structures.
type Codec interface {
	EncodeCommand(command string, payload Payload) ([]byte, error)
	// `command` is the type hint for the response shape
	DecodeResponse(command string, responseBytes []byte) (*Response, error)
	DecodeEvent(eventBytes []byte) (*EventBatch, error)
}

// the engine side of the codec, used by local engines and tests
type EngineCodec interface {
	DecodeCommand(command string, requestBytes []byte) (Payload, error)
	EncodeResponse(command string, response *Response) ([]byte, error)
	EncodeEvent(batch *EventBatch) ([]byte, error)
}

// Commands, responses and events are each a protobuf `Struct` on the wire.
//
// response: {error: {code, description}, data: {...}, event: <event>}
// event:    {contextId, messages: [{type, error: {code, description}, value: {...}}]}
type ProtoCodec struct {
}

func NewProtoCodec() *ProtoCodec {
	return &ProtoCodec{}
}

func (self *ProtoCodec) EncodeCommand(command string, payload Payload) ([]byte, error) {
	if payload == nil {
		payload = Payload{}
	}
	s, err := structpb.NewStruct(payload)
	if err != nil {
		return nil, &EncodingError{Command: command, Err: err}
	}
	b, err := proto.Marshal(s)
	if err != nil {
		return nil, &EncodingError{Command: command, Err: err}
	}
	return b, nil
}

func (self *ProtoCodec) DecodeCommand(command string, requestBytes []byte) (Payload, error) {
	s := &structpb.Struct{}
	if err := proto.Unmarshal(requestBytes, s); err != nil {
		return nil, &DecodingError{Target: command, Err: err}
	}
	return s.AsMap(), nil
}

func (self *ProtoCodec) DecodeResponse(command string, responseBytes []byte) (*Response, error) {
	s := &structpb.Struct{}
	if err := proto.Unmarshal(responseBytes, s); err != nil {
		return nil, &DecodingError{Target: command, Err: err}
	}
	r := fields(s)

	// every response must carry an error object, even on success
	errorFields, ok := r.Struct("error")
	if !ok {
		return nil, &DecodingError{Target: command, Err: errors.New("Response is missing the error object.")}
	}
	code, ok := errorFields.RequireCode("code")
	if !ok {
		return nil, &DecodingError{Target: command, Err: errors.New("Response error object has no code.")}
	}
	response := &Response{
		Error: ResponseError{
			Code:        code,
			Description: errorFields.String("description"),
		},
		Data: r.Map("data"),
	}
	if eventFields, ok := r.Struct("event"); ok {
		batch, err := decodeEventBatch(eventFields)
		if err != nil {
			return nil, &DecodingError{Target: command, Err: err}
		}
		response.Event = batch
	}
	return response, nil
}

func (self *ProtoCodec) EncodeResponse(command string, response *Response) ([]byte, error) {
	m := map[string]any{
		"error": encodeErrorInfo(response.Error.Code, response.Error.Description),
	}
	if response.Data != nil {
		m["data"] = response.Data
	}
	if response.Event != nil {
		event, err := encodeEventBatch(response.Event)
		if err != nil {
			return nil, &EncodingError{Command: command, Err: err}
		}
		m["event"] = event
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, &EncodingError{Command: command, Err: err}
	}
	b, err := proto.Marshal(s)
	if err != nil {
		return nil, &EncodingError{Command: command, Err: err}
	}
	return b, nil
}

func (self *ProtoCodec) DecodeEvent(eventBytes []byte) (*EventBatch, error) {
	s := &structpb.Struct{}
	if err := proto.Unmarshal(eventBytes, s); err != nil {
		return nil, &DecodingError{Target: "event", Err: err}
	}
	batch, err := decodeEventBatch(fields(s))
	if err != nil {
		return nil, &DecodingError{Target: "event", Err: err}
	}
	return batch, nil
}

func (self *ProtoCodec) EncodeEvent(batch *EventBatch) ([]byte, error) {
	m, err := encodeEventBatch(batch)
	if err != nil {
		return nil, &EncodingError{Command: "event", Err: err}
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, &EncodingError{Command: "event", Err: err}
	}
	b, err := proto.Marshal(s)
	if err != nil {
		return nil, &EncodingError{Command: "event", Err: err}
	}
	return b, nil
}

func decodeEventBatch(r structFields) (*EventBatch, error) {
	rootId, ok := r.RequireString("contextId")
	if !ok {
		return nil, errors.New("Event is missing the context id.")
	}
	messageValues, ok := r.List("messages")
	if !ok {
		return nil, errors.New("Event is missing messages.")
	}
	batch := &EventBatch{
		RootId:   rootId,
		Messages: make([]*EventMessage, 0, len(messageValues)),
	}
	for i, messageValue := range messageValues {
		messageFields, ok := structValue(messageValue)
		if !ok {
			return nil, fmt.Errorf("Event message %d is not a struct.", i)
		}
		message := &EventMessage{}
		if errorFields, ok := messageFields.Struct("error"); ok {
			message.ErrorCode = errorFields.Code("code")
		}
		kind := MutationKind(messageFields.String("type"))
		valueFields, ok := messageFields.Struct("value")
		if !ok {
			valueFields = fields(&structpb.Struct{})
		}
		message.Mutation = decodeMutation(kind, valueFields)
		batch.Messages = append(batch.Messages, message)
	}
	return batch, nil
}

func encodeEventBatch(batch *EventBatch) (map[string]any, error) {
	messages := make([]any, 0, len(batch.Messages))
	for _, message := range batch.Messages {
		value, err := encodeMutation(message.Mutation)
		if err != nil {
			return nil, err
		}
		m := map[string]any{
			"type":  string(message.Mutation.Kind()),
			"value": value,
		}
		if message.ErrorCode != "" {
			m["error"] = encodeErrorInfo(message.ErrorCode, "")
		}
		messages = append(messages, m)
	}
	return map[string]any{
		"contextId": batch.RootId,
		"messages":  messages,
	}, nil
}

func encodeErrorInfo(code string, description string) map[string]any {
	return map[string]any{
		"code":        code,
		"description": description,
	}
}

// read access to a protobuf struct. absent keys and mismatched kinds read as zero values.
type structFields struct {
	s *structpb.Struct
}

func fields(s *structpb.Struct) structFields {
	return structFields{s: s}
}

func structValue(v *structpb.Value) (structFields, bool) {
	if s := v.GetStructValue(); s != nil {
		return fields(s), true
	}
	return structFields{}, false
}

func (self structFields) value(key string) (*structpb.Value, bool) {
	if self.s == nil {
		return nil, false
	}
	v, ok := self.s.GetFields()[key]
	if !ok || v == nil {
		return nil, false
	}
	if _, null := v.GetKind().(*structpb.Value_NullValue); null {
		return nil, false
	}
	return v, true
}

func (self structFields) Has(key string) bool {
	_, ok := self.value(key)
	return ok
}

func (self structFields) String(key string) string {
	s, _ := self.RequireString(key)
	return s
}

func (self structFields) RequireString(key string) (string, bool) {
	v, ok := self.value(key)
	if !ok {
		return "", false
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return k.StringValue, true
	default:
		return "", false
	}
}

func (self structFields) Number(key string) float64 {
	v, ok := self.value(key)
	if !ok {
		return 0
	}
	return v.GetNumberValue()
}

func (self structFields) Int(key string) int {
	return int(self.Number(key))
}

func (self structFields) Bool(key string) bool {
	v, ok := self.value(key)
	if !ok {
		return false
	}
	return v.GetBoolValue()
}

// error codes may be numeric enums or strings. zero and empty mean success.
func (self structFields) Code(key string) string {
	code, _ := self.RequireCode(key)
	return code
}

// false if the code is absent or is neither a string nor a number
func (self structFields) RequireCode(key string) (string, bool) {
	v, ok := self.value(key)
	if !ok {
		return "", false
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		if k.StringValue == "0" {
			return "", true
		}
		return k.StringValue, true
	case *structpb.Value_NumberValue:
		if k.NumberValue == 0 {
			return "", true
		}
		return strconv.FormatInt(int64(k.NumberValue), 10), true
	default:
		return "", false
	}
}

func (self structFields) Struct(key string) (structFields, bool) {
	v, ok := self.value(key)
	if !ok {
		return structFields{}, false
	}
	return structValue(v)
}

func (self structFields) List(key string) ([]*structpb.Value, bool) {
	v, ok := self.value(key)
	if !ok {
		return nil, false
	}
	l := v.GetListValue()
	if l == nil {
		return nil, false
	}
	return l.GetValues(), true
}

func (self structFields) Strings(key string) []string {
	values, _ := self.List(key)
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.GetKind().(*structpb.Value_StringValue); ok {
			out = append(out, s.StringValue)
		}
	}
	return out
}

// nil when absent
func (self structFields) Map(key string) map[string]any {
	s, ok := self.Struct(key)
	if !ok {
		return nil
	}
	return s.s.AsMap()
}

// optional scalars are wrapped as {value: x}. presence of the wrapper means the field is set.

func (self structFields) OptionalString(key string) *string {
	wrapper, ok := self.Struct(key)
	if !ok {
		return nil
	}
	s := wrapper.String("value")
	return &s
}

func (self structFields) OptionalInt(key string) *int {
	wrapper, ok := self.Struct(key)
	if !ok {
		return nil
	}
	i := wrapper.Int("value")
	return &i
}

func (self structFields) OptionalInt64(key string) *int64 {
	wrapper, ok := self.Struct(key)
	if !ok {
		return nil
	}
	i := int64(wrapper.Number("value"))
	return &i
}

func (self structFields) OptionalBool(key string) *bool {
	wrapper, ok := self.Struct(key)
	if !ok {
		return nil
	}
	b := wrapper.Bool("value")
	return &b
}

func (self structFields) OptionalMap(key string) map[string]any {
	wrapper, ok := self.Struct(key)
	if !ok {
		return nil
	}
	m := wrapper.Map("value")
	if m == nil {
		m = map[string]any{}
	}
	return m
}

func wrapValue(value any) map[string]any {
	return map[string]any{
		"value": value,
	}
}

func stringsToList(values []string) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		out = append(out, v)
	}
	return out
}
