package blocksync

import (
	"fmt"
)

// caller misuse. the transport is never touched.
type UnknownCommandError struct {
	Command string
}

func (self *UnknownCommandError) Error() string {
	return fmt.Sprintf("Unknown command: %s", self.Command)
}

type EncodingError struct {
	Command string
	Err     error
}

func (self *EncodingError) Error() string {
	return fmt.Sprintf("Encoding error (%s): %s", self.Command, self.Err)
}

func (self *EncodingError) Unwrap() error {
	return self.Err
}

type DecodingError struct {
	// what was being decoded, e.g. "response" or "event"
	Target string
	Err    error
}

func (self *DecodingError) Error() string {
	return fmt.Sprintf("Decoding error (%s): %s", self.Target, self.Err)
}

func (self *DecodingError) Unwrap() error {
	return self.Err
}

// the engine reported a failure for a single command
type RemoteError struct {
	Command     string
	Code        string
	Description string
}

func (self *RemoteError) Error() string {
	return fmt.Sprintf("Remote error (%s): code = %s description = %s", self.Command, self.Code, self.Description)
}

// a single mutation message is structurally invalid. it is skipped and the batch continues.
type MalformedEventError struct {
	RootId  string
	Kind    MutationKind
	Message string
}

func (self *MalformedEventError) Error() string {
	return fmt.Sprintf("Malformed event (%s %s): %s", self.RootId, self.Kind, self.Message)
}
