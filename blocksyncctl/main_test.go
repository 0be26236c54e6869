package main

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"github.com/bringyour/blocksync/blocksync"
)

func captureOut(t *testing.T) *bytes.Buffer {
	out := &bytes.Buffer{}
	prevOut := Out
	prevErr := Err
	Out = log.New(out, "", 0)
	Err = log.New(&bytes.Buffer{}, "", 0)
	t.Cleanup(func() {
		Out = prevOut
		Err = prevErr
	})
	return out
}

func newLocalSession(t *testing.T, ctx context.Context) *blocksync.Session {
	codec := blocksync.NewProtoCodec()
	transport := blocksync.NewLocalTransport(ctx, func(method string, requestBytes []byte) ([]byte, error) {
		payload, err := codec.DecodeCommand(method, requestBytes)
		if err != nil {
			return nil, err
		}
		response := &blocksync.Response{}
		switch method {
		case blocksync.CommandBlockOpen:
			rootId, _ := payload["id"].(string)
			if rootId == "missing" {
				response.Error = blocksync.ResponseError{Code: "3", Description: "not found"}
				break
			}
			root := blocksync.NewNode(rootId, &blocksync.PageContent{})
			root.ChildrenIds = []string{"a", "b"}
			b := blocksync.NewNode("b", &blocksync.TextContent{Text: "second", Style: blocksync.TextStyleNumbered})
			a := blocksync.NewNode("a", &blocksync.TextContent{Text: "first", Style: blocksync.TextStyleNumbered})
			response.Event = blocksync.NewEventBatch(rootId, &blocksync.ShowRoot{
				RootId:   rootId,
				PageType: blocksync.PageTypePage,
				Nodes:    []*blocksync.Node{root, a, b},
			})
		case blocksync.CommandBlockCreate:
			response.Data = map[string]any{"blockId": "new", "echo": payload["contextId"]}
		case blocksync.CommandBlockUnlink:
			response.Error = blocksync.ResponseError{Code: "BAD_INPUT", Description: "bad"}
		}
		return codec.EncodeResponse(method, response)
	})
	t.Cleanup(transport.Close)
	session := blocksync.NewSessionWithDefaults(ctx, transport, codec, nil)
	t.Cleanup(session.Cancel)
	return session
}

func TestOpenTree(t *testing.T) {
	out := captureOut(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session := newLocalSession(t, ctx)

	err := openTree(session, "r", 5*time.Second)
	assert.Equal(t, err, nil)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Equal(t, len(lines), 4)
	assert.Equal(t, strings.HasPrefix(lines[1], "    "), true)
	assert.Equal(t, strings.HasSuffix(lines[2], `1. "first"`), true)
	assert.Equal(t, strings.HasSuffix(lines[3], `2. "second"`), true)

	// the root is closed after printing
	assert.Equal(t, session.IsOpen("r"), false)
	assert.Equal(t, session.Store().NodeCount("r"), 0)

	err = openTree(session, "missing", 5*time.Second)
	var remoteErr *blocksync.RemoteError
	assert.Equal(t, errors.As(err, &remoteErr), true)
	assert.Equal(t, remoteErr.Code, "3")
}

func TestSendCommand(t *testing.T) {
	out := captureOut(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session := newLocalSession(t, ctx)

	err := sendCommand(session, blocksync.CommandBlockCreate, `{"contextId": "r"}`, 5*time.Second)
	assert.Equal(t, err, nil)
	assert.Equal(t, strings.Contains(out.String(), `"blockId": "new"`), true)
	assert.Equal(t, strings.Contains(out.String(), `"echo": "r"`), true)

	// a remote error is reported, not returned
	err = sendCommand(session, blocksync.CommandBlockUnlink, "", 5*time.Second)
	assert.Equal(t, err, nil)

	err = sendCommand(session, blocksync.CommandBlockCreate, `{"contextId":`, 5*time.Second)
	assert.NotEqual(t, err, nil)

	err = sendCommand(session, "notACommand", "", 5*time.Second)
	var unknownErr *blocksync.UnknownCommandError
	assert.Equal(t, errors.As(err, &unknownErr), true)
}
