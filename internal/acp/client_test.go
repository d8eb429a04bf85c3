package acp

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/bridge/errors"
)

// fakeAgent is a line-oriented JSON-RPC server driven by a handler.
type fakeAgent struct {
	ln   net.Listener
	done chan struct{}
}

func newFakeAgent(t *testing.T, handle func(conn net.Conn, msg message)) *fakeAgent {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	a := &fakeAgent{ln: ln, done: make(chan struct{})}
	go func() {
		defer close(a.done)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		scanner := bufio.NewScanner(conn)
		scanner.Buffer(make([]byte, 64*1024), maxLineSize)
		for scanner.Scan() {
			var msg message
			if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
				continue
			}
			handle(conn, msg)
		}
	}()
	t.Cleanup(func() { ln.Close() })
	return a
}

func (a *fakeAgent) addr() string { return a.ln.Addr().String() }

func writeLine(conn net.Conn, v interface{}) {
	data, _ := json.Marshal(v)
	conn.Write(append(data, '\n'))
}

func TestConnectRefused(t *testing.T) {
	_, err := Connect(context.Background(), "127.0.0.1:1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeConnectionFailed))
}

func TestCallResolvesMatchingResponse(t *testing.T) {
	agent := newFakeAgent(t, func(conn net.Conn, msg message) {
		if msg.Method == MethodSessionNew {
			writeLine(conn, message{
				JSONRPC: "2.0",
				ID:      msg.ID,
				Result:  json.RawMessage(`{"sessionId":"ses_abc"}`),
			})
		}
	})

	c, err := Connect(context.Background(), agent.addr())
	require.NoError(t, err)
	defer c.Close()

	var result NewSessionResult
	err = c.Call(context.Background(), MethodSessionNew, NewSessionParams{Cwd: "/tmp"}, &result)
	require.NoError(t, err)
	assert.Equal(t, "ses_abc", result.SessionID)
}

func TestCallSurfacesAgentError(t *testing.T) {
	agent := newFakeAgent(t, func(conn net.Conn, msg message) {
		writeLine(conn, message{
			JSONRPC: "2.0",
			ID:      msg.ID,
			Error:   &ResponseError{Code: -32000, Message: "session unknown"},
		})
	})

	c, err := Connect(context.Background(), agent.addr())
	require.NoError(t, err)
	defer c.Close()

	err = c.Call(context.Background(), MethodSessionLoad, LoadSessionParams{SessionID: "ses_x"}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeAgentCallFailed))
	assert.Contains(t, err.Error(), "session unknown")
}

func TestMalformedLineDoesNotKillConnection(t *testing.T) {
	agent := newFakeAgent(t, func(conn net.Conn, msg message) {
		conn.Write([]byte("this is not json\n"))
		writeLine(conn, message{
			JSONRPC: "2.0",
			ID:      msg.ID,
			Result:  json.RawMessage(`{"stopReason":"end_turn"}`),
		})
	})

	c, err := Connect(context.Background(), agent.addr())
	require.NoError(t, err)
	defer c.Close()

	var result PromptResult
	err = c.Call(context.Background(), MethodSessionPrompt, PromptParams{SessionID: "ses_1"}, &result)
	require.NoError(t, err)
	assert.Equal(t, "end_turn", result.StopReason)
}

func TestInboundClassification(t *testing.T) {
	agent := newFakeAgent(t, func(conn net.Conn, msg message) {
		if msg.Method != MethodInitialize {
			return
		}
		writeLine(conn, message{
			JSONRPC: "2.0",
			ID:      msg.ID,
			Result:  json.RawMessage(`{"protocolVersion":1,"agentCapabilities":{"loadSession":true}}`),
		})
		// A notification followed by an inbound request.
		writeLine(conn, map[string]interface{}{
			"jsonrpc": "2.0",
			"method":  MethodSessionUpdate,
			"params":  map[string]string{"sessionId": "ses_1"},
		})
		writeLine(conn, map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      99,
			"method":  MethodRequestPermission,
			"params":  map[string]string{"sessionId": "ses_1"},
		})
	})

	c, err := Connect(context.Background(), agent.addr())
	require.NoError(t, err)
	defer c.Close()

	res, err := c.Initialize(context.Background(), ClientInfo{Name: "bridge", Version: "test"})
	require.NoError(t, err)
	assert.True(t, res.Capabilities.LoadSession)
	assert.True(t, c.SupportsLoadSession())

	select {
	case n := <-c.Notifications():
		assert.Equal(t, MethodSessionUpdate, n.Method)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
	}

	select {
	case r := <-c.Requests():
		assert.Equal(t, MethodRequestPermission, r.Method)
		assert.Equal(t, int64(99), r.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for inbound request")
	}
}

func TestConnectionLossRejectsOutstanding(t *testing.T) {
	agent := newFakeAgent(t, func(conn net.Conn, msg message) {
		// Hang up without answering.
		conn.Close()
	})

	c, err := Connect(context.Background(), agent.addr())
	require.NoError(t, err)

	err = c.Call(context.Background(), MethodSessionPrompt, PromptParams{SessionID: "ses_1"}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeConnectionLost))

	// Channels close so consumers observe the loss.
	select {
	case _, open := <-c.Notifications():
		assert.False(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("notifications channel never closed")
	}
}

func TestCallContextCancellation(t *testing.T) {
	agent := newFakeAgent(t, func(conn net.Conn, msg message) {
		// Never respond.
	})

	c, err := Connect(context.Background(), agent.addr())
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = c.Call(ctx, MethodSessionPrompt, PromptParams{SessionID: "ses_1"}, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNotifyWritesWithoutID(t *testing.T) {
	got := make(chan message, 1)
	agent := newFakeAgent(t, func(conn net.Conn, msg message) {
		got <- msg
	})

	c, err := Connect(context.Background(), agent.addr())
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Notify(MethodSessionCancel, CancelParams{SessionID: "ses_1"}))

	select {
	case msg := <-got:
		assert.Nil(t, msg.ID)
		assert.Equal(t, MethodSessionCancel, msg.Method)
	case <-time.After(2 * time.Second):
		t.Fatal("agent never received the notification")
	}
}
