package acp

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/bridge/errors"
	"github.com/grovetools/bridge/logging"
)

// maxLineSize bounds a single JSON-RPC line. Tool outputs can be large.
const maxLineSize = 10 * 1024 * 1024

type response struct {
	result json.RawMessage
	err    *ResponseError
}

// Client owns the socket connection to the agent. Outbound requests are
// correlated to responses by id; inbound traffic is classified and fed
// to the Notifications and Requests channels.
type Client struct {
	log  *logrus.Entry
	conn net.Conn

	writeMu sync.Mutex

	nextID  atomic.Int64
	mu      sync.Mutex
	pending map[int64]chan response
	closed  bool

	notifications chan Notification
	requests      chan InboundRequest

	initResult *InitializeResult
}

// Connect dials the agent socket and starts the read loop.
func Connect(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.ConnectionFailed(addr, err)
	}

	c := &Client{
		log:           logging.NewLogger("acp"),
		conn:          conn,
		pending:       make(map[int64]chan response),
		notifications: make(chan Notification, 256),
		requests:      make(chan InboundRequest, 16),
	}
	go c.readLoop()
	c.log.WithField("addr", addr).Info("Connected to agent")
	return c, nil
}

// Notifications returns the stream of agent notifications. Closed when
// the connection is lost.
func (c *Client) Notifications() <-chan Notification {
	return c.notifications
}

// Requests returns the stream of agent-initiated requests. Closed when
// the connection is lost.
func (c *Client) Requests() <-chan InboundRequest {
	return c.requests
}

// Initialize performs the protocol handshake. Must be called once
// before any session method.
func (c *Client) Initialize(ctx context.Context, info ClientInfo) (*InitializeResult, error) {
	params := InitializeParams{
		ProtocolVersion: ProtocolVersion,
		ClientInfo:      info,
		Capabilities:    ClientCapabilities{},
	}
	var result InitializeResult
	if err := c.Call(ctx, MethodInitialize, params, &result); err != nil {
		return nil, err
	}
	c.initResult = &result
	c.log.WithFields(logrus.Fields{
		"protocolVersion": result.ProtocolVersion,
		"loadSession":     result.Capabilities.LoadSession,
	}).Info("Agent initialized")
	return &result, nil
}

// SupportsLoadSession reports whether the agent can resume sessions.
// False before Initialize completes.
func (c *Client) SupportsLoadSession() bool {
	return c.initResult != nil && c.initResult.Capabilities.LoadSession
}

// Call sends a request and blocks until the matching response arrives,
// the context is done, or the connection is lost. A non-nil result is
// unmarshaled from the response payload.
func (c *Client) Call(ctx context.Context, method string, params interface{}, result interface{}) error {
	id := c.nextID.Add(1)
	ch := make(chan response, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.ConnectionLost(nil)
	}
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.write(message{JSONRPC: "2.0", ID: &id, Method: method, Params: marshal(params)}); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return errors.ConnectionLost(err)
	}

	select {
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return ctx.Err()
	case resp, ok := <-ch:
		if !ok {
			return errors.ConnectionLost(nil)
		}
		if resp.err != nil {
			return errors.AgentCallFailed(method, resp.err.Code, resp.err.Message)
		}
		if result != nil && len(resp.result) > 0 {
			if err := json.Unmarshal(resp.result, result); err != nil {
				return errors.Wrap(err, errors.ErrCodeProtocolParse, "failed to decode agent response")
			}
		}
		return nil
	}
}

// Notify sends a fire-and-forget notification.
func (c *Client) Notify(method string, params interface{}) error {
	if err := c.write(message{JSONRPC: "2.0", Method: method, Params: marshal(params)}); err != nil {
		return errors.ConnectionLost(err)
	}
	return nil
}

// Respond answers an inbound agent request.
func (c *Client) Respond(id int64, result interface{}) error {
	if err := c.write(message{JSONRPC: "2.0", ID: &id, Result: marshal(result)}); err != nil {
		return errors.ConnectionLost(err)
	}
	return nil
}

// RespondError answers an inbound agent request with a JSON-RPC error.
func (c *Client) RespondError(id int64, code int, msg string) error {
	if err := c.write(message{JSONRPC: "2.0", ID: &id, Error: &ResponseError{Code: code, Message: msg}}); err != nil {
		return errors.ConnectionLost(err)
	}
	return nil
}

// Close tears down the connection. Outstanding calls fail with
// ConnectionLost.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) write(msg message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err = c.conn.Write(data)
	return err
}

func marshal(v interface{}) json.RawMessage {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

// readLoop frames the socket into lines, parses each as JSON-RPC, and
// dispatches by shape. A malformed line is logged and dropped; the loop
// only exits when the socket closes.
func (c *Client) readLoop() {
	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg message
		if err := json.Unmarshal(line, &msg); err != nil {
			c.log.WithError(err).Warn("Dropping malformed line from agent")
			continue
		}

		switch {
		case msg.ID != nil && msg.Method == "":
			// Response to one of our requests
			c.mu.Lock()
			ch, ok := c.pending[*msg.ID]
			if ok {
				delete(c.pending, *msg.ID)
			}
			c.mu.Unlock()
			if !ok {
				c.log.WithField("id", *msg.ID).Warn("Response for unknown request id")
				continue
			}
			ch <- response{result: msg.Result, err: msg.Error}

		case msg.ID != nil:
			c.requests <- InboundRequest{ID: *msg.ID, Method: msg.Method, Params: msg.Params}

		case msg.Method != "":
			c.notifications <- Notification{Method: msg.Method, Params: msg.Params}

		default:
			c.log.Warn("Dropping message with neither id nor method")
		}
	}

	if err := scanner.Err(); err != nil {
		c.log.WithError(err).Warn("Agent connection closed")
	} else {
		c.log.Info("Agent connection closed")
	}
	c.teardown()
}

// teardown rejects all outstanding requests and closes the inbound
// channels so consumers observe the loss.
func (c *Client) teardown() {
	c.mu.Lock()
	c.closed = true
	pending := c.pending
	c.pending = make(map[int64]chan response)
	c.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}
	close(c.notifications)
	close(c.requests)
}
