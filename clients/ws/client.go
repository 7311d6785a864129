// Package ws provides a WebSocket client for the Jarvis gateway.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/coder/websocket"

	wsprotocol "github.com/dohr-michael/jarvis/internal/gateway/ws"
)

// ErrRequestFailed wraps errors reported by the gateway in a response frame.
var ErrRequestFailed = errors.New("gateway request failed")

// Client is a WebSocket client for the Jarvis gateway. It is not safe for
// concurrent use.
type Client struct {
	conn   *websocket.Conn
	reqSeq uint64
	ctx    context.Context
	cancel context.CancelFunc

	// OnEvent, when set, receives event frames read while waiting for a response.
	OnEvent func(wsprotocol.Frame)
}

// Dial connects to the gateway WebSocket endpoint.
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("ws dial: %w", err)
	}

	clientCtx, cancel := context.WithCancel(ctx)

	return &Client{
		conn:   conn,
		ctx:    clientCtx,
		cancel: cancel,
	}, nil
}

// OpenSession starts a session on the gateway and follows it.
func (c *Client) OpenSession() (string, error) {
	var out struct {
		SessionID string `json:"session_id"`
	}
	if err := c.call(wsprotocol.MethodOpenSession, nil, &out); err != nil {
		return "", err
	}
	return out.SessionID, nil
}

// SendMessage runs one turn in sessionID and decodes the turn into out.
func (c *Client) SendMessage(sessionID, content string, out any) error {
	return c.call(wsprotocol.MethodSendMessage, map[string]string{
		"session_id": sessionID,
		"content":    content,
	}, out)
}

// ListTasks decodes the session's task list into out.
func (c *Client) ListTasks(sessionID string, out any) error {
	return c.call(wsprotocol.MethodListTasks, map[string]string{"session_id": sessionID}, out)
}

// CancelTask fails the session's most recent pending task.
func (c *Client) CancelTask(sessionID, reason string) error {
	return c.call(wsprotocol.MethodCancelTask, map[string]string{
		"session_id": sessionID,
		"reason":     reason,
	}, nil)
}

// call sends a request and reads frames until the matching response arrives.
func (c *Client) call(method wsprotocol.Method, params any, out any) error {
	id := fmt.Sprintf("req-%d", atomic.AddUint64(&c.reqSeq, 1))

	frame := wsprotocol.Frame{
		Type:   wsprotocol.FrameTypeRequest,
		ID:     id,
		Method: string(method),
	}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("encode params: %w", err)
		}
		frame.Params = raw
	}

	data, err := wsprotocol.MarshalFrame(frame)
	if err != nil {
		return err
	}
	if err := c.conn.Write(c.ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("ws write: %w", err)
	}

	for {
		f, err := c.ReadFrame()
		if err != nil {
			return fmt.Errorf("ws read: %w", err)
		}
		switch {
		case f.Type == wsprotocol.FrameTypeEvent:
			if c.OnEvent != nil {
				c.OnEvent(f)
			}
		case f.Type == wsprotocol.FrameTypeResponse && f.ID == id:
			if f.OK == nil || !*f.OK {
				return fmt.Errorf("%w: %s: %s", ErrRequestFailed, method, f.Error)
			}
			if out == nil || len(f.Payload) == 0 {
				return nil
			}
			if err := json.Unmarshal(f.Payload, out); err != nil {
				return fmt.Errorf("decode %s response: %w", method, err)
			}
			return nil
		}
	}
}

// ReadFrame reads the next frame from the connection.
func (c *Client) ReadFrame() (wsprotocol.Frame, error) {
	_, data, err := c.conn.Read(c.ctx)
	if err != nil {
		return wsprotocol.Frame{}, err
	}
	return wsprotocol.UnmarshalFrame(data)
}

// Close gracefully closes the connection.
func (c *Client) Close() error {
	c.cancel()
	return c.conn.Close(websocket.StatusNormalClosure, "bye")
}
