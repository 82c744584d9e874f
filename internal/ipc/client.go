package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// ErrClientClosed is returned for calls on a closed or broken session.
var ErrClientClosed = errors.New("ipc session closed")

// Client is one session with a Server. Calls may be issued concurrently;
// events are delivered on Events in arrival order.
type Client struct {
	conn io.ReadWriteCloser

	writeMu sync.Mutex
	enc     *json.Encoder

	mu      sync.Mutex
	pending map[string]chan *Response
	closed  bool

	events chan EventMessage
	nextID atomic.Uint64
	done   chan struct{}
}

// Dial connects to a server listening on a unix socket.
func Dial(ctx context.Context, socketPath string, timeout time.Duration) (*Client, error) {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IPC server at %s: %w", socketPath, err)
	}
	return NewClient(conn), nil
}

// NewClient starts a session over conn.
func NewClient(conn io.ReadWriteCloser) *Client {
	c := &Client{
		conn:    conn,
		enc:     json.NewEncoder(conn),
		pending: make(map[string]chan *Response),
		events:  make(chan EventMessage, 256),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Events returns pushed events. The channel is closed when the session
// ends. Events arriving while the buffer is full are dropped.
func (c *Client) Events() <-chan EventMessage {
	return c.events
}

// Call sends one request and decodes the result into out, which may be nil.
// A server-side failure is returned as *ErrorData.
func (c *Client) Call(ctx context.Context, method string, args map[string]interface{}, out interface{}) error {
	id := strconv.FormatUint(c.nextID.Add(1), 10)
	ch := make(chan *Response, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	c.writeMu.Lock()
	err := c.enc.Encode(&Request{ID: id, Method: method, Args: args})
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return ErrClientClosed
		}
		if resp.Error != nil {
			return resp.Error
		}
		if out == nil || len(resp.Result) == 0 {
			return nil
		}
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", method, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close ends the session and waits for the reader to stop.
func (c *Client) Close() error {
	err := c.conn.Close()
	<-c.done
	return err
}

func (c *Client) readLoop() {
	defer close(c.done)

	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		var msg message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			continue
		}
		if msg.Event != "" {
			select {
			case c.events <- EventMessage{Event: msg.Event, Data: msg.Data}:
			default:
			}
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[msg.ID]
		c.mu.Unlock()
		if ok {
			ch <- &Response{ID: msg.ID, Result: msg.Result, Error: msg.Error}
		}
	}

	c.mu.Lock()
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()
	close(c.events)
}
