// Package cdp drives a Chromium browser's windows and tabs over the Chrome
// DevTools Protocol.
package cdp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/chromedp/cdproto"
	cdpexec "github.com/chromedp/cdproto/cdp"
	"github.com/gorilla/websocket"
	"github.com/mailru/easyjson"
)

// ErrClosed is returned by Execute after the connection is gone.
var ErrClosed = errors.New("devtools connection closed")

// Conn is a browser-level DevTools websocket connection. It implements
// cdp.Executor so cdproto command builders can run against it.
type Conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	nextID  atomic.Int64

	mu      sync.Mutex
	pending map[int64]chan *cdproto.Message
	queue   []*cdproto.Message
	err     error

	wake   chan struct{}
	events chan *cdproto.Message
	done   chan struct{}
}

var _ cdpexec.Executor = (*Conn)(nil)

// Dial connects to a browser websocket debugger URL.
func Dial(ctx context.Context, wsURL string) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial devtools %s: %w", wsURL, err)
	}
	return newConn(ws), nil
}

func newConn(ws *websocket.Conn) *Conn {
	c := &Conn{
		ws:      ws,
		pending: make(map[int64]chan *cdproto.Message),
		wake:    make(chan struct{}, 1),
		events:  make(chan *cdproto.Message),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	go c.pump()
	return c
}

// Events delivers protocol events in arrival order. The channel is closed
// after the connection goes away and all queued events were delivered.
func (c *Conn) Events() <-chan *cdproto.Message {
	return c.events
}

// Done is closed when the connection is gone.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err returns the reason the connection closed, if it has.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close shuts the websocket down.
func (c *Conn) Close() error {
	return c.ws.Close()
}

// Execute sends one command and waits for its result.
func (c *Conn) Execute(ctx context.Context, method string, params easyjson.Marshaler, res easyjson.Unmarshaler) error {
	msg := &cdproto.Message{
		ID:     c.nextID.Add(1),
		Method: cdproto.MethodType(method),
	}
	if params != nil {
		buf, err := easyjson.Marshal(params)
		if err != nil {
			return fmt.Errorf("encode %s params: %w", method, err)
		}
		msg.Params = buf
	}
	data, err := easyjson.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", method, err)
	}

	ch := make(chan *cdproto.Message, 1)
	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return err
	}
	c.pending[msg.ID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, msg.ID)
		c.mu.Unlock()
	}()

	c.writeMu.Lock()
	err = c.ws.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("send %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return c.Err()
	case resp := <-ch:
		if resp.Error != nil {
			return fmt.Errorf("%s: %w", method, resp.Error)
		}
		if res != nil && len(resp.Result) > 0 {
			if err := easyjson.Unmarshal(resp.Result, res); err != nil {
				return fmt.Errorf("decode %s result: %w", method, err)
			}
		}
		return nil
	}
}

func (c *Conn) readLoop() {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.fail(fmt.Errorf("%w: %v", ErrClosed, err))
			return
		}
		msg := new(cdproto.Message)
		if err := easyjson.Unmarshal(data, msg); err != nil {
			continue
		}

		c.mu.Lock()
		if msg.ID != 0 {
			if ch, ok := c.pending[msg.ID]; ok {
				ch <- msg
			}
		} else if msg.Method != "" {
			c.queue = append(c.queue, msg)
		}
		c.mu.Unlock()

		if msg.ID == 0 {
			select {
			case c.wake <- struct{}{}:
			default:
			}
		}
	}
}

// pump moves queued events to the events channel so a slow consumer that
// itself calls Execute never blocks the read loop.
func (c *Conn) pump() {
	defer close(c.events)
	for {
		c.mu.Lock()
		if len(c.queue) > 0 {
			msg := c.queue[0]
			c.queue = c.queue[1:]
			c.mu.Unlock()
			c.events <- msg
			continue
		}
		closed := c.err != nil
		c.mu.Unlock()
		if closed {
			return
		}

		select {
		case <-c.wake:
		case <-c.done:
		}
	}
}

func (c *Conn) fail(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
		close(c.done)
	}
	c.mu.Unlock()
	_ = c.ws.Close()
}
