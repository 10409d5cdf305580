package xychain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/xychain/xy-e2e/internal/convert"
)

// maxMessageSize covers runtime metadata and NFT payloads up to the 1 MiB
// pallet limit once hex encoded.
const maxMessageSize = 32 << 20

// maxOrphans bounds notifications buffered for subscriptions that have not
// been registered yet.
const maxOrphans = 256

const subscriptionBuffer = 32

// RPCCaller abstracts the JSON-RPC transport to the node, allowing tests to
// inject a mock.
type RPCCaller interface {
	// Call invokes method and decodes the result into result (which may be nil).
	Call(ctx context.Context, method string, params []any, result any) error
	// Subscribe invokes a subscribing method. Notifications named
	// notification are delivered on the returned Subscription until it is
	// cancelled with the unsubscribe method.
	Subscribe(ctx context.Context, method string, params []any, notification, unsubscribe string) (Subscription, error)
	// Close releases the transport.
	Close() error
}

// Subscription is a live notification stream.
type Subscription interface {
	ID() string
	// Updates delivers each notification's result payload.
	Updates() <-chan json.RawMessage
	// Err delivers at most one error if the transport fails.
	Err() <-chan error
	// Unsubscribe cancels the stream. Only the first call reaches the node.
	Unsubscribe() error
}

// wsCaller is a JSON-RPC 2.0 client over a single WebSocket connection.
// Requests are multiplexed by id; one reader goroutine dispatches responses
// and notifications.
type wsCaller struct {
	endpoint    string
	conn        *websocket.Conn
	logger      *slog.Logger
	callTimeout time.Duration
	requestID   atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]chan rpcMessage
	subs    map[string]*wsSubscription
	orphans map[string][]json.RawMessage
	norphan int

	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error

	readCtx    context.Context
	readCancel context.CancelFunc
}

// dialWS opens the WebSocket connection. It is a single attempt.
func dialWS(ctx context.Context, endpoint string, callTimeout time.Duration, logger *slog.Logger) (*wsCaller, error) {
	conn, _, err := websocket.Dial(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	conn.SetReadLimit(maxMessageSize)
	if callTimeout <= 0 {
		callTimeout = DefaultConfig().CallTimeout
	}

	readCtx, readCancel := context.WithCancel(context.Background())
	c := &wsCaller{
		endpoint:    endpoint,
		conn:        conn,
		logger:      logger.With("endpoint", endpoint),
		callTimeout: callTimeout,
		pending:     make(map[uint64]chan rpcMessage),
		subs:        make(map[string]*wsSubscription),
		orphans:     make(map[string][]json.RawMessage),
		closed:      make(chan struct{}),
		readCtx:     readCtx,
		readCancel:  readCancel,
	}
	go c.readLoop()
	return c, nil
}

func (c *wsCaller) Call(ctx context.Context, method string, params []any, result any) error {
	msg, err := c.roundTrip(ctx, method, params)
	if err != nil {
		return err
	}
	if msg.Error != nil {
		return msg.Error
	}
	if result == nil || len(msg.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(msg.Result, result); err != nil {
		return &convert.DecodeError{Input: method, Reason: "result", Err: err}
	}
	return nil
}

func (c *wsCaller) Subscribe(ctx context.Context, method string, params []any, notification, unsubscribe string) (Subscription, error) {
	msg, err := c.roundTrip(ctx, method, params)
	if err != nil {
		return nil, err
	}
	if msg.Error != nil {
		return nil, msg.Error
	}
	if len(msg.Result) == 0 {
		return nil, fmt.Errorf("%s returned no subscription id", method)
	}

	id := subscriptionKey(msg.Result)

	// Buffered early notifications are queued before the subscription becomes
	// visible to the reader, so they stay ahead of anything it dispatches.
	c.mu.Lock()
	early := c.orphans[id]
	delete(c.orphans, id)
	c.norphan -= len(early)
	sub := &wsSubscription{
		id:           id,
		rawID:        msg.Result,
		notification: notification,
		unsubscribe:  unsubscribe,
		caller:       c,
		updates:      make(chan json.RawMessage, subscriptionBuffer+len(early)),
		errCh:        make(chan error, 1),
		done:         make(chan struct{}),
	}
	for _, payload := range early {
		sub.updates <- payload
	}
	c.subs[id] = sub
	c.mu.Unlock()

	c.logger.Debug("subscribed", "method", method, "subscription", sub.id)
	return sub, nil
}

// Close shuts the socket and fails every pending call.
func (c *wsCaller) Close() error {
	c.fail(ErrClosed)
	return nil
}

func (c *wsCaller) roundTrip(ctx context.Context, method string, params []any) (rpcMessage, error) {
	if _, ok := ctx.Deadline(); !ok && c.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
	}
	if params == nil {
		params = []any{}
	}

	id := c.requestID.Add(1)
	respCh := make(chan rpcMessage, 1)

	c.mu.Lock()
	select {
	case <-c.closed:
		c.mu.Unlock()
		return rpcMessage{}, c.closeErr
	default:
	}
	c.pending[id] = respCh
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	c.logger.Debug("RPC call", "method", method, "id", id)

	req := RPCRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	if err := wsjson.Write(ctx, c.conn, req); err != nil {
		return rpcMessage{}, fmt.Errorf("write %s: %w", method, err)
	}

	select {
	case msg := <-respCh:
		return msg, nil
	case <-ctx.Done():
		return rpcMessage{}, fmt.Errorf("%s: %w", method, ctx.Err())
	case <-c.closed:
		return rpcMessage{}, c.closeErr
	}
}

func (c *wsCaller) readLoop() {
	for {
		var msg rpcMessage
		if err := wsjson.Read(c.readCtx, c.conn, &msg); err != nil {
			c.fail(fmt.Errorf("read: %w", err))
			return
		}

		switch {
		case msg.ID != nil:
			c.mu.Lock()
			ch, ok := c.pending[*msg.ID]
			c.mu.Unlock()
			if !ok {
				c.logger.Debug("dropping response for unknown request", "id", *msg.ID)
				continue
			}
			ch <- msg
		case msg.Method != "" && msg.Params != nil:
			c.dispatch(msg)
		default:
			c.logger.Debug("ignoring unrecognised message")
		}
	}
}

func (c *wsCaller) dispatch(msg rpcMessage) {
	key := subscriptionKey(msg.Params.Subscription)

	c.mu.Lock()
	sub, ok := c.subs[key]
	if !ok {
		if c.norphan < maxOrphans {
			c.orphans[key] = append(c.orphans[key], msg.Params.Result)
			c.norphan++
		}
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if msg.Method != sub.notification {
		c.logger.Debug("notification method mismatch", "want", sub.notification, "got", msg.Method)
	}
	sub.deliver(msg.Params.Result, c.closed)
}

func (c *wsCaller) fail(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closeErr = err
		subs := make([]*wsSubscription, 0, len(c.subs))
		for _, s := range c.subs {
			subs = append(subs, s)
		}
		c.mu.Unlock()

		close(c.closed)
		c.readCancel()

		for _, s := range subs {
			select {
			case s.errCh <- err:
			default:
			}
		}

		if errors.Is(err, ErrClosed) {
			_ = c.conn.Close(websocket.StatusNormalClosure, "")
		} else {
			c.logger.Warn("websocket transport failed", "error", err)
			_ = c.conn.CloseNow()
		}
	})
}

func (c *wsCaller) forget(id string) {
	c.mu.Lock()
	delete(c.subs, id)
	c.mu.Unlock()
}

type wsSubscription struct {
	id           string
	rawID        json.RawMessage
	notification string
	unsubscribe  string
	caller       *wsCaller

	updates chan json.RawMessage
	errCh   chan error
	done    chan struct{}
	once    sync.Once
}

func (s *wsSubscription) ID() string                      { return s.id }
func (s *wsSubscription) Updates() <-chan json.RawMessage { return s.updates }
func (s *wsSubscription) Err() <-chan error               { return s.errCh }

func (s *wsSubscription) deliver(payload json.RawMessage, closed <-chan struct{}) {
	select {
	case s.updates <- payload:
	case <-s.done:
	case <-closed:
	}
}

func (s *wsSubscription) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		s.caller.forget(s.id)

		select {
		case <-s.caller.closed:
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), s.caller.callTimeout)
		defer cancel()
		var ok bool
		err = s.caller.Call(ctx, s.unsubscribe, []any{s.rawID}, &ok)
		if err != nil {
			s.caller.logger.Debug("unsubscribe failed", "subscription", s.id, "error", err)
		}
	})
	return err
}
