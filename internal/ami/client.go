package ami

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

type result struct {
	msg Message
	err error
}

// Client runs the single reader for an authenticated Session. A response
// whose ActionID matches a pending action completes that action; every
// other message, including events that echo an ActionID, goes to the Queue.
type Client struct {
	session *Session
	queue   *Queue
	logger  *slog.Logger

	mu      sync.Mutex
	pending map[string]chan result
	closing bool
	err     error
	started bool

	done chan struct{}

	// newID generates correlation tokens. Replaced in tests.
	newID func() string
}

// NewClient wraps an authenticated session. Call Start to begin reading.
func NewClient(session *Session, queue *Queue, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		session: session,
		queue:   queue,
		logger:  logger,
		pending: make(map[string]chan result),
		done:    make(chan struct{}),
		newID:   uuid.NewString,
	}
}

// Start launches the reader goroutine. Cancelling ctx closes the client.
func (c *Client) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	go c.run()
	context.AfterFunc(ctx, func() { c.Close() })
}

func (c *Client) run() {
	defer close(c.done)
	for {
		msg, err := c.session.Next()
		if err != nil {
			c.terminate(err)
			return
		}
		c.route(msg)
	}
}

func (c *Client) route(msg Message) {
	if id := msg.ActionID(); id != "" && !msg.IsEvent() {
		c.mu.Lock()
		slot, ok := c.pending[id]
		if ok {
			delete(c.pending, id)
		}
		c.mu.Unlock()
		if ok {
			slot <- result{msg: msg}
			return
		}
	}
	if c.queue.Push(msg) {
		c.logger.Warn("inbound queue full, dropped oldest message", "capacity", c.queue.Cap())
	}
}

// terminate records the reader's exit and fails every pending action.
func (c *Client) terminate(err error) {
	c.mu.Lock()
	if c.closing {
		err = ErrClosed
	} else {
		c.logger.Error("connection lost", "error", err)
	}
	c.err = err
	pending := c.pending
	c.pending = make(map[string]chan result)
	c.mu.Unlock()

	for _, slot := range pending {
		slot <- result{err: err}
	}
}

// Do sends an action and waits for its correlated response. A non-success
// response is returned together with *ActionRejected.
func (c *Client) Do(ctx context.Context, action Action) (Message, error) {
	action.ID = c.newID()
	slot := make(chan result, 1)

	c.mu.Lock()
	if c.err != nil || c.closing {
		err := c.err
		if err == nil {
			err = ErrClosed
		}
		c.mu.Unlock()
		return nil, err
	}
	c.pending[action.ID] = slot
	c.mu.Unlock()

	if err := c.session.Send(action); err != nil {
		c.forget(action.ID)
		return nil, err
	}

	select {
	case r := <-slot:
		if r.err != nil {
			return nil, r.err
		}
		if !r.msg.Succeeded() {
			return r.msg, &ActionRejected{Action: action.Name, Message: r.msg.Get("Message")}
		}
		return r.msg, nil
	case <-ctx.Done():
		c.forget(action.ID)
		return nil, ctx.Err()
	}
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// Pending returns the number of actions awaiting a response.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Done is closed when the reader exits.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err returns why the reader exited: ErrClosed after Close, the transport
// error after a connection loss, nil while running.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Status reports the underlying session state.
func (c *Client) Status() Status { return c.session.Status() }

// Malformed returns the number of dropped malformed lines.
func (c *Client) Malformed() int64 { return c.session.Malformed() }

// Queue returns the inbound notification queue.
func (c *Client) Queue() *Queue { return c.queue }

// Close logs off, closes the transport and waits for the reader to exit.
// Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closing = true
	started := c.started
	c.mu.Unlock()

	err := c.session.Close()
	if started {
		<-c.done
	}
	if err != nil && isClosedConn(err) {
		return nil
	}
	return err
}
