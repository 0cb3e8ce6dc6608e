// Package realtime maintains the websocket connection that carries board
// and notification events between the client and the server.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nhle/taskflow/internal/logging"
)

// ErrNotConnected is returned by emits while no connection is open.
var ErrNotConnected = errors.New("realtime channel not connected")

// writeTimeout bounds a single frame write.
const writeTimeout = 5 * time.Second

// Handler receives decoded events. Handlers run on the channel's read
// goroutine in arrival order and must not block for long.
type Handler func(Event)

// Channel is one realtime connection for an authenticated session. It
// remembers the rooms it has joined and re-joins them after reconnecting.
type Channel struct {
	url    string
	dialer Dialer
	token  func() string
	logger *log.Logger

	minBackoff time.Duration
	maxBackoff time.Duration

	mu         sync.Mutex
	conn       Conn
	userRooms  map[string]bool
	boardRooms map[string]bool
	handlers   map[int]Handler
	nextID     int
	cancel     context.CancelFunc
	done       chan struct{}
}

// Option configures a Channel.
type Option func(*Channel)

// WithDialer replaces the websocket dialer.
func WithDialer(d Dialer) Option {
	return func(c *Channel) { c.dialer = d }
}

// WithToken sets the bearer credential source used when dialing.
func WithToken(token func() string) Option {
	return func(c *Channel) { c.token = token }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Channel) { c.logger = l }
}

// WithBackoff sets the reconnect backoff bounds.
func WithBackoff(min, max time.Duration) Option {
	return func(c *Channel) {
		c.minBackoff = min
		c.maxBackoff = max
	}
}

// New creates an unconnected channel for the websocket endpoint at url.
func New(url string, opts ...Option) *Channel {
	c := &Channel{
		url:        url,
		dialer:     WebsocketDialer{},
		logger:     logging.Discard(),
		minBackoff: time.Second,
		maxBackoff: 30 * time.Second,
		userRooms:  make(map[string]bool),
		boardRooms: make(map[string]bool),
		handlers:   make(map[int]Handler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect dials the server and starts the read loop. If the dial or a
// later read fails the channel keeps redialing with backoff until Close
// is called; the first dial error is still returned. Connect on a channel
// that is connected or reconnecting is a no-op.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		c.logger.Warn("realtime dial failed, retrying", "url", c.url, "err", err)
		go c.run(runCtx, nil, done)
		return fmt.Errorf("connecting realtime channel: %w", err)
	}

	c.mu.Lock()
	if runCtx.Err() == nil {
		c.conn = conn
	}
	c.mu.Unlock()

	if runCtx.Err() == nil {
		c.rejoin(ctx, conn)
		c.logger.Info("realtime connected", "url", c.url)
	}
	go c.run(runCtx, conn, done)
	return nil
}

// Close disconnects and stops reconnecting. Joined rooms are forgotten.
func (c *Channel) Close() error {
	c.mu.Lock()
	cancel, done, conn := c.cancel, c.done, c.conn
	c.cancel, c.done, c.conn = nil, nil, nil
	c.userRooms = make(map[string]bool)
	c.boardRooms = make(map[string]bool)
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	var err error
	if conn != nil {
		err = conn.Close()
	}
	<-done
	c.logger.Info("realtime disconnected")
	return err
}

// Connected reports whether a connection is currently open.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Subscribe registers h for every decoded event and returns a function
// that removes it.
func (c *Channel) Subscribe(h Handler) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.handlers[id] = h
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.handlers, id)
		c.mu.Unlock()
	}
}

// JoinUser joins the permanent per-user room.
func (c *Channel) JoinUser(ctx context.Context, userID string) error {
	c.mu.Lock()
	c.userRooms[userID] = true
	c.mu.Unlock()
	return c.sendIfConnected(ctx, EventJoinUser, userID)
}

// LeaveUser leaves the per-user room.
func (c *Channel) LeaveUser(ctx context.Context, userID string) error {
	c.mu.Lock()
	delete(c.userRooms, userID)
	c.mu.Unlock()
	return c.sendIfConnected(ctx, EventLeaveUser, userID)
}

// JoinBoard joins a board room.
func (c *Channel) JoinBoard(ctx context.Context, boardID string) error {
	c.mu.Lock()
	c.boardRooms[boardID] = true
	c.mu.Unlock()
	return c.sendIfConnected(ctx, EventJoinBoard, boardID)
}

// LeaveBoard leaves a board room.
func (c *Channel) LeaveBoard(ctx context.Context, boardID string) error {
	c.mu.Lock()
	delete(c.boardRooms, boardID)
	c.mu.Unlock()
	return c.sendIfConnected(ctx, EventLeaveBoard, boardID)
}

// Rooms returns the joined user and board rooms, sorted.
func (c *Channel) Rooms() (users, boards []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sortedKeys(c.userRooms), sortedKeys(c.boardRooms)
}

// EmitTaskChanged broadcasts a task change to the other viewers of a board.
func (c *Channel) EmitTaskChanged(ctx context.Context, p TaskChange) error {
	return c.send(ctx, EventTaskChanged, p)
}

// EmitListChanged broadcasts a list change.
func (c *Channel) EmitListChanged(ctx context.Context, p ListChange) error {
	return c.send(ctx, EventListChanged, p)
}

// EmitBoardChanged broadcasts a board-level change.
func (c *Channel) EmitBoardChanged(ctx context.Context, p BoardChange) error {
	return c.send(ctx, EventBoardChanged, p)
}

// sendIfConnected sends room frames only when a connection is open; the
// room is re-joined from the recorded set on the next connect.
func (c *Channel) sendIfConnected(ctx context.Context, event string, data any) error {
	if !c.Connected() {
		return nil
	}
	return c.send(ctx, event, data)
}

func (c *Channel) send(ctx context.Context, event string, data any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return writeFrame(ctx, conn, event, data)
}

func writeFrame(ctx context.Context, conn Conn, event string, data any) error {
	frame, err := encode(event, data)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := conn.Write(wctx, frame); err != nil {
		return fmt.Errorf("writing %s: %w", event, err)
	}
	return nil
}

func (c *Channel) dial(ctx context.Context) (Conn, error) {
	header := http.Header{}
	if c.token != nil {
		if t := c.token(); t != "" {
			header.Set("Authorization", "Bearer "+t)
		}
	}
	return c.dialer.Dial(ctx, c.url, header)
}

// rejoin sends join frames for every recorded room on a fresh connection.
func (c *Channel) rejoin(ctx context.Context, conn Conn) {
	users, boards := c.Rooms()
	for _, id := range users {
		if err := writeFrame(ctx, conn, EventJoinUser, id); err != nil {
			c.logger.Warn("rejoining user room", "user", id, "err", err)
		}
	}
	for _, id := range boards {
		if err := writeFrame(ctx, conn, EventJoinBoard, id); err != nil {
			c.logger.Warn("rejoining board room", "board", id, "err", err)
		}
	}
}

// run reads frames until the connection fails, then redials with
// exponential backoff. A nil conn starts with a redial. It exits when ctx
// is cancelled.
func (c *Channel) run(ctx context.Context, conn Conn, done chan struct{}) {
	defer func() {
		if conn != nil {
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()
			conn.Close()
		}
		close(done)
	}()

	for {
		if conn == nil {
			if conn = c.redial(ctx); conn == nil {
				return
			}
		}

		err := c.readLoop(ctx, conn)
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("realtime connection lost", "err", err)

		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		conn.Close()
		conn = nil
	}
}

func (c *Channel) readLoop(ctx context.Context, conn Conn) error {
	for {
		frame, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		ev, err := Decode(frame)
		if err != nil {
			c.logger.Debug("dropping realtime frame", "err", err)
			continue
		}
		c.dispatch(ev)
	}
}

func (c *Channel) dispatch(ev Event) {
	c.mu.Lock()
	ids := make([]int, 0, len(c.handlers))
	for id := range c.handlers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	handlers := make([]Handler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, c.handlers[id])
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}

// redial retries until a connection is established or ctx ends.
func (c *Channel) redial(ctx context.Context) Conn {
	for attempt := 0; ; attempt++ {
		wait := c.backoff(attempt)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}

		conn, err := c.dial(ctx)
		if err != nil {
			c.logger.Warn("realtime reconnect failed", "attempt", attempt+1, "err", err)
			continue
		}

		c.mu.Lock()
		if ctx.Err() != nil {
			c.mu.Unlock()
			conn.Close()
			return nil
		}
		c.conn = conn
		c.mu.Unlock()

		c.rejoin(ctx, conn)
		c.logger.Info("realtime reconnected", "attempts", attempt+1)
		return conn
	}
}

// backoff doubles from minBackoff, capped at maxBackoff.
func (c *Channel) backoff(attempt int) time.Duration {
	d := c.minBackoff
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= c.maxBackoff {
			return c.maxBackoff
		}
	}
	return d
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
