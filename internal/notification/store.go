// Package notification keeps the signed-in user's activity feed: a
// paginated history fetched from the server plus live items pushed over
// the realtime channel.
package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/nhle/taskflow/internal/api"
	"github.com/nhle/taskflow/internal/logging"
	"github.com/nhle/taskflow/internal/model"
	"github.com/nhle/taskflow/internal/realtime"
)

const (
	DefaultPageSize = 20
	DefaultMaxLive  = 20
)

// ErrFetchInFlight is returned when a page fetch is requested while one
// is already running. No request is sent.
var ErrFetchInFlight = errors.New("notification fetch already in flight")

// Gateway is the subset of the REST client the store uses.
type Gateway interface {
	ListNotifications(ctx context.Context, page, limit int) (*model.NotificationPage, error)
	MarkNotificationRead(ctx context.Context, id string) error
	MarkAllNotificationsRead(ctx context.Context) error
	DeleteNotification(ctx context.Context, id string) error
}

// Snapshot is a read-only copy of the feed.
type Snapshot struct {
	Items   []model.Notification
	Page    int
	HasMore bool
	Loading bool
	Unread  int
	Err     string
}

// Store holds the feed. Safe for concurrent use.
type Store struct {
	gw       Gateway
	logger   *log.Logger
	pageSize int
	maxLive  int

	mu        sync.Mutex
	gen       uint64
	items     []model.Notification
	page      int
	hasMore   bool
	fetching  bool
	err       string
	listeners []func()
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithPageSize sets how many notifications each page request asks for.
func WithPageSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithMaxLive caps the feed length after a live push.
func WithMaxLive(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxLive = n
		}
	}
}

// New creates an empty feed.
func New(gw Gateway, opts ...Option) *Store {
	s := &Store{
		gw:       gw,
		logger:   logging.Discard(),
		pageSize: DefaultPageSize,
		maxLive:  DefaultMaxLive,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnChange registers fn to run after every state change.
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Store) notify() {
	s.mu.Lock()
	listeners := append([]func(){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

// FetchPage loads page n. Page 1 replaces the feed; later pages are
// appended. Only one fetch runs at a time. A page that resolves after
// Reset is dropped.
func (s *Store) FetchPage(ctx context.Context, n int) error {
	if n < 1 {
		n = 1
	}

	s.mu.Lock()
	if s.fetching {
		s.mu.Unlock()
		return ErrFetchInFlight
	}
	s.fetching = true
	gen := s.gen
	s.mu.Unlock()
	s.notify()

	page, err := s.gw.ListNotifications(ctx, n, s.pageSize)

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		s.logger.Debug("discarding notifications fetched before reset", "page", n)
		return nil
	}
	s.fetching = false
	if err != nil {
		s.err = api.Message(err)
		s.mu.Unlock()
		s.logger.Warn("fetching notifications", "page", n, "err", err)
		s.notify()
		return fmt.Errorf("fetching notifications page %d: %w", n, err)
	}

	if n == 1 {
		s.items = append([]model.Notification(nil), page.Notifications...)
	} else {
		s.items = append(s.items, page.Notifications...)
	}
	s.page = page.CurrentPage
	if s.page == 0 {
		s.page = n
	}
	s.hasMore = s.page < page.TotalPages
	s.err = ""
	s.mu.Unlock()

	s.notify()
	return nil
}

// LoadMore fetches the next page if there is one.
func (s *Store) LoadMore(ctx context.Context) error {
	s.mu.Lock()
	next, more := s.page+1, s.hasMore
	s.mu.Unlock()
	if !more {
		return nil
	}
	return s.FetchPage(ctx, next)
}

// Apply handles live pushes. A notification whose id is already in the
// feed replaces it in place; otherwise it is prepended and the oldest
// items beyond the cap are dropped.
func (s *Store) Apply(ev realtime.Event) {
	nn, ok := ev.(realtime.NewNotification)
	if !ok {
		return
	}
	n := nn.Notification

	s.mu.Lock()
	replaced := false
	if n.ID != "" {
		for i := range s.items {
			if s.items[i].ID == n.ID {
				s.items[i] = n
				replaced = true
				break
			}
		}
	}
	if !replaced {
		s.items = append([]model.Notification{n}, s.items...)
		if len(s.items) > s.maxLive {
			s.items = s.items[:s.maxLive]
		}
	}
	s.mu.Unlock()

	s.notify()
}

// MarkRead marks one notification read once the server confirms.
func (s *Store) MarkRead(ctx context.Context, id string) error {
	if err := s.gw.MarkNotificationRead(ctx, id); err != nil {
		s.fail(err)
		return fmt.Errorf("marking notification read: %w", err)
	}
	s.mu.Lock()
	for i := range s.items {
		if s.items[i].ID == id {
			s.items[i].Read = true
		}
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

// MarkAllRead marks the whole feed read once the server confirms.
func (s *Store) MarkAllRead(ctx context.Context) error {
	if err := s.gw.MarkAllNotificationsRead(ctx); err != nil {
		s.fail(err)
		return fmt.Errorf("marking notifications read: %w", err)
	}
	s.mu.Lock()
	for i := range s.items {
		s.items[i].Read = true
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

// Delete removes a notification once the server confirms.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.gw.DeleteNotification(ctx, id); err != nil {
		s.fail(err)
		return fmt.Errorf("deleting notification: %w", err)
	}
	s.mu.Lock()
	kept := s.items[:0:0]
	for _, n := range s.items {
		if n.ID != id {
			kept = append(kept, n)
		}
	}
	s.items = kept
	s.mu.Unlock()
	s.notify()
	return nil
}

// Unread counts unread items in the feed.
func (s *Store) Unread() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unreadLocked()
}

func (s *Store) unreadLocked() int {
	n := 0
	for _, item := range s.items {
		if !item.Read {
			n++
		}
	}
	return n
}

// Items returns a copy of the feed, newest first.
func (s *Store) Items() []model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Notification(nil), s.items...)
}

// Snapshot returns a copy of the full state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Items:   append([]model.Notification(nil), s.items...),
		Page:    s.page,
		HasMore: s.hasMore,
		Loading: s.fetching,
		Unread:  s.unreadLocked(),
		Err:     s.err,
	}
}

// Reset empties the feed, e.g. on logout. A fetch still in flight no
// longer blocks new ones.
func (s *Store) Reset() {
	s.mu.Lock()
	s.gen++
	s.fetching = false
	s.items = nil
	s.page = 0
	s.hasMore = false
	s.err = ""
	s.mu.Unlock()
	s.notify()
}

func (s *Store) fail(err error) {
	s.logger.Warn("notification request failed", "err", err)
	s.mu.Lock()
	s.err = api.Message(err)
	s.mu.Unlock()
	s.notify()
}
