package session

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/negi-chat/internal/metrics"
	"github.com/zhouzirui/negi-chat/internal/model/chat"
)

var (
	ErrSessionIDRequired = errors.New("session id is required")
	ErrInvalidRole       = errors.New("invalid message role")
)

// Config bounds the store. Zero values disable the corresponding bound.
type Config struct {
	// Capacity is the maximum number of tracked sessions. When exceeded, the
	// least recently used idle session is evicted.
	Capacity int
	// TTL is how long an idle session survives before Sweep reclaims it.
	TTL time.Duration
	// MaxMessages caps the context kept per session. Oldest turns go first.
	MaxMessages int
}

type entry struct {
	id   string
	slot chan struct{}
	elem *list.Element

	// guarded by Store.mu
	refs     int
	lastUsed time.Time

	mu       sync.Mutex
	messages []chat.Message
}

// Store holds per-session model context for the lifetime of the process.
//
// The store lock only covers lookup, insertion and eviction. Turns for one
// session are serialized by that session's own slot, so a slow model call
// never blocks other sessions.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	lru     *list.List // front is most recently used

	cfg    Config
	logger zerolog.Logger
	now    func() time.Time
}

// NewStore creates an empty store.
func NewStore(cfg Config, logger zerolog.Logger) *Store {
	if cfg.MaxMessages > 0 && cfg.MaxMessages < 2 {
		cfg.MaxMessages = 2
	}
	return &Store{
		entries: make(map[string]*entry),
		lru:     list.New(),
		cfg:     cfg,
		logger:  logger.With().Str("component", "session.store").Logger(),
		now:     time.Now,
	}
}

// Turn is exclusive access to one session's context. Callers must Release it.
type Turn struct {
	store *Store
	entry *entry
	once  sync.Once
}

// Acquire returns the session for id, creating it on first reference, and
// waits until no other turn holds it. The wait is bounded by ctx.
func (s *Store) Acquire(ctx context.Context, id string) (*Turn, error) {
	if id == "" {
		return nil, ErrSessionIDRequired
	}

	e := s.checkout(id)
	select {
	case e.slot <- struct{}{}:
		return &Turn{store: s, entry: e}, nil
	case <-ctx.Done():
		s.checkin(e)
		return nil, fmt.Errorf("waiting for session %s: %w", id, ctx.Err())
	}
}

// ID returns the session id the turn is scoped to.
func (t *Turn) ID() string {
	return t.entry.id
}

// Append adds a message to the tail of the session context.
func (t *Turn) Append(msg chat.Message) {
	t.store.appendTo(t.entry, msg)
}

// Messages returns a copy of the session context.
func (t *Turn) Messages() []chat.Message {
	return t.entry.snapshot()
}

// Release gives up exclusive access. Calling it more than once is a no-op.
func (t *Turn) Release() {
	t.once.Do(func() {
		<-t.entry.slot
		t.store.checkin(t.entry)
	})
}

// Append adds one message to the session as its own turn, waiting for any
// turn in progress to finish first.
func (s *Store) Append(id string, role chat.Role, content string) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	turn, err := s.Acquire(context.Background(), id)
	if err != nil {
		return err
	}
	defer turn.Release()
	turn.Append(chat.NewMessage(role, content))
	return nil
}

// Messages returns a copy of the context for id without creating it.
func (s *Store) Messages(id string) ([]chat.Message, bool) {
	s.mu.Lock()
	e, ok := s.entries[id]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	return e.snapshot(), true
}

// Len reports the number of tracked sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep removes idle sessions unused for longer than the configured TTL and
// returns how many were removed.
func (s *Store) Sweep(now time.Time) int {
	if s.cfg.TTL <= 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for el := s.lru.Back(); el != nil; {
		prev := el.Prev()
		e := el.Value.(*entry)
		if e.refs == 0 && now.Sub(e.lastUsed) > s.cfg.TTL {
			s.remove(e)
			metrics.SessionsEvicted.WithLabelValues("ttl").Inc()
			removed++
		}
		el = prev
	}
	return removed
}

func (s *Store) checkout(id string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if ok {
		s.lru.MoveToFront(e.elem)
	} else {
		e = &entry{id: id, slot: make(chan struct{}, 1)}
		e.elem = s.lru.PushFront(e)
		s.entries[id] = e
		metrics.SessionsActive.Inc()
	}
	e.refs++
	e.lastUsed = s.now()

	if !ok {
		s.evictOverCapacity()
	}
	return e
}

func (s *Store) checkin(e *entry) {
	s.mu.Lock()
	e.refs--
	e.lastUsed = s.now()
	s.mu.Unlock()
}

// evictOverCapacity must be called with s.mu held. Sessions in use are never
// evicted, so the store may briefly exceed capacity under load.
func (s *Store) evictOverCapacity() {
	if s.cfg.Capacity <= 0 {
		return
	}
	for el := s.lru.Back(); el != nil && len(s.entries) > s.cfg.Capacity; {
		prev := el.Prev()
		e := el.Value.(*entry)
		if e.refs == 0 {
			s.remove(e)
			metrics.SessionsEvicted.WithLabelValues("capacity").Inc()
			s.logger.Debug().Str("session_id", e.id).Msg("evicted least recently used session")
		}
		el = prev
	}
}

func (s *Store) remove(e *entry) {
	s.lru.Remove(e.elem)
	delete(s.entries, e.id)
	metrics.SessionsActive.Dec()
}

func (s *Store) appendTo(e *entry, msg chat.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.messages = append(e.messages, msg)
	if limit := s.cfg.MaxMessages; limit > 0 && len(e.messages) > limit {
		e.messages = trimContext(e.messages, limit)
	}
}

// trimContext drops the oldest messages until at most limit remain and the
// context starts with a user message.
func trimContext(messages []chat.Message, limit int) []chat.Message {
	start := len(messages) - limit
	for start < len(messages) && messages[start].Role != chat.RoleUser {
		start++
	}
	trimmed := make([]chat.Message, len(messages)-start)
	copy(trimmed, messages[start:])
	return trimmed
}

func (e *entry) snapshot() []chat.Message {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]chat.Message, len(e.messages))
	copy(out, e.messages)
	return out
}
