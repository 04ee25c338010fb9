package transcript

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/negi-chat/internal/model/chat"
	"github.com/zhouzirui/negi-chat/internal/model/persona"
)

// Storage keys, shared with the browser client's localStorage layout.
const (
	keyHistories = "rohit_chat_histories"
	keyActive    = "rohit_current_chat_id"
	keyTheme     = "rohit_chat_theme"
)

const idPrefix = "chat_"

var (
	ErrSessionNotFound    = errors.New("chat session not found")
	ErrDeleteNotConfirmed = errors.New("delete not confirmed")
)

// Theme is the persisted UI preference.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// Options configures Open.
type Options struct {
	Persona persona.Persona
	Logger  zerolog.Logger
	// Now and Entropy default to time.Now and crypto/rand.
	Now     func() time.Time
	Entropy io.Reader
}

// Summary is one row of a session listing.
type Summary struct {
	ID       string
	Title    string
	Messages int
	Active   bool
}

// DisplayTitle returns the title cut to limit runes, with "..." when cut.
func (s Summary) DisplayTitle(limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s.Title) <= limit {
		return s.Title
	}
	runes := []rune(s.Title)
	return string(runes[:limit]) + "..."
}

// Store is the durable client-side record of every conversation. Exactly one
// session is active at any time once Open returns.
type Store struct {
	mu        sync.Mutex
	kv        KV
	persona   persona.Persona
	logger    zerolog.Logger
	now       func() time.Time
	entropy   *ulid.MonotonicEntropy
	histories map[string]chat.Transcript
	active    string
	theme     Theme
}

// Open loads the persisted state from kv. Unreadable history is discarded and
// replaced by an empty set; a missing or dangling active id starts a new session.
func Open(kv KV, opts Options) (*Store, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Entropy == nil {
		opts.Entropy = rand.Reader
	}

	s := &Store{
		kv:        kv,
		persona:   opts.Persona,
		logger:    opts.Logger.With().Str("component", "transcript").Logger(),
		now:       opts.Now,
		entropy:   ulid.Monotonic(opts.Entropy, 0),
		histories: make(map[string]chat.Transcript),
		theme:     ThemeLight,
	}

	raw, err := kv.Get(keyHistories)
	if err != nil {
		return nil, err
	}
	if len(raw) > 0 {
		var loaded map[string]chat.Transcript
		if err := json.Unmarshal(raw, &loaded); err != nil {
			s.logger.Warn().Err(err).Msg("discarding unreadable chat history")
		} else if loaded != nil {
			s.histories = loaded
		}
	}

	rawActive, err := kv.Get(keyActive)
	if err != nil {
		return nil, err
	}
	s.active = string(rawActive)

	rawTheme, err := kv.Get(keyTheme)
	if err != nil {
		return nil, err
	}
	if Theme(rawTheme) == ThemeDark {
		s.theme = ThemeDark
	}

	if _, ok := s.histories[s.active]; !ok {
		if _, err := s.CreateSession(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// CreateSession starts a session seeded with the persona greeting, makes it
// active and persists it.
func (s *Store) CreateSession() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	histories := s.copyHistories()
	id, err := s.newIDLocked(histories)
	if err != nil {
		return "", err
	}
	histories[id] = s.seed()

	if err := s.commit(histories, id); err != nil {
		return "", err
	}
	s.logger.Debug().Str("session_id", id).Msg("session created")
	return id, nil
}

// AppendMessage adds a message to session id. The first user message becomes
// the session title; later messages never change it.
func (s *Store) AppendMessage(id string, role chat.Role, content string) error {
	if !role.Valid() {
		return fmt.Errorf("invalid role %q", role)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.histories[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	next := current.Clone()
	if _, titled := current.FirstUserMessage(); !titled && role == chat.RoleUser {
		next.Title = content
	}
	next.Messages = append(next.Messages, chat.NewMessage(role, content))

	histories := s.copyHistories()
	histories[id] = next
	return s.commit(histories, s.active)
}

// DeleteSession removes session id once confirm approves it. Deleting the
// active session starts a new one.
func (s *Store) DeleteSession(id string, confirm func(chat.Transcript) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.histories[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if confirm == nil || !confirm(current.Clone()) {
		return ErrDeleteNotConfirmed
	}

	histories := s.copyHistories()
	delete(histories, id)
	active := s.active
	if active == id {
		newID, err := s.newIDLocked(histories)
		if err != nil {
			return err
		}
		histories[newID] = s.seed()
		active = newID
	}

	if err := s.commit(histories, active); err != nil {
		return err
	}
	s.logger.Debug().Str("session_id", id).Str("active", active).Msg("session deleted")
	return nil
}

// SetActive switches the active session.
func (s *Store) SetActive(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.histories[id]; !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if id == s.active {
		return nil
	}
	if err := s.kv.SetMany(map[string][]byte{keyActive: []byte(id)}); err != nil {
		return err
	}
	s.active = id
	return nil
}

// Active returns the active session id and a copy of its transcript.
func (s *Store) Active() (string, chat.Transcript) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active, s.histories[s.active].Clone()
}

// Get returns a copy of session id.
func (s *Store) Get(id string) (chat.Transcript, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.histories[id]
	if !ok {
		return chat.Transcript{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return t.Clone(), nil
}

// Resolve maps an id or an unambiguous id suffix to a session id.
func (s *Store) Resolve(ref string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref = strings.TrimSpace(ref)
	if _, ok := s.histories[ref]; ok {
		return ref, nil
	}
	var match string
	for id := range s.histories {
		if ref != "" && strings.HasSuffix(id, ref) {
			if match != "" {
				return "", fmt.Errorf("%q matches more than one session", ref)
			}
			match = id
		}
	}
	if match == "" {
		return "", fmt.Errorf("%w: %s", ErrSessionNotFound, ref)
	}
	return match, nil
}

// List returns every session, newest first.
func (s *Store) List() []Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Summary, 0, len(s.histories))
	for id, t := range s.histories {
		out = append(out, Summary{
			ID:       id,
			Title:    t.DisplayTitle(),
			Messages: len(t.Messages),
			Active:   id == s.active,
		})
	}
	// Ids embed their creation time, so reverse lexical order is newest first.
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

// Theme returns the persisted theme.
func (s *Store) Theme() Theme {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.theme
}

// SetTheme persists the theme.
func (s *Store) SetTheme(theme Theme) error {
	if theme != ThemeDark && theme != ThemeLight {
		return fmt.Errorf("unknown theme %q", theme)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.SetMany(map[string][]byte{keyTheme: []byte(theme)}); err != nil {
		return err
	}
	s.theme = theme
	return nil
}

func (s *Store) seed() chat.Transcript {
	t := chat.Transcript{Messages: []chat.Message{}}
	if s.persona.Greeting != "" {
		t.Messages = append(t.Messages, chat.NewMessage(chat.RoleModel, s.persona.Greeting))
	}
	return t
}

func (s *Store) newIDLocked(existing map[string]chat.Transcript) (string, error) {
	for {
		id, err := ulid.New(ulid.Timestamp(s.now()), s.entropy)
		if err != nil {
			return "", fmt.Errorf("failed to generate session id: %w", err)
		}
		candidate := idPrefix + id.String()
		if _, taken := existing[candidate]; !taken {
			return candidate, nil
		}
	}
}

func (s *Store) copyHistories() map[string]chat.Transcript {
	out := make(map[string]chat.Transcript, len(s.histories)+1)
	for id, t := range s.histories {
		out[id] = t
	}
	return out
}

// commit persists histories and the active id together, then adopts them.
func (s *Store) commit(histories map[string]chat.Transcript, active string) error {
	raw, err := json.Marshal(histories)
	if err != nil {
		return fmt.Errorf("failed to encode chat history: %w", err)
	}
	if err := s.kv.SetMany(map[string][]byte{
		keyHistories: raw,
		keyActive:    []byte(active),
	}); err != nil {
		return err
	}
	s.histories = histories
	s.active = active
	return nil
}
