package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/negi-chat/internal/client/transcript"
	"github.com/zhouzirui/negi-chat/internal/model/chat"
	"github.com/zhouzirui/negi-chat/internal/model/persona"
)

var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrTurnInFlight = errors.New("a reply is still pending for this chat")
)

// Sender delivers one user message to the chat server.
type Sender interface {
	Send(ctx context.Context, chatID, message string) (string, error)
}

// Controller drives turns from the client side. The user message is recorded
// before the server is called; on failure the persona apology is recorded
// locally and never sent to the server.
type Controller struct {
	store   *transcript.Store
	sender  Sender
	persona persona.Persona
	logger  zerolog.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// New creates a controller over store.
func New(store *transcript.Store, sender Sender, p persona.Persona, logger zerolog.Logger) *Controller {
	return &Controller{
		store:    store,
		sender:   sender,
		persona:  p,
		logger:   logger.With().Str("component", "conversation").Logger(),
		inFlight: make(map[string]struct{}),
	}
}

// Send runs one turn on the active session and returns the reply.
func (c *Controller) Send(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyMessage
	}

	chatID, _ := c.store.Active()
	if !c.begin(chatID) {
		return "", ErrTurnInFlight
	}
	defer c.end(chatID)

	if err := c.store.AppendMessage(chatID, chat.RoleUser, text); err != nil {
		return "", fmt.Errorf("record message: %w", err)
	}

	reply, err := c.sender.Send(ctx, chatID, text)
	if err != nil {
		c.logger.Warn().Err(err).Str("session_id", chatID).Msg("turn failed")
		if appendErr := c.store.AppendMessage(chatID, chat.RoleModel, c.persona.Apology); appendErr != nil {
			c.logger.Error().Err(appendErr).Str("session_id", chatID).Msg("failed to record apology")
		}
		return "", err
	}

	if err := c.store.AppendMessage(chatID, chat.RoleModel, reply); err != nil {
		return reply, fmt.Errorf("record reply: %w", err)
	}
	return reply, nil
}

// Pending reports whether chatID has a turn in flight.
func (c *Controller) Pending(chatID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inFlight[chatID]
	return ok
}

func (c *Controller) begin(chatID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.inFlight[chatID]; busy {
		return false
	}
	c.inFlight[chatID] = struct{}{}
	return true
}

func (c *Controller) end(chatID string) {
	c.mu.Lock()
	delete(c.inFlight, chatID)
	c.mu.Unlock()
}
