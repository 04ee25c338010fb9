package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/negi-chat/internal/metrics"
	"github.com/zhouzirui/negi-chat/internal/model/chat"
	"github.com/zhouzirui/negi-chat/internal/service/ai"
	"github.com/zhouzirui/negi-chat/internal/service/session"
)

var (
	ErrInvalidRequest   = errors.New("message and chat id are required")
	ErrMessageTooLong   = fmt.Errorf("%w: message too long", ErrInvalidRequest)
	ErrMisconfiguration = errors.New("chat service is misconfigured")
	ErrUpstreamFailure  = errors.New("model call failed")
)

// UpstreamError describes a failed model call. Status is the upstream HTTP
// status, or 0 when the call timed out, failed in transport, or returned an
// unusable payload.
type UpstreamError struct {
	Status int
	Cause  error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%v (status %d): %v", ErrUpstreamFailure, e.Status, e.Cause)
	}
	return fmt.Sprintf("%v: %v", ErrUpstreamFailure, e.Cause)
}

func (e *UpstreamError) Unwrap() []error {
	return []error{ErrUpstreamFailure, e.Cause}
}

// Generator produces the next model reply for a session context.
type Generator interface {
	Generate(ctx context.Context, history []chat.Message) (string, error)
}

// Options tune the gateway.
type Options struct {
	// Timeout bounds one model call. Zero means no bound beyond the caller's context.
	Timeout time.Duration
	// MaxMessageLength caps the user message in runes. Zero disables the check.
	MaxMessageLength int
}

// Service is the conversation gateway: it turns one user message into one
// model reply while keeping the server-side context for that session in order.
//
// The server context only feeds the next model call within this process. The
// client keeps the durable transcript; after a restart the model sees an empty
// context even though the user still sees the old transcript.
type Service struct {
	sessions  *session.Store
	generator Generator
	opts      Options
	logger    zerolog.Logger
}

// NewService wires the gateway.
func NewService(sessions *session.Store, generator Generator, opts Options, logger zerolog.Logger) *Service {
	return &Service{
		sessions:  sessions,
		generator: generator,
		opts:      opts,
		logger:    logger.With().Str("component", "gateway").Logger(),
	}
}

type generateResult struct {
	reply string
	err   error
}

// HandleTurn appends userMessage to session id, asks the model for a reply
// using the full context, appends the reply and returns it.
//
// Turns for the same id are serialized. On any model failure the user message
// stays in the context and no model message is added, so a retry only needs
// to resend the new user turn.
func (s *Service) HandleTurn(ctx context.Context, id, userMessage string) (string, error) {
	if strings.TrimSpace(id) == "" || strings.TrimSpace(userMessage) == "" {
		metrics.TurnsTotal.WithLabelValues("invalid").Inc()
		return "", ErrInvalidRequest
	}
	if s.opts.MaxMessageLength > 0 && utf8.RuneCountInString(userMessage) > s.opts.MaxMessageLength {
		metrics.TurnsTotal.WithLabelValues("invalid").Inc()
		return "", ErrMessageTooLong
	}
	if s.sessions == nil || s.generator == nil {
		metrics.TurnsTotal.WithLabelValues("misconfigured").Inc()
		return "", ErrMisconfiguration
	}

	turn, err := s.sessions.Acquire(ctx, id)
	if err != nil {
		return "", fmt.Errorf("acquire session: %w", err)
	}
	defer turn.Release()

	turn.Append(chat.NewMessage(chat.RoleUser, userMessage))
	history := turn.Messages()

	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if s.opts.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
	}
	defer cancel()

	start := time.Now()
	done := make(chan generateResult, 1)
	go func() {
		reply, err := s.generator.Generate(callCtx, history)
		done <- generateResult{reply: reply, err: err}
	}()

	var result generateResult
	select {
	case result = <-done:
	case <-callCtx.Done():
		// The generator may ignore cancellation; its late result is dropped.
		result = generateResult{err: callCtx.Err()}
	}
	metrics.TurnDuration.Observe(time.Since(start).Seconds())

	if result.err == nil && strings.TrimSpace(result.reply) == "" {
		result.err = ai.ErrMalformedReply
	}
	if result.err != nil {
		upstream := toUpstreamError(result.err)
		outcome := "upstream"
		if errors.Is(result.err, context.DeadlineExceeded) {
			outcome = "timeout"
		}
		metrics.TurnsTotal.WithLabelValues(outcome).Inc()
		s.logger.Error().
			Err(result.err).
			Str("session_id", id).
			Int("upstream_status", upstream.Status).
			Int("context_len", len(history)).
			Dur("elapsed", time.Since(start)).
			Msg("model call failed")
		return "", upstream
	}

	turn.Append(chat.NewMessage(chat.RoleModel, result.reply))
	metrics.TurnsTotal.WithLabelValues("ok").Inc()
	s.logger.Info().
		Str("session_id", id).
		Int("context_len", len(history)+1).
		Int("reply_len", len(result.reply)).
		Dur("elapsed", time.Since(start)).
		Msg("turn completed")

	return result.reply, nil
}

// Context returns a copy of the server-side context for id.
func (s *Service) Context(id string) ([]chat.Message, bool) {
	if s.sessions == nil {
		return nil, false
	}
	return s.sessions.Messages(id)
}

// Sessions reports how many sessions the server currently tracks.
func (s *Service) Sessions() int {
	if s.sessions == nil {
		return 0
	}
	return s.sessions.Len()
}

func toUpstreamError(err error) *UpstreamError {
	var statusErr *ai.StatusError
	if errors.As(err, &statusErr) {
		return &UpstreamError{Status: statusErr.StatusCode, Cause: err}
	}
	return &UpstreamError{Cause: err}
}
