package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/negi-chat/internal/middleware"
	chatService "github.com/zhouzirui/negi-chat/internal/service/chat"
	"github.com/zhouzirui/negi-chat/pkg/utils"
)

const (
	msgRequired      = "Message and chatId are required"
	msgTooLong       = "message too long"
	msgInvalidBody   = "invalid request body"
	msgBodyTooLarge  = "request body too large"
	msgUpstreamError = "Failed to get a response from the chatbot."
)

// TurnHandler runs one conversation turn.
type TurnHandler interface {
	HandleTurn(ctx context.Context, id, userMessage string) (string, error)
}

// Handler exposes the conversation gateway over HTTP.
type Handler struct {
	turns    TurnHandler
	logger   zerolog.Logger
	upgrader websocket.Upgrader
	maxFrame int64
}

// New creates the chat handler. Origins not allowed by policy cannot open a
// websocket; maxFrame bounds one inbound websocket frame in bytes.
func New(turns TurnHandler, policy *middleware.OriginPolicy, maxFrame int64, logger zerolog.Logger) *Handler {
	return &Handler{
		turns:    turns,
		logger:   logger.With().Str("component", "handler.chat").Logger(),
		maxFrame: maxFrame,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return policy.Allows(r.Header.Get("Origin"))
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes registers the chat routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
	r.Get("/chat/ws", h.handleWebSocket)
}

type chatRequest struct {
	Message string `json:"message"`
	ChatID  string `json:"chatId"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload chatRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.RespondError(w, http.StatusRequestEntityTooLarge, msgBodyTooLarge)
			return
		}
		utils.RespondError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	reply, err := h.turns.HandleTurn(r.Context(), payload.ChatID, payload.Message)
	if err != nil {
		status, message := h.classify(err, payload.ChatID)
		utils.RespondError(w, status, message)
		return
	}

	utils.RespondJSON(w, http.StatusOK, chatResponse{Reply: reply})
}

// classify maps gateway errors to a status and a client-safe message. Upstream
// details stay in the server log.
func (h *Handler) classify(err error, chatID string) (int, string) {
	switch {
	case errors.Is(err, chatService.ErrMessageTooLong):
		return http.StatusBadRequest, msgTooLong
	case errors.Is(err, chatService.ErrInvalidRequest):
		return http.StatusBadRequest, msgRequired
	case errors.Is(err, chatService.ErrUpstreamFailure):
		// already logged by the gateway
		return http.StatusInternalServerError, msgUpstreamError
	default:
		h.logger.Error().Err(err).Str("session_id", chatID).Msg("turn failed")
		return http.StatusInternalServerError, msgUpstreamError
	}
}
