package chat

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/negi-chat/pkg/utils"
)

const wsWriteTimeout = 10 * time.Second

type inboundFrame struct {
	Message string `json:"message"`
}

type outgoingFrame struct {
	Type      string `json:"type"`
	Reply     string `json:"reply,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// handleWebSocket runs turns for one session over a websocket. Frames on a
// connection are handled one at a time, in order.
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	chatID := r.URL.Query().Get("chatId")
	if chatID == "" {
		utils.RespondError(w, http.StatusBadRequest, msgRequired)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		h.logger.Warn().Err(err).Str("session_id", chatID).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	if h.maxFrame > 0 {
		conn.SetReadLimit(h.maxFrame)
	}

	connID := uuid.NewString()
	logger := h.logger.With().Str("conn_id", connID).Str("session_id", chatID).Logger()
	logger.Info().Msg("websocket connected")

	for {
		var frame inboundFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn().Err(err).Msg("websocket read failed")
			}
			logger.Info().Msg("websocket closed")
			return
		}

		out := outgoingFrame{Type: "reply", Timestamp: time.Now().UnixMilli()}
		reply, err := h.turns.HandleTurn(r.Context(), chatID, frame.Message)
		if err != nil {
			_, message := h.classify(err, chatID)
			out = outgoingFrame{Type: "error", Error: message, Timestamp: time.Now().UnixMilli()}
		} else {
			out.Reply = reply
		}

		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(out); err != nil {
			logger.Warn().Err(err).Msg("websocket write failed")
			return
		}
	}
}
