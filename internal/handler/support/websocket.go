package support

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/risklock/livesync/internal/middleware"
	model "github.com/risklock/livesync/internal/model/support"
	"github.com/risklock/livesync/internal/service/desk"
)

const (
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

// WebSocketHandler 客服会话的实时通道
type WebSocketHandler struct {
	desk     *desk.Service
	verifier middleware.Verifier
	upgrader websocket.Upgrader
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(deskSvc *desk.Service, verifier middleware.Verifier) *WebSocketHandler {
	return &WebSocketHandler{
		desk:     deskSvc,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	chatID := model.ID(chi.URLParam(r, "chatID"))
	if _, err := h.desk.GetChat(r.Context(), chatID); err != nil {
		http.Error(w, "chat not found", http.StatusNotFound)
		return
	}

	// 连接可选携带 token，用于识别客服身份
	staff, senderName := false, ""
	if token, ok := middleware.BearerToken(r); ok && h.verifier != nil {
		if claims, err := h.verifier.Verify(token); err == nil {
			staff = claims.IsStaff()
			senderName = claims.FullName
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[websocket] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sub, leave := h.desk.Hub().Join(chatID, staff)
	defer leave()

	log.Printf("[websocket] new connection for chat: %s (staff=%v)", chatID, staff)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	go h.writeLoop(ctx, cancel, conn, sub)

	for {
		var frame model.OutboundFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[websocket] read error: %v", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		// 只有握手时验证过的客服连接才能以 STAFF 身份发言
		name := ""
		if frame.SenderType == model.SenderStaff {
			if !staff {
				log.Printf("[websocket] chat %s: dropping STAFF frame from non-staff connection", chatID)
				continue
			}
			name = senderName
		}
		if err := h.desk.Post(ctx, chatID, frame, name); err != nil {
			log.Printf("[websocket] chat %s: rejected frame: %v", chatID, err)
			if errors.Is(err, desk.ErrChatNotFound) {
				return
			}
		}
	}
}

// writeLoop 独占写端：转发广播并定期发送 ping
func (h *WebSocketHandler) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, sub *desk.Subscriber) {
	defer cancel()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-sub.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("[websocket] write error: %v", err)
				conn.Close()
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				conn.Close()
				return
			}
		}
	}
}
