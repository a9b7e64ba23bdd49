package support

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/risklock/livesync/internal/middleware"
	model "github.com/risklock/livesync/internal/model/support"
	"github.com/risklock/livesync/internal/service/desk"
	"github.com/risklock/livesync/pkg/utils"
)

// Handler 客服会话的 HTTP 与 WebSocket 处理器
type Handler struct {
	desk     *desk.Service
	verifier middleware.Verifier
	ws       *WebSocketHandler
}

// New 创建客服处理器
func New(deskSvc *desk.Service, verifier middleware.Verifier) *Handler {
	return &Handler{
		desk:     deskSvc,
		verifier: verifier,
		ws:       NewWebSocketHandler(deskSvc, verifier),
	}
}

// RegisterRoutes 注册 /support 下的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/support", func(sr chi.Router) {
		sr.Post("/chats/init", h.handleInitChat)
		sr.Get("/history/{chatID}", h.handleHistory)
		sr.Get("/ws/{chatID}", h.ws.handleWebSocket)

		sr.Group(func(staff chi.Router) {
			staff.Use(middleware.RequireAuth(h.verifier))
			staff.Use(middleware.RequireStaff)
			staff.Get("/chats", h.handleListChats)
		})
	})
}

// handleInitChat 创建会话
func (h *Handler) handleInitChat(w http.ResponseWriter, r *http.Request) {
	var payload model.InitRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	chat, err := h.desk.InitChat(r.Context(), payload)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, chat)
}

// handleHistory 返回会话历史
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	messages, err := h.desk.History(r.Context(), model.ID(chi.URLParam(r, "chatID")))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, desk.ErrChatNotFound) {
			status = http.StatusNotFound
		}
		utils.RespondError(w, status, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, messages)
}

// handleListChats 返回全部会话（客服控制台）
func (h *Handler) handleListChats(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.desk.ListChats(r.Context()))
}
