package auth

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/risklock/livesync/internal/auth"
	"github.com/risklock/livesync/internal/model/support"
	"github.com/risklock/livesync/pkg/utils"
)

// Handler 为本地调试签发访问令牌
type Handler struct {
	issuer *auth.Issuer
}

// New 创建令牌处理器
func New(issuer *auth.Issuer) *Handler {
	return &Handler{issuer: issuer}
}

// RegisterRoutes 注册令牌路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/token", h.handleIssue)
}

type tokenRequest struct {
	UserID           support.ID `json:"user_id"`
	FullName         string     `json:"full_name"`
	Role             string     `json:"role"`
	SubscriptionTier string     `json:"subscription_tier"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	var payload tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.UserID == "" {
		utils.RespondError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if payload.Role == "" {
		payload.Role = "USER"
	}

	token, err := h.issuer.Issue(auth.Claims{
		UserID:           payload.UserID,
		FullName:         payload.FullName,
		Role:             payload.Role,
		SubscriptionTier: payload.SubscriptionTier,
	})
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to sign token")
		return
	}

	utils.RespondJSON(w, http.StatusOK, tokenResponse{AccessToken: token, TokenType: "bearer"})
}
