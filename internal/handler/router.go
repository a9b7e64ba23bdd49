package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/risklock/livesync/internal/auth"
	authHandler "github.com/risklock/livesync/internal/handler/auth"
	"github.com/risklock/livesync/internal/handler/dashboard"
	"github.com/risklock/livesync/internal/handler/support"
	"github.com/risklock/livesync/internal/middleware"
	"github.com/risklock/livesync/internal/service/desk"
	"github.com/risklock/livesync/pkg/utils"
)

// NewRouter 在 /api 下注册模拟后端的路由
func NewRouter(deskSvc *desk.Service, issuer *auth.Issuer) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		authHandler.New(issuer).RegisterRoutes(api)
		support.New(deskSvc, issuer).RegisterRoutes(api)
		dashboard.New(issuer).RegisterRoutes(api)
	})

	return r
}
