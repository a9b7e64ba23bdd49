package dashboard

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/risklock/livesync/internal/auth"
	"github.com/risklock/livesync/internal/middleware"
	model "github.com/risklock/livesync/internal/model/dashboard"
	"github.com/risklock/livesync/internal/model/support"
	"github.com/risklock/livesync/pkg/utils"
)

// Handler 提供仪表盘概览的演示数据
type Handler struct {
	verifier middleware.Verifier
	now      func() time.Time

	mu    sync.Mutex
	ticks int64
}

// New 创建仪表盘处理器
func New(verifier middleware.Verifier) *Handler {
	return &Handler{verifier: verifier, now: time.Now}
}

// RegisterRoutes 注册仪表盘路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.With(middleware.RequireAuth(h.verifier)).Get("/dashboard/overview", h.handleOverview)
}

func (h *Handler) handleOverview(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFrom(r.Context())
	utils.RespondJSON(w, http.StatusOK, h.snapshot(claims))
}

// snapshot 生成一份随调用次数缓慢变化的账户快照
func (h *Handler) snapshot(claims *auth.Claims) model.Overview {
	h.mu.Lock()
	h.ticks++
	tick := h.ticks
	h.mu.Unlock()

	balance := decimal.NewFromInt(100000)
	profit := decimal.NewFromInt(tick * 37).Div(decimal.NewFromInt(10))
	equity := balance.Add(profit)
	overallLimit := balance.Mul(decimal.NewFromFloat(0.10))
	drawdown := decimal.Zero
	if profit.IsNegative() {
		drawdown = profit.Neg()
	}
	buffer := overallLimit.Sub(drawdown)

	now := support.NewTimestamp(h.now())

	var score any = "Upgrade to Elite to unlock your RiskLock score"
	if claims != nil && claims.IsSubscriber() {
		score = 82
	}

	return model.Overview{
		Account: model.Account{
			Balance:  balance,
			Equity:   equity,
			Profit:   profit,
			Currency: "USD",
			Login:    5012345,
			Platform: "mt5",
		},
		Risk: model.Risk{
			Status:     "SAFE",
			Violations: []string{},
			Metrics: model.RiskMetrics{
				DailyLimit:      balance.Mul(decimal.NewFromFloat(0.05)),
				OverallLimit:    overallLimit,
				OverallDrawdown: drawdown,
				Buffer:          buffer,
				BufferPct:       buffer.Div(overallLimit).Mul(decimal.NewFromInt(100)).Round(2),
				TradesToBreach:  12,
			},
		},
		DailyStats: model.DailyStats{
			DailyProfit: profit,
			DailyVolume: decimal.NewFromFloat(3.5),
			TradesCount: int(tick % 20),
		},
		ConnectionStatus: "CONNECTED",
		Sync: model.Sync{
			Status:    model.SyncLive,
			LastSync:  &now,
			LatencyMS: 120,
		},
		Intelligence: model.Intelligence{
			Flags: []model.Flag{},
			SessionPerformance: map[string]model.SessionPerformance{
				"london": {Count: 4, Profit: profit},
			},
			Score: score,
		},
		Onboarding: model.Onboarding{HasAccount: true, HasPreset: true},
	}
}
