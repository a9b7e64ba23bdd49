package dashboard

import (
	"github.com/shopspring/decimal"

	"github.com/risklock/livesync/internal/model/support"
)

// SyncStatus reports how fresh the backend's broker data is.
type SyncStatus string

const (
	SyncLive     SyncStatus = "LIVE"
	SyncDegraded SyncStatus = "DEGRADED"
	SyncStale    SyncStatus = "STALE"
	SyncPaused   SyncStatus = "PAUSED"
)

// Overview mirrors GET /dashboard/overview. Risk figures are computed
// server-side and only rendered here.
type Overview struct {
	Account          Account      `json:"account"`
	Risk             Risk         `json:"risk"`
	DailyStats       DailyStats   `json:"daily_stats"`
	ConnectionStatus string       `json:"connection_status"`
	Sync             Sync         `json:"sync_status"`
	Intelligence     Intelligence `json:"intelligence"`
	Onboarding       Onboarding   `json:"onboarding"`
}

type Account struct {
	Balance  decimal.Decimal `json:"balance"`
	Equity   decimal.Decimal `json:"equity"`
	Profit   decimal.Decimal `json:"profit"`
	Currency string          `json:"currency"`
	Login    int64           `json:"login"`
	Platform string          `json:"platform"`
}

type Risk struct {
	Status     string      `json:"status"`
	Violations []string    `json:"violations"`
	Metrics    RiskMetrics `json:"metrics"`
}

type RiskMetrics struct {
	DailyLimit      decimal.Decimal `json:"daily_limit"`
	OverallLimit    decimal.Decimal `json:"overall_limit"`
	OverallDrawdown decimal.Decimal `json:"overall_drawdown"`
	Buffer          decimal.Decimal `json:"buffer"`
	BufferPct       decimal.Decimal `json:"buffer_pct"`
	TradesToBreach  int             `json:"trades_to_breach"`
}

type DailyStats struct {
	DailyProfit decimal.Decimal `json:"daily_profit"`
	DailyVolume decimal.Decimal `json:"daily_volume"`
	TradesCount int             `json:"trades_count"`
}

type Sync struct {
	Status    SyncStatus         `json:"status"`
	LastSync  *support.Timestamp `json:"last_sync"`
	LatencyMS int                `json:"latency_ms"`
}

type Flag struct {
	Type     string `json:"type"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

type SessionPerformance struct {
	Count  int             `json:"count"`
	Profit decimal.Decimal `json:"profit"`
}

// Intelligence.Score is a number for paid tiers and an upsell string otherwise.
type Intelligence struct {
	Flags              []Flag                        `json:"flags"`
	SessionPerformance map[string]SessionPerformance `json:"session_performance"`
	Score              any                           `json:"score"`
}

type Onboarding struct {
	HasAccount bool `json:"has_account"`
	HasPreset  bool `json:"has_preset"`
	HasAlerts  bool `json:"has_alerts"`
	HasReport  bool `json:"has_report"`
}
